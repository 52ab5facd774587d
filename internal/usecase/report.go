package usecase

import (
	"context"
	"strings"

	"codepilot/internal/adapter/extract"
	"codepilot/internal/adapter/fs"
	"codepilot/internal/domain"
	"codepilot/internal/port"
)

const descriptionLimit = 80

type FileReport struct {
	Path string
	Text string
}

// ReportPipeline writes a short review per file and concatenates them into
// one markdown report.
type ReportPipeline struct {
	gen      port.Generator
	prompts  port.PromptBuilder
	loc      port.Localizer
	settings Settings
}

func NewReportPipeline(gen port.Generator, prompts port.PromptBuilder, loc port.Localizer, settings Settings) *ReportPipeline {
	return &ReportPipeline{gen: gen, prompts: prompts, loc: loc, settings: settings}
}

func (p *ReportPipeline) Run(ctx context.Context, o *ScanOrchestrator, root string, reporter port.ProgressReporter) (*ScanOutcome[string], error) {
	return RunScan[[]FileReport, string](ctx, o, root, nil, p.PerFile, p.Combine, reporter)
}

func (p *ReportPipeline) PerFile(ctx context.Context, file domain.ProjectFileRecord, reports []FileReport) (string, []FileReport, error) {
	cfg := p.settings.Get()
	prompt, err := p.prompts.Build("file-report", map[string]string{
		"code":           file.Content,
		"language":       fs.LanguageID(file.RelativePath),
		"outputLanguage": cfg.OutputLanguage,
		"fileName":       file.RelativePath,
	})
	if err != nil {
		return "", reports, err
	}

	text, err := p.gen.Generate(ctx, domain.InferenceRequest{
		Prompt:  prompt,
		Model:   cfg.Model,
		Options: domain.DefaultSampling(),
	}).Unwrap()
	if err != nil {
		return "", reports, err
	}

	_, text = extract.Thinking(text)
	text = strings.TrimSpace(text)
	if text == "" {
		return "", reports, domain.ErrUnparseable
	}

	return describe(text), append(reports, FileReport{Path: file.RelativePath, Text: text}), nil
}

// Combine concatenates the per-file reports in scan order.
func (p *ReportPipeline) Combine(_ context.Context, reports []FileReport) (string, error) {
	var b strings.Builder
	b.WriteString("# " + p.loc.T("report.title") + "\n")
	for _, r := range reports {
		b.WriteString("\n## " + r.Path + "\n\n")
		b.WriteString(r.Text + "\n")
	}
	return b.String(), nil
}

// describe is the first non-empty line of text, shortened for the progress
// display.
func describe(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "#-* "))
		if line == "" {
			continue
		}
		if r := []rune(line); len(r) > descriptionLimit {
			return string(r[:descriptionLimit-3]) + "..."
		}
		return line
	}
	return ""
}

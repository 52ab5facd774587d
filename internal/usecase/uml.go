package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"codepilot/internal/adapter/extract"
	"codepilot/internal/adapter/fs"
	"codepilot/internal/domain"
	"codepilot/internal/port"
)

// UMLPipeline collects component facts per file and synthesizes one project
// diagram from them.
type UMLPipeline struct {
	gen      port.Generator
	prompts  port.PromptBuilder
	loc      port.Localizer
	settings Settings
}

func NewUMLPipeline(gen port.Generator, prompts port.PromptBuilder, loc port.Localizer, settings Settings) *UMLPipeline {
	return &UMLPipeline{gen: gen, prompts: prompts, loc: loc, settings: settings}
}

// Run scans root and returns the synthesized diagram.
func (p *UMLPipeline) Run(ctx context.Context, o *ScanOrchestrator, root string, reporter port.ProgressReporter) (*ScanOutcome[domain.UmlDiagramArtifact], error) {
	return RunScan[[]domain.UmlComponentFact, domain.UmlDiagramArtifact](ctx, o, root, nil, p.PerFile, p.Synthesize, reporter)
}

func (p *UMLPipeline) PerFile(ctx context.Context, file domain.ProjectFileRecord, facts []domain.UmlComponentFact) (string, []domain.UmlComponentFact, error) {
	prompt, err := p.prompts.Build("uml-facts", map[string]string{
		"code":     file.Content,
		"language": fs.LanguageID(file.RelativePath),
		"fileName": file.RelativePath,
	})
	if err != nil {
		return "", facts, err
	}

	text, err := p.generate(ctx, prompt)
	if err != nil {
		return "", facts, err
	}

	var fact domain.UmlComponentFact
	_, remainder := extract.Thinking(text)
	if !extract.LenientDecode(remainder, &fact) {
		return "", facts, domain.ErrUnparseable
	}
	fact.File = file.RelativePath

	return p.loc.T("scan.uml_facts", len(fact.Components), len(fact.Relations)), append(facts, fact), nil
}

// Synthesize sends all facts in one request. When the answer holds no UML
// block the diagram is built from the facts directly.
func (p *UMLPipeline) Synthesize(ctx context.Context, facts []domain.UmlComponentFact) (domain.UmlDiagramArtifact, error) {
	payload, err := json.MarshalIndent(facts, "", "  ")
	if err != nil {
		return domain.UmlDiagramArtifact{}, err
	}

	prompt, err := p.prompts.Build("uml-synthesize", map[string]string{
		"outputLanguage": p.settings.Get().OutputLanguage,
		"instruction":    string(payload),
	})
	if err != nil {
		return domain.UmlDiagramArtifact{}, err
	}

	text, err := p.generate(ctx, prompt)
	if err != nil {
		return domain.UmlDiagramArtifact{}, err
	}

	if uml, ok := extract.UML(text); ok {
		return domain.UmlDiagramArtifact{PlantUML: uml}, nil
	}
	return domain.UmlDiagramArtifact{PlantUML: FactsDiagram(facts)}, nil
}

func (p *UMLPipeline) generate(ctx context.Context, prompt string) (string, error) {
	return p.gen.Generate(ctx, domain.InferenceRequest{
		Prompt:  prompt,
		Model:   p.settings.Get().Model,
		Options: domain.DefaultSampling(),
	}).Unwrap()
}

var umlIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// FactsDiagram renders facts as a PlantUML component diagram with one package
// per file. Output is sorted so equal facts give equal text.
func FactsDiagram(facts []domain.UmlComponentFact) string {
	sorted := append([]domain.UmlComponentFact(nil), facts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].File < sorted[j].File })

	var b strings.Builder
	b.WriteString("@startuml\n")

	seen := make(map[string]bool)
	var relations []string
	for _, f := range sorted {
		fmt.Fprintf(&b, "package %q {\n", f.File)
		for _, c := range f.Components {
			id := umlIdent.ReplaceAllString(c.Name, "_")
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			fmt.Fprintf(&b, "  %s %s\n", umlKeyword(c.Type), id)
		}
		b.WriteString("}\n")
		for _, r := range f.Relations {
			from := umlIdent.ReplaceAllString(r.From, "_")
			to := umlIdent.ReplaceAllString(r.To, "_")
			if from == "" || to == "" {
				continue
			}
			relations = append(relations, fmt.Sprintf("%s %s %s", from, umlArrow(r.Kind), to))
		}
	}

	sort.Strings(relations)
	for _, r := range relations {
		b.WriteString(r + "\n")
	}
	b.WriteString("@enduml")
	return b.String()
}

func umlKeyword(kind string) string {
	switch strings.ToLower(kind) {
	case "interface", "trait", "protocol":
		return "interface"
	case "enum":
		return "enum"
	case "abstract":
		return "abstract"
	case "class", "struct", "type", "record":
		return "class"
	default:
		return "component"
	}
}

func umlArrow(kind string) string {
	switch strings.ToLower(kind) {
	case "inherits", "extends":
		return "--|>"
	case "implements":
		return "..|>"
	case "contains", "composes":
		return "*--"
	default:
		return "-->"
	}
}

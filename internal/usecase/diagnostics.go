package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"codepilot/internal/adapter/cache"
	"codepilot/internal/adapter/chunker"
	"codepilot/internal/adapter/extract"
	"codepilot/internal/domain"
	"codepilot/internal/port"
)

// DiagnosticSource tags every diagnostic this tool publishes.
const DiagnosticSource = "codepilot"

// CodeAction is a quick fix that replaces a diagnostic's range.
type CodeAction struct {
	Title      string
	Diagnostic domain.Diagnostic
	Range      domain.Range
	NewText    string
}

// DiagnosticsSynchronizer turns model suggestions into editor diagnostics.
// Analyses are cached per (document, content hash) and concurrent requests
// for the same content share one inference call.
type DiagnosticsSynchronizer struct {
	gen      port.Generator
	prompts  port.PromptBuilder
	settings Settings
	cache    *cache.AnalysisCache
	sink     port.DiagnosticSink

	mu        sync.Mutex
	published map[string][]domain.Diagnostic
}

func NewDiagnosticsSynchronizer(
	gen port.Generator,
	prompts port.PromptBuilder,
	settings Settings,
	analyses *cache.AnalysisCache,
	sink port.DiagnosticSink,
) *DiagnosticsSynchronizer {
	return &DiagnosticsSynchronizer{
		gen:       gen,
		prompts:   prompts,
		settings:  settings,
		cache:     analyses,
		sink:      sink,
		published: make(map[string][]domain.Diagnostic),
	}
}

// Analyze returns the analysis for doc's current text. The second result is
// true when it came from the cache.
func (s *DiagnosticsSynchronizer) Analyze(ctx context.Context, doc domain.Document) (domain.AnalysisResult, bool, error) {
	return s.cache.Do(ctx, doc.ID, doc.Text, func(ctx context.Context) (domain.AnalysisResult, error) {
		return s.analyze(ctx, doc)
	})
}

func (s *DiagnosticsSynchronizer) analyze(ctx context.Context, doc domain.Document) (domain.AnalysisResult, error) {
	cfg := s.settings.Get()
	windows := chunker.NewLineChunker(cfg.MaxLines, 0).Chunk(doc)

	var (
		result    domain.AnalysisResult
		summaries []string
		thoughts  []string
	)
	for _, w := range windows {
		prompt, err := s.prompts.Build("suggestions", map[string]string{
			"code":           w.Text,
			"language":       doc.LanguageID,
			"outputLanguage": cfg.OutputLanguage,
		})
		if err != nil {
			return domain.AnalysisResult{}, err
		}

		text, err := s.gen.Generate(ctx, domain.InferenceRequest{
			Prompt:  prompt,
			Model:   cfg.Model,
			Options: domain.DefaultSampling(),
		}).Unwrap()
		if err != nil {
			return domain.AnalysisResult{}, err
		}

		thinking, remainder := extract.Thinking(text)
		summary, suggestions, ok := parseSuggestions(remainder)
		if !ok {
			log.Debug().Str("doc", doc.ID).Int("window", w.StartLine).Msg("no suggestions recovered from model output")
			return domain.AnalysisResult{}, domain.ErrUnparseable
		}

		for _, sg := range suggestions {
			result.Suggestions = append(result.Suggestions, sg.Normalize().Offset(w.Offset()))
		}
		if summary != "" {
			summaries = append(summaries, summary)
		}
		if thinking != extract.NoReasoning {
			thoughts = append(thoughts, thinking)
		}
	}

	result.Summary = strings.Join(summaries, " ")
	result.Thinking = extract.NoReasoning
	if len(thoughts) > 0 {
		result.Thinking = strings.Join(thoughts, "\n\n")
	}
	return result, nil
}

// parseSuggestions accepts either {"summary", "suggestions": [...]} or a bare
// suggestion array, repairing truncated JSON where possible.
func parseSuggestions(text string) (string, []domain.Suggestion, bool) {
	var obj struct {
		Summary     string              `json:"summary"`
		Suggestions []domain.Suggestion `json:"suggestions"`
	}
	decoded := extract.LenientDecode(text, &obj)
	if decoded && obj.Suggestions != nil {
		return obj.Summary, obj.Suggestions, true
	}

	if arr, ok := extract.LenientJSONArray(text); ok {
		data, err := json.Marshal(arr)
		if err == nil {
			var list []domain.Suggestion
			if json.Unmarshal(data, &list) == nil {
				return obj.Summary, list, true
			}
		}
	}

	if decoded {
		return obj.Summary, nil, true
	}
	return "", nil, false
}

// Sync analyzes doc and publishes its diagnostics, replacing any previous set.
func (s *DiagnosticsSynchronizer) Sync(ctx context.Context, doc domain.Document) (domain.AnalysisResult, bool, error) {
	result, cached, err := s.Analyze(ctx, doc)
	if err != nil {
		return result, false, err
	}

	diags := make([]domain.Diagnostic, 0, len(result.Suggestions))
	for _, sg := range result.Suggestions {
		diags = append(diags, domain.ToDiagnostic(sg, DiagnosticSource))
	}

	s.mu.Lock()
	s.published[doc.ID] = diags
	s.mu.Unlock()
	s.sink.Set(doc.ID, diags)

	return result, cached, nil
}

// Clear removes doc's diagnostics.
func (s *DiagnosticsSynchronizer) Clear(docID string) {
	s.mu.Lock()
	delete(s.published, docID)
	s.mu.Unlock()
	s.sink.Clear(docID)
}

// Diagnostics returns what was last published for docID.
func (s *DiagnosticsSynchronizer) Diagnostics(docID string) []domain.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Diagnostic(nil), s.published[docID]...)
}

// CodeActions returns quick fixes for published diagnostics covering the
// 0-indexed line that carry a replacement.
func (s *DiagnosticsSynchronizer) CodeActions(docID string, line int) []CodeAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var actions []CodeAction
	for _, d := range s.published[docID] {
		if d.Source != DiagnosticSource || d.Replacement == "" {
			continue
		}
		if line < d.Range.StartLine || line > d.Range.EndLine {
			continue
		}
		actions = append(actions, CodeAction{
			Title:      fmt.Sprintf("Apply fix: %s", d.Message),
			Diagnostic: d,
			Range:      d.Range,
			NewText:    d.Replacement,
		})
	}
	return actions
}

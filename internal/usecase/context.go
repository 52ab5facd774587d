package usecase

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"codepilot/config"
	"codepilot/internal/adapter/extract"
	"codepilot/internal/adapter/gitea"
	"codepilot/internal/domain"
	"codepilot/internal/port"
)

// Settings is the live settings store as seen by the use cases.
type Settings interface {
	Get() *config.Config
}

const (
	recentCommitLimit = 5
	promptCommitLimit = 3
	contributorLimit  = 3
)

// Read groups recorded in GitContext.Failures.
const (
	GroupCommits = "commits"
	GroupIssues  = "issues"
	GroupPulls   = "pulls"
	GroupTasks   = "tasks"
)

// OrEmpty degrades a failed forge read to an empty, non-nil list.
func OrEmpty[T any](items []T, err error) []T {
	if err != nil || items == nil {
		return []T{}
	}
	return items
}

// ContextAggregator enriches a file analysis with repository history from the
// forge.
type ContextAggregator struct {
	forge    port.Forge
	gen      port.Generator
	prompts  port.PromptBuilder
	loc      port.Localizer
	settings Settings
}

func NewContextAggregator(
	forge port.Forge,
	gen port.Generator,
	prompts port.PromptBuilder,
	loc port.Localizer,
	settings Settings,
) *ContextAggregator {
	return &ContextAggregator{
		forge:    forge,
		gen:      gen,
		prompts:  prompts,
		loc:      loc,
		settings: settings,
	}
}

// GatherContext runs the four forge read groups concurrently and waits for all
// of them. A failed group contributes an empty list and an entry in Failures.
func (a *ContextAggregator) GatherContext(ctx context.Context, doc domain.Document) domain.GitContext {
	query := searchTerm(doc.Path)

	var (
		mu       sync.Mutex
		gc       domain.GitContext
		failures = make(map[string]string)
	)
	fail := func(group string, err error) {
		log.Warn().Str("group", group).Err(err).Msg("forge read degraded to empty")
		mu.Lock()
		failures[group] = err.Error()
		mu.Unlock()
	}

	var g errgroup.Group

	g.Go(func() error {
		commits, err := a.forge.GetCommitsForFile(ctx, doc.Path, recentCommitLimit)
		if err != nil {
			fail(GroupCommits, err)
		}
		gc.RecentCommits = OrEmpty(commits, err)
		return nil
	})

	g.Go(func() error {
		issues, err := a.forge.SearchIssues(ctx, query, "all")
		if err != nil {
			fail(GroupIssues, err)
		}
		gc.RelatedIssues = OrEmpty(issues, err)
		return nil
	})

	g.Go(func() error {
		pulls, err := a.forge.SearchPullRequests(ctx, query, "all")
		if err != nil {
			fail(GroupPulls, err)
		}
		gc.RelatedPullRequests = OrEmpty(pulls, err)
		return nil
	})

	g.Go(func() error {
		tasks, err := a.openTasks(ctx)
		if err != nil {
			fail(GroupTasks, err)
		}
		gc.OpenTasks = OrEmpty(tasks, err)
		return nil
	})

	// Every group returns nil; Wait is only the join.
	_ = g.Wait()

	gc.FileStats = gitea.FileStats(gc.RecentCommits)
	if len(failures) > 0 {
		gc.Failures = failures
	}
	return gc
}

// openTasks issues the open-issue and open-PR reads as a pair. Either half
// failing fails the group.
func (a *ContextAggregator) openTasks(ctx context.Context) ([]domain.Task, error) {
	var (
		issues []domain.Issue
		pulls  []domain.PullRequest
	)

	var g errgroup.Group
	g.Go(func() error {
		var err error
		issues, err = a.forge.GetIssues(ctx, "open")
		return err
	})
	g.Go(func() error {
		var err error
		pulls, err = a.forge.GetPullRequests(ctx, "open")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tasks := make([]domain.Task, 0, len(issues)+len(pulls))
	for _, is := range issues {
		tasks = append(tasks, domain.Task{Kind: domain.TaskIssue, Number: is.Number, Title: is.Title, URL: is.URL})
	}
	for _, pr := range pulls {
		tasks = append(tasks, domain.Task{Kind: domain.TaskPullRequest, Number: pr.Number, Title: pr.Title, URL: pr.URL})
	}
	return tasks, nil
}

// AnalyzeFileWithContext asks the model to review doc against its repository
// history. Without forge settings it returns ErrNotConfigured before any
// network call. Output without a JSON object is ErrUnparseable.
func (a *ContextAggregator) AnalyzeFileWithContext(ctx context.Context, doc domain.Document, model string) (*domain.EnhancedResult, error) {
	if !a.forge.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	gc := a.GatherContext(ctx, doc)

	prompt, err := a.prompts.Build("context-analysis", a.promptVars(doc, gc))
	if err != nil {
		return nil, err
	}

	text, err := a.gen.Generate(ctx, domain.InferenceRequest{
		Prompt:  prompt,
		Model:   model,
		Options: domain.DefaultSampling(),
	}).Unwrap()
	if err != nil {
		return nil, fmt.Errorf("context analysis: %w", err)
	}

	thinking, remainder := extract.Thinking(text)

	var analysis domain.ContextAnalysis
	if !extract.DecodeObject(remainder, &analysis) {
		return nil, domain.ErrUnparseable
	}
	for i, s := range analysis.Suggestions {
		analysis.Suggestions[i] = s.Normalize()
	}

	return &domain.EnhancedResult{
		Analysis: analysis,
		Context:  gc,
		Thinking: thinking,
	}, nil
}

func (a *ContextAggregator) promptVars(doc domain.Document, gc domain.GitContext) map[string]string {
	none := "-"

	var summaries []string
	for i, c := range gc.RecentCommits {
		if i == promptCommitLimit {
			break
		}
		summaries = append(summaries, c.Summary())
	}
	commitSummaries := none
	if len(summaries) > 0 {
		commitSummaries = strings.Join(summaries, "; ")
	}

	contributors := gc.FileStats.TopContributors
	if len(contributors) > contributorLimit {
		contributors = contributors[:contributorLimit]
	}
	contributorList := none
	if len(contributors) > 0 {
		contributorList = strings.Join(contributors, ", ")
	}

	return map[string]string{
		"code":            doc.Text,
		"language":        doc.LanguageID,
		"outputLanguage":  a.settings.Get().OutputLanguage,
		"fileName":        doc.Path,
		"commitSummaries": commitSummaries,
		"issueCount":      strconv.Itoa(len(gc.RelatedIssues)),
		"prCount":         strconv.Itoa(len(gc.RelatedPullRequests)),
		"taskCount":       strconv.Itoa(len(gc.OpenTasks)),
		"contributors":    contributorList,
		"lastModified":    a.loc.FormatDate(gc.FileStats.LastModified),
	}
}

// searchTerm is the file name without directory or extension, which is how
// issues and pull requests usually mention a file.
func searchTerm(p string) string {
	base := path.Base(strings.ReplaceAll(p, "\\", "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

package usecase

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/config"
	"codepilot/internal/adapter/gitea"
	"codepilot/internal/adapter/i18n"
	"codepilot/internal/adapter/prompt"
	"codepilot/internal/domain"
)

const analysisJSON = "<think>look at history</think>\n```json\n" + `{
  "summary": "Stable file",
  "issues": ["no tests"],
  "suggestions": [{"start": {"line": 4, "column": 2}, "end": {"line": 2, "column": 1}, "message": "m", "severity": "HIGH"}],
  "risk_level": "low",
  "history_insights": ["touched weekly"]
}` + "\n```"

var sampleDoc = domain.Document{
	ID:         "file:///src/server/handler.go",
	Path:       "server/handler.go",
	Text:       "package server\n",
	LanguageID: "go",
}

func newAggregator(forge *fakeForge, gen *scriptedGenerator) *ContextAggregator {
	return NewContextAggregator(forge, gen, prompt.DefaultRegistry(), i18n.New("en"), defaultSettings())
}

func TestAnalyzeFileWithContext_NotConfigured(t *testing.T) {
	forge := &fakeForge{configured: false}
	gen := replyWith(analysisJSON)

	result, err := newAggregator(forge, gen).AnalyzeFileWithContext(context.Background(), sampleDoc, "m")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	assert.Equal(t, 0, forge.Calls(), "no forge call may be attempted")
	assert.Equal(t, 0, gen.Calls(), "no inference call may be attempted")
}

func TestAnalyzeFileWithContext_Success(t *testing.T) {
	modified := time.Date(2024, 5, 6, 7, 8, 0, 0, time.UTC)
	forge := &fakeForge{
		configured: true,
		commits: []domain.Commit{
			{SHA: "a", Message: "fix race\n\ndetails", Author: "ana", Date: modified},
			{SHA: "b", Message: "add cache", Author: "bo"},
			{SHA: "c", Message: "rename", Author: "ana"},
			{SHA: "d", Message: "initial", Author: "cy"},
		},
		issues:     []domain.Issue{{Number: 1}, {Number: 2}},
		pulls:      []domain.PullRequest{{Number: 3}},
		openIssues: []domain.Issue{{Number: 4, Title: "open"}},
		openPulls:  []domain.PullRequest{{Number: 5, Title: "wip"}},
	}
	gen := replyWith(analysisJSON)

	result, err := newAggregator(forge, gen).AnalyzeFileWithContext(context.Background(), sampleDoc, "m")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "Stable file", result.Analysis.Summary)
	assert.Equal(t, "low", result.Analysis.RiskLevel)
	assert.Equal(t, []string{"touched weekly"}, result.Analysis.HistoryInsights)
	assert.Equal(t, "look at history", result.Thinking)

	require.Len(t, result.Analysis.Suggestions, 1)
	s := result.Analysis.Suggestions[0]
	assert.Equal(t, domain.SeverityError, s.Severity)
	assert.True(t, s.Start.Before(s.End), "range must be in document order")

	assert.Len(t, result.Context.OpenTasks, 2)
	assert.Empty(t, result.Context.Failures)
	assert.Equal(t, 4, result.Context.FileStats.TotalCommits)

	p := gen.Prompt(0)
	assert.Contains(t, p, "Recent commits: fix race; add cache; rename")
	assert.NotContains(t, p, "initial")
	assert.Contains(t, p, "Related issues: 2. Related pull requests: 1. Open tasks: 2.")
	assert.Contains(t, p, "Top contributors: ana, bo, cy.")
	assert.Contains(t, p, "Last modified: May 6, 2024 07:08.")
	assert.Contains(t, p, "```go\npackage server\n")
}

func TestAnalyzeFileWithContext_FailedGroupsDegrade(t *testing.T) {
	forge := &fakeForge{
		configured: true,
		commitsErr: errors.New("boom"),
		issuesErr:  errors.New("boom"),
		pulls:      []domain.PullRequest{{Number: 3}},
		openErr:    errors.New("boom"),
	}
	gen := replyWith(analysisJSON)

	result, err := newAggregator(forge, gen).AnalyzeFileWithContext(context.Background(), sampleDoc, "m")
	require.NoError(t, err)

	gc := result.Context
	assert.NotNil(t, gc.RecentCommits)
	assert.Empty(t, gc.RecentCommits)
	assert.Empty(t, gc.RelatedIssues)
	assert.Len(t, gc.RelatedPullRequests, 1)
	assert.Empty(t, gc.OpenTasks)
	assert.Contains(t, gc.Failures, GroupCommits)
	assert.Contains(t, gc.Failures, GroupIssues)
	assert.Contains(t, gc.Failures, GroupTasks)
	assert.NotContains(t, gc.Failures, GroupPulls)

	assert.Contains(t, gen.Prompt(0), "Last modified: not available.")
	assert.Contains(t, gen.Prompt(0), "Recent commits: -")
}

func TestAnalyzeFileWithContext_UnparseableIsSurfaced(t *testing.T) {
	forge := &fakeForge{configured: true}
	gen := replyWith("I think the file is fine, nothing to report.")

	result, err := newAggregator(forge, gen).AnalyzeFileWithContext(context.Background(), sampleDoc, "m")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrUnparseable)
}

func TestAnalyzeFileWithContext_InferenceFailure(t *testing.T) {
	forge := &fakeForge{configured: true}
	gen := &scriptedGenerator{respond: func(string) domain.InferenceResult {
		return domain.InferenceResult{Err: &domain.InferenceError{Kind: domain.KindTimeout}}
	}}

	result, err := newAggregator(forge, gen).AnalyzeFileWithContext(context.Background(), sampleDoc, "m")

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

// The same malformed text that fails a strict analysis only empties a
// search result.
func TestMalformedSearchResponseDegradesToEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("I think the file is fine, nothing to report."))
	}))
	defer srv.Close()

	cfg := config.DefaultConfig()
	cfg.Gitea = config.GiteaConfig{BaseURL: srv.URL, Token: "t", Organization: "o", Repository: "r"}
	client := gitea.NewClient(staticSettings{cfg: cfg})

	issues := OrEmpty(client.SearchIssues(context.Background(), "handler", "all"))
	assert.NotNil(t, issues)
	assert.Empty(t, issues)
}

func TestOrEmpty(t *testing.T) {
	assert.Equal(t, []int{1}, OrEmpty([]int{1}, nil))
	assert.Equal(t, []int{}, OrEmpty([]int{1}, errors.New("x")))
	assert.Equal(t, []int{}, OrEmpty[int](nil, nil))
}

func TestSearchTerm(t *testing.T) {
	assert.Equal(t, "handler", searchTerm("server/handler.go"))
	assert.Equal(t, "main", searchTerm(`cmd\main.go`))
	assert.Equal(t, "Makefile", searchTerm("Makefile"))
}

func TestGatherContext_ReadsRunConcurrently(t *testing.T) {
	const reads = 5

	var arrived sync.WaitGroup
	arrived.Add(reads)
	allIn := make(chan struct{})
	go func() {
		arrived.Wait()
		close(allIn)
	}()

	forge := &fakeForge{
		configured: true,
		commits:    []domain.Commit{{SHA: "abc", Message: "init", Author: "ana", Date: time.Now()}},
		issues:     []domain.Issue{{Number: 1, Title: "related"}},
		pulls:      []domain.PullRequest{{Number: 2, Title: "related"}},
		openIssues: []domain.Issue{{Number: 3, Title: "open"}},
		openPulls:  []domain.PullRequest{{Number: 4, Title: "open"}},
		// Each read holds until every other read has started.
		gate: func() error {
			arrived.Done()
			select {
			case <-allIn:
				return nil
			case <-time.After(time.Second):
				return errors.New("read started alone")
			}
		},
	}

	done := make(chan domain.GitContext, 1)
	go func() {
		done <- newAggregator(forge, replyWith(analysisJSON)).GatherContext(context.Background(), sampleDoc)
	}()

	var gc domain.GitContext
	select {
	case gc = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("GatherContext did not join its reads")
	}

	assert.Empty(t, gc.Failures)
	assert.Equal(t, reads, forge.Calls())
	assert.Len(t, gc.RecentCommits, 1)
	assert.Len(t, gc.RelatedIssues, 1)
	assert.Len(t, gc.RelatedPullRequests, 1)
	assert.Len(t, gc.OpenTasks, 2)
}

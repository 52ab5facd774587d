package usecase

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"codepilot/config"
	"codepilot/internal/domain"
)

type staticSettings struct {
	cfg *config.Config
}

func (s staticSettings) Get() *config.Config {
	return s.cfg
}

func defaultSettings() staticSettings {
	return staticSettings{cfg: config.DefaultConfig()}
}

// scriptedGenerator answers every request through respond and records the
// prompts it saw.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	respond func(prompt string) domain.InferenceResult
}

func replyWith(text string) *scriptedGenerator {
	return &scriptedGenerator{respond: func(string) domain.InferenceResult {
		return domain.InferenceResult{Text: text}
	}}
}

func (g *scriptedGenerator) Generate(_ context.Context, req domain.InferenceRequest) domain.InferenceResult {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()
	return g.respond(req.Prompt)
}

func (g *scriptedGenerator) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *scriptedGenerator) Prompt(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.prompts[i]
}

func (g *scriptedGenerator) PromptsContaining(s string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if strings.Contains(p, s) {
			n++
		}
	}
	return n
}

type fakeForge struct {
	configured bool
	calls      int32
	// gate, when set, runs at the start of every read; an error fails it.
	gate func() error

	commits    []domain.Commit
	commitsErr error
	issues     []domain.Issue
	issuesErr  error
	pulls      []domain.PullRequest
	pullsErr   error
	openIssues []domain.Issue
	openPulls  []domain.PullRequest
	openErr    error
}

func (f *fakeForge) IsConfigured() bool {
	return f.configured
}

func (f *fakeForge) SearchIssues(context.Context, string, string) ([]domain.Issue, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	return f.issues, f.issuesErr
}

func (f *fakeForge) SearchPullRequests(context.Context, string, string) ([]domain.PullRequest, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	return f.pulls, f.pullsErr
}

func (f *fakeForge) GetCommitsForFile(context.Context, string, int) ([]domain.Commit, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	return f.commits, f.commitsErr
}

func (f *fakeForge) GetPullRequests(context.Context, string) ([]domain.PullRequest, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	return f.openPulls, f.openErr
}

func (f *fakeForge) GetIssues(context.Context, string) ([]domain.Issue, error) {
	if err := f.enter(); err != nil {
		return nil, err
	}
	return f.openIssues, nil
}

func (f *fakeForge) CreateIssue(context.Context, string, string, []string) (*domain.Issue, error) {
	atomic.AddInt32(&f.calls, 1)
	return nil, domain.ErrNotConfigured
}

func (f *fakeForge) enter() error {
	atomic.AddInt32(&f.calls, 1)
	if f.gate != nil {
		return f.gate()
	}
	return nil
}

func (f *fakeForge) Calls() int {
	return int(atomic.LoadInt32(&f.calls))
}

type recordingSink struct {
	mu     sync.Mutex
	sets   map[string][]domain.Diagnostic
	clears []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{sets: make(map[string][]domain.Diagnostic)}
}

func (s *recordingSink) Set(docID string, diags []domain.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[docID] = diags
}

func (s *recordingSink) Clear(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, docID)
	s.clears = append(s.clears, docID)
}

func (s *recordingSink) Get(docID string) []domain.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[docID]
}

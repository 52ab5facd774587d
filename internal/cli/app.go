package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"codepilot/config"
	"codepilot/internal/adapter/cache"
	"codepilot/internal/adapter/fs"
	"codepilot/internal/adapter/gitea"
	"codepilot/internal/adapter/i18n"
	"codepilot/internal/adapter/ollama"
	"codepilot/internal/adapter/prompt"
	"codepilot/internal/adapter/store"
	"codepilot/internal/domain"
	"codepilot/internal/usecase"
)

// App holds the long-lived collaborators every command shares.
type App struct {
	Store   *config.Store
	Loc     *i18n.Localizer
	Ollama  *ollama.Client
	Gitea   *gitea.Client
	Prompts *prompt.Registry
	Cache   *cache.AnalysisCache
}

// NewApp builds the collaborators and wires settings changes to the ones that
// cache derived state.
func NewApp(settings *config.Store) *App {
	cfg := settings.Get()
	a := &App{
		Store:   settings,
		Loc:     i18n.New(cfg.OutputLanguage),
		Ollama:  ollama.NewClient(settings),
		Gitea:   gitea.NewClient(settings),
		Prompts: prompt.DefaultRegistry(),
		Cache:   cache.NewAnalysisCache(cfg.Cache.MaxEntries),
	}

	settings.OnChange(func(cfg *config.Config, changed []config.Section) {
		for _, s := range changed {
			switch s {
			case config.SectionGitea:
				a.Gitea.Reload()
			case config.SectionLanguage:
				a.Loc.Reload(cfg.OutputLanguage)
			case config.SectionInference:
				// Results from another model or window size are stale.
				a.Cache.Purge()
			case config.SectionLogging:
				setupLogging(cfg.Logging.Level)
			}
		}
		log.Debug().Interface("sections", changed).Msg("settings changed")
	})
	return a
}

func (a *App) Aggregator() *usecase.ContextAggregator {
	return usecase.NewContextAggregator(a.Gitea, a.Ollama, a.Prompts, a.Loc, a.Store)
}

func (a *App) Synchronizer(sink *printSink) *usecase.DiagnosticsSynchronizer {
	return usecase.NewDiagnosticsSynchronizer(a.Ollama, a.Prompts, a.Store, a.Cache, sink)
}

func (a *App) Orchestrator() *usecase.ScanOrchestrator {
	return usecase.NewScanOrchestrator(a.Store, a.Loc)
}

// OpenArchive opens the artifact archive of the workspace at dir.
func (a *App) OpenArchive(dir string) (*store.BoltStore, error) {
	if err := config.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create .codepilot directory: %w", err)
	}
	st, err := store.NewBoltStore(config.ArchivePath(dir))
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact archive: %w", err)
	}
	return st, nil
}

// loadDocument reads path as a document. The ID is a file URI of the absolute
// path so the same file always maps to the same cache entries.
func loadDocument(path string) (domain.Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("invalid path: %w", err)
	}
	text, err := fs.ReadFile(abs)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	rel := path
	if r, err := filepath.Rel(rootDir, abs); err == nil && !filepath.IsAbs(r) {
		rel = filepath.ToSlash(r)
	}
	return domain.Document{
		ID:         documentID(abs),
		Path:       rel,
		Text:       text,
		LanguageID: fs.LanguageID(abs),
	}, nil
}

func documentID(abs string) string {
	return "file://" + filepath.ToSlash(abs)
}

// printSink is the terminal's diagnostic collection: it keeps the latest set
// per document and prints each update.
type printSink struct {
	mu    sync.Mutex
	out   io.Writer
	loc   *i18n.Localizer
	diags map[string][]domain.Diagnostic
}

func newPrintSink(out io.Writer, loc *i18n.Localizer) *printSink {
	if out == nil {
		out = os.Stdout
	}
	return &printSink{out: out, loc: loc, diags: make(map[string][]domain.Diagnostic)}
}

func (s *printSink) Set(docID string, diags []domain.Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diags[docID] = diags

	fmt.Fprintln(s.out, s.loc.T("diagnostics.published", docID, len(diags)))
	sorted := append([]domain.Diagnostic(nil), diags...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Range.StartLine != sorted[j].Range.StartLine {
			return sorted[i].Range.StartLine < sorted[j].Range.StartLine
		}
		return sorted[i].Range.StartCol < sorted[j].Range.StartCol
	})
	for _, d := range sorted {
		fmt.Fprintf(s.out, "  %d:%d %-7s %s\n", d.Range.StartLine+1, d.Range.StartCol+1, d.Severity, d.Message)
	}
}

func (s *printSink) Clear(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.diags, docID)
}

func (s *printSink) Get(docID string) []domain.Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diags[docID]
}

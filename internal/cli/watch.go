package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"codepilot/config"
	"codepilot/internal/adapter/fs"
	"codepilot/internal/usecase"
)

const watchDebounce = 500 * time.Millisecond

var watchAlways bool

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-analyze files as they are saved",
	Long: `Watch a workspace and publish fresh diagnostics for every supported file
that is written. Analysis runs when auto_analyze is enabled in the config (or
with --analyze); the config file itself is reloaded live.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchAlways, "analyze", false, "analyze on save even when auto_analyze is off")
}

func runWatch(cmd *cobra.Command, args []string) error {
	root, err := workspace(args)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	walker, err := newWalker(root, app.Store.Get())
	if err != nil {
		return err
	}
	if err := watchDirs(watcher, walker, root); err != nil {
		return err
	}

	w := &fileWatcher{
		root:    root,
		walker:  walker,
		syncer:  app.Synchronizer(newPrintSink(os.Stdout, app.Loc)),
		pending: make(map[string]*time.Timer),
	}
	app.Store.OnChange(func(cfg *config.Config, changed []config.Section) {
		if !w.reload(cfg, changed) {
			return
		}
		if err := watchDirs(watcher, w.currentWalker(), root); err != nil {
			log.Warn().Err(err).Msg("cannot rescan directories")
		}
	})
	fmt.Println(app.Loc.T("watch.started", root))

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return app.Store.Watch(ctx)
	})
	g.Go(func() error {
		return w.loop(ctx, watcher)
	})
	return g.Wait()
}

func newWalker(root string, cfg *config.Config) (*fs.Walker, error) {
	excludes, err := fs.NewExclusionSet(root, cfg.Files.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to read exclusions: %w", err)
	}
	return fs.NewWalker(fs.ExtensionsFor(cfg.SupportedLanguages), excludes), nil
}

// watchDirs adds every directory the walker would descend into. Adding an
// already watched directory is a no-op.
func watchDirs(watcher *fsnotify.Watcher, walker *fs.Walker, root string) error {
	dirs, err := walker.Dirs(root)
	if err != nil {
		return fmt.Errorf("failed to list directories: %w", err)
	}
	for _, d := range dirs {
		if err := watcher.Add(d); err != nil {
			log.Warn().Err(err).Str("dir", d).Msg("cannot watch directory")
		}
	}
	return nil
}

type fileWatcher struct {
	root   string
	syncer *usecase.DiagnosticsSynchronizer

	mu      sync.Mutex
	walker  *fs.Walker
	pending map[string]*time.Timer
}

func (w *fileWatcher) currentWalker() *fs.Walker {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.walker
}

// reload rebuilds the walker when the supported languages or exclusions
// changed, and reports whether it did.
func (w *fileWatcher) reload(cfg *config.Config, changed []config.Section) bool {
	if !slices.Contains(changed, config.SectionFiles) {
		return false
	}
	walker, err := newWalker(w.root, cfg)
	if err != nil {
		log.Warn().Err(err).Msg("keeping previous file filter")
		return false
	}
	w.mu.Lock()
	w.walker = walker
	w.mu.Unlock()
	log.Info().Strs("languages", cfg.SupportedLanguages).Msg("file filter reloaded")
	return true
}

func (w *fileWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			w.stopAll()
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("watcher error")
		}
	}
}

func (w *fileWatcher) handle(ctx context.Context, watcher *fsnotify.Watcher, ev fsnotify.Event) {
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := watcher.Add(ev.Name); err != nil {
				log.Warn().Err(err).Str("dir", ev.Name).Msg("cannot watch directory")
			}
			return
		}
	}
	if !w.currentWalker().Accepts(rel) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		w.forget(ev.Name)
	case ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create):
		cfg := app.Store.Get()
		if !cfg.AutoAnalyze && !watchAlways {
			return
		}
		w.schedule(ctx, ev.Name)
	}
}

// schedule analyzes path once writes to it have settled.
func (w *fileWatcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		doc, err := loadDocument(path)
		if err != nil {
			log.Warn().Err(err).Str("file", path).Msg("cannot read changed file")
			return
		}
		if _, cached, err := w.syncer.Sync(ctx, doc); err != nil {
			log.Warn().Err(err).Str("file", doc.Path).Msg("analysis failed")
		} else if cached {
			log.Debug().Str("file", doc.Path).Msg(app.Loc.T("analysis.cached", doc.Path))
		}
	})
}

func (w *fileWatcher) forget(path string) {
	w.mu.Lock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return
	}
	id := documentID(abs)
	w.syncer.Clear(id)
	app.Cache.Invalidate(id)
}

func (w *fileWatcher) stopAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
}

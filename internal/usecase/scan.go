package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"codepilot/internal/adapter/fs"
	"codepilot/internal/domain"
	"codepilot/internal/port"
)

type ScanState string

const (
	StateIdle              ScanState = "idle"
	StateEnumerating       ScanState = "enumerating"
	StatePerFileProcessing ScanState = "per-file-processing"
	StateSynthesizing      ScanState = "synthesizing"
	StateDone              ScanState = "done"
	StateNoWorkspace       ScanState = "no-workspace"
	StateNoFiles           ScanState = "no-files"
	StateCancelled         ScanState = "cancelled"
)

// Terminal reports whether no further transition can follow s.
func (s ScanState) Terminal() bool {
	switch s {
	case StateDone, StateNoWorkspace, StateNoFiles, StateCancelled:
		return true
	}
	return false
}

// FileHandler processes one file and returns a progress description and the
// updated accumulator.
type FileHandler[A any] func(ctx context.Context, file domain.ProjectFileRecord, acc A) (string, A, error)

// FinalHandler turns the complete accumulator into the scan's artifact.
type FinalHandler[A, R any] func(ctx context.Context, acc A) (R, error)

// ScanOutcome describes how a scan ended.
type ScanOutcome[R any] struct {
	State       ScanState
	Transitions []ScanState
	Files       []string
	Degraded    []string
	Loading     domain.LoadingState
	Result      R
}

// ScanOrchestrator enumerates eligible workspace files and drives the
// per-file then synthesis pipeline.
type ScanOrchestrator struct {
	settings Settings
	loc      port.Localizer
	readFile func(path string) (string, error)
}

func NewScanOrchestrator(settings Settings, loc port.Localizer) *ScanOrchestrator {
	return &ScanOrchestrator{
		settings: settings,
		loc:      loc,
		readFile: fs.ReadFile,
	}
}

// Enumerate lists supported files under root minus the default ignore list,
// the workspace .gitignore and the configured exclusions. The order is the
// walk order.
func (o *ScanOrchestrator) Enumerate(root string) ([]string, error) {
	cfg := o.settings.Get()

	excludes, err := fs.NewExclusionSet(root, cfg.Files.Exclude)
	if err != nil {
		return nil, fmt.Errorf("failed to read exclusions: %w", err)
	}
	walker := fs.NewWalker(fs.ExtensionsFor(cfg.SupportedLanguages), excludes)

	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	return files, nil
}

// RunScan drives one scan. Files are processed strictly one after another and
// reporter sees each file's description before the next file starts. A file
// whose handler fails or panics is reported as "could not analyze" and the
// scan continues. final runs only after every file, and never when the scan
// was cancelled or found nothing to do.
func RunScan[A, R any](
	ctx context.Context,
	o *ScanOrchestrator,
	root string,
	initial A,
	perFile FileHandler[A],
	final FinalHandler[A, R],
	reporter port.ProgressReporter,
) (*ScanOutcome[R], error) {
	out := &ScanOutcome[R]{State: StateIdle}
	move := func(s ScanState) {
		out.State = s
		out.Transitions = append(out.Transitions, s)
		log.Debug().Str("state", string(s)).Msg("scan state")
	}

	if !isDir(root) {
		move(StateNoWorkspace)
		return out, nil
	}

	move(StateEnumerating)
	files, err := o.Enumerate(root)
	if err != nil {
		return out, err
	}
	out.Files = files
	if len(files) == 0 {
		move(StateNoFiles)
		return out, nil
	}

	move(StatePerFileProcessing)
	reporter.Start(len(files))
	defer reporter.Finish()

	acc := initial
	out.Loading.RemainingFiles = len(files)
	for i, rel := range files {
		if ctx.Err() != nil {
			move(StateCancelled)
			return out, domain.ErrCancelled
		}

		desc, next, err := processFile(ctx, o, root, rel, acc, perFile)
		if err != nil {
			log.Warn().Str("file", rel).Err(err).Msg("file analysis failed")
			desc = o.loc.T("scan.could_not_analyze")
			out.Degraded = append(out.Degraded, rel)
		} else {
			acc = next
		}

		out.Loading.ProcessedFiles = append(out.Loading.ProcessedFiles, rel)
		out.Loading.RemainingFiles = len(files) - i - 1
		reporter.Report(port.ScanProgress{
			Path:        rel,
			Description: desc,
			Index:       i,
			Total:       len(files),
		})
	}

	if ctx.Err() != nil {
		move(StateCancelled)
		return out, domain.ErrCancelled
	}

	move(StateSynthesizing)
	result, err := final(ctx, acc)
	if err != nil {
		return out, fmt.Errorf("synthesis failed: %w", err)
	}
	out.Result = result
	move(StateDone)
	return out, nil
}

func processFile[A any](ctx context.Context, o *ScanOrchestrator, root, rel string, acc A, perFile FileHandler[A]) (string, A, error) {
	file, err := o.readRecord(root, rel)
	if err != nil {
		return "", acc, err
	}
	return callHandler(ctx, perFile, file, acc)
}

func isDir(root string) bool {
	if root == "" {
		return false
	}
	info, err := os.Stat(root)
	return err == nil && info.IsDir()
}

var errPanicked = errors.New("handler panicked")

// callHandler runs perFile, converting a panic into an error.
func callHandler[A any](ctx context.Context, perFile FileHandler[A], file domain.ProjectFileRecord, acc A) (desc string, next A, err error) {
	defer func() {
		if r := recover(); r != nil {
			desc, next, err = "", acc, fmt.Errorf("%w: %v", errPanicked, r)
		}
	}()
	return perFile(ctx, file, acc)
}

func (o *ScanOrchestrator) readRecord(root, rel string) (domain.ProjectFileRecord, error) {
	content, err := o.readFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return domain.ProjectFileRecord{}, err
	}
	return domain.ProjectFileRecord{RelativePath: rel, Content: content}, nil
}

package config

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Section names a group of settings that listeners can react to.
type Section string

const (
	SectionInference Section = "inference"
	SectionGitea     Section = "gitea"
	SectionLanguage  Section = "output_language"
	SectionFiles     Section = "files"
	SectionCache     Section = "cache"
	SectionLogging   Section = "logging"
)

// Store is the live settings store. Readers always get the current snapshot,
// so nothing downstream holds stale values across a reload.
type Store struct {
	path string

	mu        sync.RWMutex
	cfg       *Config
	listeners []func(cfg *Config, changed []Section)
}

// NewStore wraps an already loaded configuration. path may be empty for
// stores that are never reloaded from disk.
func NewStore(path string, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{path: path, cfg: cfg}
}

// OpenStore loads the configuration for dir and returns a store bound to it.
func OpenStore(dir string) (*Store, error) {
	path := PathInDir(dir)
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, cfg), nil
}

// Get returns a snapshot of the current configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

func (s *Store) Path() string {
	return s.path
}

// OnChange registers a listener that is called after every reload that
// changed at least one section.
func (s *Store) OnChange(fn func(cfg *Config, changed []Section)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Set replaces the configuration and notifies listeners.
func (s *Store) Set(cfg *Config) {
	s.mu.Lock()
	old := s.cfg
	s.cfg = cfg.Clone()
	listeners := append([]func(*Config, []Section){}, s.listeners...)
	s.mu.Unlock()

	changed := diffSections(old, cfg)
	if len(changed) == 0 {
		return
	}
	for _, fn := range listeners {
		fn(cfg.Clone(), changed)
	}
}

// Reload re-reads the backing file.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}
	s.Set(cfg)
	return nil
}

// Watch reloads the store whenever the config file is written. It blocks
// until ctx is cancelled.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(s.path), err)
	}

	name := filepath.Base(s.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if err := s.Reload(); err != nil {
				log.Warn().Err(err).Str("path", s.path).Msg("config reload failed, keeping previous settings")
				continue
			}
			log.Debug().Str("path", s.path).Msg("config reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func diffSections(old, cur *Config) []Section {
	var changed []Section
	if old.Model != cur.Model || old.BaseURL != cur.BaseURL || old.Timeout != cur.Timeout || old.MaxLines != cur.MaxLines {
		changed = append(changed, SectionInference)
	}
	if old.Gitea != cur.Gitea {
		changed = append(changed, SectionGitea)
	}
	if old.OutputLanguage != cur.OutputLanguage {
		changed = append(changed, SectionLanguage)
	}
	if !reflect.DeepEqual(old.Files, cur.Files) || !reflect.DeepEqual(old.SupportedLanguages, cur.SupportedLanguages) {
		changed = append(changed, SectionFiles)
	}
	if old.Cache != cur.Cache {
		changed = append(changed, SectionCache)
	}
	if old.Logging != cur.Logging {
		changed = append(changed, SectionLogging)
	}
	return changed
}

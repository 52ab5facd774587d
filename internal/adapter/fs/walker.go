package fs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Walker enumerates source files under a root whose extension is allowed and
// which the exclusion set does not cover.
type Walker struct {
	extensions map[string]struct{}
	excludes   *ExclusionSet
}

func NewWalker(extensions []string, excludes *ExclusionSet) *Walker {
	set := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = struct{}{}
	}
	if excludes == nil {
		excludes = &ExclusionSet{}
	}
	return &Walker{
		extensions: set,
		excludes:   excludes,
	}
}

// Walk returns slash-separated paths relative to root. The order is whatever
// the directory walk yields; callers must not rely on it.
func (w *Walker) Walk(root string) ([]string, error) {
	var files []string

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		if d.IsDir() {
			if w.excludes.Excludes(relPath, true) {
				return filepath.SkipDir
			}
			return nil
		}

		if !w.allowed(relPath) || w.excludes.Excludes(relPath, false) {
			return nil
		}
		files = append(files, relPath)
		return nil
	})

	return files, err
}

// Accepts reports whether a single file, relative to root, would be part of a
// walk.
func (w *Walker) Accepts(rel string) bool {
	rel = filepath.ToSlash(rel)
	return w.allowed(rel) && !w.excludes.Excludes(rel, false)
}

// Dirs lists root and every directory below it that a walk would descend
// into, as absolute paths.
func (w *Walker) Dirs(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	dirs := []string{root}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root || !d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if w.excludes.Excludes(filepath.ToSlash(rel), true) {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}

// allowed reports whether path has one of the walker's extensions. An empty
// set allows nothing.
func (w *Walker) allowed(path string) bool {
	_, ok := w.extensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

func ReadFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

package fs

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
}

func TestWalker_ExtensionsAndExclusions(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":                   "package main",
		"internal/server/server.go": "package server",
		"web/app.ts":                "export {}",
		"README.md":                 "# readme",
		"node_modules/lib/index.js": "x",
		"generated/api.go":          "package generated",
		"logs/debug.go":             "package logs",
		"tmp.go":                    "package tmp",
		"docs/gen/page.go":          "package gen",
		".gitignore":                "# comment\ngenerated/\n/tmp.go\n",
	})

	excludes, err := NewExclusionSet(root, []string{"**/docs/**"})
	require.NoError(t, err)

	w := NewWalker(ExtensionsFor([]string{"go", "typescript", "javascript"}), excludes)
	files, err := w.Walk(root)
	require.NoError(t, err)
	sort.Strings(files)

	assert.Equal(t, []string{"internal/server/server.go", "logs/debug.go", "main.go", "web/app.ts"}, files)
}

func TestNewExclusionSet_MissingGitignore(t *testing.T) {
	set, err := NewExclusionSet(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultExcludes, set.Globs())
	assert.True(t, set.Excludes("node_modules/lib/index.js", false))
	assert.True(t, set.Excludes("pkg/vendor/x.go", false))
	assert.False(t, set.Excludes("pkg/x.go", false))
}

func TestGitignoreGlobs(t *testing.T) {
	assert.Equal(t, []string{"**/build/**", "**/build"}, GitignoreGlobs("build/"))
	assert.Equal(t, []string{"**/*.log/**", "**/*.log"}, GitignoreGlobs("*.log"))
	assert.Equal(t, []string{"**/out/**", "**/out"}, GitignoreGlobs("**/out"))
	assert.Nil(t, GitignoreGlobs("# comment"))
	assert.Nil(t, GitignoreGlobs("!keep.log"))
	assert.Nil(t, GitignoreGlobs("   "))
}

func TestExtensionsFor(t *testing.T) {
	exts := ExtensionsFor([]string{"go", "javascript", "elixir"})
	assert.Contains(t, exts, ".go")
	assert.Contains(t, exts, ".js")
	assert.Contains(t, exts, ".mjs")
	assert.Contains(t, exts, ".elixir")
	assert.NotContains(t, exts, ".py")
}

func TestLanguageID(t *testing.T) {
	assert.Equal(t, "go", LanguageID("cmd/main.go"))
	assert.Equal(t, "typescript", LanguageID("src/app.ts"))
	assert.Equal(t, "python", LanguageID("x.PY"))
	assert.Equal(t, "plaintext", LanguageID("LICENSE"))
}

func TestWalker_AcceptsAndDirs(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"main.go":          "package main",
		"pkg/util/util.go": "package util",
		"generated/api.go": "package generated",
		".gitignore":       "generated\n",
	})

	excludes, err := NewExclusionSet(root, nil)
	require.NoError(t, err)
	w := NewWalker(ExtensionsFor([]string{"go"}), excludes)

	assert.True(t, w.Accepts("main.go"))
	assert.True(t, w.Accepts(filepath.Join("pkg", "util", "util.go")))
	assert.False(t, w.Accepts("generated/api.go"))
	assert.False(t, w.Accepts("README.md"))

	dirs, err := w.Dirs(root)
	require.NoError(t, err)
	var rel []string
	for _, d := range dirs {
		r, err := filepath.Rel(root, d)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	sort.Strings(rel)
	assert.Equal(t, []string{".", "pkg", "pkg/util"}, rel)
}

func TestWalker_NoExtensionsMatchesNothing(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"a.go":      "package a",
		"logo.png":  "\x89PNG",
		"notes.txt": "text",
	})

	w := NewWalker(ExtensionsFor(nil), nil)
	files, err := w.Walk(root)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.False(t, w.Accepts("a.go"))

	w = NewWalker(ExtensionsFor([]string{"klingon"}), nil)
	files, err = w.Walk(root)
	require.NoError(t, err)
	assert.Empty(t, files)
}

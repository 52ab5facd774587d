package fs

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultExcludes is always part of the exclusion set.
var DefaultExcludes = []string{
	"**/node_modules/**",
	"**/vendor/**",
	"**/.git/**",
	"**/dist/**",
	"**/build/**",
	"**/out/**",
	"**/target/**",
	"**/bin/**",
	"**/obj/**",
	"**/__pycache__/**",
	"**/.venv/**",
	"**/.idea/**",
	"**/.codepilot/**",
	"**/coverage/**",
}

// ExclusionSet merges the default ignore list, the workspace .gitignore and
// the host's own exclusion globs.
type ExclusionSet struct {
	globs  []string
	ignore *gitignore.GitIgnore
}

// NewExclusionSet builds the exclusion set for root. A missing .gitignore is
// not an error.
func NewExclusionSet(root string, hostExcludes []string) (*ExclusionSet, error) {
	set := &ExclusionSet{}
	set.globs = append(set.globs, DefaultExcludes...)
	set.globs = append(set.globs, hostExcludes...)

	lines, err := readIgnoreLines(filepath.Join(root, ".gitignore"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		return set, nil
	}

	for _, line := range lines {
		set.globs = append(set.globs, GitignoreGlobs(line)...)
	}
	set.ignore = gitignore.CompileIgnoreLines(lines...)

	return set, nil
}

// GitignoreGlobs converts one .gitignore line into a directory wildcard and
// a bare file pattern. Negations produce nothing here; the compiled matcher
// handles them.
func GitignoreGlobs(line string) []string {
	p := strings.TrimSpace(line)
	if p == "" || strings.HasPrefix(p, "#") || strings.HasPrefix(p, "!") {
		return nil
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	if !strings.HasPrefix(p, "**/") {
		p = "**/" + p
	}
	return []string{p + "/**", p}
}

// Globs returns the merged glob list.
func (e *ExclusionSet) Globs() []string {
	return append([]string(nil), e.globs...)
}

// Excludes reports whether a slash-separated relative path is excluded.
func (e *ExclusionSet) Excludes(rel string, isDir bool) bool {
	candidates := []string{rel}
	if isDir {
		candidates = append(candidates, rel+"/")
	}
	for _, pattern := range e.globs {
		for _, c := range candidates {
			matched, err := doublestar.Match(pattern, c)
			if err != nil {
				log.Debug().Str("pattern", pattern).Err(err).Msg("invalid exclusion pattern")
				break
			}
			if matched {
				return true
			}
		}
	}
	if e.ignore != nil && e.ignore.MatchesPath(rel) {
		return true
	}
	return false
}

func readIgnoreLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

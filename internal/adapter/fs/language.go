package fs

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// linguistNames maps editor language ids to the names go-enry knows.
var linguistNames = map[string]string{
	"javascript":      "JavaScript",
	"javascriptreact": "JavaScript",
	"typescript":      "TypeScript",
	"typescriptreact": "TSX",
	"python":          "Python",
	"go":              "Go",
	"java":            "Java",
	"csharp":          "C#",
	"cpp":             "C++",
	"c":               "C",
	"rust":            "Rust",
	"php":             "PHP",
	"ruby":            "Ruby",
	"kotlin":          "Kotlin",
	"swift":           "Swift",
	"scala":           "Scala",
	"shellscript":     "Shell",
}

// primaryExtensions keeps the common extension first and covers ids go-enry
// cannot resolve.
var primaryExtensions = map[string][]string{
	"javascript":      {".js", ".mjs", ".cjs"},
	"javascriptreact": {".jsx"},
	"typescript":      {".ts", ".mts", ".cts"},
	"typescriptreact": {".tsx"},
	"python":          {".py"},
	"go":              {".go"},
	"java":            {".java"},
	"csharp":          {".cs"},
	"cpp":             {".cpp", ".cc", ".cxx", ".hpp", ".hh"},
	"c":               {".c", ".h"},
	"rust":            {".rs"},
	"php":             {".php"},
	"ruby":            {".rb"},
}

// ExtensionsFor returns the file extensions for a set of editor language ids.
func ExtensionsFor(languages []string) []string {
	seen := make(map[string]struct{})
	var exts []string
	add := func(ext string) {
		ext = strings.ToLower(ext)
		if _, ok := seen[ext]; ok || ext == "" {
			return
		}
		seen[ext] = struct{}{}
		exts = append(exts, ext)
	}

	for _, id := range languages {
		id = strings.ToLower(strings.TrimSpace(id))
		for _, ext := range primaryExtensions[id] {
			add(ext)
		}
		if name, ok := linguistNames[id]; ok {
			for _, ext := range enry.GetLanguageExtensions(name) {
				add(ext)
			}
		}
		if _, known := primaryExtensions[id]; !known {
			if _, mapped := linguistNames[id]; !mapped && id != "" {
				add("." + id)
			}
		}
	}
	sort.Strings(exts)
	return exts
}

// LanguageID detects the editor language id for path. Unknown files yield
// "plaintext".
func LanguageID(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	for id, exts := range primaryExtensions {
		for _, e := range exts {
			if e == ext {
				return id
			}
		}
	}

	lang, _ := enry.GetLanguageByExtension(path)
	if lang == "" {
		return "plaintext"
	}
	ids := make([]string, 0, len(linguistNames))
	for id, name := range linguistNames {
		if name == lang {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return strings.ToLower(lang)
	}
	sort.Strings(ids)
	return ids[0]
}

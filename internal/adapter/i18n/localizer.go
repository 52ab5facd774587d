// Package i18n provides the localization context threaded through the CLI
// and use cases in place of a process-wide translation table.
package i18n

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var locales embed.FS

const fallbackLanguage = "en"

// Localizer resolves message keys for one output language. It is safe for
// concurrent use; Reload swaps the active table atomically.
type Localizer struct {
	mu       sync.RWMutex
	language string
	active   map[string]string
	fallback map[string]string
}

// New returns a localizer for language, falling back to English for missing
// tables and keys.
func New(language string) *Localizer {
	l := &Localizer{}
	fallback, err := loadTable(fallbackLanguage)
	if err != nil {
		panic(fmt.Sprintf("embedded %s locale is invalid: %v", fallbackLanguage, err))
	}
	l.fallback = fallback
	l.Reload(language)
	return l
}

// Reload switches the active language.
func (l *Localizer) Reload(language string) {
	language = normalize(language)
	table, err := loadTable(language)
	if err != nil {
		log.Debug().Str("language", language).Err(err).Msg("locale not found, using fallback")
		table = l.fallback
		language = fallbackLanguage
	}

	l.mu.Lock()
	l.language = language
	l.active = table
	l.mu.Unlock()
}

func (l *Localizer) Language() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.language
}

// T looks up key and formats it with args. Unknown keys are returned as-is.
func (l *Localizer) T(key string, args ...any) string {
	l.mu.RLock()
	msg, ok := l.active[key]
	l.mu.RUnlock()
	if !ok {
		msg, ok = l.fallback[key]
	}
	if !ok {
		msg = key
	}
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// FormatDate renders t with the active locale's layout, or the "not
// available" marker for the zero time.
func (l *Localizer) FormatDate(t time.Time) string {
	if t.IsZero() {
		return l.T("date.not_available")
	}
	return t.Format(l.T("date.layout"))
}

func loadTable(language string) (map[string]string, error) {
	data, err := locales.ReadFile("locales/" + language + ".yaml")
	if err != nil {
		return nil, err
	}
	table := make(map[string]string)
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	return table, nil
}

func normalize(language string) string {
	language = strings.ToLower(strings.TrimSpace(language))
	language = strings.ReplaceAll(language, "_", "-")
	if language == "" {
		return fallbackLanguage
	}
	return language
}

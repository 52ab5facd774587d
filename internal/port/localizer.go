package port

import "time"

// Localizer looks up user-visible strings.
type Localizer interface {
	T(key string, args ...any) string
	FormatDate(t time.Time) string
}

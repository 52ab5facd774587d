package domain

import (
	"strings"
	"time"
)

type SamplingOptions struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stream      bool
}

// InferenceRequest is built fresh for every call and never mutated afterwards.
type InferenceRequest struct {
	Prompt  string
	Model   string
	Options SamplingOptions
}

// DefaultSampling mirrors the options the editor integration sends when the
// caller does not override them.
func DefaultSampling() SamplingOptions {
	return SamplingOptions{
		Temperature: 0.2,
		TopP:        0.9,
		MaxTokens:   2048,
	}
}

// InferenceResult holds either the raw model text or the failure, never both.
type InferenceResult struct {
	Text string
	Err  *InferenceError
}

func (r InferenceResult) OK() bool {
	return r.Err == nil
}

// Unwrap converts the result into the usual (value, error) pair.
func (r InferenceResult) Unwrap() (string, error) {
	if r.Err != nil {
		return "", r.Err
	}
	return r.Text, nil
}

type ModelDescriptor struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Digest     string    `json:"digest"`
	ModifiedAt time.Time `json:"modified_at"`
}

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityHint    Severity = "hint"
)

// ParseSeverity maps model-provided severity labels onto the four known
// levels. Anything unrecognised is treated as info.
func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "error", "critical", "high":
		return SeverityError
	case "warning", "warn", "medium":
		return SeverityWarning
	case "hint", "low":
		return SeverityHint
	default:
		return SeverityInfo
	}
}

// Position is 1-indexed on the inference side of the boundary.
type Position struct {
	Line int `json:"line"`
	Col  int `json:"column"`
}

func (p Position) Before(o Position) bool {
	if p.Line != o.Line {
		return p.Line < o.Line
	}
	return p.Col < o.Col
}

type Suggestion struct {
	Start       Position `json:"start"`
	End         Position `json:"end"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Replacement string   `json:"replacement,omitempty"`
}

// Normalize enforces Start <= End in document order and 1-based coordinates.
func (s Suggestion) Normalize() Suggestion {
	if s.Start.Line < 1 {
		s.Start.Line = 1
	}
	if s.Start.Col < 1 {
		s.Start.Col = 1
	}
	if s.End.Line < 1 {
		s.End = s.Start
	}
	if s.End.Col < 1 {
		s.End.Col = 1
	}
	if s.End.Before(s.Start) {
		s.Start, s.End = s.End, s.Start
	}
	s.Severity = ParseSeverity(string(s.Severity))
	return s
}

// Offset shifts a suggestion found inside a line window back to document lines.
func (s Suggestion) Offset(lines int) Suggestion {
	s.Start.Line += lines
	s.End.Line += lines
	return s
}

// Range is 0-indexed, as the editor surface expects.
type Range struct {
	StartLine int `json:"start_line"`
	StartCol  int `json:"start_col"`
	EndLine   int `json:"end_line"`
	EndCol    int `json:"end_col"`
}

type Diagnostic struct {
	Range       Range    `json:"range"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Source      string   `json:"source"`
	Replacement string   `json:"replacement,omitempty"`
}

// ToDiagnostic crosses the inference/editor boundary. There is no inverse.
func ToDiagnostic(s Suggestion, source string) Diagnostic {
	s = s.Normalize()
	return Diagnostic{
		Range: Range{
			StartLine: s.Start.Line - 1,
			StartCol:  s.Start.Col - 1,
			EndLine:   s.End.Line - 1,
			EndCol:    s.End.Col - 1,
		},
		Message:     s.Message,
		Severity:    s.Severity,
		Source:      source,
		Replacement: s.Replacement,
	}
}

type AnalysisResult struct {
	Suggestions []Suggestion `json:"suggestions"`
	Summary     string       `json:"summary"`
	Thinking    string       `json:"thinking,omitempty"`
}

// Document is an open editor buffer: identity plus current text.
type Document struct {
	ID         string
	Path       string
	Text       string
	LanguageID string
}

type Commit struct {
	SHA     string    `json:"sha"`
	Message string    `json:"message"`
	Author  string    `json:"author"`
	Date    time.Time `json:"date"`
	URL     string    `json:"url"`
}

// Summary returns the first line of the commit message.
func (c Commit) Summary() string {
	line, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(line)
}

type Issue struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	State  string   `json:"state"`
	URL    string   `json:"url"`
	Author string   `json:"author"`
	Labels []string `json:"labels,omitempty"`
}

type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
	URL    string `json:"url"`
	Author string `json:"author"`
}

type TaskKind string

const (
	TaskIssue       TaskKind = "issue"
	TaskPullRequest TaskKind = "pull"
)

type Task struct {
	Kind   TaskKind `json:"kind"`
	Number int      `json:"number"`
	Title  string   `json:"title"`
	URL    string   `json:"url"`
}

type FileStats struct {
	TotalCommits    int       `json:"total_commits"`
	LastModified    time.Time `json:"last_modified"`
	TopContributors []string  `json:"top_contributors"`
}

// GitContext is assembled per analysis call and never cached. Failures maps a
// read group to the reason it degraded to empty.
type GitContext struct {
	RecentCommits       []Commit          `json:"recent_commits"`
	RelatedIssues       []Issue           `json:"related_issues"`
	RelatedPullRequests []PullRequest     `json:"related_pull_requests"`
	OpenTasks           []Task            `json:"open_tasks"`
	FileStats           FileStats         `json:"file_stats"`
	Failures            map[string]string `json:"failures,omitempty"`
}

type ContextAnalysis struct {
	Summary         string       `json:"summary"`
	Issues          []string     `json:"issues"`
	Suggestions     []Suggestion `json:"suggestions"`
	RiskLevel       string       `json:"risk_level"`
	HistoryInsights []string     `json:"history_insights"`
}

type EnhancedResult struct {
	Analysis ContextAnalysis `json:"analysis"`
	Context  GitContext      `json:"context"`
	Thinking string          `json:"thinking,omitempty"`
}

// ProjectFileRecord is produced by enumeration and consumed once by the
// per-file phase of a scan.
type ProjectFileRecord struct {
	RelativePath string
	Content      string
}

type UmlComponent struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type UmlRelation struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind"`
}

type UmlComponentFact struct {
	File       string         `json:"file"`
	Components []UmlComponent `json:"components"`
	Relations  []UmlRelation  `json:"relations,omitempty"`
}

type UmlDiagramArtifact struct {
	PlantUML string `json:"plantuml"`
}

// LoadingState is the progress snapshot shown while a scan runs.
type LoadingState struct {
	ProcessedFiles []string `json:"processed_files"`
	RemainingFiles int      `json:"remaining_files"`
}

package render

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"

	"codepilot/internal/domain"
	"codepilot/internal/port"
)

//go:embed page.html.tmpl
var pageSource string

var page = template.Must(template.New("page").Parse(pageSource))

type CodeBlock struct {
	Language string
	Code     string
}

// View is the structured content of one result panel.
type View struct {
	Title      string
	Thinking   string
	Markdown   string
	CodeBlocks []CodeBlock
}

type Renderer struct {
	loc      port.Localizer
	newNonce func() string
}

func NewRenderer(loc port.Localizer) *Renderer {
	return &Renderer{
		loc: loc,
		newNonce: func() string {
			return strings.ReplaceAll(uuid.NewString(), "-", "")
		},
	}
}

type loadingData struct {
	Status    string
	Processed []string
}

type pageData struct {
	Lang          string
	Title         string
	CSP           string
	Nonce         string
	Thinking      string
	ThinkingLabel string
	CopyLabel     string
	Body          template.HTML
	CodeBlocks    []CodeBlock
	Loading       *loadingData
}

// Render produces a standalone HTML document. Scripts, styles and images may
// only come from origin, https: or data: URIs; the one inline script and style
// carry a fresh nonce.
func (r *Renderer) Render(view View, loading *domain.LoadingState, origin string) (string, error) {
	nonce := r.newNonce()

	data := pageData{
		Lang:          "en",
		Title:         view.Title,
		CSP:           ContentSecurityPolicy(origin, nonce),
		Nonce:         nonce,
		Thinking:      view.Thinking,
		ThinkingLabel: r.loc.T("render.thinking"),
		CopyLabel:     r.loc.T("render.copy"),
		Body:          Markdown(view.Markdown),
		CodeBlocks:    view.CodeBlocks,
	}
	if data.Title == "" {
		data.Title = "codepilot"
	}
	if loading != nil {
		data.Loading = &loadingData{
			Status:    r.loc.T("render.progress", len(loading.ProcessedFiles), loading.RemainingFiles),
			Processed: loading.ProcessedFiles,
		}
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render page: %w", err)
	}
	return buf.String(), nil
}

// ContentSecurityPolicy builds the policy for a page served from origin.
func ContentSecurityPolicy(origin, nonce string) string {
	sources := "https: data:"
	if origin = strings.TrimSpace(origin); origin != "" {
		sources = origin + " " + sources
	}
	return strings.Join([]string{
		"default-src 'none'",
		fmt.Sprintf("script-src 'nonce-%s' %s", nonce, sources),
		fmt.Sprintf("style-src 'nonce-%s' %s", nonce, sources),
		"img-src " + sources,
		"font-src " + sources,
	}, "; ")
}

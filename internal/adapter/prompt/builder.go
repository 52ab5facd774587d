package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"codepilot/internal/domain"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

var placeholder = regexp.MustCompile(`\$\{([A-Za-z0-9_.-]+)\}`)

// Template is one declarative prompt: a role line, ordered instructions and an
// optional illustration of the expected output.
type Template struct {
	Role         string   `yaml:"role"`
	Instructions []string `yaml:"instructions"`
	OutputFormat string   `yaml:"output_format"`
}

// Registry holds the templates loaded at startup. It is read-only after Load.
type Registry struct {
	templates map[string]Template
}

// LoadRegistry reads templates from a YAML document keyed by template id.
func LoadRegistry(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read templates: %w", err)
	}
	var templates map[string]Template
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &Registry{templates: templates}, nil
}

// DefaultRegistry returns the templates shipped with the binary.
func DefaultRegistry() *Registry {
	reg, err := LoadRegistry(bytes.NewReader(defaultTemplates))
	if err != nil {
		panic(fmt.Sprintf("embedded prompt templates are invalid: %v", err))
	}
	return reg
}

// IDs returns the registered template ids in sorted order.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Build renders template id with vars. Placeholders without a matching
// variable are left as-is. A "code" variable appends a fenced block labeled
// with "language"; otherwise an "instruction" variable appends a task frame.
func (r *Registry) Build(id string, vars map[string]string) (string, error) {
	tpl, ok := r.templates[id]
	if !ok {
		return "", &domain.TemplateNotFoundError{ID: id}
	}

	var sb strings.Builder
	if tpl.Role != "" {
		sb.WriteString(substitute(tpl.Role, vars))
		sb.WriteString("\n\n")
	}
	if len(tpl.Instructions) > 0 {
		sb.WriteString("Instructions:\n")
		for i, line := range tpl.Instructions {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, substitute(line, vars))
		}
	}
	if tpl.OutputFormat != "" {
		sb.WriteString("\nOutput format:\n")
		sb.WriteString(substitute(strings.TrimRight(tpl.OutputFormat, "\n"), vars))
		sb.WriteString("\n")
	}

	if code, ok := vars["code"]; ok {
		fmt.Fprintf(&sb, "\nCode:\n```%s\n%s\n```\n", vars["language"], code)
	} else if instruction, ok := vars["instruction"]; ok {
		fmt.Fprintf(&sb, "\nTask:\n%s\n", instruction)
	}

	return sb.String(), nil
}

func substitute(s string, vars map[string]string) string {
	return placeholder.ReplaceAllStringFunc(s, func(m string) string {
		key := m[2 : len(m)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return m
	})
}

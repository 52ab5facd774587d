package usecase

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codepilot/internal/adapter/i18n"
	"codepilot/internal/adapter/ollama"
	"codepilot/internal/adapter/progress"
	"codepilot/internal/adapter/prompt"
	"codepilot/internal/domain"
)

func TestUMLPipeline_Run(t *testing.T) {
	root := writeTree(t, map[string]string{
		"server.go": "package app\ntype Server struct{ store *Store }",
		"store.go":  "package app\ntype Store struct{}",
		"broken.go": "package app",
	})

	gen := &scriptedGenerator{respond: func(p string) domain.InferenceResult {
		switch {
		case strings.Contains(p, "File: server.go"):
			return domain.InferenceResult{Text: `{"components": [{"name": "Server", "type": "struct"}], "relations": [{"from": "Server", "to": "Store", "kind": "uses"}]}`}
		case strings.Contains(p, "File: store.go"):
			return domain.InferenceResult{Text: "<think>easy</think>```json\n{\"components\": [{\"name\": \"Store\", \"type\": \"struct\"}]}\n```"}
		case strings.Contains(p, "File: broken.go"):
			return domain.InferenceResult{Text: "no facts here"}
		}
		return domain.InferenceResult{Text: "Here you go:\n@startuml\nServer --> Store\n@enduml\nEnjoy."}
	}}
	pipeline := NewUMLPipeline(gen, prompt.DefaultRegistry(), i18n.New("en"), defaultSettings())
	rec := &progress.Recorder{}

	out, err := pipeline.Run(context.Background(), newOrchestrator(), root, rec)
	require.NoError(t, err)

	assert.Equal(t, StateDone, out.State)
	assert.Equal(t, "@startuml\nServer --> Store\n@enduml", out.Result.PlantUML)
	assert.Equal(t, []string{"broken.go"}, out.Degraded)
	assert.Equal(t, 4, gen.Calls())

	synthesis := gen.Prompt(3)
	assert.Contains(t, synthesis, "Task:\n")
	assert.Contains(t, synthesis, `"file": "server.go"`)
	assert.Contains(t, synthesis, `"file": "store.go"`)
	assert.NotContains(t, synthesis, "broken.go")

	descriptions := map[string]string{}
	for _, e := range rec.Events() {
		descriptions[e.Path] = e.Description
	}
	assert.Equal(t, "1 components, 1 relations", descriptions["server.go"])
	assert.Equal(t, "could not analyze", descriptions["broken.go"])
}

func TestUMLPipeline_FallbackDiagram(t *testing.T) {
	gen := replyWith("I cannot draw diagrams.")
	pipeline := NewUMLPipeline(gen, prompt.DefaultRegistry(), i18n.New("en"), defaultSettings())

	facts := []domain.UmlComponentFact{
		{File: "b.go", Components: []domain.UmlComponent{{Name: "Store", Type: "struct"}}},
		{File: "a.go", Components: []domain.UmlComponent{{Name: "Reader", Type: "interface"}, {Name: "new-thing", Type: "func"}},
			Relations: []domain.UmlRelation{{From: "Store", To: "Reader", Kind: "implements"}}},
	}
	artifact, err := pipeline.Synthesize(context.Background(), facts)
	require.NoError(t, err)

	want := "@startuml\n" +
		"package \"a.go\" {\n  interface Reader\n  component new_thing\n}\n" +
		"package \"b.go\" {\n  class Store\n}\n" +
		"Store ..|> Reader\n" +
		"@enduml"
	assert.Equal(t, want, artifact.PlantUML)
}

func TestUMLPipeline_SynthesisInferenceFailure(t *testing.T) {
	gen := &scriptedGenerator{respond: func(string) domain.InferenceResult {
		return domain.InferenceResult{Err: &domain.InferenceError{Kind: domain.KindUnreachable}}
	}}
	pipeline := NewUMLPipeline(gen, prompt.DefaultRegistry(), i18n.New("en"), defaultSettings())

	_, err := pipeline.Synthesize(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrUnreachable)
}

func TestReportPipeline_Run(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.py": "print('a')",
		"b.py": "print('b')",
	})
	gen := &scriptedGenerator{respond: func(p string) domain.InferenceResult {
		if strings.Contains(p, "File: a.py") {
			return domain.InferenceResult{Text: "<think>hmm</think>\n## Summary\nPrints a letter.\n- no tests"}
		}
		return domain.InferenceResult{Text: "Prints " + strings.Repeat("b", 100)}
	}}
	pipeline := NewReportPipeline(gen, prompt.DefaultRegistry(), i18n.New("en"), defaultSettings())
	rec := &progress.Recorder{}

	out, err := pipeline.Run(context.Background(), newOrchestrator(), root, rec)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Result, "# Project report\n"))
	assert.Contains(t, out.Result, "\n## a.py\n\n## Summary\nPrints a letter.\n- no tests\n")
	assert.Contains(t, out.Result, "\n## b.py\n\nPrints bbb")
	assert.NotContains(t, out.Result, "hmm")
	assert.Less(t, strings.Index(out.Result, "## a.py"), strings.Index(out.Result, "## b.py"))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "Summary", events[0].Description)
	assert.Len(t, []rune(events[1].Description), descriptionLimit)
	assert.True(t, strings.HasSuffix(events[1].Description, "..."))
}

func TestForgeTree_Build(t *testing.T) {
	forge := &fakeForge{
		configured: true,
		openIssues: []domain.Issue{{Number: 7, Title: "Crash on save", URL: "https://git/i/7", Author: "ana"}},
		openPulls:  []domain.PullRequest{{Number: 8, Title: "Fix crash", URL: "https://git/p/8"}},
		commits:    []domain.Commit{{SHA: "0123456789abcdef", Message: "fix: crash\n\nlong", Author: "bo", URL: "https://git/c/0123"}},
	}
	tree, err := NewForgeTree(forge, i18n.New("en")).Build(context.Background(), "org/repo", "main.go")
	require.NoError(t, err)

	assert.Equal(t, NodeRoot, tree.Kind)
	require.Len(t, tree.Children, 3)
	assert.Equal(t, "Issues", tree.Children[0].Label)
	assert.Equal(t, "Pull Requests", tree.Children[1].Label)
	assert.Equal(t, "Commits", tree.Children[2].Label)

	issue := tree.Children[0].Children[0]
	assert.Equal(t, "#7 Crash on save", issue.Label)
	assert.Equal(t, "https://git/i/7", issue.OpenURL)

	commit := tree.Children[2].Children[0]
	assert.Equal(t, "01234567 fix: crash", commit.Label)
	assert.Equal(t, "bo, not available", commit.Description)

	var leaves int
	tree.Walk(func(n *TreeNode, depth int) {
		if depth == 2 {
			leaves++
			assert.NotEmpty(t, n.OpenURL)
		}
	})
	assert.Equal(t, 3, leaves)
}

func TestForgeTree_DegradesAndGates(t *testing.T) {
	_, err := NewForgeTree(&fakeForge{}, i18n.New("en")).Build(context.Background(), "r", "")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)

	forge := &fakeForge{configured: true, openErr: assert.AnError, openIssues: []domain.Issue{{Number: 1}}}
	tree, err := NewForgeTree(forge, i18n.New("en")).Build(context.Background(), "r", "")
	require.NoError(t, err)
	assert.Len(t, tree.Children[0].Children, 1)
	assert.Empty(t, tree.Children[1].Children)
	assert.Equal(t, "0", tree.Children[1].Description)
}

func TestAssistant_Run(t *testing.T) {
	gen := replyWith("<think>plan</think>\nUse a map.\n```go\nm := map[string]int{}\n```\n")
	assistant := NewAssistant(ollama.NewBufferedStreamer(gen), prompt.DefaultRegistry(), defaultSettings())

	var chunks []string
	result, err := assistant.Run(context.Background(), AssistRequest{
		TemplateID: "refactor",
		Code:       "var m = make(map[string]int)",
		LanguageID: "go",
	}, func(s string) { chunks = append(chunks, s) })
	require.NoError(t, err)

	assert.Equal(t, "plan", result.Thinking)
	assert.True(t, strings.HasPrefix(result.Markdown, "Use a map."))
	require.Len(t, result.CodeBlocks, 1)
	assert.Equal(t, "go", result.CodeBlocks[0].Language)
	assert.Len(t, chunks, 1)
	assert.Contains(t, gen.Prompt(0), "```go\nvar m = make(map[string]int)\n```")
}

func TestAssistant_UnknownTemplate(t *testing.T) {
	gen := replyWith("x")
	assistant := NewAssistant(ollama.NewBufferedStreamer(gen), prompt.DefaultRegistry(), defaultSettings())

	_, err := assistant.Run(context.Background(), AssistRequest{TemplateID: "nope", Instruction: "go"}, nil)
	var notFound *domain.TemplateNotFoundError
	assert.ErrorAs(t, err, &notFound)
	assert.Equal(t, 0, gen.Calls())
}

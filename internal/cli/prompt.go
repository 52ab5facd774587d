package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"codepilot/internal/adapter/extract"
	"codepilot/internal/adapter/ollama"
	"codepilot/internal/adapter/render"
	"codepilot/internal/domain"
	"codepilot/internal/port"
	"codepilot/internal/usecase"
)

var (
	promptInstruction string
	promptModel       string
	promptHTML        string
	promptOrigin      string
	promptNoStream    bool
)

var promptCmd = &cobra.Command{
	Use:   "prompt <template> [file]",
	Short: "Run a prompt template against a file or an instruction",
	Long: `Run one of the built-in prompt templates (explain, refactor, generate,
document, analyze) and stream the answer to the terminal.

Examples:
  codepilot prompt explain server.go
  codepilot prompt refactor server.go --html out.html
  codepilot prompt generate -i "a function that parses RFC 3339 dates"`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPromptTemplate,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptInstruction, "instruction", "i", "", "task for the model when no file is given")
	promptCmd.Flags().StringVarP(&promptModel, "model", "m", "", "model to use (default from config)")
	promptCmd.Flags().StringVar(&promptHTML, "html", "", "also write the answer as an HTML page to this path")
	promptCmd.Flags().StringVar(&promptOrigin, "origin", "http://localhost", "origin allowed by the HTML page's content policy")
	promptCmd.Flags().BoolVar(&promptNoStream, "no-stream", false, "wait for the full answer instead of streaming")
}

func runPromptTemplate(cmd *cobra.Command, args []string) error {
	req := usecase.AssistRequest{
		TemplateID:  args[0],
		Instruction: promptInstruction,
		Model:       promptModel,
	}
	if len(args) == 2 {
		doc, err := loadDocument(args[1])
		if err != nil {
			return err
		}
		req.Code = doc.Text
		req.LanguageID = doc.LanguageID
	}
	if req.Code == "" && req.Instruction == "" {
		return fmt.Errorf("either a file or --instruction is required")
	}

	var stream port.StreamGenerator = app.Ollama
	if promptNoStream {
		stream = ollama.NewBufferedStreamer(app.Ollama)
	}

	result, err := usecase.NewAssistant(stream, app.Prompts, app.Store).Run(cmd.Context(), req, func(chunk string) {
		fmt.Print(chunk)
	})
	fmt.Println()
	if err != nil {
		return inferenceFailure(err)
	}

	if promptHTML != "" {
		html, err := render.NewRenderer(app.Loc).Render(render.View{
			Title:      req.TemplateID,
			Thinking:   result.Thinking,
			Markdown:   result.Markdown,
			CodeBlocks: renderBlocks(result.CodeBlocks),
		}, nil, promptOrigin)
		if err != nil {
			return err
		}
		if err := os.WriteFile(promptHTML, []byte(html), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", promptHTML, err)
		}
		log.Info().Str("path", promptHTML).Msg("wrote HTML result")
	}
	return nil
}

func renderBlocks(blocks []extract.CodeBlock) []render.CodeBlock {
	out := make([]render.CodeBlock, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, render.CodeBlock{Language: b.Language, Code: b.Code})
	}
	return out
}

// inferenceFailure turns an inference error into the localized notice the
// user sees. Errors that came from the forge are handed to forgeFailure.
func inferenceFailure(err error) error {
	if _, ok := domain.KindOf(err); !ok && isForgeError(err) {
		return forgeFailure(err)
	}
	switch {
	case errors.Is(err, domain.ErrUnreachable):
		return errors.New(app.Loc.T("inference.unavailable", app.Store.Get().BaseURL))
	case errors.Is(err, domain.ErrUnparseable):
		return errors.New(app.Loc.T("analysis.unparseable"))
	case errors.Is(err, domain.ErrNotConfigured):
		return errors.New(app.Loc.T("forge.not_configured"))
	}
	var notFound *domain.TemplateNotFoundError
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w (available: %s)", err, strings.Join(app.Prompts.IDs(), ", "))
	}
	return errors.New(app.Loc.T("inference.failed", err))
}

// forgeFailure turns a Gitea error into the localized notice the user sees.
func forgeFailure(err error) error {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return errors.New(app.Loc.T("forge.not_configured"))
	case errors.Is(err, domain.ErrUnreachable):
		return errors.New(app.Loc.T("forge.unavailable", app.Store.Get().Gitea.BaseURL))
	}
	return errors.New(app.Loc.T("forge.failed", err))
}

// isForgeError reports whether err is a transport or status failure that did
// not pass through the inference client.
func isForgeError(err error) bool {
	var status *domain.ServerError
	return errors.Is(err, domain.ErrUnreachable) || errors.As(err, &status)
}

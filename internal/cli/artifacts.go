package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"codepilot/internal/adapter/extract"
	"codepilot/internal/adapter/render"
	"codepilot/internal/adapter/store"
)

var (
	renderOut    string
	renderOrigin string
	artifactKind string
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a saved model answer as a standalone HTML page",
	Long: `Render a markdown file (for example the output of "scan report") as an
HTML page. A <think> block in the input is shown as collapsible reasoning and
fenced code blocks get copy buttons.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect archived scan results",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived artifacts, newest first",
	Args:  cobra.NoArgs,
	RunE:  runArtifactsList,
}

var artifactsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print an archived artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactsShow,
}

var artifactsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Remove an archived artifact",
	Args:  cobra.ExactArgs(1),
	RunE:  runArtifactsDelete,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().StringVarP(&renderOut, "out", "o", "", "output path (default: input path with .html)")
	renderCmd.Flags().StringVar(&renderOrigin, "origin", "http://localhost", "origin allowed by the page's content policy")

	rootCmd.AddCommand(artifactsCmd)
	artifactsCmd.AddCommand(artifactsListCmd, artifactsShowCmd, artifactsDeleteCmd)
	artifactsListCmd.Flags().StringVar(&artifactKind, "kind", "", "only list this kind (uml or report)")
}

func runRender(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	thinking, body := extract.Thinking(string(data))
	if thinking == extract.NoReasoning {
		thinking = ""
	}
	html, err := render.NewRenderer(app.Loc).Render(render.View{
		Title:      filepath.Base(args[0]),
		Thinking:   thinking,
		Markdown:   body,
		CodeBlocks: renderBlocks(extract.CodeBlocks(body)),
	}, nil, renderOrigin)
	if err != nil {
		return err
	}

	out := renderOut
	if out == "" {
		out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".html"
	}
	if err := os.WriteFile(out, []byte(html), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	fmt.Println(out)
	return nil
}

func runArtifactsList(cmd *cobra.Command, args []string) error {
	st, err := app.OpenArchive(rootDir)
	if err != nil {
		return err
	}
	defer st.Close()

	artifacts, err := st.List(store.ArtifactKind(artifactKind))
	if err != nil {
		return err
	}
	return renderArtifactsTable(os.Stdout, artifacts)
}

func runArtifactsShow(cmd *cobra.Command, args []string) error {
	st, err := app.OpenArchive(rootDir)
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := st.Get(args[0])
	if errors.Is(err, store.ErrArtifactNotFound) {
		return fmt.Errorf("no artifact with id %s", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Println(a.Content)
	return nil
}

func runArtifactsDelete(cmd *cobra.Command, args []string) error {
	st, err := app.OpenArchive(rootDir)
	if err != nil {
		return err
	}
	defer st.Close()
	return st.Delete(args[0])
}

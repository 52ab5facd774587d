package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codepilot/internal/adapter/progress"
	"codepilot/internal/adapter/render"
	"codepilot/internal/adapter/store"
	"codepilot/internal/domain"
	"codepilot/internal/usecase"
)

var (
	scanArchive bool
	scanOut     string
	scanHTML    string
	scanOrigin  string
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a whole project file by file",
	Long: `Walk every supported file of a project, ask the model about each one in
turn and combine the answers. Files matched by .gitignore, the default ignore
list or files.exclude are skipped. Press Ctrl-C to stop a scan; no result is
produced for a cancelled scan.`,
}

var scanUMLCmd = &cobra.Command{
	Use:   "uml [dir]",
	Short: "Build a PlantUML component diagram of the project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScanUML,
}

var scanReportCmd = &cobra.Command{
	Use:   "report [dir]",
	Short: "Write a markdown review report of the project",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runScanReport,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.AddCommand(scanUMLCmd)
	scanCmd.AddCommand(scanReportCmd)
	scanCmd.PersistentFlags().BoolVar(&scanArchive, "archive", false, "keep the result in .codepilot/artifacts.db")
	scanCmd.PersistentFlags().StringVarP(&scanOut, "out", "o", "", "write the result to this file instead of stdout")
	scanReportCmd.Flags().StringVar(&scanHTML, "html", "", "also write the report as an HTML page to this path")
	scanReportCmd.Flags().StringVar(&scanOrigin, "origin", "http://localhost", "origin allowed by the HTML page's content policy")
}

func runScanUML(cmd *cobra.Command, args []string) error {
	root, err := workspace(args)
	if err != nil {
		return err
	}

	pipeline := usecase.NewUMLPipeline(app.Ollama, app.Prompts, app.Loc, app.Store)
	out, err := pipeline.Run(cmd.Context(), app.Orchestrator(), root, progress.NewBar(os.Stderr, "uml"))
	if done, err := scanFinished(out, err); !done {
		return err
	}

	return emit(root, store.KindUML, len(out.Files), out.Result.PlantUML)
}

func runScanReport(cmd *cobra.Command, args []string) error {
	root, err := workspace(args)
	if err != nil {
		return err
	}

	pipeline := usecase.NewReportPipeline(app.Ollama, app.Prompts, app.Loc, app.Store)
	out, err := pipeline.Run(cmd.Context(), app.Orchestrator(), root, progress.NewBar(os.Stderr, "report"))
	if done, err := scanFinished(out, err); !done {
		return err
	}

	if scanHTML != "" {
		loading := out.Loading
		html, err := render.NewRenderer(app.Loc).Render(render.View{
			Title:    app.Loc.T("report.title"),
			Markdown: out.Result,
		}, &loading, scanOrigin)
		if err != nil {
			return err
		}
		if err := os.WriteFile(scanHTML, []byte(html), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", scanHTML, err)
		}
	}

	return emit(root, store.KindReport, len(out.Files), out.Result)
}

// scanFinished prints the notice for scans that ended without a result and
// reports whether a result is available.
func scanFinished[R any](out *usecase.ScanOutcome[R], err error) (bool, error) {
	switch {
	case errors.Is(err, domain.ErrCancelled):
		fmt.Fprintln(os.Stderr, app.Loc.T("scan.cancelled", len(out.Loading.ProcessedFiles)))
		return false, nil
	case err != nil:
		return false, inferenceFailure(err)
	}

	switch out.State {
	case usecase.StateNoWorkspace:
		fmt.Fprintln(os.Stderr, app.Loc.T("scan.no_workspace"))
		return false, nil
	case usecase.StateNoFiles:
		fmt.Fprintln(os.Stderr, app.Loc.T("scan.no_files"))
		return false, nil
	}

	fmt.Fprintln(os.Stderr, app.Loc.T("scan.done", len(out.Files)))
	for _, f := range out.Degraded {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", f, app.Loc.T("scan.could_not_analyze"))
	}
	return true, nil
}

// emit writes content to --out or stdout and archives it when asked.
func emit(root string, kind store.ArtifactKind, files int, content string) error {
	if scanOut != "" {
		if err := os.WriteFile(scanOut, []byte(content+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", scanOut, err)
		}
	} else {
		fmt.Println(content)
	}

	if !scanArchive {
		return nil
	}
	st, err := app.OpenArchive(root)
	if err != nil {
		return err
	}
	defer st.Close()

	saved, err := st.Put(store.Artifact{
		Kind:    kind,
		Root:    root,
		Model:   app.Store.Get().Model,
		Files:   files,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("failed to archive result: %w", err)
	}
	fmt.Fprintln(os.Stderr, app.Loc.T("artifact.saved", saved.ID))
	return nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codepilot/internal/adapter/extract"
)

var (
	analyzeJSON    bool
	analyzeActions bool
	contextJSON    bool
	contextModel   string
	contextHistory bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Print diagnostics for a file",
	Long: `Ask the model for suggestions on one file and print them as diagnostics.
Files longer than max_lines are analyzed in windows. Repeated runs on an
unchanged file within one process reuse the cached analysis.

Examples:
  codepilot analyze server.go
  codepilot analyze server.go --actions   # Also list available quick fixes`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var contextCmd = &cobra.Command{
	Use:   "context <file>",
	Short: "Review a file together with its Gitea history",
	Args:  cobra.ExactArgs(1),
	RunE:  runContext,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(contextCmd)
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the analysis as JSON")
	analyzeCmd.Flags().BoolVar(&analyzeActions, "actions", false, "list quick fixes for diagnostics with a replacement")
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "print the result as JSON")
	contextCmd.Flags().StringVarP(&contextModel, "model", "m", "", "model to use (default from config)")
	contextCmd.Flags().BoolVar(&contextHistory, "history", false, "only gather the Gitea history, without a review")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if analyzeJSON {
		out = io.Discard
	}
	syncer := app.Synchronizer(newPrintSink(out, app.Loc))

	result, _, err := syncer.Sync(cmd.Context(), doc)
	if err != nil {
		return inferenceFailure(err)
	}

	if analyzeJSON {
		return printJSON(result)
	}
	if len(result.Suggestions) == 0 {
		fmt.Println(app.Loc.T("analysis.no_suggestions", doc.Path))
	}
	if result.Summary != "" {
		fmt.Println()
		fmt.Println(result.Summary)
	}

	if analyzeActions {
		for _, d := range syncer.Diagnostics(doc.ID) {
			for _, a := range syncer.CodeActions(doc.ID, d.Range.StartLine) {
				if a.Diagnostic.Range != d.Range {
					continue
				}
				fmt.Printf("fix %d:%d  %s\n    %s\n", d.Range.StartLine+1, d.Range.StartCol+1, a.Title, a.NewText)
			}
		}
	}
	return nil
}

func runContext(cmd *cobra.Command, args []string) error {
	doc, err := loadDocument(args[0])
	if err != nil {
		return err
	}

	if contextHistory {
		if err := requireForge(); err != nil {
			return err
		}
		return printJSON(app.Aggregator().GatherContext(cmd.Context(), doc))
	}

	result, err := app.Aggregator().AnalyzeFileWithContext(cmd.Context(), doc, contextModel)
	if err != nil {
		return inferenceFailure(err)
	}
	if contextJSON {
		return printJSON(result)
	}

	a := result.Analysis
	fmt.Printf("%s [%s]\n\n%s\n", doc.Path, strings.ToUpper(a.RiskLevel), a.Summary)
	printList("Issues", a.Issues)
	printList("History", a.HistoryInsights)
	if len(a.Suggestions) > 0 {
		fmt.Println("\nSuggestions:")
		for _, s := range a.Suggestions {
			fmt.Printf("  %d:%d %-7s %s\n", s.Start.Line, s.Start.Col, s.Severity, s.Message)
		}
	}

	gc := result.Context
	fmt.Printf("\n%d commits, %d issues, %d pull requests, %d open tasks\n",
		gc.FileStats.TotalCommits, len(gc.RelatedIssues), len(gc.RelatedPullRequests), len(gc.OpenTasks))
	for group, reason := range gc.Failures {
		fmt.Printf("  %s unavailable: %s\n", group, reason)
	}
	if result.Thinking != extract.NoReasoning && result.Thinking != "" {
		fmt.Printf("\n%s:\n%s\n", app.Loc.T("render.thinking"), result.Thinking)
	}
	return nil
}

func printList(title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("\n%s:\n", title)
	for _, item := range items {
		fmt.Printf("  - %s\n", item)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

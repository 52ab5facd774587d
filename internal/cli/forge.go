package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"codepilot/internal/domain"
	"codepilot/internal/usecase"
)

var (
	forgeState   string
	forgeLimit   int
	issueTitle   string
	issueBody    string
	issueLabels  []string
	issueFromRun string
)

var forgeCmd = &cobra.Command{
	Use:   "forge",
	Short: "Browse the configured Gitea repository",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return requireForge()
	},
}

var forgeTreeCmd = &cobra.Command{
	Use:   "tree [file]",
	Short: "Show open issues, open pull requests and recent commits as a tree",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runForgeTree,
}

var forgeIssuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "List repository issues",
	Args:  cobra.NoArgs,
	RunE:  runForgeIssues,
}

var forgePullsCmd = &cobra.Command{
	Use:   "pulls",
	Short: "List repository pull requests",
	Args:  cobra.NoArgs,
	RunE:  runForgePulls,
}

var forgeCommitsCmd = &cobra.Command{
	Use:   "commits [file]",
	Short: "List recent commits, optionally for one file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runForgeCommits,
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Work with repository issues",
}

var issueCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an issue in the configured repository",
	Long: `Create an issue. Label names are resolved against the repository's
labels; unknown names are ignored.

Examples:
  codepilot issue create --title "Crash on save" --body "Steps..." -l bug
  codepilot issue create --title "Review findings" --from-analysis server.go`,
	Args: cobra.NoArgs,
	RunE: runIssueCreate,
}

func init() {
	rootCmd.AddCommand(forgeCmd)
	forgeCmd.AddCommand(forgeTreeCmd, forgeIssuesCmd, forgePullsCmd, forgeCommitsCmd)
	forgeIssuesCmd.Flags().StringVar(&forgeState, "state", "open", "issue state: open, closed or all")
	forgePullsCmd.Flags().StringVar(&forgeState, "state", "open", "pull request state: open, closed or all")
	forgeCommitsCmd.Flags().IntVarP(&forgeLimit, "limit", "n", 10, "maximum number of commits")

	rootCmd.AddCommand(issueCmd)
	issueCmd.AddCommand(issueCreateCmd)
	issueCreateCmd.Flags().StringVarP(&issueTitle, "title", "t", "", "issue title (required)")
	issueCreateCmd.Flags().StringVarP(&issueBody, "body", "b", "", "issue body")
	issueCreateCmd.Flags().StringSliceVarP(&issueLabels, "label", "l", nil, "label name (repeatable)")
	issueCreateCmd.Flags().StringVar(&issueFromRun, "from-analysis", "", "append the analysis of this file to the body")
	issueCreateCmd.MarkFlagRequired("title")
}

func requireForge() error {
	if !app.Gitea.IsConfigured() {
		return errors.New(app.Loc.T("forge.not_configured"))
	}
	return nil
}

func repoName() string {
	g := app.Store.Get().Gitea
	return g.Organization + "/" + g.Repository
}

func runForgeTree(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		doc, err := loadDocument(args[0])
		if err != nil {
			return err
		}
		path = doc.Path
	}

	tree, err := usecase.NewForgeTree(app.Gitea, app.Loc).Build(cmd.Context(), repoName(), path)
	if err != nil {
		return forgeFailure(err)
	}

	tree.Walk(func(n *usecase.TreeNode, depth int) {
		line := strings.Repeat("  ", depth) + n.Label
		if n.Description != "" {
			line += " (" + n.Description + ")"
		}
		if n.OpenURL != "" {
			line += "  " + n.OpenURL
		}
		fmt.Println(line)
	})
	return nil
}

func runForgeIssues(cmd *cobra.Command, args []string) error {
	issues, err := app.Gitea.GetIssues(cmd.Context(), forgeState)
	if err != nil {
		return forgeFailure(err)
	}
	return renderIssuesTable(os.Stdout, issues)
}

func runForgePulls(cmd *cobra.Command, args []string) error {
	pulls, err := app.Gitea.GetPullRequests(cmd.Context(), forgeState)
	if err != nil {
		return forgeFailure(err)
	}
	return renderPullsTable(os.Stdout, pulls)
}

func runForgeCommits(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		doc, err := loadDocument(args[0])
		if err != nil {
			return err
		}
		path = doc.Path
	}

	commits, err := app.Gitea.GetCommitsForFile(cmd.Context(), path, forgeLimit)
	if err != nil {
		return forgeFailure(err)
	}
	return renderCommitsTable(os.Stdout, commits)
}

func runIssueCreate(cmd *cobra.Command, args []string) error {
	if err := requireForge(); err != nil {
		return err
	}

	body := issueBody
	if issueFromRun != "" {
		doc, err := loadDocument(issueFromRun)
		if err != nil {
			return err
		}
		result, _, err := app.Synchronizer(newPrintSink(nil, app.Loc)).Analyze(cmd.Context(), doc)
		if err != nil {
			return inferenceFailure(err)
		}
		body = strings.TrimSpace(body + "\n\n" + analysisMarkdown(doc.Path, result))
	}

	created, err := app.Gitea.CreateIssue(cmd.Context(), issueTitle, body, issueLabels)
	if err != nil {
		return errors.New(app.Loc.T("issue.failed", err))
	}
	fmt.Println(app.Loc.T("issue.created", created.Number, created.URL))
	return nil
}

// analysisMarkdown formats an analysis as an issue body section.
func analysisMarkdown(path string, result domain.AnalysisResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### %s\n\n", path)
	if result.Summary != "" {
		b.WriteString(result.Summary + "\n\n")
	}
	for _, s := range result.Suggestions {
		fmt.Fprintf(&b, "- **%s** line %d: %s\n", s.Severity, s.Start.Line, s.Message)
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortRef(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

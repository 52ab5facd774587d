package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"codepilot/internal/adapter/store"
	"codepilot/internal/domain"
)

// renderModelsTable lists installed models; the configured one is starred.
func renderModelsTable(out io.Writer, models []domain.ModelDescriptor, current string) error {
	table := tablewriter.NewWriter(out)
	table.Header("Name", "Size", "Modified")

	for _, m := range models {
		name := m.Name
		if name == current {
			name += " *"
		}
		table.Append(name, formatBytes(m.Size), app.Loc.FormatDate(m.ModifiedAt))
	}

	return table.Render()
}

func renderIssuesTable(out io.Writer, issues []domain.Issue) error {
	table := tablewriter.NewWriter(out)
	table.Header("Number", "Title", "Author", "Labels")

	for _, is := range issues {
		table.Append(fmt.Sprintf("#%d", is.Number), truncate(is.Title, 60), is.Author, strings.Join(is.Labels, ","))
	}

	return table.Render()
}

func renderPullsTable(out io.Writer, pulls []domain.PullRequest) error {
	table := tablewriter.NewWriter(out)
	table.Header("Number", "Title", "Author", "State")

	for _, pr := range pulls {
		table.Append(fmt.Sprintf("#%d", pr.Number), truncate(pr.Title, 60), pr.Author, pr.State)
	}

	return table.Render()
}

func renderCommitsTable(out io.Writer, commits []domain.Commit) error {
	table := tablewriter.NewWriter(out)
	table.Header("Commit", "Date", "Author", "Summary")

	for _, c := range commits {
		table.Append(shortRef(c.SHA), app.Loc.FormatDate(c.Date), c.Author, truncate(c.Summary(), 60))
	}

	return table.Render()
}

func renderArtifactsTable(out io.Writer, artifacts []store.Artifact) error {
	table := tablewriter.NewWriter(out)
	table.Header("ID", "Kind", "Files", "Model", "Created")

	for _, a := range artifacts {
		table.Append(a.ID, string(a.Kind), fmt.Sprintf("%d", a.Files), a.Model, app.Loc.FormatDate(a.CreatedAt.Local()))
	}

	return table.Render()
}

// truncate cuts s to limit runes, ending in "..." when shortened.
func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

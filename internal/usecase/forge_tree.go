package usecase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"codepilot/internal/domain"
	"codepilot/internal/port"
)

type NodeKind string

const (
	NodeRoot        NodeKind = "root"
	NodeGroup       NodeKind = "group"
	NodeIssue       NodeKind = "issue"
	NodePullRequest NodeKind = "pull"
	NodeCommit      NodeKind = "commit"
)

// TreeNode is one row of the forge tree. Leaves carry the URL their open
// action navigates to.
type TreeNode struct {
	ID          string
	Label       string
	Description string
	Kind        NodeKind
	OpenURL     string
	Children    []*TreeNode
}

const treeCommitLimit = 20

// ForgeTree builds root -> {issues, pulls, commits} -> items.
type ForgeTree struct {
	forge port.Forge
	loc   port.Localizer
}

func NewForgeTree(forge port.Forge, loc port.Localizer) *ForgeTree {
	return &ForgeTree{forge: forge, loc: loc}
}

// Build fetches open issues, open pull requests and recent commits (for path,
// or the whole repository when path is empty). Each group degrades to empty
// on its own.
func (t *ForgeTree) Build(ctx context.Context, repo, path string) (*TreeNode, error) {
	if !t.forge.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	issues, err := t.forge.GetIssues(ctx, "open")
	if err != nil {
		log.Warn().Err(err).Msg("forge tree: issues unavailable")
	}
	pulls, err := t.forge.GetPullRequests(ctx, "open")
	if err != nil {
		log.Warn().Err(err).Msg("forge tree: pull requests unavailable")
	}
	commits, err := t.forge.GetCommitsForFile(ctx, path, treeCommitLimit)
	if err != nil {
		log.Warn().Err(err).Msg("forge tree: commits unavailable")
	}

	issueGroup := t.group("issues", "forge.tree.issues")
	for _, is := range issues {
		issueGroup.Children = append(issueGroup.Children, &TreeNode{
			ID:          "issue-" + strconv.Itoa(is.Number),
			Label:       fmt.Sprintf("#%d %s", is.Number, is.Title),
			Description: is.Author,
			Kind:        NodeIssue,
			OpenURL:     is.URL,
		})
	}

	pullGroup := t.group("pulls", "forge.tree.pulls")
	for _, pr := range pulls {
		pullGroup.Children = append(pullGroup.Children, &TreeNode{
			ID:          "pull-" + strconv.Itoa(pr.Number),
			Label:       fmt.Sprintf("#%d %s", pr.Number, pr.Title),
			Description: pr.Author,
			Kind:        NodePullRequest,
			OpenURL:     pr.URL,
		})
	}

	commitGroup := t.group("commits", "forge.tree.commits")
	for _, c := range commits {
		commitGroup.Children = append(commitGroup.Children, &TreeNode{
			ID:          "commit-" + c.SHA,
			Label:       shortSHA(c.SHA) + " " + c.Summary(),
			Description: c.Author + ", " + t.loc.FormatDate(c.Date),
			Kind:        NodeCommit,
			OpenURL:     c.URL,
		})
	}

	for _, g := range []*TreeNode{issueGroup, pullGroup, commitGroup} {
		g.Description = strconv.Itoa(len(g.Children))
	}

	return &TreeNode{
		ID:       "root",
		Label:    repo,
		Kind:     NodeRoot,
		Children: []*TreeNode{issueGroup, pullGroup, commitGroup},
	}, nil
}

func (t *ForgeTree) group(id, key string) *TreeNode {
	return &TreeNode{ID: id, Label: t.loc.T(key), Kind: NodeGroup}
}

// Walk visits n and its descendants depth first.
func (n *TreeNode) Walk(fn func(node *TreeNode, depth int)) {
	n.walk(fn, 0)
}

func (n *TreeNode) walk(fn func(node *TreeNode, depth int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

func shortSHA(sha string) string {
	if len(sha) > 8 {
		return sha[:8]
	}
	return sha
}

package port

import (
	"context"

	"codepilot/internal/domain"
)

// Forge is the read and write surface of the Git forge. Reads return an
// explicit error so each call site decides how to degrade.
type Forge interface {
	IsConfigured() bool
	SearchIssues(ctx context.Context, query, state string) ([]domain.Issue, error)
	SearchPullRequests(ctx context.Context, query, state string) ([]domain.PullRequest, error)
	GetCommitsForFile(ctx context.Context, path string, limit int) ([]domain.Commit, error)
	GetPullRequests(ctx context.Context, state string) ([]domain.PullRequest, error)
	GetIssues(ctx context.Context, state string) ([]domain.Issue, error)
	CreateIssue(ctx context.Context, title, body string, labels []string) (*domain.Issue, error)
}

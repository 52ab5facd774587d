package gitea

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"codepilot/config"
	"codepilot/internal/domain"
	"codepilot/internal/port"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// apiPrefix is the fixed API version segment appended to the base URL.
const apiPrefix = "/api/v1"

// Settings is the slice of the settings store the client reads.
type Settings interface {
	Get() *config.Config
}

// Client wraps the Gitea REST API. Connection settings are read from the live
// store on every call, so a token change takes effect without a restart.
type Client struct {
	settings   Settings
	httpClient *http.Client

	mu      sync.Mutex
	limiter *rate.Limiter
}

type user struct {
	Login    string `json:"login"`
	FullName string `json:"full_name"`
}

type label struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type issue struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Body    string  `json:"body"`
	State   string  `json:"state"`
	HTMLURL string  `json:"html_url"`
	User    user    `json:"user"`
	Labels  []label `json:"labels"`
}

type pullRequest struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	User    user   `json:"user"`
}

type commit struct {
	SHA     string `json:"sha"`
	HTMLURL string `json:"html_url"`
	Commit  struct {
		Message string `json:"message"`
		Author  struct {
			Name  string    `json:"name"`
			Email string    `json:"email"`
			Date  time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
	Author *user `json:"author"`
}

type createIssueOption struct {
	Title  string  `json:"title"`
	Body   string  `json:"body"`
	Labels []int64 `json:"labels,omitempty"`
}

func NewClient(settings Settings) *Client {
	c := &Client{
		settings:   settings,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	c.Reload()
	return c
}

// Reload re-applies forge settings that are cached in the client. Everything
// else is already read live.
func (c *Client) Reload() {
	rps := c.settings.Get().Gitea.RequestsPerSecond
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	c.mu.Lock()
	c.limiter = rate.NewLimiter(limit, 4)
	c.mu.Unlock()
}

// IsConfigured reports whether base URL and token are both set.
func (c *Client) IsConfigured() bool {
	return c.settings.Get().Gitea.Configured()
}

func (c *Client) SearchIssues(ctx context.Context, query, state string) ([]domain.Issue, error) {
	q := url.Values{"type": {"issues"}}
	setIf(q, "state", state)
	setIf(q, "q", query)

	var raw []issue
	if err := c.do(ctx, http.MethodGet, c.repoPath("/issues"), q, nil, &raw); err != nil {
		return nil, fmt.Errorf("search issues: %w", err)
	}
	return convertIssues(raw), nil
}

func (c *Client) GetIssues(ctx context.Context, state string) ([]domain.Issue, error) {
	return c.SearchIssues(ctx, "", state)
}

// SearchPullRequests filters by query on the client as well, since not every
// Gitea version honours q on the pulls endpoint.
func (c *Client) SearchPullRequests(ctx context.Context, query, state string) ([]domain.PullRequest, error) {
	q := url.Values{}
	setIf(q, "state", state)
	setIf(q, "q", query)

	var raw []pullRequest
	if err := c.do(ctx, http.MethodGet, c.repoPath("/pulls"), q, nil, &raw); err != nil {
		return nil, fmt.Errorf("search pull requests: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	pulls := make([]domain.PullRequest, 0, len(raw))
	for _, pr := range raw {
		if needle != "" && !strings.Contains(strings.ToLower(pr.Title+"\n"+pr.Body), needle) {
			continue
		}
		pulls = append(pulls, convertPull(pr))
	}
	return pulls, nil
}

func (c *Client) GetPullRequests(ctx context.Context, state string) ([]domain.PullRequest, error) {
	return c.SearchPullRequests(ctx, "", state)
}

func (c *Client) GetCommitsForFile(ctx context.Context, path string, limit int) ([]domain.Commit, error) {
	q := url.Values{}
	setIf(q, "path", path)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var raw []commit
	if err := c.do(ctx, http.MethodGet, c.repoPath("/commits"), q, nil, &raw); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}

	commits := make([]domain.Commit, 0, len(raw))
	for _, rc := range raw {
		author := rc.Commit.Author.Name
		if rc.Author != nil && rc.Author.Login != "" {
			author = rc.Author.Login
		}
		commits = append(commits, domain.Commit{
			SHA:     rc.SHA,
			Message: rc.Commit.Message,
			Author:  author,
			Date:    rc.Commit.Author.Date,
			URL:     rc.HTMLURL,
		})
	}
	return commits, nil
}

// CreateIssue opens an issue. Label names are resolved to repository label
// ids; names that do not exist are dropped.
func (c *Client) CreateIssue(ctx context.Context, title, body string, labels []string) (*domain.Issue, error) {
	opt := createIssueOption{Title: title, Body: body}
	if len(labels) > 0 {
		ids, err := c.resolveLabels(ctx, labels)
		if err != nil {
			log.Warn().Err(err).Msg("could not resolve issue labels, creating issue without them")
		}
		opt.Labels = ids
	}

	var created issue
	if err := c.do(ctx, http.MethodPost, c.repoPath("/issues"), nil, opt, &created); err != nil {
		log.Error().Err(err).Str("title", title).Msg("failed to create issue")
		return nil, fmt.Errorf("create issue: %w", err)
	}

	out := convertIssue(created)
	return &out, nil
}

func (c *Client) resolveLabels(ctx context.Context, names []string) ([]int64, error) {
	var repoLabels []label
	if err := c.do(ctx, http.MethodGet, c.repoPath("/labels"), nil, nil, &repoLabels); err != nil {
		return nil, err
	}

	byName := make(map[string]int64, len(repoLabels))
	for _, l := range repoLabels {
		byName[strings.ToLower(l.Name)] = l.ID
	}

	var ids []int64
	for _, name := range names {
		id, ok := byName[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			log.Warn().Str("label", name).Msg("unknown label dropped")
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// FileStats derives per-file statistics from a commit list ordered newest first.
func FileStats(commits []domain.Commit) domain.FileStats {
	stats := domain.FileStats{TotalCommits: len(commits)}
	if len(commits) == 0 {
		return stats
	}
	stats.LastModified = commits[0].Date

	counts := make(map[string]int)
	for _, cm := range commits {
		if cm.Author != "" {
			counts[cm.Author]++
		}
	}
	for name := range counts {
		stats.TopContributors = append(stats.TopContributors, name)
	}
	sort.Slice(stats.TopContributors, func(i, j int) bool {
		a, b := stats.TopContributors[i], stats.TopContributors[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return a < b
	})
	return stats
}

func (c *Client) repoPath(suffix string) string {
	g := c.settings.Get().Gitea
	return fmt.Sprintf("/repos/%s/%s%s", url.PathEscape(g.Organization), url.PathEscape(g.Repository), suffix)
}

// do is the single request helper for reads and writes.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	g := c.settings.Get().Gitea
	if !g.Configured() {
		return domain.ErrNotConfigured
	}

	c.mu.Lock()
	limiter := c.limiter
	c.mu.Unlock()
	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	endpoint := strings.TrimSuffix(g.BaseURL, "/") + apiPrefix + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+g.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Debug().Str("method", method).Str("path", path).Msg("forge request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode gitea response: %w", err)
	}
	return nil
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func convertIssues(raw []issue) []domain.Issue {
	issues := make([]domain.Issue, 0, len(raw))
	for _, is := range raw {
		issues = append(issues, convertIssue(is))
	}
	return issues
}

func convertIssue(is issue) domain.Issue {
	out := domain.Issue{
		Number: is.Number,
		Title:  is.Title,
		Body:   is.Body,
		State:  is.State,
		URL:    is.HTMLURL,
		Author: is.User.Login,
	}
	for _, l := range is.Labels {
		out.Labels = append(out.Labels, l.Name)
	}
	return out
}

func convertPull(pr pullRequest) domain.PullRequest {
	return domain.PullRequest{
		Number: pr.Number,
		Title:  pr.Title,
		State:  pr.State,
		URL:    pr.HTMLURL,
		Author: pr.User.Login,
	}
}

var _ port.Forge = (*Client)(nil)

package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public GitHub REST endpoint.
const DefaultBaseURL = "https://api.github.com"

const perPage = 100

// PullRequest is a merged pull request.
type PullRequest struct {
	Repository string // owner/name
	Number     int
	Title      string
	Branch     string
	Author     string // login
	HTMLURL    string
	MergedAt   time.Time
}

// Client is a GitHub API client for listing merged pull requests
type Client struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new GitHub API client. An empty baseURL means the
// public API.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		token:   token,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type pullJSON struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	HTMLURL   string     `json:"html_url"`
	MergedAt  *time.Time `json:"merged_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	Head struct {
		Ref string `json:"ref"`
	} `json:"head"`
}

// ListMergedPulls returns the pull requests of owner/repo merged at or after
// since, newest update first. Paging stops at the first page that reaches
// back past since.
func (c *Client) ListMergedPulls(ctx context.Context, owner, repo string, since time.Time) ([]PullRequest, error) {
	var out []PullRequest
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("state", "closed")
		q.Set("sort", "updated")
		q.Set("direction", "desc")
		q.Set("per_page", fmt.Sprint(perPage))
		q.Set("page", fmt.Sprint(page))
		endpoint := fmt.Sprintf("%s/repos/%s/%s/pulls?%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), q.Encode())

		var pulls []pullJSON
		if err := c.get(ctx, endpoint, &pulls); err != nil {
			return nil, err
		}

		done := len(pulls) < perPage
		for _, p := range pulls {
			if p.UpdatedAt.Before(since) {
				done = true
				break
			}
			if p.MergedAt == nil || p.MergedAt.Before(since) {
				continue
			}
			out = append(out, PullRequest{
				Repository: owner + "/" + repo,
				Number:     p.Number,
				Title:      p.Title,
				Branch:     p.Head.Ref,
				Author:     p.User.Login,
				HTMLURL:    p.HTMLURL,
				MergedAt:   p.MergedAt.UTC(),
			})
		}
		if done {
			return out, nil
		}
	}
}

func (c *Client) get(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Add authentication header
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch pull requests: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// SplitRepo splits "owner/name".
func SplitRepo(full string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(full), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository %q is not owner/name", full)
	}
	return owner, repo, nil
}

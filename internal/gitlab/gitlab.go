// Package gitlab lists merged merge requests through the GitLab REST API.
package gitlab

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is gitlab.com.
const DefaultBaseURL = "https://gitlab.com"

const perPage = 100

// MergeRequest is a merged merge request.
type MergeRequest struct {
	Project  string // full path, e.g. group/sub/name
	IID      int
	Title    string
	Branch   string
	Author   string // username
	WebURL   string
	MergedAt time.Time
}

// Client talks to one GitLab instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

type mergeRequestJSON struct {
	IID          int        `json:"iid"`
	Title        string     `json:"title"`
	WebURL       string     `json:"web_url"`
	SourceBranch string     `json:"source_branch"`
	MergedAt     *time.Time `json:"merged_at"`
	Author       struct {
		Username string `json:"username"`
	} `json:"author"`
}

// ListMerged returns the merge requests of project merged at or after since.
// Pages are followed through the X-Next-Page header.
func (c *Client) ListMerged(ctx context.Context, project string, since time.Time) ([]MergeRequest, error) {
	var out []MergeRequest
	page := "1"
	for page != "" {
		q := url.Values{}
		q.Set("state", "merged")
		q.Set("updated_after", since.UTC().Format(time.RFC3339))
		q.Set("order_by", "updated_at")
		q.Set("per_page", strconv.Itoa(perPage))
		q.Set("page", page)
		endpoint := fmt.Sprintf("%s/api/v4/projects/%s/merge_requests?%s", c.baseURL, url.PathEscape(project), q.Encode())

		var mrs []mergeRequestJSON
		next, err := c.get(ctx, endpoint, &mrs)
		if err != nil {
			return nil, err
		}
		for _, mr := range mrs {
			if mr.MergedAt == nil || mr.MergedAt.Before(since) {
				continue
			}
			out = append(out, MergeRequest{
				Project:  project,
				IID:      mr.IID,
				Title:    mr.Title,
				Branch:   mr.SourceBranch,
				Author:   mr.Author.Username,
				WebURL:   mr.WebURL,
				MergedAt: mr.MergedAt.UTC(),
			})
		}
		page = next
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, endpoint string, v any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch merge requests: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("GitLab API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Header.Get("X-Next-Page"), nil
}

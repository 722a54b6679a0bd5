package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pull(n int, merged *time.Time, updated time.Time) map[string]any {
	p := map[string]any{
		"number":     n,
		"title":      fmt.Sprintf("PROJ-%d change", n),
		"html_url":   fmt.Sprintf("https://github.com/acme/api/pull/%d", n),
		"updated_at": updated.Format(time.RFC3339),
		"merged_at":  nil,
		"user":       map[string]any{"login": "octo"},
		"head":       map[string]any{"ref": fmt.Sprintf("feature/PROJ-%d", n)},
	}
	if merged != nil {
		p["merged_at"] = merged.Format(time.RFC3339)
	}
	return p
}

func TestListMergedPullsPagesUntilWindow(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	recent := since.Add(48 * time.Hour)
	old := since.Add(-48 * time.Hour)

	firstPage := make([]map[string]any, 0, perPage)
	for i := range perPage {
		switch {
		case i%10 == 0:
			firstPage = append(firstPage, pull(i+1, nil, recent)) // closed unmerged
		default:
			firstPage = append(firstPage, pull(i+1, &recent, recent))
		}
	}
	secondPage := []map[string]any{
		pull(500, &recent, recent),
		pull(501, &old, since.Add(time.Hour)), // updated in window, merged before
		pull(502, &old, old),                  // ends paging
		pull(503, &recent, recent),
	}

	var pages []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/api/pulls", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "closed", r.URL.Query().Get("state"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages = append(pages, page)
		switch page {
		case 1:
			_ = json.NewEncoder(w).Encode(firstPage)
		case 2:
			_ = json.NewEncoder(w).Encode(secondPage)
		default:
			t.Errorf("unexpected page %d", page)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	got, err := c.ListMergedPulls(context.Background(), "acme", "api", since)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, pages)
	assert.Len(t, got, 91)
	last := got[len(got)-1]
	assert.Equal(t, 500, last.Number)
	assert.Equal(t, "acme/api", last.Repository)
	assert.Equal(t, "octo", last.Author)
	assert.Equal(t, "feature/PROJ-500", last.Branch)
	assert.True(t, last.MergedAt.Equal(recent))
}

func TestListMergedPullsReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message":"Bad credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").ListMergedPulls(context.Background(), "acme", "api", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "Bad credentials")
}

func TestSplitRepo(t *testing.T) {
	owner, repo, err := SplitRepo(" acme/api ")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "api", repo)

	for _, bad := range []string{"api", "/api", "acme/", "a/b/c"} {
		_, _, err := SplitRepo(bad)
		assert.Error(t, err, bad)
	}
}

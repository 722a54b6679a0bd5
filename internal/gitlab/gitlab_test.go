package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMergedFollowsNextPage(t *testing.T) {
	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.EscapedPath())
		assert.Equal(t, "glpat", r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "merged", r.URL.Query().Get("state"))
		assert.Equal(t, "2024-03-01T00:00:00Z", r.URL.Query().Get("updated_after"))

		switch r.URL.Query().Get("page") {
		case "1":
			w.Header().Set("X-Next-Page", "2")
			fmt.Fprint(w, `[
				{"iid":7,"title":"PROJ-7 fix","web_url":"https://gl/mr/7","source_branch":"PROJ-7","merged_at":"2024-03-02T10:00:00Z","author":{"username":"kim"}},
				{"iid":6,"title":"old","web_url":"https://gl/mr/6","source_branch":"x","merged_at":"2024-02-20T10:00:00Z","author":{"username":"kim"}}
			]`)
		case "2":
			w.Header().Set("X-Next-Page", "")
			fmt.Fprint(w, `[{"iid":3,"title":"no merge time","web_url":"https://gl/mr/3","source_branch":"y","merged_at":null,"author":{"username":"lee"}}]`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	}))
	defer srv.Close()

	got, err := NewClient(srv.URL, "glpat").ListMerged(context.Background(), "group/sub/api", since)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, 7, got[0].IID)
	assert.Equal(t, "group/sub/api", got[0].Project)
	assert.Equal(t, "kim", got[0].Author)
	assert.Equal(t, "PROJ-7", got[0].Branch)
	assert.Len(t, paths, 2)
	assert.Equal(t, "/api/v4/projects/group%2Fsub%2Fapi/merge_requests", paths[0])
}

func TestListMergedReportsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "404 Project Not Found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").ListMerged(context.Background(), "nope", time.Now())
	assert.ErrorContains(t, err, "status 404")
}

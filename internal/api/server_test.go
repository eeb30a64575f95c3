package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewradar/internal/gitclient"
	"github.com/reviewradar/internal/poller"
	"github.com/reviewradar/internal/projects"
	"github.com/reviewradar/internal/stats"
	"github.com/reviewradar/internal/store"
	"github.com/reviewradar/internal/webhookutils"
	"github.com/reviewradar/pkg/models"
)

func testServer(t *testing.T, project models.Project) (*Server, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	registry := projects.NewRegistry([]models.Project{project})
	pool := gitclient.NewPool(time.Second)
	p := poller.New(registry, st, pool, poller.Options{})
	calc := stats.NewCalculator(st, registry)
	return NewServer(0, registry, p, calc, pool), st
}

func webhookProject() models.Project {
	return models.Project{
		ID:          "42",
		Name:        "group/app",
		GitLabURL:   "http://127.0.0.1:1",
		Reviewers:   []string{"bob"},
		FilterRules: "^docs:.*",
		ReviewDays:  7,
		Active:      true,
	}
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func pushPayload(repoPath string) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"object_kind": "push",
		"ref":         "refs/heads/main",
		"project": map[string]interface{}{
			"path_with_namespace": repoPath,
			"web_url":             "http://127.0.0.1:1/" + repoPath,
		},
		"commits": []map[string]interface{}{
			{
				"id":      "abc123def456",
				"message": "fix: handle empty input",
				"author":  map[string]string{"name": "alice", "email": "alice@example.com"},
			},
			{
				"id":      "fff000fff000",
				"message": "docs: typo",
				"author":  map[string]string{"name": "alice", "email": "alice@example.com"},
			},
		},
	})
	return body
}

func TestHealth(t *testing.T) {
	s, _ := testServer(t, webhookProject())

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestWebhookPushMergesCommits(t *testing.T) {
	s, st := testServer(t, webhookProject())

	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader(pushPayload("group/app")))
	req.Header.Set("X-Gitlab-Event", "Push Hook")

	rec := doRequest(s, req)
	require.Equal(t, http.StatusOK, rec.Code)

	cache, err := st.ReadCommitCache("42", 7*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, cache.Commits, 2)

	byID := map[string]models.CachedCommit{}
	for _, c := range cache.Commits {
		byID[c.ID] = c
	}
	assert.Equal(t, "abc123de", byID["abc123def456"].ShortID)
	assert.True(t, byID["abc123def456"].NeedsReview)
	assert.True(t, byID["fff000fff000"].SkipReview)
}

func TestWebhookUnknownRepository(t *testing.T) {
	s, _ := testServer(t, webhookProject())

	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader(pushPayload("nobody/knows")))
	req.Header.Set("X-Gitlab-Event", "Push Hook")

	rec := doRequest(s, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookSignatureVerification(t *testing.T) {
	project := webhookProject()
	project.WebhookSecret = "s3cret"
	body := pushPayload("group/app")

	t.Run("missing signature rejected", func(t *testing.T) {
		s, st := testServer(t, project)

		req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader(body))
		req.Header.Set("X-Gitlab-Event", "Push Hook")

		rec := doRequest(s, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, st.HasCommitCache("42"))
	})

	t.Run("wrong signature rejected", func(t *testing.T) {
		s, st := testServer(t, project)

		req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader(body))
		req.Header.Set("X-Gitlab-Event", "Push Hook")
		req.Header.Set("X-Gitlab-Signature", webhookutils.Sign("wrong", body))

		rec := doRequest(s, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, st.HasCommitCache("42"))
	})

	t.Run("valid signature accepted", func(t *testing.T) {
		s, st := testServer(t, project)

		req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader(body))
		req.Header.Set("X-Gitlab-Event", "Push Hook")
		req.Header.Set("X-Gitlab-Signature", webhookutils.Sign("s3cret", body))

		rec := doRequest(s, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, st.HasCommitCache("42"))
	})
}

func TestWebhookMalformedPayload(t *testing.T) {
	s, _ := testServer(t, webhookProject())

	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader([]byte("not json")))
	req.Header.Set("X-Gitlab-Event", "Push Hook")

	rec := doRequest(s, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookIgnoresUnhandledEvent(t *testing.T) {
	s, st := testServer(t, webhookProject())

	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader(pushPayload("group/app")))
	req.Header.Set("X-Gitlab-Event", "Pipeline Hook")

	rec := doRequest(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, st.HasCommitCache("42"))
}

func TestWebhookNoteEventForNonCommitIgnored(t *testing.T) {
	s, _ := testServer(t, webhookProject())

	body, _ := json.Marshal(map[string]interface{}{
		"object_kind": "note",
		"project": map[string]interface{}{
			"path_with_namespace": "group/app",
			"web_url":             "http://127.0.0.1:1/group/app",
		},
		"object_attributes": map[string]interface{}{
			"note":          "nice work",
			"noteable_type": "MergeRequest",
		},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/gitlab", bytes.NewReader(body))
	req.Header.Set("X-Gitlab-Event", "Note Hook")

	rec := doRequest(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetProjectStats(t *testing.T) {
	s, st := testServer(t, webhookProject())

	t.Run("unknown project", func(t *testing.T) {
		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/stats/nope", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("no cache yet", func(t *testing.T) {
		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/stats/42", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "no data yet")
	})

	t.Run("with cached commits", func(t *testing.T) {
		require.NoError(t, st.WriteCommitCache(&models.ProjectCommitCache{
			ProjectID: "42",
			Commits:   []models.CachedCommit{{ID: "c1", AuthorName: "alice", NeedsReview: true}},
		}))

		rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/stats/42", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var report models.ReviewStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
		assert.Equal(t, 1, report.TotalCommits)
		assert.Equal(t, 1, report.PendingCount)
	})
}

func TestGetStatus(t *testing.T) {
	s, _ := testServer(t, webhookProject())

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status poller.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)
}

func TestGetProjectMembers(t *testing.T) {
	gitlab := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v4/projects/42/members/all", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]interface{}{
			{"username": "alice", "name": "Alice A", "state": "active"},
			{"username": "bob", "name": "Bob Smith", "state": "active"},
		})
	}))
	defer gitlab.Close()

	project := webhookProject()
	project.GitLabURL = gitlab.URL
	s, _ := testServer(t, project)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/projects/42/members", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alice")
	assert.Contains(t, rec.Body.String(), "bob")

	rec = doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/projects/nope/members", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostRefreshProject(t *testing.T) {
	s, _ := testServer(t, webhookProject())

	rec := doRequest(s, httptest.NewRequest(http.MethodPost, "/api/v1/refresh/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, httptest.NewRequest(http.MethodPost, "/api/v1/refresh/42", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

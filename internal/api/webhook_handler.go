package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/reviewradar/internal/webhookutils"
	"github.com/reviewradar/pkg/models"
)

// GitLabWebhookPayload represents the structure of GitLab webhook payloads
type GitLabWebhookPayload struct {
	EventType        string                 `json:"event_type"`
	ObjectKind       string                 `json:"object_kind"`
	Ref              string                 `json:"ref,omitempty"`
	User             GitLabUser             `json:"user"`
	Project          GitLabProject          `json:"project"`
	Commits          []GitLabPushCommit     `json:"commits,omitempty"`
	Commit           *GitLabPushCommit      `json:"commit,omitempty"`
	ObjectAttributes GitLabObjectAttributes `json:"object_attributes"`
}

// GitLabUser represents a GitLab user
type GitLabUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// GitLabProject represents a GitLab project
type GitLabProject struct {
	ID                int    `json:"id"`
	Name              string `json:"name"`
	PathWithNamespace string `json:"path_with_namespace"`
	WebURL            string `json:"web_url"`
}

// GitLabPushCommit is a commit stub as carried in Push Hook payloads.
type GitLabPushCommit struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	URL       string    `json:"url"`
	Author    struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"author"`
}

// GitLabObjectAttributes represents the object_attributes field in webhook payloads
type GitLabObjectAttributes struct {
	ID           int    `json:"id"`
	Note         string `json:"note,omitempty"`
	NoteableType string `json:"noteable_type,omitempty"`
	Action       string `json:"action,omitempty"`
	State        string `json:"state,omitempty"`
	URL          string `json:"url,omitempty"`
}

// GitLabWebhookHandler handles incoming GitLab webhook events. Push events
// merge commit stubs directly, Note events refresh one commit's comments,
// a merged Merge Request triggers a full project refresh. All three paths
// reuse the poller's merge/recompute logic.
func (s *Server) GitLabWebhookHandler(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "unreadable body",
		})
	}

	var payload GitLabWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn().Err(err).Msg("Failed to parse GitLab webhook payload")
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "invalid webhook payload",
		})
	}

	eventKind := c.Request().Header.Get("X-Gitlab-Event")
	log.Info().
		Str("event", eventKind).
		Str("repo", payload.Project.PathWithNamespace).
		Msg("Received GitLab webhook")

	project, ok := s.registry.MatchWebhook(payload.Project.PathWithNamespace, payload.Project.WebURL)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no configured project matches this repository",
		})
	}

	// Signature verification is mandatory whenever the project has a
	// secret configured.
	signature := c.Request().Header.Get("X-Gitlab-Signature")
	if !webhookutils.VerifySignature(project.WebhookSecret, body, signature) {
		log.Warn().Str("project_id", project.ID).Msg("Webhook signature mismatch, rejecting payload")
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "invalid webhook signature",
		})
	}

	switch strings.ToLower(eventKind) {
	case "push hook":
		s.handlePushEvent(project, payload)
	case "note hook":
		s.handleNoteEvent(project, payload)
	case "merge request hook":
		s.handleMergeRequestEvent(project, payload)
	default:
		log.Debug().Str("event", eventKind).Msg("Ignoring unhandled webhook event type")
	}

	return c.JSON(http.StatusOK, map[string]string{
		"status": "received",
	})
}

func (s *Server) handlePushEvent(project models.Project, payload GitLabWebhookPayload) {
	if len(payload.Commits) == 0 {
		return
	}

	stubs := make([]models.CachedCommit, 0, len(payload.Commits))
	for _, pc := range payload.Commits {
		stubs = append(stubs, models.CachedCommit{
			ID:          pc.ID,
			ShortID:     shortID(pc.ID),
			Message:     pc.Message,
			AuthorName:  pc.Author.Name,
			AuthorEmail: pc.Author.Email,
			CommittedAt: pc.Timestamp,
			WebURL:      pc.URL,
		})
	}

	if err := s.poller.ApplyCommits(project.ID, stubs); err != nil {
		log.Warn().Str("project_id", project.ID).Err(err).Msg("Push webhook merge failed")
	}
}

func (s *Server) handleNoteEvent(project models.Project, payload GitLabWebhookPayload) {
	if !strings.EqualFold(payload.ObjectAttributes.NoteableType, "Commit") || payload.Commit == nil {
		return
	}

	// Only the noted commit is refreshed; the poll cadence covers the rest.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.poller.RefreshCommitComments(ctx, project.ID, payload.Commit.ID); err != nil {
			log.Warn().Str("project_id", project.ID).Str("commit", payload.Commit.ID).Err(err).
				Msg("Note webhook refresh failed")
		}
	}()
}

func (s *Server) handleMergeRequestEvent(project models.Project, payload GitLabWebhookPayload) {
	if payload.ObjectAttributes.Action != "merge" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := s.poller.RefreshProject(ctx, project.ID); err != nil {
			log.Warn().Str("project_id", project.ID).Err(err).
				Msg("Merge-request webhook refresh failed")
		}
	}()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

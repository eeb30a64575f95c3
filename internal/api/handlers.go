package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/reviewradar/internal/gitclient"
)

// getStatus reports poller state for operators.
func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.poller.Status())
}

// getAllStats returns coverage reports for every active project.
func (s *Server) getAllStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.stats.AllProjectsReviewStats())
}

// getProjectStats returns one project's coverage report. A project without
// a cache yet is not an error: the caller gets an explanatory message.
func (s *Server) getProjectStats(c echo.Context) error {
	id := c.Param("id")
	report, err := s.stats.ProjectReviewStats(id)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": err.Error(),
		})
	}
	if report == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"project_id": id,
			"stats":      nil,
			"message":    "no data yet, trigger a manual refresh",
		})
	}
	return c.JSON(http.StatusOK, report)
}

// getProjectMembers lists the project's GitLab members, inherited included.
// Useful for checking configured reviewer usernames against reality.
func (s *Server) getProjectMembers(c echo.Context) error {
	id := c.Param("id")
	project, ok := s.registry.Get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown project " + id,
		})
	}

	client, err := s.clients.For(project)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": err.Error(),
		})
	}

	members, err := client.FetchMembers(c.Request().Context(), project)
	if err != nil {
		status := http.StatusBadGateway
		if gitclient.IsUnauthorized(err) {
			status = http.StatusUnauthorized
		}
		return c.JSON(status, map[string]string{
			"error": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"project_id": id,
		"members":    members,
	})
}

// postRefreshAll triggers a full resync of every active project. The sweep
// runs in the background; the response only acknowledges the trigger.
func (s *Server) postRefreshAll(c echo.Context) error {
	go s.poller.RefreshAll(context.Background())
	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "refresh started",
	})
}

// postRefreshProject triggers a full resync of one project.
func (s *Server) postRefreshProject(c echo.Context) error {
	id := c.Param("id")
	if _, ok := s.registry.Get(id); !ok {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "unknown project " + id,
		})
	}
	go func() {
		// Detached from the request lifetime.
		_ = s.poller.RefreshProject(context.Background(), id)
	}()
	return c.JSON(http.StatusAccepted, map[string]string{
		"status":     "refresh started",
		"project_id": id,
	})
}

// Package stats derives per-reviewer and per-project review coverage from
// the cached commit data and the project's reviewer configuration. Stats are
// computed fresh on every request; staleness costs more than recomputation.
package stats

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/reviewradar/internal/projects"
	"github.com/reviewradar/internal/store"
	"github.com/reviewradar/pkg/models"
)

// Calculator computes review coverage reports.
type Calculator struct {
	store    *store.Store
	registry *projects.Registry
}

// NewCalculator creates a Calculator over the given store and registry.
func NewCalculator(st *store.Store, registry *projects.Registry) *Calculator {
	return &Calculator{store: st, registry: registry}
}

// RecomputeNeedsReview re-derives a commit's needs-review flag from its
// current comment state: false when skip-review is set, otherwise false only
// once every required reviewer other than the author has left a comment.
// This is the single mutation contract used by pollers, webhooks and manual
// refresh alike.
func RecomputeNeedsReview(commit *models.CachedCommit, resolver *IdentityResolver) {
	if commit.SkipReview {
		commit.NeedsReview = false
		return
	}

	for _, reviewer := range resolver.Reviewers() {
		// Self-authored commits are never waiting on their own author.
		if resolver.Matches(commit.AuthorName, reviewer.Username) {
			continue
		}

		commented := false
		for _, comment := range commit.Comments {
			if resolver.Matches(comment.Author, reviewer.Username) {
				commented = true
				break
			}
		}
		if !commented {
			commit.NeedsReview = true
			return
		}
	}

	commit.NeedsReview = false
}

// ProjectReviewStats returns the coverage report for one project, or nil
// when no cache snapshot exists yet (callers surface "no data, trigger a
// manual refresh").
func (c *Calculator) ProjectReviewStats(projectID string) (*models.ReviewStats, error) {
	project, ok := c.registry.Get(projectID)
	if !ok {
		return nil, fmt.Errorf("unknown project %s", projectID)
	}
	if !c.store.HasCommitCache(projectID) {
		return nil, nil
	}

	cache, err := c.store.ReadCommitCache(projectID, time.Duration(project.ReviewDays)*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("load commit cache: %w", err)
	}

	resolver := NewIdentityResolver(project.Reviewers, project.UserMappings)

	// Skip-review commits are excluded from every denominator.
	var needsReview []models.CachedCommit
	for _, commit := range cache.Commits {
		if !commit.SkipReview {
			needsReview = append(needsReview, commit)
		}
	}

	report := &models.ReviewStats{
		ProjectID:       project.ID,
		ProjectName:     project.Name,
		TotalCommits:    len(needsReview),
		LastCommitPull:  cache.LastCommitPullTime,
		LastCommentPull: cache.LastCommentPullTime,
		GeneratedAt:     time.Now(),
	}

	reviewed := 0
	for _, commit := range needsReview {
		if commit.HasComments {
			report.CommentedCount++
		}
		if !commit.NeedsReview {
			reviewed++
		}
	}
	report.ReviewedCount = reviewed
	report.PendingCount = report.TotalCommits - reviewed
	report.ReviewRate = formatRate(reviewed, report.TotalCommits)

	for _, reviewer := range resolver.Reviewers() {
		stat := models.ReviewerStat{
			Username: reviewer.Username,
			Nickname: reviewer.Nickname,
		}

		for _, commit := range needsReview {
			// The assigned set excludes the reviewer's own commits.
			if resolver.Matches(commit.AuthorName, reviewer.Username) {
				continue
			}
			stat.Assigned++

			for _, comment := range commit.Comments {
				if resolver.Matches(comment.Author, reviewer.Username) {
					stat.Reviewed++
					break
				}
			}
		}

		stat.Pending = stat.Assigned - stat.Reviewed
		stat.ReviewRate = formatRate(stat.Reviewed, stat.Assigned)
		report.Reviewers = append(report.Reviewers, stat)
	}

	return report, nil
}

// AllProjectsReviewStats aggregates coverage over all active projects. A
// single project's failure is logged and skipped, never fatal to the call.
func (c *Calculator) AllProjectsReviewStats() []models.ReviewStats {
	var out []models.ReviewStats
	for _, project := range c.registry.Active() {
		report, err := c.ProjectReviewStats(project.ID)
		if err != nil {
			log.Warn().Str("project_id", project.ID).Err(err).
				Msg("Skipping project in aggregate stats")
			continue
		}
		if report == nil {
			continue
		}
		out = append(out, *report)
	}
	return out
}

// formatRate renders reviewed/assigned as a percentage with one decimal.
// An empty assigned set is vacuously satisfied.
func formatRate(reviewed, assigned int) string {
	if assigned == 0 {
		return "100.0"
	}
	return fmt.Sprintf("%.1f", float64(reviewed)/float64(assigned)*100)
}

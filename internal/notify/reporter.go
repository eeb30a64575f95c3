// Package notify renders scheduled review-coverage reports and hands them
// to a delivery sink. The chat transport itself is an external collaborator;
// only the report payload is defined here.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reviewradar/internal/stats"
	"github.com/reviewradar/pkg/models"
)

// Report is the payload handed to the delivery sink.
type Report struct {
	ID          string               `json:"id"`
	Date        string               `json:"date"`
	GeneratedAt time.Time            `json:"generated_at"`
	Projects    []models.ReviewStats `json:"projects"`
	Summary     string               `json:"summary"`
}

// Sink delivers a rendered report. Implementations must not retain the
// report after Deliver returns.
type Sink interface {
	Deliver(ctx context.Context, report *Report) error
}

// Reporter builds coverage reports from the stats calculator.
type Reporter struct {
	calc *stats.Calculator
}

// NewReporter creates a Reporter.
func NewReporter(calc *stats.Calculator) *Reporter {
	return &Reporter{calc: calc}
}

// Build renders the coverage report for all active projects as of now.
func (r *Reporter) Build() *Report {
	now := time.Now()
	projects := r.calc.AllProjectsReviewStats()

	return &Report{
		ID:          uuid.NewString(),
		Date:        now.Format("2006-01-02"),
		GeneratedAt: now,
		Projects:    projects,
		Summary:     summarize(projects),
	}
}

// summarize renders a short plain-text digest, one line per project plus a
// pending line per reviewer with open assignments.
func summarize(projects []models.ReviewStats) string {
	if len(projects) == 0 {
		return "No review data yet. Trigger a manual refresh to start tracking."
	}

	var b strings.Builder
	for _, p := range projects {
		fmt.Fprintf(&b, "%s: %d commits awaiting review, coverage %s%%\n",
			p.ProjectName, p.PendingCount, p.ReviewRate)
		for _, reviewer := range p.Reviewers {
			if reviewer.Pending == 0 {
				continue
			}
			name := reviewer.Username
			if reviewer.Nickname != "" {
				name = reviewer.Nickname
			}
			fmt.Fprintf(&b, "  - %s: %d pending (%s%%)\n", name, reviewer.Pending, reviewer.ReviewRate)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

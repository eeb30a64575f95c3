package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reviewradar/internal/projects"
	"github.com/reviewradar/internal/stats"
	"github.com/reviewradar/internal/store"
	"github.com/reviewradar/pkg/models"
)

type captureSink struct {
	mu      sync.Mutex
	reports []*Report
}

func (s *captureSink) Deliver(_ context.Context, report *Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func testReporter(t *testing.T) (*Reporter, *store.Store) {
	t.Helper()
	st, err := store.New(t.TempDir())
	require.NoError(t, err)

	registry := projects.NewRegistry([]models.Project{
		{
			ID:           "42",
			Name:         "example",
			Reviewers:    []string{"bob"},
			UserMappings: map[string]string{"bob": "Bob Smith"},
			ReviewDays:   7,
			Active:       true,
		},
	})
	return NewReporter(stats.NewCalculator(st, registry)), st
}

func TestBuildReportWithPendingReviews(t *testing.T) {
	reporter, st := testReporter(t)

	require.NoError(t, st.WriteCommitCache(&models.ProjectCommitCache{
		ProjectID: "42",
		Commits: []models.CachedCommit{
			{ID: "c1", AuthorName: "alice", NeedsReview: true},
		},
	}))

	report := reporter.Build()

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, time.Now().Format("2006-01-02"), report.Date)
	require.Len(t, report.Projects, 1)

	assert.Contains(t, report.Summary, "example: 1 commits awaiting review")
	assert.Contains(t, report.Summary, "Bob Smith: 1 pending")
}

func TestBuildReportEmpty(t *testing.T) {
	reporter, _ := testReporter(t)

	report := reporter.Build()
	assert.Empty(t, report.Projects)
	assert.Contains(t, report.Summary, "No review data yet")
}

func TestUntilNext(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	assert.Equal(t, 90*time.Minute, untilNext("09:30", now))
	// Already past today: tomorrow's occurrence.
	assert.Equal(t, 23*time.Hour, untilNext("07:00", now))
	// Exactly now rolls over to tomorrow.
	assert.Equal(t, 24*time.Hour, untilNext("08:00", now))
	// Malformed time falls back to a daily cadence.
	assert.Equal(t, 24*time.Hour, untilNext("soon", now))
}

func TestSchedulerRunOnceDelivers(t *testing.T) {
	reporter, _ := testReporter(t)
	sink := &captureSink{}

	s := NewScheduler(reporter, sink, "09:00")
	s.runOnce()

	require.Len(t, sink.reports, 1)
	assert.NotEmpty(t, sink.reports[0].Summary)
}

func TestSchedulerStartStop(t *testing.T) {
	reporter, _ := testReporter(t)

	s := NewScheduler(reporter, LogSink{}, "09:00")
	s.Start()
	s.Stop()
}

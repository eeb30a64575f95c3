package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler fires the coverage report once a day at a fixed wall-clock time.
type Scheduler struct {
	reporter *Reporter
	sink     Sink
	at       string // "HH:MM" local time
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  bool
}

// NewScheduler creates a Scheduler firing daily at the given HH:MM.
func NewScheduler(reporter *Reporter, sink Sink, at string) *Scheduler {
	return &Scheduler{
		reporter: reporter,
		sink:     sink,
		at:       at,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	go s.loop()
}

func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) loop() {
	defer close(s.doneCh)
	for {
		wait := untilNext(s.at, time.Now())
		timer := time.NewTimer(wait)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce()
		}
	}
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report := s.reporter.Build()
	if err := s.sink.Deliver(ctx, report); err != nil {
		log.Warn().Str("report_id", report.ID).Err(err).Msg("Report delivery failed")
		return
	}
	log.Info().Str("report_id", report.ID).Int("projects", len(report.Projects)).
		Msg("Coverage report delivered")
}

// untilNext returns the duration from now to the next occurrence of the
// HH:MM wall-clock time. A malformed time falls back to 24h.
func untilNext(at string, now time.Time) time.Duration {
	t, err := time.Parse("15:04", at)
	if err != nil {
		return 24 * time.Hour
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// LogSink writes reports to the process log. It stands in for the real chat
// transport during development and in deployments without one configured.
type LogSink struct{}

// Deliver implements Sink.
func (LogSink) Deliver(_ context.Context, report *Report) error {
	log.Info().
		Str("report_id", report.ID).
		Str("date", report.Date).
		Msg("Coverage report:\n" + report.Summary)
	return nil
}

package scanner

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dselans/zpeek/checkpoint/types"
)

type stats struct {
	startedAt time.Time

	matched atomic.Int64
	skipped atomic.Int64
	written atomic.Int64

	kindsMu sync.Mutex
	kinds   map[string]int64
}

// Report summarizes one scan run
type Report struct {
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Duration   string           `json:"duration"`
	Matched    int64            `json:"matched"`
	Skipped    int64            `json:"skipped"`
	Scanned    int64            `json:"scanned"`
	Kinds      map[string]int64 `json:"kinds"`
}

func newStats() *stats {
	return &stats{
		startedAt: time.Now(),
		kinds:     make(map[string]int64),
	}
}

func (st *stats) record(e *types.Entry) {
	st.written.Add(1)

	st.kindsMu.Lock()
	defer st.kindsMu.Unlock()

	st.kinds[e.Kind]++
}

func (st *stats) report() *Report {
	st.kindsMu.Lock()
	kinds := make(map[string]int64, len(st.kinds))
	for k, v := range st.kinds {
		kinds[k] = v
	}
	st.kindsMu.Unlock()

	now := time.Now()

	return &Report{
		StartedAt:  st.startedAt,
		FinishedAt: now,
		Duration:   now.Sub(st.startedAt).Round(time.Millisecond).String(),
		Matched:    st.matched.Load(),
		Skipped:    st.skipped.Load(),
		Scanned:    st.written.Load(),
		Kinds:      kinds,
	}
}

// Report returns a snapshot of the current run's progress
func (s *Scanner) Report() *Report {
	return s.stats.report()
}

// runReporter logs progress every interval until ctx is cancelled. A zero
// interval disables progress output.
func (s *Scanner) runReporter(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	llog := s.log.WithFields(logrus.Fields{
		"method": "runReporter",
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r := s.stats.report()
			llog.WithFields(logrus.Fields{
				"matched": r.Matched,
				"skipped": r.Skipped,
				"scanned": r.Scanned,
				"elapsed": r.Duration,
			}).Info("progress")
		}
	}
}

func (s *Scanner) writeReport(output string) error {
	r := s.stats.report()

	s.log.WithFields(logrus.Fields{
		"matched": r.Matched,
		"skipped": r.Skipped,
		"scanned": r.Scanned,
		"elapsed": r.Duration,
	}).Info("scan complete")

	if output == "" {
		return nil
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return errors.Wrap(err, "unable to marshal report")
	}

	if err := os.WriteFile(output, data, 0644); err != nil {
		return errors.Wrapf(err, "unable to write report to '%s'", output)
	}

	return nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

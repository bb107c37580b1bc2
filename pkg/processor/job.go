package processor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/scoutalgo/clover/pkg/models"
)

const (
	maxErrorSamples   = 20
	maxErrorSampleLen = 200
)

// ProgressObserver receives a progress snapshot after every processed listing.
// It is called from the run's goroutines and must not block.
type ProgressObserver func(models.Progress)

// JobContext holds the live state of one run. Each run gets its own.
type JobContext struct {
	runID     string
	startedAt time.Time
	observer  ProgressObserver

	total       atomic.Int64
	processed   atomic.Int64
	matched     atomic.Int64
	errored     atomic.Int64
	oracleCalls atomic.Int64
	running     atomic.Bool

	samples errorSamples
}

func newJobContext(runID string, observer ProgressObserver) *JobContext {
	j := &JobContext{
		runID:     runID,
		startedAt: time.Now().UTC(),
		observer:  observer,
	}
	j.running.Store(true)
	return j
}

// RunID returns the run identifier
func (j *JobContext) RunID() string {
	return j.runID
}

// Progress returns a point-in-time snapshot
func (j *JobContext) Progress() models.Progress {
	return models.Progress{
		RunID:       j.runID,
		Total:       j.total.Load(),
		Processed:   j.processed.Load(),
		Matched:     j.matched.Load(),
		Errored:     j.errored.Load(),
		OracleCalls: j.oracleCalls.Load(),
		StartedAt:   j.startedAt,
		Running:     j.running.Load(),
	}
}

func (j *JobContext) notify() {
	if j.observer != nil {
		j.observer(j.Progress())
	}
}

func (j *JobContext) recordError(err error) {
	j.errored.Add(1)
	j.samples.add(err)
}

func (j *JobContext) finish() {
	j.running.Store(false)
	j.notify()
}

// errorSamples keeps the first few error messages, truncated
type errorSamples struct {
	mu      sync.Mutex
	samples []string
}

func (s *errorSamples) add(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.samples) >= maxErrorSamples {
		return
	}
	msg := err.Error()
	if r := []rune(msg); len(r) > maxErrorSampleLen {
		msg = string(r[:maxErrorSampleLen])
	}
	s.samples = append(s.samples, msg)
}

func (s *errorSamples) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.samples...)
}

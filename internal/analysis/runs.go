package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// Run states.
const (
	RunPending   = "en_progreso"
	RunCompleted = "completado"
	RunFailed    = "fallido"
)

// Run is the tracked state of a background analysis.
type Run struct {
	ID     string  `json:"id"`
	Status string  `json:"estado"`
	Result *Result `json:"resultado,omitempty"`
	Error  string  `json:"error,omitempty"`
}

// Tracker keeps recent runs in memory and allows one run at a time.
type Tracker struct {
	analyzer *Analyzer
	runs     *cache.Cache

	mu      sync.Mutex
	running bool
}

// NewTracker creates a tracker. Finished runs are forgotten after retention.
func NewTracker(a *Analyzer, retention time.Duration) *Tracker {
	return &Tracker{analyzer: a, runs: cache.New(retention, retention)}
}

// Start launches a run in the background and returns its id. It reports false when another
// run is still in progress.
func (t *Tracker) Start(ctx context.Context, opts Options) (string, bool) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return "", false
	}
	t.running = true
	t.mu.Unlock()

	id := NewRunID()
	t.runs.SetDefault(id, &Run{ID: id, Status: RunPending})

	go func() {
		defer func() {
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
		}()

		res, err := t.analyzer.RunWithID(ctx, id, opts)
		run := &Run{ID: id, Status: RunCompleted, Result: res}
		if err != nil {
			run.Status = RunFailed
			run.Error = err.Error()
		}
		t.runs.SetDefault(id, run)
	}()
	return id, true
}

// Get returns a tracked run.
func (t *Tracker) Get(id string) (*Run, bool) {
	v, ok := t.runs.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Run), true
}

package pipeline

import "sync"

// BatchProgress is a point-in-time snapshot of one batch.
type BatchProgress struct {
	Total int
	Done  int
}

// ProgressTracker reports per-batch progress to whoever constructed it.
// It is an explicitly injected service with a start/remove lifecycle, not
// process-wide state; every pipeline holding the same handle shares it.
type ProgressTracker struct {
	mu        sync.Mutex
	batches   map[string]*BatchProgress
	onAdvance func(batchID string, progress BatchProgress)
}

// NewProgressTracker creates a tracker. The callback may be nil; when set
// it fires on every Advance with a snapshot, outside the tracker lock.
func NewProgressTracker(onAdvance func(batchID string, progress BatchProgress)) *ProgressTracker {
	return &ProgressTracker{
		batches:   make(map[string]*BatchProgress),
		onAdvance: onAdvance,
	}
}

// StartBatch registers a batch with a known amount of work.
func (t *ProgressTracker) StartBatch(batchID string, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.batches[batchID] = &BatchProgress{Total: total}
}

// Advance records one completed unit of work.
func (t *ProgressTracker) Advance(batchID string) {
	t.mu.Lock()
	b, ok := t.batches[batchID]
	if !ok {
		t.mu.Unlock()
		return
	}
	b.Done++
	snapshot := *b
	callback := t.onAdvance
	t.mu.Unlock()

	if callback != nil {
		callback(batchID, snapshot)
	}
}

// RemoveBatch drops a batch from the tracker.
func (t *ProgressTracker) RemoveBatch(batchID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.batches, batchID)
}

// Snapshot returns the current progress of a batch.
func (t *ProgressTracker) Snapshot(batchID string) (BatchProgress, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.batches[batchID]
	if !ok {
		return BatchProgress{}, false
	}
	return *b, true
}

package orchestrator

import (
	"sync"
	"time"

	"motion-recorder/internal/retention"
)

// Repository defines the concurrency-safe contract shared by the pipeline
// (writer) and the ops handler (reader).
type Repository interface {
	// RecordSession appends a finished session to the ledger.
	RecordSession(rec SessionRecord) error

	// RecentSessions returns at most limit sessions, newest first.
	RecentSessions(limit int) ([]SessionRecord, error)

	// FrameRead notes that a frame was just read from the stream.
	FrameRead(at time.Time)

	// SetStreamOpen and SetRecording track what the pipeline is doing.
	SetStreamOpen(open bool)
	SetRecording(recording bool)

	// CycleEnded notes the end of one pipeline cycle; err is nil for a clean end.
	CycleEnded(err error)

	// Status returns a snapshot for liveness reporting.
	Status() Status
}

// LedgerRepository is a concurrency-safe Repository backed by a Store.
type LedgerRepository struct {
	mu     sync.RWMutex
	store  Store
	status Status
}

// NewLedgerRepository returns a repository over a default in-memory store.
func NewLedgerRepository() *LedgerRepository {
	return NewLedgerRepositoryWithStore(NewInMemoryStore(DefaultLedgerSize))
}

// NewLedgerRepositoryWithStore returns a repository that uses the given Store.
func NewLedgerRepositoryWithStore(store Store) *LedgerRepository {
	return &LedgerRepository{
		store:  store,
		status: Status{StartedAt: time.Now().UTC()},
	}
}

// RecordSession implements Repository.RecordSession.
func (r *LedgerRepository) RecordSession(rec SessionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Sessions++
	if rec.Outcome == string(retention.Retained) {
		r.status.ClipsRetained++
	}
	return r.store.SaveSession(rec)
}

// RecentSessions implements Repository.RecentSessions.
func (r *LedgerRepository) RecentSessions(limit int) ([]SessionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.store.RecentSessions(limit)
}

// FrameRead implements Repository.FrameRead.
func (r *LedgerRepository) FrameRead(at time.Time) {
	r.mu.Lock()
	r.status.LastFrameAt = at.UTC()
	r.mu.Unlock()
}

// SetStreamOpen implements Repository.SetStreamOpen.
func (r *LedgerRepository) SetStreamOpen(open bool) {
	r.mu.Lock()
	r.status.StreamOpen = open
	r.mu.Unlock()
}

// SetRecording implements Repository.SetRecording.
func (r *LedgerRepository) SetRecording(recording bool) {
	r.mu.Lock()
	r.status.Recording = recording
	r.mu.Unlock()
}

// CycleEnded implements Repository.CycleEnded.
func (r *LedgerRepository) CycleEnded(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status.Cycles++
	r.status.LastCycleAt = time.Now().UTC()
	r.status.StreamOpen = false
	r.status.Recording = false
	if err != nil {
		r.status.Restarts++
		r.status.LastCycleErr = err.Error()
	}
}

// Status implements Repository.Status.
func (r *LedgerRepository) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Close releases the underlying store.
func (r *LedgerRepository) Close() error {
	return r.store.Close()
}

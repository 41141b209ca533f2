package session

import (
	"sync"
	"sync/atomic"
	"time"

	"wp_schema_sync/internal/model"
)

// Task is the in-flight batch of one user. The cancel flag is set from the
// chat side and polled by the runner between rows.
type Task struct {
	ID        string
	UserID    string
	Mode      model.Mode
	StartedAt time.Time

	cancelled atomic.Bool
	done      atomic.Int64
	total     atomic.Int64
}

func newTask(id, userID string, mode model.Mode, now time.Time) *Task {
	return &Task{ID: id, UserID: userID, Mode: mode, StartedAt: now}
}

func (t *Task) Cancel() {
	t.cancelled.Store(true)
}

func (t *Task) Cancelled() bool {
	return t.cancelled.Load()
}

func (t *Task) setProgress(done, total int) {
	t.done.Store(int64(done))
	t.total.Store(int64(total))
}

// Progress returns rows done and rows in the batch.
func (t *Task) Progress() (done, total int) {
	return int(t.done.Load()), int(t.total.Load())
}

// Store keeps per-user session state: the mode awaiting an upload and the
// active task. Implementations must be safe for concurrent use.
type Store interface {
	// SetPending records that the user's next upload starts a batch in mode.
	SetPending(userID string, mode model.Mode, until time.Time)
	// TakePending returns and clears the pending mode if it has not expired.
	TakePending(userID string, now time.Time) (model.Mode, bool)
	// TryStart installs task as the user's active task unless one is running.
	TryStart(task *Task) bool
	// Active returns the user's running task.
	Active(userID string) (*Task, bool)
	// Finish clears the active task if it is still task.
	Finish(task *Task)
}

type pending struct {
	mode  model.Mode
	until time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	pending map[string]pending
	active  map[string]*Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending: make(map[string]pending),
		active:  make(map[string]*Task),
	}
}

func (s *MemoryStore) SetPending(userID string, mode model.Mode, until time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[userID] = pending{mode: mode, until: until}
}

func (s *MemoryStore) TakePending(userID string, now time.Time) (model.Mode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[userID]
	if !ok {
		return model.ModeInsert, false
	}
	delete(s.pending, userID)
	if !p.until.IsZero() && now.After(p.until) {
		return model.ModeInsert, false
	}
	return p.mode, true
}

func (s *MemoryStore) TryStart(task *Task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, running := s.active[task.UserID]; running {
		return false
	}
	s.active[task.UserID] = task
	return true
}

func (s *MemoryStore) Active(userID string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.active[userID]
	return task, ok
}

func (s *MemoryStore) Finish(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[task.UserID] == task {
		delete(s.active, task.UserID)
	}
}

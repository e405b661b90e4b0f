package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/tablewriter/pkg/errors"
)

// State is shared by every stage of one writer: the sticky error, the
// shutdown flags and the lock that keeps status snapshots consistent.
//
// Any move of rows between two stage-owned places (queue, in-flight
// count, failed queue, sent counter) runs inside Handoff. Snapshot takes
// the same lock exclusively, so a snapshot never sees a row in two places
// or in none.
type State struct {
	statusMu sync.RWMutex

	errMu  sync.Mutex
	err    *errors.Error
	hasErr atomic.Bool

	exiting atomic.Bool
	closed  atomic.Bool
}

// NewState returns a state with no error.
func NewState() *State {
	return &State{}
}

// SetError records err as the sticky error unless one is already set.
// It reports whether err was recorded.
func (s *State) SetError(err error) bool {
	if err == nil {
		return false
	}
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err != nil {
		return false
	}
	var e *errors.Error
	if !errors.As(err, &e) {
		e = errors.Wrap(err, errors.ErrorTypeInternal, "pipeline failure")
	}
	s.err = e
	s.hasErr.Store(true)
	return true
}

// Err returns the sticky error, or nil.
func (s *State) Err() *errors.Error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// HasError reports whether the sticky error is set.
func (s *State) HasError() bool {
	return s.hasErr.Load()
}

// IsExiting reports whether inserts are refused: the sticky error is set,
// shutdown is in progress, or the writer has been shut down.
func (s *State) IsExiting() bool {
	return s.hasErr.Load() || s.exiting.Load() || s.closed.Load()
}

// BeginExit marks shutdown in progress. It returns false when shutdown
// already started or finished.
func (s *State) BeginExit() bool {
	if s.closed.Load() {
		return false
	}
	return s.exiting.CompareAndSwap(false, true)
}

// EndExit clears the transient exiting flag and marks the writer closed.
func (s *State) EndExit() {
	s.closed.Store(true)
	s.exiting.Store(false)
}

// Closed reports whether shutdown has completed.
func (s *State) Closed() bool {
	return s.closed.Load()
}

// Handoff runs fn as one atomic step with respect to snapshots.
func (s *State) Handoff(fn func()) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	fn()
}

// Snapshot runs fn while no handoff is in progress.
func (s *State) Snapshot(fn func()) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	fn()
}

package convert

import "sync"

// Guard serializes access to the caller's runtime while a conversion runs.
// Acquire blocks until the runtime may be entered and returns the function
// that leaves it. Only the conversion stage acquires a Guard.
type Guard interface {
	Acquire() (release func())
}

type nopGuard struct{}

func (nopGuard) Acquire() func() { return func() {} }

// NopGuard is used when conversion needs no runtime lock.
var NopGuard Guard = nopGuard{}

// MutexGuard is a Guard backed by a mutex shared with the host runtime.
type MutexGuard struct {
	mu *sync.Mutex
}

// NewMutexGuard returns a Guard over mu. A nil mu gets a private mutex.
func NewMutexGuard(mu *sync.Mutex) *MutexGuard {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &MutexGuard{mu: mu}
}

// Acquire locks the shared mutex.
func (g *MutexGuard) Acquire() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

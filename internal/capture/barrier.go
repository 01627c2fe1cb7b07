package capture

import "sync"

// StartBarrier releases all capture sessions at once. Each session blocks in
// Wait until every expected session has arrived and Release has been called,
// which keeps the relative capture-start skew across devices as small as the
// scheduler allows.
type StartBarrier struct {
	arrived sync.WaitGroup
	start   chan struct{}
	once    sync.Once
}

// NewStartBarrier creates a barrier expecting n sessions.
func NewStartBarrier(n int) *StartBarrier {
	b := &StartBarrier{start: make(chan struct{})}
	b.arrived.Add(n)
	return b
}

// Wait marks the calling session as arrived and blocks until the barrier is
// released.
func (b *StartBarrier) Wait() {
	b.arrived.Done()
	<-b.start
}

// Release unblocks every session. It waits for all expected sessions to
// arrive first, so no session can observe the release early, and it is safe
// to call more than once; only the first call releases.
func (b *StartBarrier) Release() {
	b.arrived.Wait()
	b.once.Do(func() { close(b.start) })
}

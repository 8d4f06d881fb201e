package runtime

import "context"

// Limiter is a single shared FIFO concurrency gate wrapping every
// adapter's Invoke, parameterised by max_concurrent_invocations (0 =
// unbounded). Grounded on the teacher's AgentLoop semaphore pattern
// (sem := make(chan struct{}, maxParallelTools)), generalized from a
// per-loop tool semaphore to a process-wide invocation gate.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter builds a Limiter. max<=0 means unbounded: Acquire never
// blocks and Release is a no-op.
func NewLimiter(max int) *Limiter {
	if max <= 0 {
		return &Limiter{}
	}
	return &Limiter{slots: make(chan struct{}, max)}
}

// Acquire blocks until a slot is free or ctx is cancelled. A waiter that
// is cancelled is dequeued without starting the invocation, matching the
// FIFO-with-cancellable-waiters contract.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.slots == nil {
		return nil
	}
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot acquired by a matching Acquire call.
func (l *Limiter) Release() {
	if l.slots == nil {
		return
	}
	<-l.slots
}

// Package deferred implements the bounded-concurrency delayed-replay
// queue of spec §4.9, letting a model response enqueue a future
// re-invocation with the same effective context. Grounded on the
// teacher's semaphore pattern in AgentLoop.runLoop
// (sem := make(chan struct{}, maxParallelTools)).
package deferred

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
)

// Handler rebuilds the prompt context and posts the result to the
// target channel at fire time.
type Handler func(targetChannel, prompt string) error

const defaultMaxDelaySeconds = 1800
const defaultMaxConcurrent = 5

// Config parameterizes one Scheduler.
type Config struct {
	MaxDelaySeconds int
	MaxConcurrent   int
}

// Scheduler holds pending deferred invocations and fires each at its
// scheduled time, bounding in-flight fires with a semaphore.
type Scheduler struct {
	cfg     Config
	handler Handler
	sem     chan struct{}

	mu     sync.Mutex
	timers map[string]*time.Timer
	nextID int
	closed bool
}

func NewScheduler(cfg Config, handler Handler) *Scheduler {
	if cfg.MaxDelaySeconds <= 0 {
		cfg.MaxDelaySeconds = defaultMaxDelaySeconds
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	return &Scheduler{
		cfg: cfg, handler: handler,
		sem: make(chan struct{}, cfg.MaxConcurrent), timers: make(map[string]*time.Timer),
	}
}

// Schedule validates fires_at against max_delay_seconds and enqueues a
// future fire of handler(targetChannel, prompt).
func (s *Scheduler) Schedule(targetChannel, prompt string, firesAt time.Time) (string, error) {
	delay := time.Until(firesAt)
	if delay < 0 {
		return "", appErrors.NewInvalidInputError("fires_at is in the past")
	}
	if delay > time.Duration(s.cfg.MaxDelaySeconds)*time.Second {
		return "", appErrors.NewInvalidInputError("fires_at exceeds max_delay_seconds")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", appErrors.NewUnavailableError("defer scheduler is shut down", nil)
	}
	s.nextID++
	id := fmt.Sprintf("defer-%d", s.nextID)
	timer := time.AfterFunc(delay, func() { s.fire(id, targetChannel, prompt) })
	s.timers[id] = timer
	return id, nil
}

// Cancel stops a pending deferred invocation before it fires.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer, ok := s.timers[id]
	if !ok {
		return false
	}
	stopped := timer.Stop()
	delete(s.timers, id)
	return stopped
}

// Pending returns the count of scheduled-but-not-yet-fired invocations.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) fire(id, targetChannel, prompt string) {
	s.mu.Lock()
	delete(s.timers, id)
	s.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	default:
		// At the concurrent-fire cap; block until a slot frees rather than
		// drop the fire, since a deferred prompt was promised to the user.
		s.sem <- struct{}{}
	}
	defer func() { <-s.sem }()

	_ = s.handler(targetChannel, prompt)
}

// Shutdown cancels all pending timers and blocks until in-flight fires
// (bounded by MaxConcurrent) drain or ctx is cancelled.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for id, timer := range s.timers {
		timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	for i := 0; i < s.cfg.MaxConcurrent; i++ {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

package cron

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/discoclaw/discoclaw/internal/infrastructure/cronlock"
)

func setLockModTime(dir, key string, t time.Time) error {
	path := filepath.Join(dir, key+".lock")
	return os.Chtimes(path, t, t)
}

type slowInvoker struct {
	calls int32
	delay time.Duration
}

func (s *slowInvoker) InvokeText(sessionKey, model, prompt string, tools []string) (string, error) {
	atomic.AddInt32(&s.calls, 1)
	time.Sleep(s.delay)
	return "ran", nil
}

type noopPoster struct{ posted int32 }

func (p *noopPoster) PostMessage(threadID, text string) error {
	atomic.AddInt32(&p.posted, 1)
	return nil
}

func TestRunJobAtMostOneConcurrentExecution(t *testing.T) {
	dir := t.TempDir()
	invoker := &slowInvoker{delay: 100 * time.Millisecond}
	poster := &noopPoster{}
	sched := NewScheduler(Config{LocksDir: dir, Model: "fast"}, invoker, poster)

	job := &Job{ID: "job-1", ThreadID: "thread-1", Schedule: "every 1m", Prompt: "do the thing"}

	done := make(chan struct{}, 2)
	go func() { sched.runJob(job); done <- struct{}{} }()
	go func() { sched.runJob(job); done <- struct{}{} }()
	<-done
	<-done

	if atomic.LoadInt32(&invoker.calls) != 1 {
		t.Fatalf("expected exactly one invocation under concurrent runJob calls, got %d", invoker.calls)
	}
	if cronlock.IsHeld(dir, job.ID) {
		t.Fatal("expected lock released after run completes")
	}
}

func TestRecoverInterruptedLocksMarksFailedAndClears(t *testing.T) {
	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.json")
	invoker := &slowInvoker{}
	sched := NewScheduler(Config{LocksDir: dir, StatsPath: statsPath, Model: "fast"}, invoker, nil)

	lock, err := cronlock.Acquire(dir, "job-1")
	if err != nil {
		t.Fatal(err)
	}
	_ = lock
	oldTime := time.Now().Add(-2 * heartbeatThreshold)
	if err := setLockModTime(dir, "job-1", oldTime); err != nil {
		t.Fatal(err)
	}

	sched.SetJobs([]*Job{{ID: "job-1", ThreadID: "t", Schedule: "every 1m", Prompt: "x"}})
	sched.recoverInterruptedLocks()

	if cronlock.IsHeld(dir, "job-1") {
		t.Fatal("expected stale lock to be force-released")
	}
}

package cron

import (
	"fmt"
	"sync"
	"time"

	"github.com/discoclaw/discoclaw/internal/infrastructure/cronlock"
	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
)

// Invoker is the minimal runtime surface the cron executor needs: a
// blocking call returning accumulated text for a job's prompt, with no
// user identity attached (cron runs are not attributed to a requester).
type Invoker interface {
	InvokeText(sessionKey, model, prompt string, tools []string) (string, error)
}

// Poster delivers a cron run's result back to the job's owning thread.
type Poster interface {
	PostMessage(threadID, text string) error
}

// runStat records one execution's start/end/outcome.
type runStat struct {
	JobID     string    `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Status    string    `json:"status"` // "ok", "failed"
	Error     string    `json:"error,omitempty"`
}

type statsFile struct {
	Runs []runStat `json:"runs"`
}

// heartbeatThreshold is how old a lock file must be before a prior run is
// considered interrupted rather than still-running.
const heartbeatThreshold = 35 * time.Minute

// Config parameterizes one Scheduler.
type Config struct {
	LocksDir   string
	StatsPath  string
	Model      string
	RunTimeout time.Duration // default 30m
}

// Scheduler runs the single tick loop of spec §4.8: a one-second ticker
// scans the in-memory job registry for due jobs and hands each to the
// executor under a per-job file lock.
type Scheduler struct {
	cfg     Config
	invoker Invoker
	poster  Poster

	mu   sync.Mutex
	jobs map[string]*Job

	stopCh chan struct{}
}

func NewScheduler(cfg Config, invoker Invoker, poster Poster) *Scheduler {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 30 * time.Minute
	}
	return &Scheduler{
		cfg: cfg, invoker: invoker, poster: poster,
		jobs: make(map[string]*Job), stopCh: make(chan struct{}),
	}
}

// SetJobs replaces the in-memory registry wholesale, called by the sync
// coordinator after reconciling against forum threads.
func (s *Scheduler) SetJobs(jobs []*Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*Job, len(jobs))
	now := time.Now()
	for _, j := range jobs {
		if existing, ok := s.jobs[j.ID]; ok {
			j.NextRun = existing.NextRun
			j.LastRun = existing.LastRun
			j.LastStatus = existing.LastStatus
		}
		if j.NextRun.IsZero() {
			if next, err := ParseNextRun(j.Schedule, now); err == nil {
				j.NextRun = next
			}
		}
		s.jobs[j.ID] = j
	}
}

// Jobs returns a snapshot of the current registry.
func (s *Scheduler) Jobs() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

// Start runs the tick loop until Stop is called. Intended to run in its
// own goroutine.
func (s *Scheduler) Start() {
	s.recoverInterruptedLocks()
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.tick(now)
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) tick(now time.Time) {
	var due []*Job
	s.mu.Lock()
	for _, j := range s.jobs {
		if !j.NextRun.IsZero() && !j.NextRun.After(now) {
			due = append(due, j)
		}
	}
	s.mu.Unlock()

	for _, j := range due {
		go s.runJob(j)
	}
}

// runJob acquires the job's file lock and executes it; jobs already
// locked (a previous run still in flight, or a stale lock not yet
// reclaimed) are skipped this tick.
func (s *Scheduler) runJob(j *Job) {
	lock, err := cronlock.Acquire(s.cfg.LocksDir, j.ID)
	if err != nil {
		return
	}
	defer lock.Release()

	start := time.Now()
	status := "ok"
	var runErr error

	// The caller wiring s.invoker is responsible for building InvokeParams
	// with action.CronRestrictedSet() and no user identity attached, per
	// spec §4.8; this package only owns timing, locking, and scheduling.
	output, err := s.invoker.InvokeText("cron:"+j.ID, s.cfg.Model, j.Prompt, []string{"Read", "Glob", "Grep"})
	if err != nil {
		status = "failed"
		runErr = err
	} else if s.poster != nil {
		if postErr := s.poster.PostMessage(j.ThreadID, output); postErr != nil {
			status = "failed"
			runErr = postErr
		}
	}

	end := time.Now()
	s.recordRun(j.ID, start, end, status, runErr)

	s.mu.Lock()
	j.LastRun = end
	j.LastStatus = status
	if next, nerr := ParseNextRun(j.Schedule, end); nerr == nil {
		j.NextRun = next
	}
	s.mu.Unlock()
}

func (s *Scheduler) recordRun(jobID string, start, end time.Time, status string, runErr error) {
	if s.cfg.StatsPath == "" {
		return
	}
	var sf statsFile
	_, _ = persistence.LoadJSON(s.cfg.StatsPath, &sf)
	entry := runStat{JobID: jobID, StartedAt: start, EndedAt: end, Status: status}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	sf.Runs = append(sf.Runs, entry)
	_ = persistence.SaveJSON(s.cfg.StatsPath, sf)
}

// recoverInterruptedLocks scans the locks directory at startup: any lock
// older than heartbeatThreshold belonged to a run that never released it
// (a crash mid-execution), so it is marked failed in the stats file and
// the lock is removed.
func (s *Scheduler) recoverInterruptedLocks() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	now := time.Now()
	for _, id := range ids {
		if cronlock.Stale(s.cfg.LocksDir, id, heartbeatThreshold) {
			_ = cronlock.ForceRelease(s.cfg.LocksDir, id)
			s.recordRun(id, now, now, "failed", fmt.Errorf("lock older than %s at startup", heartbeatThreshold))
		}
	}
}

package cron

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/discoclaw/discoclaw/internal/infrastructure/persistence"
)

// ThreadSource lists the forum threads currently tagged as cron jobs,
// the chat-service surface the sync coordinator reconciles against.
type ThreadSource interface {
	ListCronThreads() ([]ThreadInfo, error)
}

// ThreadInfo is the subset of a forum thread the sync coordinator needs.
type ThreadInfo struct {
	ThreadID    string
	StarterText string // holds the cron/every expression and prompt
	Tags        []string
}

type tagMap struct {
	Tags map[string][]string `json:"tags"` // tag name -> category flags
}

// SyncCoordinator debounces reconciliation between forum threads and the
// scheduler's in-memory registry, triggered by thread-change events and
// by a file-watcher on the tag-map JSON.
type SyncCoordinator struct {
	scheduler  *Scheduler
	source     ThreadSource
	tagMapPath string

	mu        sync.Mutex
	debounce  *time.Timer
	debounceD time.Duration

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

func NewSyncCoordinator(scheduler *Scheduler, source ThreadSource, tagMapPath string) *SyncCoordinator {
	return &SyncCoordinator{
		scheduler: scheduler, source: source, tagMapPath: tagMapPath,
		debounceD: 2 * time.Second, stopCh: make(chan struct{}),
	}
}

// Start performs an initial reconciliation, then watches the tag-map file
// for changes, debouncing repeated writes into a single reconciliation.
func (c *SyncCoordinator) Start() error {
	c.Reconcile()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	c.watcher = watcher
	if err := watcher.Add(filepath.Dir(c.tagMapPath)); err != nil {
		_ = watcher.Close()
		return err
	}

	go c.watchLoop()
	return nil
}

func (c *SyncCoordinator) watchLoop() {
	for {
		select {
		case <-c.stopCh:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) == filepath.Clean(c.tagMapPath) {
				c.scheduleDebouncedReconcile()
			}
		case _, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (c *SyncCoordinator) scheduleDebouncedReconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(c.debounceD, c.Reconcile)
}

// Reconcile fetches the current thread list, loads the tag-map, and
// rebuilds the scheduler's job registry. OnThreadChange invokes the same
// path for chat-service-pushed thread-change events.
func (c *SyncCoordinator) Reconcile() {
	threads, err := c.source.ListCronThreads()
	if err != nil {
		return
	}
	var tm tagMap
	_, _ = persistence.LoadJSON(c.tagMapPath, &tm)

	jobs := make([]*Job, 0, len(threads))
	for _, t := range threads {
		schedule, prompt, ok := parseStarter(t.StarterText)
		if !ok {
			continue
		}
		var categories []string
		for _, tag := range t.Tags {
			categories = append(categories, tm.Tags[tag]...)
		}
		jobs = append(jobs, &Job{
			ID: t.ThreadID, ThreadID: t.ThreadID, Schedule: schedule,
			Prompt: prompt, Categories: categories,
		})
	}
	c.scheduler.SetJobs(jobs)
}

// OnThreadChange triggers an immediate (non-debounced) reconciliation,
// used for chat-service thread-change events rather than file writes.
func (c *SyncCoordinator) OnThreadChange() {
	c.Reconcile()
}

func (c *SyncCoordinator) Stop() {
	close(c.stopCh)
	if c.watcher != nil {
		_ = c.watcher.Close()
	}
}

// parseStarter extracts "<schedule>\n<prompt>" from a thread's starter
// message: the first line is the cron/every expression, the remainder is
// the prompt text.
func parseStarter(text string) (schedule, prompt string, ok bool) {
	for i, r := range text {
		if r == '\n' {
			schedule = text[:i]
			prompt = text[i+1:]
			return schedule, prompt, ValidateSchedule(schedule)
		}
	}
	return "", "", false
}

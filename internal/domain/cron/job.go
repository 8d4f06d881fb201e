// Package cron implements the thread-backed cron scheduler of spec §4.8,
// keeping the teacher's CronService shape (jobs map, schedule loop,
// executor callback) but replacing its hand-rolled field parser with
// adhocore/gronx and its SQLite-backed store with a forum-thread source
// of truth mirrored into memory.
package cron

import (
	"math/rand"
	"time"

	"github.com/adhocore/gronx"
)

// Job is one scheduled cron entry, sourced from a forum thread.
type Job struct {
	ID         string
	ThreadID   string
	Schedule   string // a 5-field cron expression or "every <duration>"
	Prompt     string
	Categories []string // tag-mapped category flags, e.g. restricts action set
	NextRun    time.Time
	LastRun    time.Time
	LastStatus string // "", "ok", "failed"
}

const maxJitter = 30 * time.Second

// ParseNextRun computes the next fire time for a job's schedule after
// from, adding a small uniform jitter (<= 30s) to avoid thundering herds.
func ParseNextRun(schedule string, from time.Time) (time.Time, error) {
	base, err := nextTickFor(schedule, from)
	if err != nil {
		return time.Time{}, err
	}
	jitter := time.Duration(rand.Int63n(int64(maxJitter)))
	return base.Add(jitter), nil
}

func nextTickFor(schedule string, from time.Time) (time.Time, error) {
	if dur, ok := parseEvery(schedule); ok {
		return from.Add(dur), nil
	}
	return gronx.NextTickAfter(schedule, from, false)
}

// parseEvery recognises the "every <duration>" schedule form, e.g.
// "every 15m", "every 1h".
func parseEvery(schedule string) (time.Duration, bool) {
	const prefix = "every "
	if len(schedule) <= len(prefix) || schedule[:len(prefix)] != prefix {
		return 0, false
	}
	dur, err := time.ParseDuration(schedule[len(prefix):])
	if err != nil {
		return 0, false
	}
	return dur, true
}

// ValidateSchedule reports whether schedule is a well-formed cron
// expression or "every <duration>" form.
func ValidateSchedule(schedule string) bool {
	if _, ok := parseEvery(schedule); ok {
		return true
	}
	return gronx.New().IsValid(schedule)
}

package cron

import (
	"testing"
	"time"
)

func TestValidateScheduleAcceptsCronAndEvery(t *testing.T) {
	if !ValidateSchedule("*/5 * * * *") {
		t.Fatal("expected valid 5-field cron expression to validate")
	}
	if !ValidateSchedule("every 15m") {
		t.Fatal("expected every-duration form to validate")
	}
	if ValidateSchedule("not a schedule") {
		t.Fatal("expected garbage schedule to be rejected")
	}
}

func TestParseNextRunEveryAddsJitterWithinBound(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := ParseNextRun("every 10m", from)
	if err != nil {
		t.Fatal(err)
	}
	base := from.Add(10 * time.Minute)
	delta := next.Sub(base)
	if delta < 0 || delta > maxJitter {
		t.Fatalf("expected jitter within [0, %s], got %s", maxJitter, delta)
	}
}

func TestParseNextRunCronAdvances(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	next, err := ParseNextRun("0 * * * *", from)
	if err != nil {
		t.Fatal(err)
	}
	if !next.After(from) {
		t.Fatalf("expected next run after %s, got %s", from, next)
	}
}

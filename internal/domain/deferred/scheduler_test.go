package deferred

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestScheduleFiresHandlerAtDelay(t *testing.T) {
	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	s := NewScheduler(Config{}, func(targetChannel, prompt string) error {
		mu.Lock()
		got = append(got, targetChannel+":"+prompt)
		mu.Unlock()
		close(done)
		return nil
	})

	if _, err := s.Schedule("chan-1", "hello", time.Now().Add(20*time.Millisecond)); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler never fired")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != "chan-1:hello" {
		t.Fatalf("unexpected handler calls: %v", got)
	}
}

func TestScheduleRejectsDelayBeyondMax(t *testing.T) {
	s := NewScheduler(Config{MaxDelaySeconds: 10}, func(string, string) error { return nil })
	_, err := s.Schedule("chan-1", "hello", time.Now().Add(time.Minute))
	if err == nil {
		t.Fatal("expected rejection of fires_at beyond max_delay_seconds")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	fired := make(chan struct{}, 1)
	s := NewScheduler(Config{}, func(string, string) error { fired <- struct{}{}; return nil })
	id, err := s.Schedule("chan-1", "hello", time.Now().Add(50*time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}
	if !s.Cancel(id) {
		t.Fatal("expected cancel to succeed before fire")
	}
	select {
	case <-fired:
		t.Fatal("handler fired after cancel")
	case <-time.After(150 * time.Millisecond):
	}
}

func TestMaxConcurrentBoundsSimultaneousFires(t *testing.T) {
	var mu sync.Mutex
	inFlight, maxSeen := 0, 0
	release := make(chan struct{})
	s := NewScheduler(Config{MaxConcurrent: 2}, func(string, string) error {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		mu.Unlock()
		<-release
		mu.Lock()
		inFlight--
		mu.Unlock()
		return nil
	})

	for i := 0; i < 5; i++ {
		if _, err := s.Schedule("chan-1", "hello", time.Now().Add(10*time.Millisecond)); err != nil {
			t.Fatal(err)
		}
	}
	time.Sleep(200 * time.Millisecond)
	close(release)

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent fires, saw %d", maxSeen)
	}
}

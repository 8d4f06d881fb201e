package forge

import "testing"

func TestParseVerdictBlockingSeverity(t *testing.T) {
	text := "**Concern 1:** missing validation. **Severity: blocking**\n**Verdict:** Needs revision."
	v := ParseVerdict(text)
	if v.MaxSeverity != SeverityBlocking {
		t.Fatalf("expected blocking severity, got %v", v.MaxSeverity)
	}
	if !v.ShouldLoop {
		t.Fatal("expected should_loop=true for blocking severity")
	}
}

func TestParseVerdictShouldLoopOnNeedsRevisionAlone(t *testing.T) {
	text := "**Concern 1:** style nit. **Severity: suggestion**\n**Verdict:** Needs revision."
	v := ParseVerdict(text)
	if v.MaxSeverity != SeveritySuggestion {
		t.Fatalf("expected suggestion severity, got %v", v.MaxSeverity)
	}
	if !v.ShouldLoop {
		t.Fatal("expected should_loop=true when verdict text says Needs revision. regardless of severity")
	}
}

func TestParseVerdictReadyToApprove(t *testing.T) {
	text := "**Verdict:** Ready to approve."
	v := ParseVerdict(text)
	if v.ShouldLoop {
		t.Fatal("expected should_loop=false for Ready to approve with no blocking severity")
	}
}

func TestPhaseShouldLoopMediumSeverity(t *testing.T) {
	v := ParseVerdict("**Severity: medium**\n**Verdict:** Ready to approve.")
	if !PhaseShouldLoop(v) {
		t.Fatal("expected phase should_loop=true for medium severity even with Ready to approve text")
	}
}

func TestPhaseShouldLoopMinorDoesNotLoop(t *testing.T) {
	v := ParseVerdict("**Severity: minor**\n**Verdict:** Ready to approve.")
	if PhaseShouldLoop(v) {
		t.Fatal("expected phase should_loop=false for minor severity with Ready to approve")
	}
}

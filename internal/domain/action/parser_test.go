package action

import "testing"

func TestParseExtractsActionsAndCleanText(t *testing.T) {
	catalog := NewCatalog()
	text := `Listing tasks
<discord-action>{"type":"taskList"}</discord-action>`
	result := Parse(text, catalog)
	if len(result.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(result.Actions))
	}
	if result.Actions[0].Type != "taskList" {
		t.Fatalf("expected taskList, got %q", result.Actions[0].Type)
	}
	if result.CleanText != "Listing tasks\n" {
		t.Fatalf("unexpected clean text: %q", result.CleanText)
	}
}

func TestParseDropsUnrecognizedTypes(t *testing.T) {
	catalog := NewCatalog()
	text := `<discord-action>{"type":"nonexistentAction"}</discord-action>`
	result := Parse(text, catalog)
	if len(result.Actions) != 0 {
		t.Fatalf("expected 0 actions for unrecognized type, got %d", len(result.Actions))
	}
	if len(result.StrippedUnrecognizedTypes) != 1 || result.StrippedUnrecognizedTypes[0] != "nonexistentAction" {
		t.Fatalf("expected nonexistentAction recorded as stripped, got %v", result.StrippedUnrecognizedTypes)
	}
}

func TestActionRoundTrip(t *testing.T) {
	catalog := NewCatalog()
	original := Action{Type: "sendMessage", Payload: map[string]any{"type": "sendMessage", "text": "hi"}}
	block, err := original.Render()
	if err != nil {
		t.Fatal(err)
	}
	cleanText := "prelude text\n"
	combined := cleanText + block

	result := Parse(combined, catalog)
	if result.CleanText != cleanText {
		t.Fatalf("round-trip clean text mismatch: got %q want %q", result.CleanText, cleanText)
	}
	if len(result.Actions) != 1 || result.Actions[0].Type != "sendMessage" {
		t.Fatalf("round-trip actions mismatch: %+v", result.Actions)
	}
	if result.Actions[0].Payload["text"] != "hi" {
		t.Fatalf("round-trip payload mismatch: %+v", result.Actions[0].Payload)
	}
}

func TestIsWhitespaceOnly(t *testing.T) {
	if !IsWhitespaceOnly("   \n\t  ") {
		t.Fatal("expected whitespace-only text to be detected")
	}
	if IsWhitespaceOnly("hello") {
		t.Fatal("expected non-whitespace text to not be flagged")
	}
}

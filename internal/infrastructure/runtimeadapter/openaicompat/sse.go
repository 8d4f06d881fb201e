package openaicompat

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// readSSE scans a chat-completions SSE body, calling onChunk for every
// decoded data payload. It stops at the terminal "[DONE]" marker or EOF.
// Grounded on the teacher's internal/infrastructure/llm/openai SSE client,
// generalized from chat-completion deltas to the common EngineEvent union
// by the caller.
func readSSE(body io.Reader, onChunk func(chatStreamChunk)) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}
		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		onChunk(chunk)
	}
	return scanner.Err()
}

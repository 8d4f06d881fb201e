// Package runtimeadapter holds the concrete RuntimeAdapter implementations:
// claudecli, codexcli, geminicli (subprocess transports) and openaicompat
// (HTTP transport). subprocess.go is the shared command-construction and
// streaming helper the three CLI adapters build on, grounded on the
// teacher's internal/infrastructure/sandbox.ProcessSandbox (command
// construction, timeout context, stdout/stderr pipes) generalized to
// stream newline-delimited JSON events instead of one-shot output.
package runtimeadapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/discoclaw/discoclaw/internal/domain/entity"
	appErrors "github.com/discoclaw/discoclaw/pkg/errors"
	"go.uber.org/zap"
)

// ndjsonLine is the newline-delimited event shape every subprocess CLI
// backend is expected to emit on stdout, one JSON object per line.
type ndjsonLine struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	Stream     string `json:"stream,omitempty"`
	Line       string `json:"line,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
	ToolInput  string `json:"tool_input,omitempty"`
	ToolOutput string `json:"tool_output,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	DataB64    string `json:"data_b64,omitempty"`
	Message    string `json:"message,omitempty"`
}

// destructivePatterns are tool_start inputs the tool-call gate rejects
// when InvokeParams.ToolCallGate is set, per spec §4.1/§4.7.
var destructivePatterns = []string{
	"rm -rf",
	"rm -r -f",
	"git reset --hard",
	"git push --force",
	"git clean -fd",
	":(){ :|:& };:",
	"dd if=",
	"mkfs",
}

func isDestructive(toolName, input string) bool {
	lower := strings.ToLower(input)
	for _, p := range destructivePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// SubprocessSpec builds the argv for one CLI backend from InvokeParams.
type SubprocessSpec func(params entity.InvokeParams, nativeSessionID string) (name string, args []string)

// RunSubprocess launches the command built by spec, streams its stdout as
// ndjsonLine records translated into entity.EngineEvent, and guarantees a
// terminal event on every return path (normal exit, non-zero exit,
// timeout, or cancellation).
func RunSubprocess(ctx context.Context, logger *zap.Logger, adapterID string, spec SubprocessSpec, params entity.InvokeParams, nativeSessionID string) (<-chan entity.EngineEvent, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if params.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, params.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}

	name, args := spec(params, nativeSessionID)
	cmd := exec.CommandContext(runCtx, name, args...)
	if params.Cwd != "" {
		cmd.Dir = params.Cwd
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, appErrors.NewUnavailableError("failed to open stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, appErrors.NewUnavailableError("failed to open stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &appErrors.RuntimeError{Adapter: adapterID, ExitCode: -1, Err: err}
	}

	out := make(chan entity.EngineEvent, 16)

	go func() {
		defer cancel()
		defer close(out)

		stderrDone := make(chan struct{})
		go func() {
			defer close(stderrDone)
			sc := bufio.NewScanner(stderr)
			sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for sc.Scan() {
				select {
				case out <- entity.EngineEvent{Kind: entity.EventLogLine, Stream: entity.StreamStderr, Line: sc.Text()}:
				case <-runCtx.Done():
					return
				}
			}
		}()

		var gateErr error
		sc := bufio.NewScanner(stdout)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	scanLoop:
		for sc.Scan() {
			raw := sc.Bytes()
			if len(strings.TrimSpace(string(raw))) == 0 {
				continue
			}
			var line ndjsonLine
			if jsonErr := json.Unmarshal(raw, &line); jsonErr != nil {
				logger.Warn("discarding malformed ndjson line from runtime subprocess", zap.String("adapter", adapterID), zap.Error(jsonErr))
				continue
			}
			ev, isToolStart := translateLine(line)
			if isToolStart && params.ToolCallGate && isDestructive(line.ToolName, line.ToolInput) {
				gateErr = &appErrors.ToolGateError{
					ActionType: line.ToolName,
					Reason:     fmt.Sprintf("%s %s", line.ToolName, line.ToolInput),
				}
				break scanLoop
			}
			select {
			case out <- ev:
			case <-runCtx.Done():
				break scanLoop
			}
			if ev.Kind == entity.EventDone {
				_ = cmd.Wait()
				return
			}
		}

		if gateErr != nil {
			cancel()
		}
		waitErr := cmd.Wait()
		switch {
		case gateErr != nil:
			out <- entity.EngineEvent{Kind: entity.EventError, Text: gateErr.Error()}
		case runCtx.Err() == context.DeadlineExceeded:
			out <- entity.EngineEvent{Kind: entity.EventError, Text: "timeout reached"}
		case runCtx.Err() == context.Canceled:
			out <- entity.EngineEvent{Kind: entity.EventError, Text: "invocation cancelled"}
		case waitErr != nil:
			out <- entity.EngineEvent{Kind: entity.EventError, Text: (&appErrors.RuntimeError{Adapter: adapterID, ExitCode: exitCode(waitErr), Err: waitErr}).Error()}
		default:
			out <- entity.EngineEvent{Kind: entity.EventDone}
		}
		<-stderrDone
	}()

	return out, nil
}

func translateLine(line ndjsonLine) (entity.EngineEvent, bool) {
	switch line.Type {
	case "text_delta":
		return entity.EngineEvent{Kind: entity.EventTextDelta, Text: line.Text}, false
	case "text_final":
		return entity.EngineEvent{Kind: entity.EventTextFinal, Text: line.Text}, false
	case "log_line":
		stream := entity.StreamStdout
		if line.Stream == "stderr" {
			stream = entity.StreamStderr
		}
		return entity.EngineEvent{Kind: entity.EventLogLine, Stream: stream, Line: line.Line}, false
	case "tool_start":
		return entity.EngineEvent{Kind: entity.EventToolStart, ToolName: line.ToolName, ToolInput: line.ToolInput}, true
	case "tool_end":
		return entity.EngineEvent{Kind: entity.EventToolEnd, ToolName: line.ToolName, ToolOutput: line.ToolOutput}, false
	case "image_data":
		return entity.EngineEvent{Kind: entity.EventImageData, ImageMediaType: line.MediaType, ImageData: []byte(line.DataB64)}, false
	case "error":
		return entity.EngineEvent{Kind: entity.EventError, Text: line.Message}, false
	case "done":
		return entity.EngineEvent{Kind: entity.EventDone}, false
	default:
		return entity.EngineEvent{Kind: entity.EventLogLine, Stream: entity.StreamStdout, Line: fmt.Sprintf("unrecognized event type %q discarded", line.Type)}, false
	}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

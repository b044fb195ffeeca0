package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/ayusman/facecue/internal/gesture"
)

// DefaultHookTimeout bounds a hook run when none is configured.
const DefaultHookTimeout = 5 * time.Second

// ExecSink runs an external command per event with the record JSON on stdin.
type ExecSink struct {
	name    string
	command string
	args    []string
	timeout time.Duration
}

// NewExecSink creates an ExecSink. A non-positive timeout uses DefaultHookTimeout.
func NewExecSink(name, command string, args []string, timeout time.Duration) *ExecSink {
	if timeout <= 0 {
		timeout = DefaultHookTimeout
	}
	if name == "" {
		name = command
	}
	return &ExecSink{
		name:    name,
		command: command,
		args:    args,
		timeout: timeout,
	}
}

// Name implements Sink.
func (s *ExecSink) Name() string { return "hook:" + s.name }

// Write implements Sink.
func (s *ExecSink) Write(ctx context.Context, ev gesture.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	input, err := json.Marshal(ev.Record())
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Stdin = bytes.NewReader(input)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("hook %s timed out after %s", s.name, s.timeout)
	}

	if err != nil {
		if msg := stderr.String(); msg != "" {
			return fmt.Errorf("hook %s failed: %w, stderr: %s", s.name, err, msg)
		}
		return fmt.Errorf("hook %s failed: %w", s.name, err)
	}

	return nil
}

package landmark

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// maxLineSize bounds a single JSON frame line. Dense FaceMesh output is ~30KB.
const maxLineSize = 1 << 20

// StreamSource reads newline-delimited JSON frames from a reader.
// Blank lines and lines starting with '#' are ignored.
type StreamSource struct {
	r       io.Reader
	scanner *bufio.Scanner
	line    int
	mu      sync.Mutex
	closed  bool
}

// NewStreamSource creates a StreamSource over r.
// If r implements io.Closer it is closed by Close.
func NewStreamSource(r io.Reader) *StreamSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &StreamSource{r: r, scanner: scanner}
}

// Next returns the next frame in the stream.
// Malformed lines are reported as errors; the caller may keep reading.
func (s *StreamSource) Next(ctx context.Context) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Frame{}, ErrSourceClosed
	}

	for {
		if err := ctx.Err(); err != nil {
			return Frame{}, err
		}

		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return Frame{}, fmt.Errorf("read frame: %w", err)
			}
			return Frame{}, io.EOF
		}
		s.line++

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		frame, err := DecodeFrame(line)
		if err != nil {
			return Frame{}, fmt.Errorf("line %d: %w", s.line, err)
		}
		return frame, nil
	}
}

// Close closes the underlying reader when it is closable.
func (s *StreamSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CommandSource runs an external landmark extractor and reads JSON frames from its stdout.
type CommandSource struct {
	*StreamSource
	cmd *exec.Cmd
}

// NewCommandSource starts name with args. The process must write one JSON frame per line.
func NewCommandSource(ctx context.Context, name string, args ...string) (*CommandSource, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	// Extractor diagnostics go straight to our stderr
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start landmark extractor: %w", err)
	}

	return &CommandSource{
		StreamSource: NewStreamSource(stdout),
		cmd:          cmd,
	}, nil
}

// Close stops reading and waits for the extractor process to exit.
func (c *CommandSource) Close() error {
	c.StreamSource.Close()

	if c.cmd.Process != nil {
		c.cmd.Process.Kill()
	}
	err := c.cmd.Wait()
	if _, ok := err.(*exec.ExitError); ok {
		// Killed on purpose
		return nil
	}
	return err
}

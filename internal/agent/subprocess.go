package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// SubprocessEngine runs the analysis SDK as a child process per
// session. The instruction is written to the child's stdin as JSON and
// events are read back as newline-delimited JSON on stdout. This keeps
// the heavyweight SDK out of the server process and makes the engine
// swappable via configuration.
type SubprocessEngine struct {
	command []string
	log     *slog.Logger
}

// NewSubprocessEngine builds an engine around the given command line,
// e.g. ["sheetsight-agent", "--stream"].
func NewSubprocessEngine(command []string, log *slog.Logger) (*SubprocessEngine, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("engine command is empty")
	}
	return &SubprocessEngine{command: command, log: log}, nil
}

// Open starts the child process and hands back its event stream.
func (e *SubprocessEngine) Open(ctx context.Context, inst Instruction) (Stream, error) {
	cmd := exec.CommandContext(ctx, e.command[0], e.command[1:]...)
	cmd.Dir = inst.WorkDir

	payload, err := json.Marshal(inst)
	if err != nil {
		return nil, fmt.Errorf("marshal instruction: %w", err)
	}
	cmd.Stdin = bytes.NewReader(payload)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start engine %q: %w", e.command[0], err)
	}
	e.log.Debug("engine process started", "command", e.command[0], "pid", cmd.Process.Pid)

	scanner := bufio.NewScanner(stdout)
	// Tool results can carry large previews on one line.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	return &subprocessStream{cmd: cmd, scanner: scanner, stderr: &stderr}, nil
}

type subprocessStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stderr  *bytes.Buffer

	mu     sync.Mutex
	waited bool
}

// Next returns the next NDJSON event from the child's stdout. Lines
// that are not valid events are skipped so stray prints from the SDK
// cannot corrupt the stream. On clean exit it returns io.EOF; a
// non-zero exit surfaces as an EngineError carrying the stderr tail.
func (s *subprocessStream) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}

	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.Type == "" {
			continue
		}
		return ev, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("read engine stream: %w", err)
	}

	if err := s.wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, ctxErr
		}
		return Event{}, &EngineError{Message: fmt.Sprintf("%v: %s", err, stderrTail(s.stderr))}
	}
	return Event{}, io.EOF
}

// Close reaps the child, killing it if the stream was abandoned early.
func (s *subprocessStream) Close() error {
	s.mu.Lock()
	waited := s.waited
	s.mu.Unlock()
	if waited {
		return nil
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	err := s.wait()
	if err != nil && !strings.Contains(err.Error(), "killed") {
		return err
	}
	return nil
}

func (s *subprocessStream) wait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waited {
		return nil
	}
	s.waited = true
	return s.cmd.Wait()
}

// stderrTail returns the last chunk of stderr for diagnostics.
func stderrTail(buf *bytes.Buffer) string {
	const max = 512
	out := strings.TrimSpace(buf.String())
	if len(out) > max {
		out = "..." + out[len(out)-max:]
	}
	if out == "" {
		return "(no stderr output)"
	}
	return out
}

var _ io.Closer = (*subprocessStream)(nil)

package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/procregistry"
)

// maxLineSize bounds a single tool output line; crawlers occasionally emit
// very long URLs.
const maxLineSize = 1024 * 1024

// command describes one subprocess invocation on behalf of a provider.
type command struct {
	tool   string
	binary string
	args   []string
	stdin  []string
}

// parseFunc maps one trimmed stdout line to zero or more stream events. It runs
// on the stream goroutine, so adapter-local state needs no locking.
type parseFunc func(line string) []scanning.StreamEvent

// stream launches the command in its own process group, registers it with the
// process registry and decodes stdout line by line through parse. The returned
// channel closes when the process exits or the context is cancelled; a launch
// failure is reported as a single error event on the stream.
func (d Deps) stream(ctx context.Context, scanID uuid.UUID, spec command, parse parseFunc) (<-chan scanning.StreamEvent, error) {
	out := make(chan scanning.StreamEvent, 64)

	cmd := exec.Command(spec.binary, spec.args...)
	// Own process group, so terminating the handle also kills tool-spawned
	// children.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if len(spec.stdin) > 0 {
		cmd.Stdin = strings.NewReader(strings.Join(spec.stdin, "\n") + "\n")
	}

	stdout, err := cmd.StdoutPipe()
	if err == nil {
		err = cmd.Start()
	}
	if err != nil {
		launchErr := err
		go func() {
			defer close(out)
			out <- scanning.ErrorEvent(spec.tool, fmt.Sprintf("failed to launch %s: %v", spec.binary, launchErr))
		}()
		d.Logger.Warn(ctx, "tool launch failed", "tool", spec.tool, "binary", spec.binary, "error", err)
		return out, nil
	}

	handle := procregistry.OSHandle(cmd.Process)
	if !d.Registry.AddProcess(scanID, handle) {
		// The scan was cancelled (or never registered) while we were starting;
		// the registry will never signal this process, so we must.
		_ = handle.Terminate()
		go func() {
			defer close(out)
			_ = cmd.Wait()
			out <- scanning.StatusEvent(spec.tool, "cancelled")
		}()
		return out, nil
	}

	// The registry kills the OS handle on cancel; this watcher covers the
	// cooperative path where only the context is cancelled.
	watcherDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = handle.Terminate()
		case <-watcherDone:
		}
	}()

	emit := func(evt scanning.StreamEvent) bool {
		select {
		case out <- evt:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(out)
		defer close(watcherDone)

		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			for _, evt := range parse(line) {
				if !emit(evt) {
					break
				}
			}
		}

		// The terminal event is sent unconditionally: after cancellation the
		// select in emit would race ctx.Done and could drop it. The channel is
		// buffered and consumers drain until close, so this cannot block.
		waitErr := cmd.Wait()
		switch {
		case ctx.Err() != nil:
			out <- scanning.StatusEvent(spec.tool, "cancelled")
		case waitErr != nil:
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = waitErr.Error()
			}
			out <- scanning.ErrorEvent(spec.tool, msg)
		default:
			out <- scanning.LogEvent(spec.tool, spec.tool+" finished")
		}
	}()

	return out, nil
}

package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrTimeout is returned when a command exceeds its time bound.
var ErrTimeout = errors.New("command timed out")

// Runner abstracts command execution so collectors and probes can be
// unit-tested without the scanner, arp or ping binaries.
type Runner interface {
	// Output runs name with args and returns its stdout. A non-zero exit is an
	// error whose message includes stderr.
	Output(ctx context.Context, name string, args ...string) (string, error)
}

// OSRunner executes commands on the host via os/exec.
type OSRunner struct{}

func NewOSRunner() *OSRunner {
	return &OSRunner{}
}

func (r *OSRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return stdout.String(), fmt.Errorf("%s: %w", name, ErrTimeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return stdout.String(), fmt.Errorf("%s: %s: %s", name, err.Error(), msg)
		}
		return stdout.String(), fmt.Errorf("%s: %w", name, err)
	}
	return stdout.String(), nil
}

// OutputTimeout runs a command through r bounded by timeout.
func OutputTimeout(ctx context.Context, r Runner, timeout time.Duration, name string, args ...string) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return r.Output(ctx, name, args...)
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, name string, args ...string) (string, error)

func (f Func) Output(ctx context.Context, name string, args ...string) (string, error) {
	return f(ctx, name, args...)
}

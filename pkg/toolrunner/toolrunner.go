// Package toolrunner is the subprocess boundary: it invokes external build
// tools and reports their exit status and combined output.
package toolrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/crossforge/crossforge/pkg/logger"
)

// ErrNotStarted indicates the tool process could not be spawned at all,
// as opposed to running and exiting nonzero.
var ErrNotStarted = errors.New("tool could not be started")

// Command describes one external tool invocation.
type Command struct {
	Name string
	Args []string
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env entries ("KEY=value") are appended to the inherited environment.
	Env []string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + joinArgs(c.Args)
}

func joinArgs(args []string) string {
	out := ""
	for i, a := range args {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// Result is the outcome of a completed invocation. A nonzero ExitCode is a
// normal result, not an error.
type Result struct {
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// Runner runs external tools. Implementations must return an error only
// when the process could not run (spawn failure, cancellation); an
// unsuccessful exit is reported through Result.ExitCode.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands through os/exec with combined output capture.
type ExecRunner struct {
	log logger.Logger
}

// NewExecRunner creates a runner that logs each invocation.
func NewExecRunner(log logger.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

// Run executes the command, blocking until it exits or ctx is cancelled.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if r.log != nil {
		r.log.Debug("running " + cmd.String())
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	var buf bytes.Buffer
	c.Stdout = &buf
	c.Stderr = &buf

	start := time.Now()
	err := c.Run()
	res := Result{Output: buf.Bytes(), Duration: time.Since(start)}

	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		case ctx.Err() != nil:
			return res, ctx.Err()
		default:
			return res, fmt.Errorf("%w: %s: %v", ErrNotStarted, cmd.Name, err)
		}
	}
	return res, nil
}

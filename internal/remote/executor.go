// Package remote runs single commands against the operating system that
// hosts the share client and captures their output.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Command is a program invocation as an argument list. Arguments are never
// joined into a shell string for execution.
type Command struct {
	Program string
	Args    []string

	// Builtin marks commands that only exist inside the command interpreter
	// (dir, mkdir, move, del, rmdir).
	Builtin bool

	// Secret holds indexes into Args that must not be logged.
	Secret []int
}

// String renders the command for logs with secret arguments masked.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Program)
	for i, a := range c.Args {
		if c.isSecret(i) {
			a = "****"
		} else if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// Name is a low-cardinality label for metrics: "net use", "net use /delete",
// "dir", "rmdir" and so on.
func (c Command) Name() string {
	if c.Program != "net" || len(c.Args) == 0 {
		return c.Program
	}
	name := "net " + c.Args[0]
	for _, a := range c.Args[1:] {
		if strings.EqualFold(a, "/delete") {
			return name + " /delete"
		}
	}
	return name
}

func (c Command) isSecret(i int) bool {
	for _, s := range c.Secret {
		if s == i {
			return true
		}
	}
	return false
}

// Result is the captured outcome of a command that ran.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExecutionError reports a command that could not be run at all.
type ExecutionError struct {
	Command string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execute %s: %v", e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Executor runs one command. A non-zero exit is reported in Result, not as
// an error; errors mean the command did not run to completion.
type Executor interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// LocalExecutor runs commands with os/exec on this host.
type LocalExecutor struct {
	// Shell prefixes Builtin commands, "cmd /C" on Windows. When empty,
	// builtins are run as ordinary programs.
	Shell []string

	// Timeout bounds each command. Zero means no limit beyond ctx.
	Timeout time.Duration
}

// NewLocalExecutor returns an executor for the current platform.
func NewLocalExecutor(timeout time.Duration) *LocalExecutor {
	return &LocalExecutor{Shell: defaultShell(), Timeout: timeout}
}

func defaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd", "/C"}
	}
	return nil
}

// Run implements Executor.
func (e *LocalExecutor) Run(ctx context.Context, cmd Command) (Result, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	program, args := cmd.Program, cmd.Args
	if cmd.Builtin && len(e.Shell) > 0 {
		program = e.Shell[0]
		args = append(append(append([]string{}, e.Shell[1:]...), cmd.Program), cmd.Args...)
	}

	c := exec.CommandContext(ctx, program, args...)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	// Bound the wait for grandchildren still holding the output pipes.
	c.WaitDelay = 2 * time.Second

	err := c.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if ctx.Err() != nil {
		err = ctx.Err()
	}
	return res, &ExecutionError{Command: cmd.String(), Err: err}
}

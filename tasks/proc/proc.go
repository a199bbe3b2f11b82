package proc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/poa00/go-tasktree/tasking"
)

// DefaultGracePeriod is how long a cancelled process gets to exit after
// SIGTERM before it is killed.
const DefaultGracePeriod = 5 * time.Second

var (
	// ErrEmptyPath is reported when a Process is started without a command
	// path.
	ErrEmptyPath = errors.New("empty command path")
)

// Process runs an external command as a task. Configure the exported
// fields in the task's setup handler; read ExitCode and Output in its done
// or error handler. Unset Stdout and Stderr are captured into Output.
type Process struct {
	Path        string
	Args        []string
	Dir         string
	Env         []string // appended to the parent environment
	Stdin       io.Reader
	Stdout      io.Writer
	Stderr      io.Writer
	GracePeriod time.Duration

	cmd    *exec.Cmd
	cancel context.CancelFunc
	out    bytes.Buffer
}

var _ tasking.Task = (*Process)(nil)

func (p *Process) Start(ctx context.Context, done func(error)) {
	if p.Path == "" {
		done(ErrEmptyPath)
		return
	}

	// the command's lifetime is decoupled from the setup context; Cancel
	// ends it
	cctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	cmd := exec.CommandContext(cctx, p.Path, p.Args...)
	cmd.Dir = p.Dir
	if len(p.Env) > 0 {
		cmd.Env = append(os.Environ(), p.Env...)
	}
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = &p.out
	}
	if cmd.Stderr == nil {
		cmd.Stderr = &p.out
	}

	// run the command in its own process group so cancellation reaches
	// its children too
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	grace := p.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		cancel()
		done(fmt.Errorf("start %s: %w", p.Path, err))
		return
	}
	p.cmd = cmd

	go func() {
		defer cancel()
		if err := cmd.Wait(); err != nil {
			done(fmt.Errorf("%s: %w", p.Path, err))
			return
		}
		done(nil)
	}()
}

func (p *Process) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}

// ExitCode returns the command's exit code, or -1 if it has not exited.
// Valid from the task's done or error handler on.
func (p *Process) ExitCode() int {
	if p.cmd == nil || p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Output returns the captured output of the command, combined across
// stdout and stderr, for the streams that were not redirected.
func (p *Process) Output() []byte {
	return p.out.Bytes()
}

// Command declares a task running path with args.
func Command(path string, args []string, opts ...tasking.TaskOption[*Process]) tasking.Item {
	return tasking.NewTask(func() *Process {
		return &Process{Path: path, Args: args}
	}, opts...)
}

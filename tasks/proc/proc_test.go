package proc

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/poa00/go-tasktree/tasking"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process group handling requires a unix platform")
	}
}

func TestCommandSucceeds(t *testing.T) {
	requireUnix(t)

	root := tasking.NewGroup(Command("true", nil))
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Run(context.Background()))
}

func TestCommandFails(t *testing.T) {
	requireUnix(t)

	var code int
	root := tasking.NewGroup(
		Command("sh", []string{"-c", "exit 3"},
			tasking.OnError(func(_ context.Context, p *Process, err error) {
				code = p.ExitCode()
				require.ErrorAs(t, err, new(*exec.ExitError))
			}),
		),
	)
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.Error(t, tree.Run(context.Background()))
	require.Equal(t, 3, code)
}

func TestCommandCapturesOutput(t *testing.T) {
	requireUnix(t)

	var out []byte
	root := tasking.NewGroup(
		Command("sh", []string{"-c", "printf hello; printf ' world' >&2"},
			tasking.OnDone(func(_ context.Context, p *Process) {
				out = p.Output()
			}),
		),
	)
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Run(context.Background()))
	require.Contains(t, string(out), "hello")
	require.Contains(t, string(out), "world")
}

func TestCommandRedirectedOutput(t *testing.T) {
	requireUnix(t)

	var buf bytes.Buffer
	root := tasking.NewGroup(
		Command("sh", []string{"-c", "printf redirected"},
			tasking.OnSetup(func(_ context.Context, p *Process) tasking.SetupResult {
				p.Stdout = &buf
				return tasking.Continue
			}),
		),
	)
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Run(context.Background()))
	require.Equal(t, "redirected", buf.String())
}

func TestCommandEnvironment(t *testing.T) {
	requireUnix(t)

	var out []byte
	root := tasking.NewGroup(
		Command("sh", []string{"-c", "printf %s \"$GREETING\""},
			tasking.OnSetup(func(_ context.Context, p *Process) tasking.SetupResult {
				p.Env = []string{"GREETING=bonjour"}
				return tasking.Continue
			}),
			tasking.OnDone(func(_ context.Context, p *Process) {
				out = p.Output()
			}),
		),
	)
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Run(context.Background()))
	require.Equal(t, "bonjour", string(out))
}

func TestCommandWorkingDirectory(t *testing.T) {
	requireUnix(t)

	dir := t.TempDir()
	var out []byte
	root := tasking.NewGroup(
		Command("pwd", nil,
			tasking.OnSetup(func(_ context.Context, p *Process) tasking.SetupResult {
				p.Dir = dir
				return tasking.Continue
			}),
			tasking.OnDone(func(_ context.Context, p *Process) {
				out = p.Output()
			}),
		),
	)
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.NoError(t, tree.Run(context.Background()))
	require.Contains(t, string(out), dir)
}

func TestCommandEmptyPath(t *testing.T) {
	root := tasking.NewGroup(Command("", nil))
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.ErrorIs(t, tree.Run(context.Background()), ErrEmptyPath)
}

func TestCommandCancelledByTimeout(t *testing.T) {
	requireUnix(t)

	start := time.Now()
	root := tasking.NewGroup(
		tasking.WithTimeout(Command("sleep", []string{"30"}), 100*time.Millisecond),
	)
	tree, err := tasking.NewTaskTree(root, nil)
	require.NoError(t, err)
	require.ErrorIs(t, tree.Run(context.Background()), tasking.ErrTimeout)
	require.Less(t, time.Since(start), 10*time.Second)
}

func TestCommandParallelPipelines(t *testing.T) {
	requireUnix(t)

	var outs [3][]byte
	items := make([]tasking.Item, 0, 4)
	items = append(items, tasking.Parallel)
	for i := range outs {
		i := i
		items = append(items, Command("sh", []string{"-c", "printf ok"},
			tasking.OnDone(func(_ context.Context, p *Process) {
				outs[i] = p.Output()
			}),
		))
	}
	tree, err := tasking.NewTaskTree(tasking.NewGroup(items...), nil)
	require.NoError(t, err)
	require.NoError(t, tree.Run(context.Background()))
	for i := range outs {
		require.Equal(t, "ok", string(outs[i]))
	}
}

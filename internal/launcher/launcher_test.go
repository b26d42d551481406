package launcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randomizedcoder/runtime-http-bench/internal/logging"
	"github.com/randomizedcoder/runtime-http-bench/internal/runtimes"
)

func shRecipe(k runtimes.Kind, script string) runtimes.Recipe {
	return runtimes.Recipe{Kind: k, Binary: "sh", Args: []string{"-c", script}}
}

func newTestLauncher(t *testing.T, recipes map[runtimes.Kind]runtimes.Recipe) *Launcher {
	t.Helper()
	return New(Config{
		Recipes:     recipes,
		Grace:       200 * time.Millisecond,
		StopTimeout: 500 * time.Millisecond,
		Logger:      logging.Discard(),
	})
}

func spawn(t *testing.T, l *Launcher, k runtimes.Kind) (*Process, error) {
	t.Helper()
	return l.Spawn(context.Background(), SpawnRequest{
		Kind:  k,
		Entry: runtimes.EntryFile(k),
		Dir:   t.TempDir(),
		Port:  4321,
	})
}

func TestSpawn_PrematureExit(t *testing.T) {
	l := newTestLauncher(t, map[runtimes.Kind]runtimes.Recipe{
		runtimes.Node: shRecipe(runtimes.Node, "echo boom >&2; exit 3"),
	})

	p, err := spawn(t, l, runtimes.Node)
	require.Nil(t, p)

	var perr *PrematureExitError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, runtimes.Node, perr.Kind)
	require.Equal(t, 3, perr.ExitCode)
	require.Contains(t, perr.Recent, "boom")
	require.Contains(t, perr.Error(), "node exited immediately with code 3")

	require.Equal(t, 0, l.Registry().Len(), "dead process must not stay registered")
}

func TestSpawn_EnvironmentAndDir(t *testing.T) {
	// sh -c script $0 $1: the entry placeholder lands in $1.
	l := newTestLauncher(t, map[runtimes.Kind]runtimes.Recipe{
		runtimes.Bun: {
			Kind:   runtimes.Bun,
			Binary: "sh",
			Args:   []string{"-c", `echo "port=$PORT rt=$BENCH_RUNTIME entry=$1 dir=$(basename "$(pwd)")"`, "sh", runtimes.EntryPlaceholder},
		},
	})

	dir := t.TempDir()
	_, err := l.Spawn(context.Background(), SpawnRequest{
		Kind:  runtimes.Bun,
		Entry: "./bun.js",
		Dir:   dir,
		Port:  9999,
	})

	var perr *PrematureExitError
	require.ErrorAs(t, err, &perr)
	require.Len(t, perr.Recent, 1)
	require.Contains(t, perr.Recent[0], "port=9999")
	require.Contains(t, perr.Recent[0], "rt=bun")
	require.Contains(t, perr.Recent[0], "entry=./bun.js")
	require.Contains(t, perr.Recent[0], "dir="+filepath.Base(dir))
	require.Equal(t, 0, perr.ExitCode)
}

func TestSpawn_StartFailure(t *testing.T) {
	l := newTestLauncher(t, map[runtimes.Kind]runtimes.Recipe{
		runtimes.Deno: {Kind: runtimes.Deno, Binary: "/nonexistent/deno-binary"},
	})

	p, err := spawn(t, l, runtimes.Deno)
	require.Nil(t, p)
	require.Error(t, err)
	require.Contains(t, err.Error(), "spawn deno")
	require.Equal(t, 0, l.Registry().Len())
}

func TestSpawn_AlreadyRunning(t *testing.T) {
	l := newTestLauncher(t, map[runtimes.Kind]runtimes.Recipe{
		runtimes.Node: {Kind: runtimes.Node, Binary: "sleep", Args: []string{"30"}},
	})
	t.Cleanup(func() { _ = l.Registry().TerminateAll(time.Second) })

	p, err := spawn(t, l, runtimes.Node)
	require.NoError(t, err)
	require.Equal(t, StateStarting, p.State())

	_, err = spawn(t, l, runtimes.Node)
	require.ErrorIs(t, err, ErrAlreadyRunning)
	require.Equal(t, 1, l.Registry().Len())
}

func TestProcess_LifecycleAndTerminate(t *testing.T) {
	var mu sync.Mutex
	var transitions []State

	l := New(Config{
		Recipes: map[runtimes.Kind]runtimes.Recipe{
			runtimes.Node: {Kind: runtimes.Node, Binary: "sleep", Args: []string{"30"}},
		},
		Grace:       100 * time.Millisecond,
		StopTimeout: time.Second,
		Logger:      logging.Discard(),
		OnStateChange: func(_ runtimes.Kind, _, newState State) {
			mu.Lock()
			transitions = append(transitions, newState)
			mu.Unlock()
		},
	})

	p, err := spawn(t, l, runtimes.Node)
	require.NoError(t, err)
	require.Greater(t, p.PID(), 0)
	require.Equal(t, -1, p.ExitCode())

	p.MarkReady()
	p.MarkRunning()
	require.Equal(t, StateRunning, p.State())

	require.NoError(t, l.Registry().TerminateAll(l.StopTimeout()))

	require.Equal(t, StateTerminated, p.State())
	require.Equal(t, 1, p.TermSignals())
	require.Equal(t, 128+15, p.ExitCode())
	require.Equal(t, 0, l.Registry().Len())

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []State{StateReady, StateRunning, StateTerminated}, transitions)
}

func TestProcess_TerminateOnce(t *testing.T) {
	l := newTestLauncher(t, map[runtimes.Kind]runtimes.Recipe{
		runtimes.Deno: {Kind: runtimes.Deno, Binary: "sleep", Args: []string{"30"}},
	})

	p, err := spawn(t, l, runtimes.Deno)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Terminate(time.Second)
		}()
	}
	wg.Wait()

	// Later calls, through the registry or the handle, never re-signal.
	require.NoError(t, l.Registry().TerminateAll(time.Second))
	require.NoError(t, l.Registry().TerminateAll(time.Second))
	require.NoError(t, p.Terminate(time.Second))

	require.Equal(t, 1, p.TermSignals())
}

func TestProcess_TerminateEscalatesToKill(t *testing.T) {
	l := New(Config{
		Recipes: map[runtimes.Kind]runtimes.Recipe{
			runtimes.Bun: shRecipe(runtimes.Bun, "trap '' TERM; sleep 30"),
		},
		Grace:       100 * time.Millisecond,
		StopTimeout: 200 * time.Millisecond,
		Logger:      logging.Discard(),
	})

	p, err := spawn(t, l, runtimes.Bun)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Registry().TerminateAll(l.StopTimeout()))
	elapsed := time.Since(start)

	require.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	require.Less(t, elapsed, 5*time.Second)
	require.Equal(t, 128+9, p.ExitCode())
	require.Equal(t, StateTerminated, p.State())
	require.Equal(t, 1, p.TermSignals())
}

func TestProcess_ExitAfterGraceIsFailed(t *testing.T) {
	l := newTestLauncher(t, map[runtimes.Kind]runtimes.Recipe{
		runtimes.Node: shRecipe(runtimes.Node, "sleep 0.4; exit 7"),
	})

	p, err := spawn(t, l, runtimes.Node)
	require.NoError(t, err)

	select {
	case <-p.Exited():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	require.Eventually(t, func() bool { return p.State() == StateFailed }, time.Second, 10*time.Millisecond)
	require.Equal(t, 7, p.ExitCode())

	require.NoError(t, l.Registry().TerminateAll(time.Second))
	require.Equal(t, 0, p.TermSignals(), "an exited process is not signalled")
	require.Equal(t, StateFailed, p.State())
}

func TestSpawn_ContextCancelledDuringGrace(t *testing.T) {
	l := New(Config{
		Recipes: map[runtimes.Kind]runtimes.Recipe{
			runtimes.Node: {Kind: runtimes.Node, Binary: "sleep", Args: []string{"30"}},
		},
		Grace:       10 * time.Second,
		StopTimeout: time.Second,
		Logger:      logging.Discard(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	p, err := l.Spawn(ctx, SpawnRequest{Kind: runtimes.Node, Entry: "./node.js", Dir: t.TempDir(), Port: 1})
	require.True(t, errors.Is(err, context.Canceled))
	require.NotNil(t, p)
	require.Equal(t, 1, l.Registry().Len(), "cancellation path owns teardown")

	require.NoError(t, l.Registry().TerminateAll(time.Second))
	require.Equal(t, StateTerminated, p.State())
}

func TestRegistry_SnapshotOrder(t *testing.T) {
	r := NewRegistry(logging.Discard())
	for _, k := range []runtimes.Kind{runtimes.Node, runtimes.Workerd, runtimes.Bun} {
		require.NoError(t, r.Register(&Process{kind: k, state: StateReady, exited: make(chan struct{})}))
	}

	var got []runtimes.Kind
	for _, p := range r.Snapshot() {
		got = append(got, p.Kind())
	}
	require.Equal(t, []runtimes.Kind{runtimes.Workerd, runtimes.Bun, runtimes.Node}, got)
}

func TestRegistry_ReplacesDeadProcess(t *testing.T) {
	r := NewRegistry(logging.Discard())
	dead := &Process{kind: runtimes.Deno, state: StateFailed, exited: make(chan struct{})}
	live := &Process{kind: runtimes.Deno, state: StateStarting, exited: make(chan struct{})}

	require.NoError(t, r.Register(dead))
	require.NoError(t, r.Register(live))

	got, ok := r.Get(runtimes.Deno)
	require.True(t, ok)
	require.Same(t, live, got)

	r.Remove(runtimes.Deno, dead)
	require.Equal(t, 1, r.Len(), "removing a stale handle keeps the current one")
	r.Remove(runtimes.Deno, live)
	require.Equal(t, 0, r.Len())
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
		alive bool
	}{
		{StateStarting, "starting", true},
		{StateReady, "ready", true},
		{StateRunning, "running", true},
		{StateTerminated, "terminated", false},
		{StateFailed, "failed", false},
		{State(99), "unknown", false},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			require.Equal(t, tt.want, tt.state.String())
			require.Equal(t, tt.alive, tt.state.IsAlive())
		})
	}
}

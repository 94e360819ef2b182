package scenario

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeycumines/go-kthread/kthread"
	"github.com/joeycumines/go-kthread/ktrace"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runFile(t *testing.T, path string, opts ...Option) (*Scenario, *Result, error) {
	t.Helper()
	sc, err := Load(path)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := Run(ctx, sc, opts...)
	return sc, res, err
}

func TestRun_testdata(t *testing.T) {
	files, err := filepath.Glob(filepath.Join(`testdata`, `*.yaml`))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, file := range files {
		t.Run(strings.TrimSuffix(filepath.Base(file), `.yaml`), func(t *testing.T) {
			sc, res, err := runFile(t, file, WithInvariantChecks(true))
			require.NoError(t, err)
			require.NotEmpty(t, sc.Expect)
			assert.NoError(t, res.Check(sc.Expect))
			assert.Equal(t, sc.Name, res.Name)
			assert.NotEmpty(t, res.RunID)
		})
	}
}

func TestRun_deadlock(t *testing.T) {
	_, res, err := runFile(t, filepath.Join(`testdata`, `errors`, `deadlock.yaml`))
	require.ErrorIs(t, err, ErrDeadlock)
	assert.Nil(t, res)
	assert.Contains(t, err.Error(), `main#1 waiting on y`)
	assert.Contains(t, err.Error(), `t#3 waiting on x`)
}

func TestRun_deadlockInvariantChecks(t *testing.T) {
	_, _, err := runFile(t, filepath.Join(`testdata`, `errors`, `deadlock.yaml`), WithInvariantChecks(true))
	require.Error(t, err)
	var ie *kthread.InvariantError
	require.ErrorAs(t, err, &ie)
	assert.Contains(t, err.Error(), `lock wait-for cycle`)
}

func TestRun_tickLimit(t *testing.T) {
	sc, err := Load(filepath.Join(`testdata`, `round-robin.yaml`))
	require.NoError(t, err)
	sc.MaxTicks = 10
	_, err = Run(context.Background(), sc)
	assert.ErrorIs(t, err, ErrTickLimit)
}

func TestRun_realtime(t *testing.T) {
	sc, res, err := runFile(t, filepath.Join(`testdata`, `priority-donate-one.yaml`),
		WithClock(ClockRealtime),
		WithTickInterval(time.Millisecond),
		WithInvariantChecks(true),
	)
	require.NoError(t, err)
	assert.NoError(t, res.Check(sc.Expect))
}

func TestRun_realtimeSleep(t *testing.T) {
	sc, err := Parse([]byte(`
name: realtime-sleep
main:
  - sleep: 5
  - print: done
`))
	require.NoError(t, err)
	res, err := Run(context.Background(), sc,
		WithClock(ClockRealtime),
		WithTickInterval(time.Millisecond),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{`done`}, res.Output)
	assert.GreaterOrEqual(t, res.Ticks, int64(5))
}

func TestRun_contextCanceled(t *testing.T) {
	sc, err := Parse([]byte(`
name: forever
main:
  - sleep: 1000000
`))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Run(ctx, sc, WithClock(ClockRealtime), WithTickInterval(time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (x *syncBuffer) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.Write(p)
}

func (x *syncBuffer) String() string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.buf.String()
}

func TestRun_realtimeDeadlineLogged(t *testing.T) {
	sc, err := Parse([]byte(`
name: forever
main:
  - sleep: 1000000
`))
	require.NoError(t, err)
	var out syncBuffer
	logger := stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(&out)),
		stumpy.L.WithLevel(logiface.LevelDebug),
	).Logger()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = Run(ctx, sc,
		WithLogger(logger),
		WithClock(ClockRealtime),
		WithTickInterval(time.Millisecond),
	)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), `"msg":"timer stopped early"`)
	}, 5*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), `context deadline exceeded`)
}

func TestRun_tracerAndMetrics(t *testing.T) {
	rec := ktrace.New(ktrace.WithKinds(kthread.TraceDonate))
	sc, res, err := runFile(t, filepath.Join(`testdata`, `priority-donate-chain.yaml`),
		WithTracer(rec),
		WithMetrics(true),
		WithLogStats(true),
	)
	require.NoError(t, err)
	require.NoError(t, res.Check(sc.Expect))

	// t1 donates to main, t2 to t1 and main, donor to t2, t1 and main.
	assert.Equal(t, 6, rec.Count())
	assert.Equal(t, uint64(6), res.Stats.Donations)
	require.NotNil(t, res.Metrics)
	assert.Greater(t, res.Metrics.ReadyWait.Max, int64(-1))
	// includes the idle thread
	assert.Equal(t, uint64(4), res.Stats.Created)
	assert.Equal(t, uint64(3), res.Stats.Reclaimed)
}

func TestRun_tryAcquireAndExit(t *testing.T) {
	sc, err := Parse([]byte(`
name: try-acquire
locks: [l]
threads:
  worker:
    priority: 40
    steps:
      - try_acquire: l
      - print: "{name} tid {tid} base {base}"
      - exit: true
      - print: unreachable
main:
  - acquire: l
  - create: worker
  - release: l
  - print: main done
`))
	require.NoError(t, err)
	res, err := Run(context.Background(), sc, WithRunID(`run-1`))
	require.NoError(t, err)
	assert.Equal(t, `run-1`, res.RunID)
	assert.Equal(t, []string{
		`worker failed to acquire l`,
		`worker tid 3 base 40`,
		`main done`,
	}, res.Output)
}

func TestResult_Check(t *testing.T) {
	res := &Result{Name: `x`, Output: []string{`a`, `b`, `c`}}
	assert.NoError(t, res.Check([]string{`a`, `b`, `c`}))

	err := res.Check([]string{`a`, `B`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `x: output mismatch`)
	assert.Contains(t, err.Error(), `line 2: got "b", want "B"`)
	assert.Contains(t, err.Error(), `line 3: unexpected "c"`)

	err = res.Check([]string{`a`, `b`, `c`, `d`})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `line 4: missing "d"`)
}

func TestParse_errors(t *testing.T) {
	for _, tc := range [...]struct {
		name string
		doc  string
		err  string
	}{
		{`empty`, ``, `scenario: empty document`},
		{`unknown field`, "name: x\nbogus: 1\n", `field bogus not found`},
		{`missing name`, "main: [{yield: true}]\n", `scenario: name: missing`},
		{`main priority`, "name: x\nmain_priority: 64\n", `scenario: main_priority: priority 64 outside [0, 63]`},
		{`thread priority`, "name: x\nthreads: {t: {priority: -1}}\n", `priority -1 outside [0, 63]`},
		{`negative slice`, "name: x\ntime_slice: -1\n", `scenario: time_slice: negative`},
		{`duplicate lock`, "name: x\nlocks: [a, a]\n", `duplicate lock "a"`},
		{`two actions`, "name: x\nmain: [{yield: true, print: hi}]\n", `scenario: main[0]: want exactly one action, got 2`},
		{`no action`, "name: x\nmain: [{}]\n", `want exactly one action, got 0`},
		{`unknown thread`, "name: x\nmain: [{create: t}]\n", `unknown thread "t"`},
		{`unknown lock`, "name: x\nmain: [{acquire: l}]\n", `unknown lock "l"`},
		{`unknown semaphore`, "name: x\nmain: [{down: s}]\n", `unknown semaphore "s"`},
		{`negative busy`, "name: x\nmain: [{busy: -1}]\n", `negative busy ticks`},
		{`exit in main`, "name: x\nmain: [{exit: true}]\n", `scenario: main[0]: exit is not allowed in main`},
		{`exit in main repeat`, "name: x\nmain: [{repeat: {count: 2, steps: [{yield: true}, {exit: true}]}}]\n", `scenario: main[0].repeat[1]: exit is not allowed in main`},
		{`negative repeat`, "name: x\nmain: [{repeat: {count: -1, steps: [{yield: true}]}}]\n", `negative repeat count`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestRun_exitInThread(t *testing.T) {
	sc, err := Parse([]byte("name: x\nthreads: {t: {priority: 31, steps: [{repeat: {count: 1, steps: [{exit: true}]}}]}}\nmain: [{create: t}]\n"))
	require.NoError(t, err)
	res, err := Run(context.Background(), sc)
	require.NoError(t, err)
	assert.Empty(t, res.Output)
}

func TestRun_exitInMainRejected(t *testing.T) {
	sc := &Scenario{
		Name:    `main-exit`,
		Threads: map[string]ThreadSpec{`t`: {Priority: 31, Steps: []Step{{Print: `t done`}}}},
		Main:    []Step{{Create: `t`}, {Print: `main`}, {Exit: true}},
	}
	res, err := Run(context.Background(), sc)
	require.ErrorContains(t, err, `scenario: main[2]: exit is not allowed in main`)
	assert.NotErrorIs(t, err, ErrDeadlock)
	assert.Nil(t, res)
}

func TestRun_invalid(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{})
	assert.ErrorContains(t, err, `scenario: name: missing`)
}

func TestLoad_missing(t *testing.T) {
	_, err := Load(filepath.Join(`testdata`, `nope.yaml`))
	assert.ErrorContains(t, err, `nope.yaml`)
}

func TestParseClock(t *testing.T) {
	for _, c := range [...]Clock{ClockVirtual, ClockRealtime} {
		got, err := ParseClock(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}
	_, err := ParseClock(`sundial`)
	assert.ErrorContains(t, err, `unknown clock "sundial"`)
	assert.Equal(t, `unknown`, Clock(9).String())
}

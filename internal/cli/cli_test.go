package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testdataPath(name string) string {
	return filepath.Join(`..`, `..`, `scenario`, `testdata`, name)
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeScenario(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), `scenario.yaml`)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func TestRun_check(t *testing.T) {
	stdout, _, err := execute(t, `run`, `--check`, testdataPath(`priority-donate-one.yaml`), testdataPath(`priority-sema.yaml`))
	require.NoError(t, err)
	assert.Contains(t, stdout, "acquire2: got the lock\nacquire2: done\n")
	assert.Contains(t, stdout, "PASS priority-donate-one\n")
	assert.Contains(t, stdout, "PASS priority-sema\n")
}

func TestRun_checkMismatch(t *testing.T) {
	path := writeScenario(t, `
name: mismatch
main:
  - print: hello
expect:
  - goodbye
`)
	stdout, _, err := execute(t, `run`, `--check`, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `line 1: got "hello", want "goodbye"`)
	assert.Contains(t, stdout, "hello\nFAIL mismatch\n")

	// without --check the mismatch is not an error
	stdout, _, err = execute(t, `run`, path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
}

func TestRun_deadlock(t *testing.T) {
	stdout, _, err := execute(t, `run`, testdataPath(filepath.Join(`errors`, `deadlock.yaml`)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `deadlock`)
	assert.True(t, strings.HasPrefix(stdout, `FAIL deadlock: `))
}

func TestRun_stats(t *testing.T) {
	stdout, _, err := execute(t, `run`, `--stats`, testdataPath(`round-robin.yaml`))
	require.NoError(t, err)
	assert.Contains(t, stdout, `Thread: `)
	assert.Contains(t, stdout, ` idle ticks, `)
	assert.Contains(t, stdout, ` threads created`)
	assert.Contains(t, stdout, `Ready wait: p50 `)
}

func TestRun_trace(t *testing.T) {
	tracePath := filepath.Join(t.TempDir(), `trace.jsonl`)
	_, _, err := execute(t, `run`, `--trace`, tracePath, testdataPath(`priority-donate-chain.yaml`))
	require.NoError(t, err)

	f, err := os.Open(tracePath)
	require.NoError(t, err)
	defer f.Close()

	kinds := make(map[string]int)
	var runs = make(map[string]bool)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev struct {
			Run  string `json:"run"`
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		kinds[ev.Kind]++
		runs[ev.Run] = true
	}
	require.NoError(t, sc.Err())
	assert.Len(t, runs, 1)
	assert.Equal(t, 6, kinds[`donate`])
	assert.Equal(t, 4, kinds[`create`])
	assert.Equal(t, 3, kinds[`reclaim`])
}

func TestRun_realtime(t *testing.T) {
	stdout, _, err := execute(t, `run`, `--check`, `--clock`, `realtime`, `--tick`, `1ms`, `--invariants`, testdataPath(`priority-donate-nest.yaml`))
	require.NoError(t, err)
	assert.Contains(t, stdout, "PASS priority-donate-nest\n")
}

func TestRun_badFlags(t *testing.T) {
	_, _, err := execute(t, `run`, `--clock`, `sundial`, testdataPath(`alarm-zero.yaml`))
	assert.ErrorContains(t, err, `unknown clock "sundial"`)

	_, _, err = execute(t, `--log-level`, `loud`, `run`, testdataPath(`alarm-zero.yaml`))
	assert.ErrorContains(t, err, `unknown level "loud"`)

	_, _, err = execute(t, `--log-rate`, `10/1s,5/1m`, `run`, testdataPath(`alarm-zero.yaml`))
	assert.Error(t, err)

	_, _, err = execute(t, `run`)
	assert.Error(t, err)
}

func TestRun_logging(t *testing.T) {
	_, stderr, err := execute(t, `--log-level`, `info`, `run`, testdataPath(`alarm-zero.yaml`))
	require.NoError(t, err)
	assert.Contains(t, stderr, `"msg":"scenario complete"`)
	assert.Contains(t, stderr, `"scenario":"alarm-zero"`)
}

func TestValidate(t *testing.T) {
	bad := writeScenario(t, "name: bad\nmain: [{acquire: nope}]\n")
	stdout, _, err := execute(t, `validate`, testdataPath(`alarm-priority.yaml`), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown lock "nope"`)
	assert.Contains(t, stdout, `ok   `+testdataPath(`alarm-priority.yaml`)+` (alarm-priority)`)
	assert.Contains(t, stdout, `FAIL `+bad)
}

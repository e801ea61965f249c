package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metricsHeader = "tick,task_id,current_priority,remaining_time,waiting_time,queue_len,cpu_usage,is_running\n"

type workspace struct {
	dir        string
	metrics    string
	directives string
	historyDB  string
}

func newWorkspace(t *testing.T, metrics string) workspace {
	t.Helper()
	dir := t.TempDir()
	ws := workspace{
		dir:        dir,
		metrics:    filepath.Join(dir, "metrics.csv"),
		directives: filepath.Join(dir, "new_priorities.csv"),
		historyDB:  filepath.Join(dir, "history.db"),
	}
	require.NoError(t, os.WriteFile(ws.metrics, []byte(metrics), 0o644))
	return ws
}

func (ws workspace) args(extra ...string) []string {
	return append([]string{
		"--metrics", ws.metrics,
		"--directives", ws.directives,
		"--log-level", "error",
	}, extra...)
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return runCLIContext(t, context.Background(), args...)
}

func runCLIContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	return buf.String(), err
}

func TestOnceCommand(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+
		"1,1,5,10,6,3,40.00,1\n"+
		"1,2,3,4,0,3,40.00,0\n")

	out, err := runCLI(t, ws.args("once")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Outcome: published")
	assert.Contains(t, out, "Tick:       1")

	data, err := os.ReadFile(ws.directives)
	require.NoError(t, err)
	assert.Equal(t, "tick,task_id,new_priority,valid_until\n1,1,4,2\n1,2,3,2\n", string(data))
}

func TestOnceCommand_NoData(t *testing.T) {
	ws := newWorkspace(t, metricsHeader)

	out, err := runCLI(t, ws.args("once")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Outcome: no_data")
	_, err = os.Stat(ws.directives)
	assert.True(t, os.IsNotExist(err))
}

func TestOnceCommand_ValidityFlag(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+"4,1,5,0,0,0,0,0\n")

	out, err := runCLI(t, ws.args("once", "--validity-ticks", "0")...)
	require.NoError(t, err, out)

	data, err := os.ReadFile(ws.directives)
	require.NoError(t, err)
	assert.Equal(t, "tick,task_id,new_priority\n4,1,5\n", string(data))
}

func TestShowCommand(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+"2,7,5,10,6,0,0,1\n")

	out, err := runCLI(t, ws.args("show")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "No directives published.")

	_, err = runCLI(t, ws.args("once")...)
	require.NoError(t, err)

	out, err = runCLI(t, ws.args("show")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Tick: 2")
	assert.Contains(t, out, "Valid until: 3")
	assert.Contains(t, out, "7"+strings.Repeat(" ", 11)+"4")
}

func TestShowCommand_DryRun(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+"2,7,5,10,6,0,0,1\n")

	out, err := runCLI(t, ws.args("show", "--dry-run")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Tick: 2")
	assert.Contains(t, out, "aging=-1.00")
	assert.Contains(t, out, "remaining=+0.50")

	_, err = os.Stat(ws.directives)
	assert.True(t, os.IsNotExist(err), "dry run must not publish")
}

func TestAuditCommand_PublishedBatch(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+"1,1,5,10,6,0,0,1\n")
	_, err := runCLI(t, ws.args("once")...)
	require.NoError(t, err)

	// The scheduler applies the directive (4) on tick 2 for task 1 but not task 2.
	f, err := os.OpenFile(ws.metrics, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2,1,4,9,0,0,0,1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err := runCLI(t, ws.args("audit")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "checked=1 matched=1 mismatches=0")

	out, err = runCLI(t, ws.args("audit", "--lag", "0", "--fail-on-mismatch")...)
	require.Error(t, err)
	assert.Contains(t, out, "Mismatch: metrics_tick=1 task=1 cur=5 directive_tick=1 want=4")
}

func TestHistoryCommands(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+"1,1,5,10,6,0,0,1\n")
	db := []string{"--history-db", ws.historyDB}

	out, err := runCLI(t, ws.args(append(db, "history")...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "No batches recorded.")

	_, err = runCLI(t, ws.args(append(db, "once")...)...)
	require.NoError(t, err)

	f, err := os.OpenFile(ws.metrics, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2,1,3,9,0,0,0,1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = runCLI(t, ws.args(append(db, "once")...)...)
	require.NoError(t, err)

	out, err = runCLI(t, ws.args(append(db, "history")...)...)
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4, out)
	assert.True(t, strings.HasPrefix(lines[2], "2 "), "newest tick first: %s", out)
	assert.Contains(t, out, "batch_")

	// Directive for tick 1 was 4 but the scheduler logged 3 at tick 2.
	out, err = runCLI(t, ws.args(append(db, "audit")...)...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Mismatch: metrics_tick=2 task=1 cur=3 directive_tick=1 want=4")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	ws := newWorkspace(t, metricsHeader)
	_, err := runCLI(t, ws.args("history")...)
	assert.ErrorContains(t, err, "history is disabled")
}

func TestRunCommand_StopsWithContext(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+"3,1,5,0,0,0,0,1\n")
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	out, err := runCLIContext(t, ctx, ws.args("run", "--poll-interval", "10ms")...)
	require.NoError(t, err, out)

	data, err := os.ReadFile(ws.directives)
	require.NoError(t, err)
	assert.Equal(t, "tick,task_id,new_priority,valid_until\n3,1,5,4\n", string(data))
}

func TestConfigFileAndFlagOverride(t *testing.T) {
	ws := newWorkspace(t, metricsHeader+"5,1,5,0,0,0,0,1\n")
	cfgPath := filepath.Join(ws.dir, "advisor.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(
		"metrics_path: "+ws.metrics+"\n"+
			"directive_path: "+filepath.Join(ws.dir, "from-config.csv")+"\n"+
			"validity_ticks: 3\n"), 0o644))

	out, err := runCLI(t, "--config", cfgPath, "--log-level", "error", "once")
	require.NoError(t, err, out)
	data, err := os.ReadFile(filepath.Join(ws.dir, "from-config.csv"))
	require.NoError(t, err)
	assert.Equal(t, "tick,task_id,new_priority,valid_until\n5,1,5,8\n", string(data))

	out, err = runCLI(t, "--config", cfgPath, "--directives", ws.directives, "--log-level", "error", "once")
	require.NoError(t, err, out)
	_, err = os.Stat(ws.directives)
	assert.NoError(t, err, "flag overrides the config file")
}

func TestInvalidConfig(t *testing.T) {
	ws := newWorkspace(t, metricsHeader)
	_, err := runCLI(t, ws.args("once", "--validity-ticks=-2")...)
	assert.ErrorContains(t, err, "validity_ticks")
}

package snapshot

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/prioadvisor/pkg/model"
)

const producerHeader = "tick,task_id,current_priority,remaining_time,waiting_time,queue_len,cpu_usage,is_running\n"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parse(t *testing.T, content string) (*model.Snapshot, Stats) {
	t.Helper()
	snap, stats, err := Parse(strings.NewReader(content), Options{})
	require.NoError(t, err)
	return snap, stats
}

func TestParse_LatestTick(t *testing.T) {
	snap, _ := parse(t, producerHeader+
		"0,1,5,10,0,2,100.00,1\n"+
		"0,2,3,4,0,2,100.00,0\n"+
		"1,1,5,9,0,1,100.00,1\n"+
		"1,2,3,4,1,1,100.00,0\n")

	require.NotNil(t, snap)
	assert.Equal(t, model.Tick(1), snap.Tick)
	assert.Equal(t, int64(1), snap.QueueLen)
	assert.Equal(t, 100.0, snap.CPUUsage)
	require.Len(t, snap.Observations, 2)
	assert.Equal(t, model.Observation{
		Tick: 1, TaskID: 1, WaitingTime: 0, RemainingTime: 9, CurrentPriority: 5, QueueLen: 1, CPUUsage: 100,
	}, snap.Observations[0])
	assert.Equal(t, model.TaskID(2), snap.Observations[1].TaskID)
	assert.Equal(t, int64(1), snap.Observations[1].WaitingTime)
}

func TestParse_NoData(t *testing.T) {
	tests := map[string]string{
		"empty":          "",
		"header only":    producerHeader,
		"partial header": "tick,task_id,curr",
		"no valid ticks": producerHeader + "x,1,5,1,1,0,0,0\n-2,1,5,1,1,0,0,0\n,2,5,1,1,0,0,0\n",
		"blank lines":    producerHeader + "\n\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			snap, _ := parse(t, content)
			assert.Nil(t, snap)
		})
	}
}

func TestParse_PartialTrailingRowIgnored(t *testing.T) {
	snap, stats := parse(t, producerHeader+
		"4,1,5,10,6,3,40.00,1\n"+
		"5,1,5,9")

	require.NotNil(t, snap)
	assert.Equal(t, model.Tick(4), snap.Tick)
	assert.True(t, stats.PartialTrailer)
}

func TestParse_RemainingBurstAlias(t *testing.T) {
	snap, _ := parse(t, "tick,task_id,waiting_time,remaining_burst,cpu_usage,current_priority\n"+
		"3,7,2,12,55.5,4\n")

	require.NotNil(t, snap)
	require.Len(t, snap.Observations, 1)
	o := snap.Observations[0]
	assert.Equal(t, int64(12), o.RemainingTime)
	assert.Equal(t, int64(0), o.QueueLen, "queue_len column is optional")
	assert.Equal(t, 55.5, o.CPUUsage)
	assert.Equal(t, 4, o.CurrentPriority)
}

func TestParse_HeaderCaseAndOrder(t *testing.T) {
	snap, _ := parse(t, " Task_ID , TICK ,Current_Priority\n9,2,7\n")
	require.NotNil(t, snap)
	assert.Equal(t, model.Tick(2), snap.Tick)
	assert.Equal(t, model.TaskID(9), snap.Observations[0].TaskID)
	assert.Equal(t, 7, snap.Observations[0].CurrentPriority)
}

func TestParse_MalformedFieldsDefault(t *testing.T) {
	snap, stats := parse(t, producerHeader+
		"8,1,abc,xyz,-4,??,NaN,0\n"+
		"8,2,5,10,6,3,250,0\n")

	require.NotNil(t, snap)
	require.Len(t, snap.Observations, 2)

	o := snap.Observations[0]
	assert.Equal(t, 0, o.CurrentPriority)
	assert.Equal(t, int64(0), o.RemainingTime)
	assert.Equal(t, int64(0), o.WaitingTime, "negative waiting clamps to zero")
	assert.Equal(t, int64(0), o.QueueLen)
	assert.Equal(t, 0.0, o.CPUUsage)
	assert.Equal(t, 100.0, snap.Observations[1].CPUUsage, "utilization clamps to 100")
	assert.Equal(t, 1, stats.Defaulted)
}

func TestParse_DefaultPriorityOption(t *testing.T) {
	snap, _, err := Parse(strings.NewReader(producerHeader+"1,1,,3,0,0,0,0\n"), Options{DefaultPriority: 5})
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 5, snap.Observations[0].CurrentPriority)
}

func TestParse_BadTaskIDSkipped(t *testing.T) {
	snap, stats := parse(t, producerHeader+
		"2,-1,5,1,1,0,0,0\n"+
		"2,oops,5,1,1,0,0,0\n"+
		"2,3,5,1,1,0,0,0\n")

	require.NotNil(t, snap)
	require.Len(t, snap.Observations, 1)
	assert.Equal(t, model.TaskID(3), snap.Observations[0].TaskID)
	assert.Equal(t, 2, stats.SkippedTaskID)
}

func TestParse_BadTickExcludedFromMax(t *testing.T) {
	snap, stats := parse(t, producerHeader+
		"3,1,5,1,1,0,0,0\n"+
		"9x,1,5,1,1,0,0,0\n"+
		"1.5,1,5,1,1,0,0,0\n")

	require.NotNil(t, snap)
	assert.Equal(t, model.Tick(3), snap.Tick)
	assert.Equal(t, 2, stats.SkippedTick)
}

func TestParse_DuplicateTaskLaterRowWins(t *testing.T) {
	snap, _ := parse(t, producerHeader+
		"6,1,5,10,0,0,0,0\n"+
		"6,1,2,10,0,0,0,0\n")
	require.Len(t, snap.Observations, 1)
	assert.Equal(t, 2, snap.Observations[0].CurrentPriority)
}

func TestParse_MissingKeyColumnsIsNoData(t *testing.T) {
	snap, stats := parse(t, "task,prio\n1,2\n3,4\n")
	assert.Nil(t, snap)
	assert.Equal(t, "tick", stats.MissingColumn)
	assert.Equal(t, 2, stats.SkippedTick)

	snap, stats = parse(t, "tick,prio\n1,2\n")
	assert.Nil(t, snap)
	assert.Equal(t, "task_id", stats.MissingColumn)
	assert.Equal(t, 1, stats.SkippedTaskID)
}

func TestParseHistory(t *testing.T) {
	snaps, _, err := ParseHistory(strings.NewReader(producerHeader+
		"2,1,5,1,1,0,0,0\n"+
		"0,1,5,3,0,0,0,0\n"+
		"1,1,5,2,0,0,0,0\n"), Options{})
	require.NoError(t, err)
	require.Len(t, snaps, 3)
	for i, s := range snaps {
		assert.Equal(t, model.Tick(i), s.Tick)
	}
}

func TestReader_MissingSource(t *testing.T) {
	r := NewReader(filepath.Join(t.TempDir(), "metrics.csv"), discardLogger())
	snap, err := r.Read(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestReader_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, os.WriteFile(path, []byte(producerHeader+"1,1,5,10,6,3,40.00,1\n"), 0o644))

	r := NewReader(path, discardLogger())
	snap, err := r.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, model.Tick(1), snap.Tick)
	assert.Equal(t, path, r.URL())

	history, err := r.ReadHistory(context.Background())
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestReader_MissingKeyColumnWarnsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	var buf bytes.Buffer
	r := NewReader(path, slog.New(slog.NewTextHandler(&buf, nil)))
	for i := 0; i < 3; i++ {
		snap, err := r.Read(context.Background())
		require.NoError(t, err)
		assert.Nil(t, snap)
		require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"+strings.Repeat("3,4\n", i+1)), 0o644))
	}
	assert.Equal(t, 1, strings.Count(buf.String(), "level=WARN"))
	assert.Contains(t, buf.String(), "column=tick")
}

func TestReader_SourceFailureIsTransient(t *testing.T) {
	_, err := NewReader("nosuchscheme://bucket/metrics.csv", discardLogger()).Read(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsTransient(err))
}

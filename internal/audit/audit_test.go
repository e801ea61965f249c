package audit

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/me/prioadvisor/pkg/model"
)

func batch(tick model.Tick, prios map[model.TaskID]int) model.Batch {
	b := model.Batch{Tick: tick}
	for id, p := range prios {
		b.Directives = append(b.Directives, model.Directive{Tick: tick, TaskID: id, NewPriority: p})
	}
	return b
}

func snap(tick model.Tick, prios map[model.TaskID]int) model.Snapshot {
	s := model.Snapshot{Tick: tick}
	for id, p := range prios {
		s.Observations = append(s.Observations, model.Observation{Tick: tick, TaskID: id, CurrentPriority: p})
	}
	return s
}

func TestCompare_NextTick(t *testing.T) {
	batches := []model.Batch{
		batch(1, map[model.TaskID]int{1: 4, 2: 6}),
		batch(2, map[model.TaskID]int{1: 3}),
	}
	history := []model.Snapshot{
		snap(1, map[model.TaskID]int{1: 5, 2: 6}),
		snap(2, map[model.TaskID]int{1: 4, 2: 7}),
		snap(3, map[model.TaskID]int{1: 3, 2: 7}),
	}

	r, err := Compare(batches, history, DefaultLag)
	require.NoError(t, err)
	assert.Equal(t, 3, r.Checked)
	assert.Equal(t, 2, r.Matched)
	require.Len(t, r.Mismatches, 1)
	assert.Equal(t, Mismatch{MetricsTick: 2, DirectiveTick: 1, TaskID: 2, Observed: 7, Directed: 6}, r.Mismatches[0])
	assert.False(t, r.OK())
}

func TestCompare_SameTick(t *testing.T) {
	batches := []model.Batch{batch(1, map[model.TaskID]int{1: 4})}
	history := []model.Snapshot{snap(1, map[model.TaskID]int{1: 4}), snap(2, map[model.TaskID]int{1: 9})}

	r, err := Compare(batches, history, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Checked)
	assert.True(t, r.OK())
}

func TestCompare_NothingToCheck(t *testing.T) {
	r, err := Compare(nil, []model.Snapshot{snap(5, map[model.TaskID]int{1: 1})}, DefaultLag)
	require.NoError(t, err)
	assert.Zero(t, r.Checked)
	assert.True(t, r.OK())
}

func TestCompare_NegativeLag(t *testing.T) {
	_, err := Compare(nil, nil, -1)
	assert.Error(t, err)
}

func TestReport_Write(t *testing.T) {
	r := &Report{
		Lag:     1,
		Checked: 2,
		Matched: 1,
		Mismatches: []Mismatch{
			{MetricsTick: 4, DirectiveTick: 3, TaskID: 2, Observed: 7, Directed: 6},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, r.Write(&buf))
	assert.Equal(t,
		"Mismatch: metrics_tick=4 task=2 cur=7 directive_tick=3 want=6\n"+
			"Done. lag=1 checked=2 matched=1 mismatches=1\n",
		buf.String())
}

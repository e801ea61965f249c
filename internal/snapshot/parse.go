package snapshot

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/emirpasic/gods/utils"

	"github.com/me/prioadvisor/pkg/model"
)

// Column aliases, resolved once here so the engine only sees model fields.
var columnAliases = map[string][]string{
	"tick":             {"tick"},
	"task_id":          {"task_id"},
	"waiting_time":     {"waiting_time"},
	"remaining_time":   {"remaining_time", "remaining_burst", "remaining"},
	"current_priority": {"current_priority"},
	"queue_len":        {"queue_len"},
	"cpu_usage":        {"cpu_usage"},
}

// columns maps model fields to record indexes; -1 means absent.
type columns struct {
	tick, taskID, waiting, remaining, priority, queueLen, cpu int
}

func resolveColumns(header []string) columns {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}
	find := func(field string) int {
		for _, name := range columnAliases[field] {
			if i, ok := pos[name]; ok {
				return i
			}
		}
		return -1
	}
	return columns{
		tick:      find("tick"),
		taskID:    find("task_id"),
		waiting:   find("waiting_time"),
		remaining: find("remaining_time"),
		priority:  find("current_priority"),
		queueLen:  find("queue_len"),
		cpu:       find("cpu_usage"),
	}
}

// Stats counts rows the parser set aside.
type Stats struct {
	Rows           int // data rows seen
	SkippedTick    int // rows with missing, non-numeric, or negative tick
	SkippedTaskID  int // rows with unparseable or negative task_id
	MalformedRows  int // rows that were not valid CSV
	Defaulted      int // rows where at least one numeric field fell back to its default
	PartialTrailer bool
	MissingColumn  string // tick or task_id absent from the header; every row is skipped
}

// Options tune parsing.
type Options struct {
	// DefaultPriority replaces an unparseable current_priority.
	DefaultPriority int
}

type tickRows struct {
	queueLen int64
	cpuUsage float64
	byTask   map[model.TaskID]model.Observation
}

// index groups valid rows by tick in an ordered tree.
type index struct {
	tree  *redblacktree.Tree
	stats Stats
}

// Parse reads a whole metrics table and returns the snapshot for its highest
// tick, or nil when no row has a valid tick.
func Parse(r io.Reader, opts Options) (*model.Snapshot, Stats, error) {
	idx, err := build(r, opts)
	if err != nil {
		return nil, Stats{}, err
	}
	node := idx.tree.Right()
	if node == nil {
		return nil, idx.stats, nil
	}
	snap := toSnapshot(node.Key.(int64), node.Value.(*tickRows))
	return &snap, idx.stats, nil
}

// ParseHistory returns one snapshot per tick, in ascending tick order.
func ParseHistory(r io.Reader, opts Options) ([]model.Snapshot, Stats, error) {
	idx, err := build(r, opts)
	if err != nil {
		return nil, Stats{}, err
	}
	out := make([]model.Snapshot, 0, idx.tree.Size())
	it := idx.tree.Iterator()
	for it.Next() {
		out = append(out, toSnapshot(it.Key().(int64), it.Value().(*tickRows)))
	}
	return out, idx.stats, nil
}

func build(r io.Reader, opts Options) (*index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	idx := &index{tree: redblacktree.NewWith(utils.Int64Comparator)}

	// The producer appends line by line; an unterminated last line is
	// still being written and is not consumed yet.
	if n := bytes.LastIndexByte(data, '\n'); n < len(data)-1 {
		idx.stats.PartialTrailer = true
		data = data[:n+1]
	}
	if len(data) == 0 {
		return idx, nil
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := resolveColumns(header)
	switch {
	case cols.tick < 0:
		idx.stats.MissingColumn = "tick"
	case cols.taskID < 0:
		idx.stats.MissingColumn = "task_id"
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				idx.stats.MalformedRows++
				continue
			}
			return nil, err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		idx.stats.Rows++
		idx.add(rec, cols, opts)
	}
	return idx, nil
}

func (idx *index) add(rec []string, cols columns, opts Options) {
	tick, ok := field(rec, cols.tick)
	if !ok {
		idx.stats.SkippedTick++
		return
	}
	t, err := strconv.ParseInt(tick, 10, 64)
	if err != nil || t < 0 {
		idx.stats.SkippedTick++
		return
	}
	taskRaw, _ := field(rec, cols.taskID)
	id, err := strconv.ParseInt(taskRaw, 10, 64)
	if err != nil || id < 0 {
		idx.stats.SkippedTaskID++
		return
	}

	defaulted := false
	intField := func(col int, def int64) int64 {
		v, ok := parseInt(rec, col)
		if !ok {
			defaulted = defaulted || col >= 0
			return def
		}
		return v
	}
	obs := model.Observation{
		Tick:            model.Tick(t),
		TaskID:          model.TaskID(id),
		WaitingTime:     nonNegative(intField(cols.waiting, 0)),
		RemainingTime:   nonNegative(intField(cols.remaining, 0)),
		CurrentPriority: int(intField(cols.priority, int64(opts.DefaultPriority))),
		QueueLen:        nonNegative(intField(cols.queueLen, 0)),
	}
	cpu, ok := parseFloat(rec, cols.cpu)
	if !ok && cols.cpu >= 0 {
		defaulted = true
	}
	obs.CPUUsage = cpu
	if defaulted {
		idx.stats.Defaulted++
	}

	var rows *tickRows
	if v, found := idx.tree.Get(t); found {
		rows = v.(*tickRows)
	} else {
		rows = &tickRows{queueLen: obs.QueueLen, cpuUsage: obs.CPUUsage, byTask: make(map[model.TaskID]model.Observation)}
		idx.tree.Put(t, rows)
	}
	// A repeated task id within a tick is a rewrite; the later row wins.
	rows.byTask[obs.TaskID] = obs
}

func toSnapshot(tick int64, rows *tickRows) model.Snapshot {
	snap := model.Snapshot{
		Tick:         model.Tick(tick),
		QueueLen:     rows.queueLen,
		CPUUsage:     rows.cpuUsage,
		Observations: make([]model.Observation, 0, len(rows.byTask)),
	}
	for _, o := range rows.byTask {
		snap.Observations = append(snap.Observations, o)
	}
	sort.Slice(snap.Observations, func(i, j int) bool {
		return snap.Observations[i].TaskID < snap.Observations[j].TaskID
	})
	return snap
}

func field(rec []string, col int) (string, bool) {
	if col < 0 || col >= len(rec) {
		return "", false
	}
	v := strings.TrimSpace(rec[col])
	return v, v != ""
}

func parseInt(rec []string, col int) (int64, bool) {
	raw, ok := field(rec, col)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseFloat reads a utilization percentage, clamped to [0,100].
func parseFloat(rec []string, col int) (float64, bool) {
	raw, ok := field(rec, col)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return math.Max(0, math.Min(100, v)), true
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}

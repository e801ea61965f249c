package exchange

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/me/prioadvisor/pkg/model"
)

const (
	colTick        = "tick"
	colTaskID      = "task_id"
	colNewPriority = "new_priority"
	colValidUntil  = "valid_until"
)

// Encode writes the batch as a complete table: header, then one row per
// task in ascending task order. valid_until is emitted only when set.
func Encode(w io.Writer, b *model.Batch) error {
	withValidity := b.ValidUntil != nil
	for _, d := range b.Directives {
		if d.ValidUntil != nil {
			withValidity = true
		}
	}

	header := []string{colTick, colTaskID, colNewPriority}
	if withValidity {
		header = append(header, colValidUntil)
	}

	rows := make([]model.Directive, len(b.Directives))
	copy(rows, b.Directives)
	sort.Slice(rows, func(i, j int) bool { return rows[i].TaskID < rows[j].TaskID })

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, d := range rows {
		rec := []string{
			strconv.FormatInt(int64(b.Tick), 10),
			strconv.FormatInt(int64(d.TaskID), 10),
			strconv.Itoa(d.NewPriority),
		}
		if withValidity {
			vu := d.ValidUntil
			if vu == nil {
				vu = b.ValidUntil
			}
			if vu != nil {
				rec = append(rec, strconv.FormatInt(int64(*vu), 10))
			} else {
				rec = append(rec, "")
			}
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Decode parses a published table. It returns nil, nil for a header-only
// table and wraps model.ErrTornBatch for anything that is not one complete
// single-tick batch.
func Decode(r io.Reader) (*model.Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 || data[len(data)-1] != '\n' {
		return nil, fmt.Errorf("%w: missing final newline", model.ErrTornBatch)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrTornBatch, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: no header", model.ErrTornBatch)
	}

	pos := map[string]int{}
	for i, h := range records[0] {
		pos[strings.TrimSpace(h)] = i
	}
	for _, required := range []string{colTick, colTaskID, colNewPriority} {
		if _, ok := pos[required]; !ok {
			return nil, fmt.Errorf("%w: header lacks %s", model.ErrTornBatch, required)
		}
	}
	vuCol, hasVU := pos[colValidUntil]

	if len(records) == 1 {
		return nil, nil
	}

	b := &model.Batch{Tick: model.NoTick}
	seen := map[model.TaskID]bool{}
	for n, rec := range records[1:] {
		line := n + 2
		tick, err1 := strconv.ParseInt(rec[pos[colTick]], 10, 64)
		id, err2 := strconv.ParseInt(rec[pos[colTaskID]], 10, 64)
		prio, err3 := strconv.Atoi(rec[pos[colNewPriority]])
		if err := errors.Join(err1, err2, err3); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", model.ErrTornBatch, line, err)
		}
		if b.Tick == model.NoTick {
			b.Tick = model.Tick(tick)
		} else if model.Tick(tick) != b.Tick {
			return nil, fmt.Errorf("%w: line %d has tick %d, batch tick is %d", model.ErrTornBatch, line, tick, b.Tick)
		}
		if seen[model.TaskID(id)] {
			return nil, fmt.Errorf("%w: line %d repeats task %d", model.ErrTornBatch, line, id)
		}
		seen[model.TaskID(id)] = true

		d := model.Directive{Tick: model.Tick(tick), TaskID: model.TaskID(id), NewPriority: prio}
		if hasVU && rec[vuCol] != "" {
			v, err := strconv.ParseInt(rec[vuCol], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", model.ErrTornBatch, line, err)
			}
			vu := model.Tick(v)
			d.ValidUntil = &vu
			if b.ValidUntil == nil {
				b.ValidUntil = &vu
			}
		}
		b.Directives = append(b.Directives, d)
	}
	return b, nil
}

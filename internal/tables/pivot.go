package tables

import (
	"fmt"
	"sort"
	"strconv"
)

// cell accumulates the observations for one (timestamp, parameter) pair.
// A pair seen once keeps its original text for round-trip fidelity; a
// pair seen more than once renders as the arithmetic mean of its
// parseable values.
type cell struct {
	first  string
	count  int
	sum    float64
	parsed int
}

func (c *cell) add(text string) {
	if c.count == 0 {
		c.first = text
	}
	c.count++
	if v, err := strconv.ParseFloat(text, 64); err == nil {
		c.sum += v
		c.parsed++
	}
}

func (c *cell) render() string {
	if c.count == 1 {
		return c.first
	}
	if c.parsed == 0 {
		return ""
	}
	return strconv.FormatFloat(c.sum/float64(c.parsed), 'f', -1, 64)
}

// Pivot reshapes a long table (one row per timestamp/parameter pair)
// into a wide table: one row per unique timestamp, one column per unique
// parameter, duplicates aggregated by mean. A constant sensor column
// holding the location identifier sits immediately after the timestamp
// column. Parameter columns appear in order of first appearance; rows
// are ordered by ascending timestamp.
func Pivot(t *Table, sensorID string) (*Table, error) {
	tsIdx := t.ColumnIndex("datetime")
	if tsIdx < 0 {
		tsIdx = t.ColumnIndex("timestamp")
	}
	paramIdx := t.ColumnIndex("parameter")
	valIdx := t.ColumnIndex("value")

	if tsIdx < 0 || paramIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf("long table missing required columns, have %v", t.Columns)
	}

	var timestamps []string
	var params []string
	cells := make(map[string]map[string]*cell) // timestamp -> parameter -> cell
	seenParam := make(map[string]bool)

	for _, row := range t.Rows {
		ts, param, val := row[tsIdx], row[paramIdx], row[valIdx]

		byParam, ok := cells[ts]
		if !ok {
			byParam = make(map[string]*cell)
			cells[ts] = byParam
			timestamps = append(timestamps, ts)
		}
		if !seenParam[param] {
			seenParam[param] = true
			params = append(params, param)
		}
		c, ok := byParam[param]
		if !ok {
			c = &cell{}
			byParam[param] = c
		}
		c.add(val)
	}

	// ISO timestamps sort chronologically as strings.
	sort.Strings(timestamps)

	wide := &Table{
		Columns: append([]string{"datetime", "sensor"}, params...),
		Rows:    make([][]string, 0, len(timestamps)),
	}
	for _, ts := range timestamps {
		row := make([]string, 0, len(wide.Columns))
		row = append(row, ts, sensorID)
		for _, param := range params {
			if c, ok := cells[ts][param]; ok {
				row = append(row, c.render())
			} else {
				row = append(row, "")
			}
		}
		wide.Rows = append(wide.Rows, row)
	}
	return wide, nil
}

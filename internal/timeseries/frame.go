package timeseries

import (
	"fmt"
	"sort"
	"time"
)

// Frame is a multi-column table indexed by time (signal input, option metrics)
type Frame struct {
	Index   []time.Time
	Columns map[string][]*float64
}

// NewFrame creates an empty frame over index
func NewFrame(index []time.Time) *Frame {
	return &Frame{
		Index:   index,
		Columns: make(map[string][]*float64),
	}
}

// Set adds or replaces a column. NaN and ±Inf are stored as missing.
func (f *Frame) Set(name string, values []float64) error {
	if len(values) != len(f.Index) {
		return fmt.Errorf("column %q has %d values, index has %d", name, len(values), len(f.Index))
	}
	col := make([]*float64, len(values))
	for i, v := range values {
		col[i] = Float(v)
	}
	f.Columns[name] = col
	return nil
}

// Names returns the column names in sorted order
func (f *Frame) Names() []string {
	names := make([]string, 0, len(f.Columns))
	for name := range f.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Column returns one column as a series
func (f *Frame) Column(name string) (Series, bool) {
	col, ok := f.Columns[name]
	if !ok {
		return nil, false
	}
	s := make(Series, len(col))
	for i, v := range col {
		s[i] = Point{Time: f.Index[i], Value: v}
	}
	return s, true
}

// ToWire encodes the frame as {"$timestamp": [...], "<column>": [...]}
func (f *Frame) ToWire() map[string]interface{} {
	out := make(map[string]interface{}, len(f.Columns)+1)

	timestamps := make([]interface{}, len(f.Index))
	for i, t := range f.Index {
		timestamps[i] = t.UTC().Format(WireLayout)
	}
	out[TimestampKey] = timestamps

	for name, col := range f.Columns {
		values := make([]interface{}, len(col))
		for i, v := range col {
			values[i] = nullable(v)
		}
		out[name] = values
	}
	return out
}

// FrameFromWire decodes every numeric column of a wire frame. Non-numeric
// columns are reported as errors.
func FrameFromWire(raw map[string]interface{}) (*Frame, error) {
	index, err := parseTimes(raw[TimestampKey])
	if err != nil {
		return nil, err
	}

	f := NewFrame(index)
	for name, v := range raw {
		if name == TimestampKey {
			continue
		}
		col, err := parseValues(v, name)
		if err != nil {
			return nil, err
		}
		if len(col) != len(index) {
			return nil, fmt.Errorf("column %q has %d values, index has %d", name, len(col), len(index))
		}
		f.Columns[name] = col
	}
	return f, nil
}

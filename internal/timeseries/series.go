// Package timeseries holds the paired-array history encoding used by the
// framework API: {"$timestamp": [...], "$history": [...]}.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Wire keys
const (
	TimestampKey = "$timestamp"
	HistoryKey   = "$history"
)

// WireLayout is the timestamp format sent to the API
const WireLayout = "2006-01-02T15:04:05"

var parseLayouts = []string{
	WireLayout,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Point is one observation. A nil Value is a missing (null) observation.
type Point struct {
	Time  time.Time
	Value *float64
}

// Float returns a pointer to v, or nil when v is NaN or infinite
func Float(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Series is a date-ordered list of points
type Series []Point

// New pairs times with values. NaN and ±Inf become missing points.
func New(times []time.Time, values []float64) (Series, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("series length mismatch: %d timestamps, %d values", len(times), len(values))
	}
	s := make(Series, len(times))
	for i := range times {
		s[i] = Point{Time: times[i], Value: Float(values[i])}
	}
	s.Sort()
	return s, nil
}

// Sort orders points by time, keeping the input order of equal timestamps
func (s Series) Sort() {
	sort.SliceStable(s, func(i, j int) bool {
		return s[i].Time.Before(s[j].Time)
	})
}

// Len returns the number of points
func (s Series) Len() int {
	return len(s)
}

// Times returns the timestamps
func (s Series) Times() []time.Time {
	out := make([]time.Time, len(s))
	for i, p := range s {
		out[i] = p.Time
	}
	return out
}

// Values returns the values with missing points as NaN
func (s Series) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		if p.Value == nil {
			out[i] = math.NaN()
			continue
		}
		out[i] = *p.Value
	}
	return out
}

// First returns the earliest point
func (s Series) First() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[0], true
}

// Last returns the latest point
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// ToWire encodes the series as paired $timestamp / $history arrays
func (s Series) ToWire() map[string]interface{} {
	timestamps := make([]interface{}, len(s))
	history := make([]interface{}, len(s))
	for i, p := range s {
		timestamps[i] = p.Time.UTC().Format(WireLayout)
		history[i] = nullable(p.Value)
	}
	return map[string]interface{}{
		TimestampKey: timestamps,
		HistoryKey:   history,
	}
}

// FromWire decodes paired $timestamp / $history arrays into a sorted series
func FromWire(raw map[string]interface{}) (Series, error) {
	times, err := parseTimes(raw[TimestampKey])
	if err != nil {
		return nil, err
	}
	values, err := parseValues(raw[HistoryKey], HistoryKey)
	if err != nil {
		return nil, err
	}
	if len(times) != len(values) {
		return nil, fmt.Errorf("history length mismatch: %d timestamps, %d values", len(times), len(values))
	}

	s := make(Series, len(times))
	for i := range times {
		s[i] = Point{Time: times[i], Value: values[i]}
	}
	s.Sort()
	return s, nil
}

// ParseTime accepts the API's date and date-time layouts
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func parseTimes(v interface{}) ([]time.Time, error) {
	if v == nil {
		return nil, fmt.Errorf("history has no %s array", TimestampKey)
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s is not an array", TimestampKey)
	}

	out := make([]time.Time, len(arr))
	for i, item := range arr {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not a string", TimestampKey, i)
		}
		t, err := ParseTime(str)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func parseValues(v interface{}, key string) ([]*float64, error) {
	if v == nil {
		return nil, fmt.Errorf("history has no %s array", key)
	}
	arr, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("%s is not an array", key)
	}

	out := make([]*float64, len(arr))
	for i, item := range arr {
		switch n := item.(type) {
		case nil:
			out[i] = nil
		case float64:
			out[i] = Float(n)
		case int:
			out[i] = Float(float64(n))
		default:
			return nil, fmt.Errorf("%s[%d] is not a number: %v", key, i, item)
		}
	}
	return out, nil
}

func nullable(v *float64) interface{} {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return *v
}

// BusinessDays returns n consecutive weekdays starting at start (or the next weekday)
func BusinessDays(start time.Time, n int) []time.Time {
	out := make([]time.Time, 0, n)
	d := start
	for len(out) < n {
		if d.Weekday() != time.Saturday && d.Weekday() != time.Sunday {
			out = append(out, d)
		}
		d = d.AddDate(0, 0, 1)
	}
	return out
}

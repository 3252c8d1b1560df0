package sources

import (
	"time"

	"github.com/sudorandom/flowscope/pkg/telemetry"
)

const (
	DefaultInterval = 5 * time.Minute
	MinInterval     = time.Minute
	MaxInterval     = time.Hour
)

// DatasetStart and DatasetEnd bound the published dataset, in local time.
var (
	DatasetStart = time.Date(2012, 4, 5, 17, 51, 26, 0, time.Local)
	DatasetEnd   = time.Date(2012, 4, 7, 9, 0, 4, 0, time.Local)
)

// Window is the time interval currently being analysed. Its methods return
// the moved window and never leave [Min, Max].
type Window struct {
	Start, End time.Time
	Interval   time.Duration
	Min, Max   time.Time
}

// NewWindow opens an interval-long window at start inside [lo, hi].
func NewWindow(start time.Time, interval time.Duration, lo, hi time.Time) Window {
	w := Window{Interval: clampInterval(interval), Min: lo, Max: hi}
	return w.at(start)
}

// DefaultWindow is the first DefaultInterval of the dataset.
func DefaultWindow() Window {
	return NewWindow(DatasetStart, DefaultInterval, DatasetStart, DatasetEnd)
}

func clampInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultInterval
	}
	return max(MinInterval, min(MaxInterval, d))
}

func (w Window) at(start time.Time) Window {
	if start.After(w.Max.Add(-w.Interval)) {
		start = w.Max.Add(-w.Interval)
	}
	if start.Before(w.Min) {
		start = w.Min
	}
	w.Start = start
	w.End = start.Add(w.Interval)
	if w.End.After(w.Max) {
		w.End = w.Max
	}
	return w
}

// Forward moves one interval later.
func (w Window) Forward() Window { return w.at(w.Start.Add(w.Interval)) }

// Backward moves one interval earlier.
func (w Window) Backward() Window { return w.at(w.Start.Add(-w.Interval)) }

// Day jumps to the start of the given day, or the dataset start if later.
func (w Window) Day(day time.Time) Window {
	y, m, d := day.Date()
	return w.at(time.Date(y, m, d, 0, 0, 0, 0, w.Min.Location()))
}

// WithInterval changes the interval length, clamped to 1-60 minutes, keeping Start.
func (w Window) WithInterval(d time.Duration) Window {
	w.Interval = clampInterval(d)
	return w.at(w.Start)
}

func (w Window) AtStart() bool { return !w.Start.After(w.Min) }

func (w Window) AtEnd() bool { return !w.End.Before(w.Max) }

// Days lists the calendar days the bounds touch, for a day selector.
func (w Window) Days() []time.Time {
	var days []time.Time
	y, m, d := w.Min.Date()
	for day := time.Date(y, m, d, 0, 0, 0, 0, w.Min.Location()); !day.After(w.Max); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

func (w Window) String() string {
	return w.Start.Format(telemetry.ISOLocal) + " - " + w.End.Format(telemetry.ISOLocal)
}

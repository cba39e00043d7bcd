package scheduler

import (
	"fmt"
	"log/slog"
	"time"
)

// catchUpGrace is how long after a window closes a forced run may still fire.
const catchUpGrace = 10 * time.Minute

// PeakHourWindow is a configured daily time range during which devices are left alone.
// Start and End use the "HH:mm" layout; End before Start wraps midnight.
type PeakHourWindow struct {
	Name                string
	Start               string
	End                 string
	RunImmediatelyAfter bool
}

type clockTime struct {
	hour, minute int
}

// offset is the clock time as a duration since midnight.
func (c clockTime) offset() time.Duration {
	return time.Duration(c.hour)*time.Hour + time.Duration(c.minute)*time.Minute
}

// timeOfDay is the full-precision duration of now since its midnight.
func timeOfDay(now time.Time) time.Duration {
	return time.Duration(now.Hour())*time.Hour +
		time.Duration(now.Minute())*time.Minute +
		time.Duration(now.Second())*time.Second +
		time.Duration(now.Nanosecond())
}

func parseClock(value string) (clockTime, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return clockTime{}, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	return clockTime{hour: parsed.Hour(), minute: parsed.Minute()}, nil
}

type parsedWindow struct {
	name       string
	start, end clockTime
	catchUp    bool
}

func (w parsedWindow) contains(tod time.Duration) bool {
	start, end := w.start.offset(), w.end.offset()
	if start <= end {
		return tod >= start && tod <= end
	}
	return tod >= start || tod <= end
}

// lastEnd returns the most recent occurrence of the window end at or before now.
func (w parsedWindow) lastEnd(now time.Time) time.Time {
	end := time.Date(now.Year(), now.Month(), now.Day(), w.end.hour, w.end.minute, 0, 0, now.Location())
	if end.After(now) {
		end = end.AddDate(0, 0, -1)
	}
	return end
}

// PeakHourEvaluator answers peak-hour questions for a fixed set of windows.
// Windows with malformed times are logged once and never match.
type PeakHourEvaluator struct {
	windows []parsedWindow
}

// NewPeakHourEvaluator parses windows, reporting malformed entries through logger.
func NewPeakHourEvaluator(windows []PeakHourWindow, logger *slog.Logger) *PeakHourEvaluator {
	if logger == nil {
		logger = slog.Default()
	}
	evaluator := &PeakHourEvaluator{windows: make([]parsedWindow, 0, len(windows))}
	for _, window := range windows {
		start, err := parseClock(window.Start)
		if err == nil {
			var end clockTime
			end, err = parseClock(window.End)
			if err == nil {
				evaluator.windows = append(evaluator.windows, parsedWindow{
					name:    window.Name,
					start:   start,
					end:     end,
					catchUp: window.RunImmediatelyAfter,
				})
				continue
			}
		}
		logger.Warn("ignoring malformed peak hour window",
			"window", window.Name,
			"start", window.Start,
			"end", window.End,
			"error", err,
		)
	}
	return evaluator
}

// IsPeakHour reports whether now falls inside a window and names the first match.
// Bounds are inclusive; 17:00:30 is outside a window ending at 17:00.
func (e *PeakHourEvaluator) IsPeakHour(now time.Time) (bool, string) {
	if e == nil {
		return false, ""
	}
	tod := timeOfDay(now)
	for _, window := range e.windows {
		if window.contains(tod) {
			return true, window.name
		}
	}
	return false, ""
}

// ShouldCatchUp reports whether a window flagged RunImmediatelyAfter closed
// within the last ten minutes without a run since it closed.
func (e *PeakHourEvaluator) ShouldCatchUp(lastRun, now time.Time) (bool, string) {
	if e == nil {
		return false, ""
	}
	for _, window := range e.windows {
		if !window.catchUp {
			continue
		}
		end := window.lastEnd(now)
		if now.Before(end) || now.After(end.Add(catchUpGrace)) {
			continue
		}
		if lastRun.Before(end) {
			return true, window.name
		}
	}
	return false, ""
}

package scheduling

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/noah-isme/volunteer-scheduler-api/internal/models"
)

// Window is a concrete shift time range in UTC.
type Window struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// Recurrence describes a posting schedule to expand.
type Recurrence struct {
	StartDate models.Date
	EndDate   models.Date
	Interval  models.RecurrenceInterval
	Blocks    []models.TimeBlock
	Location  *time.Location
}

// IntervalWeeks returns the repeat period of interval in weeks, 0 for NONE.
func IntervalWeeks(interval models.RecurrenceInterval) (int, error) {
	switch interval {
	case models.RecurrenceNone:
		return 0, nil
	case models.RecurrenceWeekly:
		return 1, nil
	case models.RecurrenceBiweekly:
		return 2, nil
	case models.RecurrenceMonthly:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
}

// ExpandShifts turns template time blocks into concrete shifts. Each block is
// anchored to its weekday in the Sunday-starting week that contains StartDate
// and repeated every interval. Occurrences that start before StartDate or end
// after the end of EndDate are dropped. The result is sorted and deduplicated.
func ExpandShifts(r Recurrence) ([]Window, error) {
	if r.StartDate.After(r.EndDate) {
		return nil, ErrInvalidDateRange
	}
	weeks, err := IntervalWeeks(r.Interval)
	if err != nil {
		return nil, err
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}

	windowStart := r.StartDate.In(loc)
	windowEnd := r.EndDate.AddDays(1).In(loc)
	anchorWeek := r.StartDate.AddDays(-int(r.StartDate.Weekday()))

	var windows []Window
	for _, block := range r.Blocks {
		startClock, endClock, err := blockClocks(block)
		if err != nil {
			return nil, err
		}

		day := anchorWeek.AddDays(int(block.Weekday))
		occurrences, err := occurrencesOf(startClock.on(day, loc), windowEnd, weeks)
		if err != nil {
			return nil, err
		}
		for _, start := range occurrences {
			end := endClock.on(models.DateOf(start.In(loc)), loc)
			if start.Before(windowStart) || end.After(windowEnd) {
				continue
			}
			windows = append(windows, Window{Start: start.UTC(), End: end.UTC()})
		}
	}

	return normalizeWindows(windows), nil
}

func occurrencesOf(first, until time.Time, weeks int) ([]time.Time, error) {
	opt := rrule.ROption{
		Freq:    rrule.WEEKLY,
		Dtstart: first,
	}
	if weeks == 0 {
		opt.Count = 1
	} else {
		opt.Interval = weeks
		opt.Until = until
	}
	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("build recurrence rule: %w", err)
	}
	return rule.All(), nil
}

func normalizeWindows(windows []Window) []Window {
	if len(windows) == 0 {
		return []Window{}
	}
	sort.Slice(windows, func(i, j int) bool {
		if !windows[i].Start.Equal(windows[j].Start) {
			return windows[i].Start.Before(windows[j].Start)
		}
		return windows[i].End.Before(windows[j].End)
	})
	out := windows[:1]
	for _, w := range windows[1:] {
		last := out[len(out)-1]
		if w.Start.Equal(last.Start) && w.End.Equal(last.End) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24h "HH:MM" string.
func ParseClock(raw string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) != 2 || len(parts[0]) == 0 || len(parts[0]) > 2 || len(parts[1]) != 2 ||
		!allDigits(parts[0]) || !allDigits(parts[1]) {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) on(d models.Date, loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, c.Hour, c.Minute, 0, 0, loc)
}

// ValidateTimeBlocks checks every template block without expanding it.
func ValidateTimeBlocks(blocks []models.TimeBlock) error {
	for _, block := range blocks {
		if _, _, err := blockClocks(block); err != nil {
			return err
		}
	}
	return nil
}

func blockClocks(block models.TimeBlock) (Clock, Clock, error) {
	if block.Weekday < time.Sunday || block.Weekday > time.Saturday {
		return Clock{}, Clock{}, fmt.Errorf("%w: weekday %d", ErrInvalidTimeBlock, block.Weekday)
	}
	start, err := ParseClock(block.Start)
	if err != nil {
		return Clock{}, Clock{}, err
	}
	end, err := ParseClock(block.End)
	if err != nil {
		return Clock{}, Clock{}, err
	}
	if start.minutes() >= end.minutes() {
		return Clock{}, Clock{}, fmt.Errorf("%w: %s-%s", ErrInvalidTimeBlock, block.Start, block.End)
	}
	return start, end, nil
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

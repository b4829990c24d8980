// Package cron computes task fire times and runs the scheduler loop.
package cron

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

// ErrInvalidSchedule is returned for unparseable schedule values.
var ErrInvalidSchedule = errors.New("invalid schedule")

// naive timestamp layouts interpreted in the configured timezone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// maxIntervalMillis is the largest interval representable as a time.Duration.
const maxIntervalMillis = int64(math.MaxInt64 / time.Millisecond)

// Schedule is a validated schedule.
type Schedule struct {
	Kind   store.ScheduleKind
	Value  string
	period time.Duration
	at     time.Time
	loc    *time.Location
}

// Parse validates kind/value. Cron expressions are evaluated in loc.
func Parse(kind store.ScheduleKind, value string, loc *time.Location) (Schedule, error) {
	if loc == nil {
		loc = time.Local
	}
	value = strings.TrimSpace(value)
	s := Schedule{Kind: kind, Value: value, loc: loc}
	switch kind {
	case store.ScheduleCron:
		if value == "" || !gronx.New().IsValid(value) {
			return s, fmt.Errorf("%w: cron expression %q", ErrInvalidSchedule, value)
		}
	case store.ScheduleInterval:
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil || ms <= 0 {
			return s, fmt.Errorf("%w: interval must be a positive number of milliseconds, got %q", ErrInvalidSchedule, value)
		}
		if ms > maxIntervalMillis {
			return s, fmt.Errorf("%w: interval %q is too large", ErrInvalidSchedule, value)
		}
		s.period = time.Duration(ms) * time.Millisecond
	case store.ScheduleOnce:
		at, err := parseTimestamp(value, loc)
		if err != nil {
			return s, err
		}
		s.at = at
	default:
		return s, fmt.Errorf("%w: unknown schedule type %q", ErrInvalidSchedule, kind)
	}
	return s, nil
}

func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidSchedule, value)
}

// Initial returns the first fire time of a newly created task. A past once
// timestamp is clamped to createdAt so the task fires on the next tick.
func (s Schedule) Initial(now, createdAt time.Time) (time.Time, error) {
	switch s.Kind {
	case store.ScheduleOnce:
		if s.at.Before(createdAt) {
			return createdAt, nil
		}
		return s.at, nil
	default:
		return s.Next(now)
	}
}

// Next returns the fire time strictly after now for cron and interval
// schedules. Once schedules have no next fire.
func (s Schedule) Next(now time.Time) (time.Time, error) {
	switch s.Kind {
	case store.ScheduleCron:
		return nextCron(s.Value, now, s.loc)
	case store.ScheduleInterval:
		next := now.Add(s.period)
		if !next.After(now) {
			return time.Time{}, fmt.Errorf("%w: interval %q does not advance", ErrInvalidSchedule, s.Value)
		}
		return next, nil
	default:
		return time.Time{}, fmt.Errorf("%w: %s schedules do not repeat", ErrInvalidSchedule, s.Kind)
	}
}

// nextCron finds the first tick strictly after now. gronx works at second
// resolution, so a tick equal to now is stepped past.
func nextCron(expr string, now time.Time, loc *time.Location) (time.Time, error) {
	ref := now.In(loc)
	for i := 0; i < 3; i++ {
		next, err := gronx.NextTickAfter(expr, ref, false)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSchedule, err)
		}
		if next.After(now) {
			return next, nil
		}
		ref = next.Add(time.Second)
	}
	return time.Time{}, fmt.Errorf("%w: no tick after %s for %q", ErrInvalidSchedule, now.Format(time.RFC3339), expr)
}

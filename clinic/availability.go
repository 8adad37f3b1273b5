/*
availability.go - Open appointment slot computation

PURPOSE:
  Given a doctor's weekly schedule and the already-booked times for a date,
  produce the free slot start times at a fixed 30-minute step.

ALGORITHM:
  1. Match schedule entries against the date's weekday (Sunday=0)
  2. Generate candidates from start (inclusive) to end (exclusive)
  3. Drop candidates booked by a Scheduled appointment
  4. Sort lexicographically on "HH:MM" and dedupe across windows

A slot is a single instant, not a duration: no conflict check against the
next booking's length. A date with no matching schedule yields an empty
list; the caller falls back to free-text time entry. Windows spanning
midnight are unsupported (validated at the edit boundary).
*/
package clinic

import (
	"fmt"
	"sort"
	"time"
)

// SlotStepMinutes is the fixed granularity of bookable slots.
const SlotStepMinutes = 30

// AvailableSlots returns the free "HH:MM" slot start times for a date, given
// the doctor's schedule entries and the times already booked by Scheduled
// appointments on that date. The result is sorted and duplicate-free, even
// when multiple schedule windows for the same weekday overlap.
func AvailableSlots(schedules []DoctorSchedule, date time.Time, booked []string) []string {
	day := date.Weekday()

	taken := make(map[string]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	seen := make(map[string]bool)
	slots := []string{}
	for _, s := range schedules {
		if s.DayOfWeek != day {
			continue
		}
		start, err := parseClock(s.StartTime)
		if err != nil {
			continue
		}
		end, err := parseClock(s.EndTime)
		if err != nil {
			continue
		}
		for m := start; m < end; m += SlotStepMinutes {
			slot := formatClock(m)
			if taken[slot] || seen[slot] {
				continue
			}
			seen[slot] = true
			slots = append(slots, slot)
		}
	}

	sort.Strings(slots)
	return slots
}

// ScheduledOn reports whether any schedule entry covers the given weekday.
// When none does, availability is undefined for that date and callers accept
// free-text booking times instead of enforcing slots.
func ScheduledOn(schedules []DoctorSchedule, day time.Weekday) bool {
	for _, s := range schedules {
		if s.DayOfWeek == day {
			return true
		}
	}
	return false
}

// ValidateSchedules checks a schedule edit: every window must end after it
// starts, times must parse, and a weekday may appear at most once. The
// availability calculator itself does not re-validate.
func ValidateSchedules(schedules []DoctorSchedule) error {
	days := make(map[time.Weekday]bool, len(schedules))
	for _, s := range schedules {
		start, err := parseClock(s.StartTime)
		if err != nil {
			return &InvalidScheduleError{DayOfWeek: s.DayOfWeek, Reason: fmt.Sprintf("bad start time %q", s.StartTime)}
		}
		end, err := parseClock(s.EndTime)
		if err != nil {
			return &InvalidScheduleError{DayOfWeek: s.DayOfWeek, Reason: fmt.Sprintf("bad end time %q", s.EndTime)}
		}
		if end <= start {
			return &InvalidScheduleError{DayOfWeek: s.DayOfWeek, Reason: "end time must be after start time"}
		}
		if days[s.DayOfWeek] {
			return &InvalidScheduleError{DayOfWeek: s.DayOfWeek, Reason: "duplicate day of week"}
		}
		days[s.DayOfWeek] = true
	}
	return nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q out of range", s)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

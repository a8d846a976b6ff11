package service

import (
	"time"

	"studio-api/internal/domain"
)

// SlotRules describe the studio's bookable day
type SlotRules struct {
	Location    *time.Location
	OpeningHour int
	ClosingHour int
	Interval    time.Duration
}

// DayBounds returns opening and closing time of the calendar day of date in the studio zone
func (r SlotRules) DayBounds(date time.Time) (time.Time, time.Time) {
	d := date.In(r.Location)
	y, m, day := d.Date()
	return time.Date(y, m, day, r.OpeningHour, 0, 0, 0, r.Location),
		time.Date(y, m, day, r.ClosingHour, 0, 0, 0, r.Location)
}

// ComputeSlots lists start times on the day of date where a service of the
// given length fits before closing, starts no earlier than now, and overlaps
// none of the busy intervals.
func ComputeSlots(rules SlotRules, date time.Time, length time.Duration, busy []domain.Interval, now time.Time) []time.Time {
	slots := []time.Time{}
	if length <= 0 || rules.Interval <= 0 {
		return slots
	}

	open, closing := rules.DayBounds(date)
	for start := open; !start.Add(length).After(closing); start = start.Add(rules.Interval) {
		if start.Before(now) {
			continue
		}
		candidate := domain.Interval{Start: start, End: start.Add(length)}
		free := true
		for _, b := range busy {
			if candidate.Overlaps(b) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, start)
		}
	}
	return slots
}

func containsSlot(slots []time.Time, t time.Time) bool {
	for _, s := range slots {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

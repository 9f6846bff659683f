package shipment

import (
	"fmt"
	"sort"
	"time"
)

// DayLayout is the calendar-day format used for agenda queries.
const DayLayout = "2006-01-02"

// DayOf returns the YYYY-MM-DD prefix of an ISO-8601 timestamp.
//
//	DayOf("2026-01-20T10:45:00.000Z") == "2026-01-20"
func DayOf(iso string) string {
	if len(iso) < len(DayLayout) {
		return iso
	}
	return iso[:len(DayLayout)]
}

// ValidateDay checks that day is a real calendar day in YYYY-MM-DD form.
func ValidateDay(day string) error {
	if _, err := time.Parse(DayLayout, day); err != nil {
		return fmt.Errorf("invalid day %q (want YYYY-MM-DD): %w", day, err)
	}
	return nil
}

// GroupByDay buckets shipments by calendar day, keeping input order within
// each bucket.
func GroupByDay(rows []Shipment) map[string][]Shipment {
	out := make(map[string][]Shipment)
	for _, s := range rows {
		day := s.Day()
		out[day] = append(out[day], s)
	}
	return out
}

// Days returns the keys of a GroupByDay result in ascending order.
func Days(groups map[string][]Shipment) []string {
	days := make([]string, 0, len(groups))
	for day := range groups {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// DayMarks summarizes one agenda day for calendar dots.
type DayMarks struct {
	HasActive  bool
	HasPending bool
	Count      int
}

// MarkDays computes the per-day markers a calendar shows: whether the day has
// any Active or Pending task.
func MarkDays(rows []Shipment) map[string]DayMarks {
	marks := make(map[string]DayMarks)
	for _, s := range rows {
		m := marks[s.Day()]
		m.Count++
		switch s.Status {
		case StatusActive:
			m.HasActive = true
		case StatusPending:
			m.HasPending = true
		}
		marks[s.Day()] = m
	}
	return marks
}

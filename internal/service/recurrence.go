package service

import (
	"log"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/tazhate/eventme/internal/domain"
)

// maxOccurrences caps the instances expanded from one master
const maxOccurrences = 1000

// ExpandEvents replaces recurring masters with their occurrences in [from, to).
// Rules are evaluated in loc, so wall-clock times and weekdays hold across
// DST changes. Single events outside the range are dropped.
func ExpandEvents(events []*domain.Event, from, to time.Time, loc *time.Location) []*domain.Event {
	if loc == nil {
		loc = time.UTC
	}
	var result []*domain.Event
	for _, e := range events {
		if !e.IsRecurring() {
			if e.Overlaps(from, to) {
				result = append(result, e)
			}
			continue
		}

		starts, err := occurrenceStarts(e, from, to, loc)
		if err != nil {
			log.Printf("Error expanding event %s (%q): %v", e.ID, e.RRule, err)
			if e.Overlaps(from, to) {
				result = append(result, e)
			}
			continue
		}
		for _, start := range starts {
			occ := e.Occurrence(start)
			if occ.Overlaps(from, to) {
				result = append(result, occ)
			}
		}
	}
	return result
}

// occurrenceStarts returns the starts of the master's instances that can intersect [from, to)
func occurrenceStarts(e *domain.Event, from, to time.Time, loc *time.Location) ([]time.Time, error) {
	r, err := rrule.StrToRRule(e.RRule)
	if err != nil {
		return nil, err
	}
	r.DTStart(e.Start.In(loc))

	var set rrule.Set
	set.RRule(r)
	for _, ex := range e.ExDates {
		set.ExDate(ex.In(loc))
	}

	// Instances that started before from may still be running
	after := from.Add(-e.Duration()).In(loc)
	starts := set.Between(after, to.In(loc), true)
	if len(starts) > maxOccurrences {
		log.Printf("Event %s has more than %d occurrences in range, truncating", e.ID, maxOccurrences)
		starts = starts[:maxOccurrences]
	}
	return starts, nil
}

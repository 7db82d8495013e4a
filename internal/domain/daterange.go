package domain

import (
	"errors"
	"fmt"
	"time"
)

// DateLayout is the calendar date format used in run files and file names.
const DateLayout = "2006-01-02"

// Day is the span unit for chunking.
const Day = 24 * time.Hour

// DateRange is an inclusive calendar window [Start, End].
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two YYYY-MM-DD dates.
func ParseDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse start date: %w", err)
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("parse end date: %w", err)
	}
	r := DateRange{Start: s, End: e}
	return r, r.Validate()
}

// Validate requires Start <= End.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errors.New("date range requires start and end")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("end date %s is before start date %s", r.End.Format(DateLayout), r.Start.Format(DateLayout))
	}
	return nil
}

// SubRange is one chunk of a DateRange. Adjacent chunks share a boundary
// instant: a chunk covers [Start, End) unless it is Final, in which case it
// covers [Start, End].
type SubRange struct {
	Index int
	Start time.Time
	End   time.Time
	Final bool
}

// Whole returns the range as a single final chunk.
func (r DateRange) Whole() []SubRange {
	return []SubRange{{Index: 0, Start: r.Start, End: r.End, Final: true}}
}

// Split chunks the range into spans of at most span. Each chunk ends at
// min(start+span, End) and the next chunk starts where the previous one
// ended, so the chunks cover [Start, End] with no gaps. A non-positive span
// returns the whole range.
func (r DateRange) Split(span time.Duration) []SubRange {
	if span <= 0 || !r.End.After(r.Start) {
		return r.Whole()
	}
	var out []SubRange
	for start := r.Start; start.Before(r.End); {
		end := start.Add(span)
		if end.After(r.End) {
			end = r.End
		}
		out = append(out, SubRange{Index: len(out), Start: start, End: end})
		start = end
	}
	out[len(out)-1].Final = true
	return out
}

// SplitYears chunks the range on calendar year boundaries.
func (r DateRange) SplitYears() []SubRange {
	var out []SubRange
	for start := r.Start; !start.After(r.End); {
		next := time.Date(start.Year()+1, time.January, 1, 0, 0, 0, 0, start.Location())
		end := next
		if !next.Before(r.End) {
			end = r.End
		}
		out = append(out, SubRange{Index: len(out), Start: start, End: end})
		if !next.Before(r.End) {
			break
		}
		start = next
	}
	out[len(out)-1].Final = true
	return out
}

// String renders a chunk as "YYYY-MM-DD..YYYY-MM-DD".
func (s SubRange) String() string {
	return s.Start.Format(DateLayout) + ".." + s.End.Format(DateLayout)
}

// LastInstant is the last moment a request for this chunk should cover. For a
// non-final chunk that is one minute before End; for the final chunk it is the
// end of End's day.
func (s SubRange) LastInstant() time.Time {
	if s.Final {
		return time.Date(s.End.Year(), s.End.Month(), s.End.Day(), 23, 59, 0, 0, s.End.Location())
	}
	return s.End.Add(-time.Minute)
}

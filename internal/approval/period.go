package approval

import (
	"encoding/json"
	"time"

	"github.com/pesio-ai/be-timesheet-approvals/internal/errors"
)

// DateLayout is the canonical calendar-date form used in keys and on the wire.
const DateLayout = "2006-01-02"

// Date returns midnight UTC on the given day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its calendar day in t's location and returns it as
// midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, errors.InvalidInput("date", "expected YYYY-MM-DD")
	}
	return t, nil
}

// Period is an inclusive calendar range supplied by the caller.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a period from two days, normalised to midnight UTC.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: Day(start), End: Day(end)}
}

// ParsePeriod parses two YYYY-MM-DD strings.
func ParsePeriod(start, end string) (Period, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return Period{}, errors.InvalidInput("period.start_date", "expected YYYY-MM-DD")
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return Period{}, errors.InvalidInput("period.end_date", "expected YYYY-MM-DD")
	}
	p := Period{Start: s, End: e}
	return p, p.Validate()
}

// Validate rejects empty and inverted ranges.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return errors.InvalidInput("period", "start and end dates are required")
	}
	if Day(p.End).Before(Day(p.Start)) {
		return errors.InvalidInput("period", "end date is before start date")
	}
	return nil
}

// Contains reports whether d falls within [Start, End].
func (p Period) Contains(d time.Time) bool {
	day := Day(d)
	return !day.Before(Day(p.Start)) && !day.After(Day(p.End))
}

func (p Period) String() string {
	return p.Start.Format(DateLayout) + ".." + p.End.Format(DateLayout)
}

type periodJSON struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (p Period) MarshalJSON() ([]byte, error) {
	return json.Marshal(periodJSON{
		StartDate: p.Start.Format(DateLayout),
		EndDate:   p.End.Format(DateLayout),
	})
}

func (p *Period) UnmarshalJSON(data []byte) error {
	var raw periodJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParsePeriod(raw.StartDate, raw.EndDate)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

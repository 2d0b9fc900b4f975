package entry

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// DateLayout is the wire and storage format of an entry date.
const DateLayout = "2006-01-02"

// Date is a calendar day with no time-of-day or zone component.
type Date struct {
	t time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(raw string) (Date, error) {
	raw = strings.TrimSpace(raw)
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return Date{}, apperrors.Validation("entryDate", "must be a calendar date in YYYY-MM-DD form")
	}
	return Date{t: t}, nil
}

// MustParseDate is ParseDate for literals known to be valid.
func MustParseDate(raw string) Date {
	d, err := ParseDate(raw)
	if err != nil {
		panic(err)
	}
	return d
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Today returns the current day according to clock.
func Today(clock func() time.Time) Date {
	if clock == nil {
		clock = time.Now
	}
	return DateOf(clock())
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.t }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }

func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil || *raw == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(*raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

package entry

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// StepOneDraft is the validated first-screen payload carried between steps.
type StepOneDraft struct {
	Date             Date `json:"selectedDate"`
	SaidNoCount      int  `json:"saidNoCount"`
	AskedHelpCount   int  `json:"askedHelpCount"`
	ChoseForJoyCount int  `json:"choseForJoyCount"`
	TookRest         bool `json:"tookRest"`
	DidCook          bool `json:"didCook"`
	DidExercise      bool `json:"didExercise"`
}

// DefaultDraft returns a draft with every counter and flag at its default.
func DefaultDraft(date Date) StepOneDraft {
	return StepOneDraft{Date: date}
}

// DraftFromEntry copies counters and flags of an existing entry.
func DraftFromEntry(e DailyEntry) StepOneDraft {
	return StepOneDraft{
		Date:             e.Date,
		SaidNoCount:      e.SaidNoCount,
		AskedHelpCount:   e.AskedHelpCount,
		ChoseForJoyCount: e.ChoseForJoyCount,
		TookRest:         e.TookRest,
		DidCook:          e.DidCook,
		DidExercise:      e.DidExercise,
	}
}

// Patch sets counters and flags from the draft.
func (d StepOneDraft) Patch() Patch {
	return Patch{
		SaidNoCount:      &d.SaidNoCount,
		AskedHelpCount:   &d.AskedHelpCount,
		ChoseForJoyCount: &d.ChoseForJoyCount,
		TookRest:         &d.TookRest,
		DidCook:          &d.DidCook,
		DidExercise:      &d.DidExercise,
	}
}

// DateOr returns the draft's date, or fallback when the draft has none.
func (d StepOneDraft) DateOr(fallback Date) Date {
	if d.Date.IsZero() {
		return fallback
	}
	return d.Date
}

// RawCount keeps a counter exactly as the client sent it, number or string,
// so ParseStepOne can reject fractions and junk with a field error.
type RawCount string

func (c *RawCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = RawCount(s)
		return nil
	}
	*c = RawCount(data)
	return nil
}

// StepOneInput is the untrusted first-screen form.
type StepOneInput struct {
	SaidNoCount      RawCount `json:"saidNoCount"`
	AskedHelpCount   RawCount `json:"askedHelpCount"`
	ChoseForJoyCount RawCount `json:"choseForJoyCount"`
	TookRest         bool     `json:"tookRest"`
	DidCook          bool     `json:"didCook"`
	DidExercise      bool     `json:"didExercise"`
	SelectedDate     string   `json:"selectedDate"`
}

// ParseStepOne validates the form. Missing counters default to 0 and a
// missing date defaults to today.
func ParseStepOne(in StepOneInput, now func() time.Time) (StepOneDraft, error) {
	var fields []apperrors.FieldError
	count := func(field string, raw RawCount) int {
		n, msg := parseCount(raw)
		if msg != "" {
			fields = append(fields, apperrors.FieldError{Field: field, Message: msg})
		}
		return n
	}

	d := StepOneDraft{
		SaidNoCount:      count("saidNoCount", in.SaidNoCount),
		AskedHelpCount:   count("askedHelpCount", in.AskedHelpCount),
		ChoseForJoyCount: count("choseForJoyCount", in.ChoseForJoyCount),
		TookRest:         in.TookRest,
		DidCook:          in.DidCook,
		DidExercise:      in.DidExercise,
	}

	if strings.TrimSpace(in.SelectedDate) == "" {
		d.Date = Today(now)
	} else if date, err := ParseDate(in.SelectedDate); err != nil {
		fields = append(fields, apperrors.FieldError{Field: "selectedDate", Message: "must be a calendar date in YYYY-MM-DD form"})
	} else {
		d.Date = date
	}

	if len(fields) > 0 {
		return StepOneDraft{}, apperrors.ValidationFields(fields)
	}
	return d, nil
}

func parseCount(raw RawCount) (int, string) {
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return 0, ""
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, "must be an integer"
	}
	if n < 0 {
		return 0, "must be zero or greater"
	}
	return n, ""
}

// StepTwoInput is the second-screen form: two lists of free text.
type StepTwoInput struct {
	MustDoTasks           []string `json:"mustDoTasks" validate:"max=3"`
	WantedButSkippedTasks []string `json:"wantedButSkippedTasks" validate:"max=3"`
}

// Tasks returns both lists normalised to length three.
func (in StepTwoInput) Tasks() (mustDo, skipped TaskList) {
	return NewTaskList(in.MustDoTasks...), NewTaskList(in.WantedButSkippedTasks...)
}

// Package entry holds the daily journal entry and the value types that make
// up its fields. Constructors in this package are the only place raw input
// is validated; everything downstream works with trusted values.
package entry

import (
	"encoding/json"
	"strings"
	"time"
)

// TaskListSize is the fixed length of both task lists.
const TaskListSize = 3

// TaskList is always exactly three entries long; unused slots are "".
type TaskList [TaskListSize]string

// NewTaskList trims each value and pads or truncates to three entries.
func NewTaskList(values ...string) TaskList {
	var tl TaskList
	for i := 0; i < TaskListSize && i < len(values); i++ {
		tl[i] = strings.TrimSpace(values[i])
	}
	return tl
}

// Slice returns the list as a slice of length three.
func (tl TaskList) Slice() []string {
	out := make([]string, TaskListSize)
	copy(out, tl[:])
	return out
}

func (tl *TaskList) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*tl = NewTaskList(values...)
	return nil
}

// DailyEntry is one journal row per owner and date.
type DailyEntry struct {
	ID                    string    `json:"id"`
	Owner                 Owner     `json:"-"`
	Date                  Date      `json:"entryDate"`
	SaidNoCount           int       `json:"saidNoCount"`
	AskedHelpCount        int       `json:"askedHelpCount"`
	ChoseForJoyCount      int       `json:"choseForJoyCount"`
	TookRest              bool      `json:"tookRest"`
	DidCook               bool      `json:"didCook"`
	DidExercise           bool      `json:"didExercise"`
	MustDoTasks           TaskList  `json:"mustDoTasks"`
	WantedButSkippedTasks TaskList  `json:"wantedButSkippedTasks"`
	SelfSoothingMethods   string    `json:"selfSoothingMethods,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// New builds an unsaved entry with defaults, then applies p.
func New(owner Owner, date Date, p Patch) DailyEntry {
	e := DailyEntry{Owner: owner, Date: date}
	p.ApplyTo(&e)
	return e
}

// Patch is a partial update. Nil fields are left untouched. A non-nil
// SelfSoothingMethods pointing at "" clears the note.
type Patch struct {
	SaidNoCount           *int
	AskedHelpCount        *int
	ChoseForJoyCount      *int
	TookRest              *bool
	DidCook               *bool
	DidExercise           *bool
	MustDoTasks           *TaskList
	WantedButSkippedTasks *TaskList
	SelfSoothingMethods   *string
}

// ApplyTo writes every set field onto e.
func (p Patch) ApplyTo(e *DailyEntry) {
	if p.SaidNoCount != nil {
		e.SaidNoCount = *p.SaidNoCount
	}
	if p.AskedHelpCount != nil {
		e.AskedHelpCount = *p.AskedHelpCount
	}
	if p.ChoseForJoyCount != nil {
		e.ChoseForJoyCount = *p.ChoseForJoyCount
	}
	if p.TookRest != nil {
		e.TookRest = *p.TookRest
	}
	if p.DidCook != nil {
		e.DidCook = *p.DidCook
	}
	if p.DidExercise != nil {
		e.DidExercise = *p.DidExercise
	}
	if p.MustDoTasks != nil {
		e.MustDoTasks = *p.MustDoTasks
	}
	if p.WantedButSkippedTasks != nil {
		e.WantedButSkippedTasks = *p.WantedButSkippedTasks
	}
	if p.SelfSoothingMethods != nil {
		e.SelfSoothingMethods = *p.SelfSoothingMethods
	}
}

// Merge returns p overlaid with every field set in over.
func (p Patch) Merge(over Patch) Patch {
	out := p
	if over.SaidNoCount != nil {
		out.SaidNoCount = over.SaidNoCount
	}
	if over.AskedHelpCount != nil {
		out.AskedHelpCount = over.AskedHelpCount
	}
	if over.ChoseForJoyCount != nil {
		out.ChoseForJoyCount = over.ChoseForJoyCount
	}
	if over.TookRest != nil {
		out.TookRest = over.TookRest
	}
	if over.DidCook != nil {
		out.DidCook = over.DidCook
	}
	if over.DidExercise != nil {
		out.DidExercise = over.DidExercise
	}
	if over.MustDoTasks != nil {
		out.MustDoTasks = over.MustDoTasks
	}
	if over.WantedButSkippedTasks != nil {
		out.WantedButSkippedTasks = over.WantedButSkippedTasks
	}
	if over.SelfSoothingMethods != nil {
		out.SelfSoothingMethods = over.SelfSoothingMethods
	}
	return out
}

// IsEmpty reports whether the patch sets nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// NotePatch sets only the self-soothing note.
func NotePatch(note string) Patch {
	return Patch{SelfSoothingMethods: &note}
}

// FullPatch sets every field from e except the note, which is set only when
// non-empty.
func FullPatch(e DailyEntry) Patch {
	p := Patch{
		SaidNoCount:           &e.SaidNoCount,
		AskedHelpCount:        &e.AskedHelpCount,
		ChoseForJoyCount:      &e.ChoseForJoyCount,
		TookRest:              &e.TookRest,
		DidCook:               &e.DidCook,
		DidExercise:           &e.DidExercise,
		MustDoTasks:           &e.MustDoTasks,
		WantedButSkippedTasks: &e.WantedButSkippedTasks,
	}
	if e.SelfSoothingMethods != "" {
		p.SelfSoothingMethods = &e.SelfSoothingMethods
	}
	return p
}

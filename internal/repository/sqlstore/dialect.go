package sqlstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// Dialect captures the differences between the SQL backends.
type Dialect interface {
	Name() string
	Placeholder(n int) string
	TasksValue(tl entry.TaskList) any
	NewTasksScanner() TasksScanner
	TimeValue(t time.Time) any
	// Classify turns a driver error into a UnifiedError.
	Classify(op string, err error) error
}

// TasksScanner reads a stored task list column.
type TasksScanner interface {
	sql.Scanner
	List() entry.TaskList
}

// Postgres stores task lists as TEXT[] through lib/pq.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) TasksValue(tl entry.TaskList) any { return pq.Array(tl.Slice()) }

func (Postgres) NewTasksScanner() TasksScanner { return &pgTasks{} }

func (Postgres) TimeValue(t time.Time) any { return t.UTC() }

func (Postgres) Classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return apperrors.Conflict("daily_entry", pqErr.Message)
	}
	return apperrors.Repository(op, err)
}

type pgTasks struct {
	pq.StringArray
}

func (t *pgTasks) List() entry.TaskList { return entry.NewTaskList(t.StringArray...) }

// SQLite stores task lists as JSON text and timestamps as fixed-width text
// so lexical and chronological order agree.
type SQLite struct{}

const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) TasksValue(tl entry.TaskList) any {
	b, _ := json.Marshal(tl.Slice())
	return string(b)
}

func (SQLite) NewTasksScanner() TasksScanner { return &jsonTasks{} }

func (SQLite) TimeValue(t time.Time) any { return t.UTC().Format(sqliteTimeLayout) }

func (SQLite) Classify(op string, err error) error {
	var sqErr *sqlite.Error
	if errors.As(err, &sqErr) && (sqErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE ||
		sqErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqErr.Error(), "UNIQUE")) {
		return apperrors.Conflict("daily_entry", sqErr.Error())
	}
	return apperrors.Repository(op, err)
}

type jsonTasks struct {
	list entry.TaskList
}

func (t *jsonTasks) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		t.list = entry.TaskList{}
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported task list type %T", src)
	}
	return json.Unmarshal(raw, &t.list)
}

func (t *jsonTasks) List() entry.TaskList { return t.list }

type dateScanner struct {
	date entry.Date
}

func (s *dateScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		s.date = entry.DateOf(v)
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
}

func (s *dateScanner) parse(raw string) error {
	if len(raw) > len(entry.DateLayout) {
		raw = raw[:len(entry.DateLayout)]
	}
	d, err := entry.ParseDate(raw)
	if err != nil {
		return fmt.Errorf("stored date %q: %w", raw, err)
	}
	s.date = d
	return nil
}

type timeScanner struct {
	t time.Time
}

var storedTimeLayouts = []string{sqliteTimeLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"}

func (s *timeScanner) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		s.t = v
		return nil
	case string:
		return s.parse(v)
	case []byte:
		return s.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (s *timeScanner) parse(raw string) error {
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			s.t = t
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", raw)
}

// Package history reads past entries for the trend chart and the per-day
// detail view. Nothing is cached; every call reads the store.
package history

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wangmul/emotion-tracker/internal/domain/entry"
	"github.com/wangmul/emotion-tracker/internal/repository"
)

const (
	EmptyOverviewMessage = "아직 데이터가 없습니다. 오늘의 기록을 추가해보세요."
	EmptyDayMessage      = "해당 날짜의 데이터가 없습니다."
	RecordHint           = "오늘 기록하기"
	RecordPath           = "/record/step-1"
)

// Dataset is one line of the trend chart.
type Dataset struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Color string `json:"color"`
	Data  []int  `json:"data"`
}

// Chart is the trend chart: one label per entry date.
type Chart struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// Overview is the history landing page.
type Overview struct {
	Entries       []entry.DailyEntry `json:"entries"`
	Chart         Chart              `json:"chart"`
	Empty         bool               `json:"empty"`
	EmptyMessage  string             `json:"emptyMessage,omitempty"`
	RecordedToday bool               `json:"recordedToday"`
}

// DayView is the detail page for one date.
type DayView struct {
	Date     string            `json:"date"`
	Entry    *entry.DailyEntry `json:"entry"`
	Message  string            `json:"message,omitempty"`
	Hint     string            `json:"hint,omitempty"`
	HintPath string            `json:"hintPath,omitempty"`
	Previous string            `json:"previous"`
	Next     string            `json:"next"`
}

// Reader serves history views.
type Reader struct {
	entries repository.EntryRepository
	limit   int
	logger  *zap.Logger
	now     func() time.Time
}

func NewReader(entries repository.EntryRepository, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{
		entries: entries,
		limit:   repository.DefaultHistoryLimit,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock overrides the source of "today".
func (r *Reader) WithClock(now func() time.Time) *Reader {
	r.now = now
	return r
}

// Overview loads the most recent entries, ascending by date, and whether
// today already has a row. The two reads run concurrently; a failed today
// read only clears RecordedToday.
func (r *Reader) Overview(ctx context.Context, owner entry.Owner) (*Overview, error) {
	var (
		recent []entry.DailyEntry
		today  *entry.DailyEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.entries.ListRecent(gctx, owner, r.limit)
		if err != nil {
			return err
		}
		recent = rows
		return nil
	})
	g.Go(func() error {
		e, err := r.entries.FindByDate(gctx, owner, entry.Today(r.now))
		if err != nil {
			r.logger.Warn("Today lookup failed", zap.Error(err))
			return nil
		}
		today = e
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if recent == nil {
		recent = []entry.DailyEntry{}
	}
	out := &Overview{
		Entries:       recent,
		Chart:         BuildChart(recent),
		Empty:         len(recent) == 0,
		RecordedToday: today != nil,
	}
	if out.Empty {
		out.EmptyMessage = EmptyOverviewMessage
	}
	return out, nil
}

// BuildChart turns entries into chart series, one point per entry.
func BuildChart(entries []entry.DailyEntry) Chart {
	labels := make([]string, len(entries))
	saidNo := make([]int, len(entries))
	askedHelp := make([]int, len(entries))
	choseJoy := make([]int, len(entries))
	for i, e := range entries {
		labels[i] = e.Date.String()
		saidNo[i] = e.SaidNoCount
		askedHelp[i] = e.AskedHelpCount
		choseJoy[i] = e.ChoseForJoyCount
	}
	return Chart{
		Labels: labels,
		Datasets: []Dataset{
			{Key: "saidNoCount", Label: "아니라고 말 한 횟수", Color: "#6366f1", Data: saidNo},
			{Key: "askedHelpCount", Label: "도움을 요청한 횟수", Color: "#22c55e", Data: askedHelp},
			{Key: "choseForJoyCount", Label: "즐거움을 위해 선택한 횟수", Color: "#ec4899", Data: choseJoy},
		},
	}
}

// DayDate parses the date path segment. Anything unparseable means today.
func DayDate(raw string, now func() time.Time) entry.Date {
	if d, err := entry.ParseDate(raw); err == nil {
		return d
	}
	return entry.Today(now)
}

// Day loads the entry for one date. A missing row is not an error.
func (r *Reader) Day(ctx context.Context, owner entry.Owner, raw string) (*DayView, error) {
	date := DayDate(raw, r.now)
	view := &DayView{
		Date:     date.String(),
		Previous: date.AddDays(-1).String(),
		Next:     date.AddDays(1).String(),
	}
	e, err := r.entries.FindByDate(ctx, owner, date)
	if err != nil {
		return nil, err
	}
	if e == nil {
		view.Message = EmptyDayMessage
		view.Hint = RecordHint
		view.HintPath = RecordPath
		return view, nil
	}
	view.Entry = e
	return view, nil
}

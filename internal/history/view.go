// Package history is the read side of the kiosk: it turns persisted
// attendance records into ordered, scoped lists ready for display.
package history

import (
	"context"
	"sort"
	"time"

	"absengo/internal/attendance"
)

// NoRecords is the well-defined empty-state text, rendered instead of an
// empty table.
const NoRecords = "no attendance records"

// View is a display-ready record list.
type View struct {
	Rows        []attendance.Record `json:"rows"`
	Count       int                 `json:"count"`
	Placeholder string              `json:"placeholder,omitempty"`
}

// Reader is the subset of the ledger the view model needs.
type Reader interface {
	ListByStudent(ctx context.Context, studentID string) ([]attendance.Record, error)
	ListByDate(ctx context.Context, date string) ([]attendance.Record, error)
	ListAll(ctx context.Context) ([]attendance.Record, error)
}

// Model produces scoped attendance views.
type Model struct {
	reader Reader
	loc    *time.Location
	now    func() time.Time
}

// NewModel creates a view model anchored to the reporting timezone.
func NewModel(reader Reader, loc *time.Location) *Model {
	if loc == nil {
		loc = time.Local
	}
	return &Model{reader: reader, loc: loc, now: time.Now}
}

// ForStudent returns one student's records, newest first.
func (m *Model) ForStudent(ctx context.Context, studentID string) (View, error) {
	rows, err := m.reader.ListByStudent(ctx, studentID)
	if err != nil {
		return View{}, err
	}
	sortNewestFirst(rows)
	return newView(rows), nil
}

// ForToday returns the records whose calendar date is today, newest first.
func (m *Model) ForToday(ctx context.Context) (View, error) {
	today := attendance.DateIn(m.now(), m.loc)
	rows, err := m.reader.ListByDate(ctx, today)
	if err != nil {
		return View{}, err
	}
	sortNewestFirst(rows)
	return newView(rows), nil
}

// ForAll returns every record in backing-store order with a total count.
func (m *Model) ForAll(ctx context.Context) (View, error) {
	rows, err := m.reader.ListAll(ctx)
	if err != nil {
		return View{}, err
	}
	return newView(rows), nil
}

// Scope filters already-fetched rows to one calendar date and orders them
// newest first. Used against the cache mirror when the store is unreachable.
func Scope(rows []attendance.Record, date string) View {
	var scoped []attendance.Record
	for _, r := range rows {
		if r.Date == date {
			scoped = append(scoped, r)
		}
	}
	sortNewestFirst(scoped)
	return newView(scoped)
}

func newView(rows []attendance.Record) View {
	v := View{Rows: rows, Count: len(rows)}
	if v.Count == 0 {
		v.Rows = []attendance.Record{}
		v.Placeholder = NoRecords
	}
	return v
}

// sortNewestFirst orders by timestamp descending. The stable sort keeps
// arrival order for equal timestamps.
func sortNewestFirst(rows []attendance.Record) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].When.After(rows[j].When)
	})
}

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"absengo/internal/attendance"
	"absengo/internal/backend"
	"absengo/internal/token"
)

type fakeSource struct {
	calls atomic.Int32
	rows  []attendance.Record
	err   error
}

func (f *fakeSource) Today(context.Context) ([]attendance.Record, error) {
	f.calls.Add(1)
	return f.rows, f.err
}

type fakeMirror struct {
	mu     sync.Mutex
	rows   []attendance.Record
	stored []attendance.Record
}

func (f *fakeMirror) Load(context.Context) ([]attendance.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rows, nil
}

func (f *fakeMirror) Replace(_ context.Context, recs []attendance.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = recs
	return nil
}

func todayRecord(id string) attendance.Record {
	now := time.Now()
	return attendance.Record{
		ID:        id,
		StudentID: id,
		Date:      attendance.DateIn(now, time.Local),
		When:      now,
		Status:    attendance.StatusPresent,
	}
}

func newTestDashboard(source *fakeSource, mirror *fakeMirror) *Dashboard {
	d := New(token.NewRotator(time.Hour, nil), source, mirror, time.Local, time.Second)
	d.clockTick = 10 * time.Millisecond
	d.refreshTick = 10 * time.Millisecond
	return d
}

func TestRefreshGatedOnHistoryView(t *testing.T) {
	source := &fakeSource{}
	d := newTestDashboard(source, &fakeMirror{})

	d.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	if got := source.calls.Load(); got != 0 {
		t.Errorf("QR view issued %d refresh calls, want 0", got)
	}

	d.SetView(ViewHistory)
	time.Sleep(60 * time.Millisecond)
	if source.calls.Load() == 0 {
		t.Error("history view issued no refresh calls")
	}

	d.SetView(ViewQR)
	time.Sleep(30 * time.Millisecond)
	settled := source.calls.Load()
	time.Sleep(60 * time.Millisecond)
	if got := source.calls.Load(); got != settled {
		t.Errorf("calls kept growing after leaving history view: %d -> %d", settled, got)
	}
	d.Stop()
}

func TestRefreshUpdatesSnapshotAndMirror(t *testing.T) {
	source := &fakeSource{rows: []attendance.Record{todayRecord("1001")}}
	mirror := &fakeMirror{}
	d := newTestDashboard(source, mirror)

	d.SetView(ViewHistory)
	d.Start(context.Background())
	defer d.Stop()

	deadline := time.After(time.Second)
	for {
		snap := d.Snapshot()
		if snap.Today.Count == 1 && !snap.Stale {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("snapshot never refreshed: %+v", snap)
		case <-time.After(10 * time.Millisecond):
		}
	}

	mirror.mu.Lock()
	stored := len(mirror.stored)
	mirror.mu.Unlock()
	if stored != 1 {
		t.Errorf("mirror holds %d rows, want 1", stored)
	}
}

func TestRefreshFallsBackToMirror(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	mirror := &fakeMirror{rows: []attendance.Record{todayRecord("1001"), todayRecord("1002")}}
	d := newTestDashboard(source, mirror)

	d.SetView(ViewHistory)
	d.Start(context.Background())
	defer d.Stop()

	deadline := time.After(time.Second)
	for {
		snap := d.Snapshot()
		if snap.Stale {
			if snap.Today.Count != 2 {
				t.Errorf("fallback served %d rows, want 2 from cache", snap.Today.Count)
			}
			if snap.Notice == "" {
				t.Error("stale snapshot has no notice")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("snapshot never marked stale")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMalformedRefreshRendersEmptyNotCache(t *testing.T) {
	source := &fakeSource{err: fmt.Errorf("%w: success=false", backend.ErrMalformed)}
	// A populated mirror must not leak into the snapshot: unreadable data
	// renders as an empty list, not as stale cached rows.
	mirror := &fakeMirror{rows: []attendance.Record{todayRecord("1001"), todayRecord("1002")}}
	d := newTestDashboard(source, mirror)

	d.SetView(ViewHistory)
	d.Start(context.Background())
	defer d.Stop()

	deadline := time.After(time.Second)
	for {
		snap := d.Snapshot()
		if snap.Notice != "" {
			if snap.Today.Count != 0 {
				t.Errorf("malformed refresh served %d rows, want empty list", snap.Today.Count)
			}
			if snap.Stale {
				t.Error("malformed refresh marked stale; that notice belongs to the cache fallback")
			}
			if snap.Today.Placeholder == "" {
				t.Error("empty list is missing its placeholder")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("notice never surfaced")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopReleasesTimers(t *testing.T) {
	source := &fakeSource{}
	d := newTestDashboard(source, &fakeMirror{})
	d.SetView(ViewHistory)
	d.Start(context.Background())
	time.Sleep(40 * time.Millisecond)
	d.Stop()
	d.Stop() // idempotent on every exit path

	settled := source.calls.Load()
	time.Sleep(60 * time.Millisecond)
	if got := source.calls.Load(); got != settled {
		t.Errorf("refresh continued after Stop: %d -> %d", settled, got)
	}
}

func TestClockAndCountdownPopulated(t *testing.T) {
	d := newTestDashboard(&fakeSource{}, &fakeMirror{})
	d.Start(context.Background())
	defer d.Stop()

	snap := d.Snapshot()
	if snap.Clock == "" {
		t.Error("clock empty after start")
	}
	if snap.Token == "" {
		t.Error("token empty after start")
	}
	if snap.CountdownLevel == "" {
		t.Error("countdown level empty after start")
	}
}

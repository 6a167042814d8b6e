// Package dashboard holds the teacher-facing display state: the live clock,
// the rotating token countdown, and the periodically refreshed today list.
// Three periodic activities run independently; a slow refresh never blocks
// the clock or the countdown.
package dashboard

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"absengo/internal/attendance"
	"absengo/internal/backend"
	"absengo/internal/history"
	"absengo/internal/token"
)

// View identifies the active dashboard screen. Refresh calls for the history
// screen are gated on it: leaving the screen stops issuing further calls
// without cancelling one already in flight.
type View string

const (
	ViewQR      View = "qr"
	ViewHistory View = "history"
)

// Source fetches today's list from the attendance source of truth.
type Source interface {
	Today(ctx context.Context) ([]attendance.Record, error)
}

// Mirror is the last-known local copy used when the source is unreachable.
type Mirror interface {
	Load(ctx context.Context) ([]attendance.Record, error)
	Replace(ctx context.Context, recs []attendance.Record) error
}

// Snapshot is the read-mostly display state.
type Snapshot struct {
	Clock          string       `json:"clock"`
	Countdown      int          `json:"countdown"`
	CountdownLevel string       `json:"countdown_level"`
	Token          string       `json:"token"`
	Today          history.View `json:"today"`
	Stale          bool         `json:"stale"`
	Notice         string       `json:"notice,omitempty"`
}

// Dashboard owns its timers: they are acquired on Start and released on
// Stop, on every exit path.
type Dashboard struct {
	rotator *token.Rotator
	source  Source
	mirror  Mirror
	loc     *time.Location

	clockTick   time.Duration
	refreshTick time.Duration

	mu   sync.RWMutex
	view View
	snap Snapshot

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// New wires a dashboard over a rotator, a backend source and a cache mirror.
func New(rotator *token.Rotator, source Source, mirror Mirror, loc *time.Location, refreshEvery time.Duration) *Dashboard {
	if loc == nil {
		loc = time.Local
	}
	if refreshEvery <= 0 {
		refreshEvery = 5 * time.Second
	}
	return &Dashboard{
		rotator:     rotator,
		source:      source,
		mirror:      mirror,
		loc:         loc,
		clockTick:   time.Second,
		refreshTick: refreshEvery,
		view:        ViewQR,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start acquires the clock and refresh timers and starts the rotator.
func (d *Dashboard) Start(ctx context.Context) {
	d.rotator.Start()
	d.tickClock()

	go func() {
		defer close(d.done)
		clock := time.NewTicker(d.clockTick)
		refresh := time.NewTicker(d.refreshTick)
		defer clock.Stop()
		defer refresh.Stop()

		results := make(chan fetchResult, 1)
		for {
			select {
			case <-clock.C:
				d.tickClock()
			case <-refresh.C:
				// Gate on the current view; do not cancel in-flight work.
				if d.CurrentView() != ViewHistory {
					continue
				}
				go d.fetch(ctx, results)
			case res := <-results:
				d.apply(ctx, res)
			case <-d.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop releases all timers. Idempotent.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() { close(d.stop) })
	<-d.done
	d.rotator.Stop()
}

// SetView switches the active screen.
func (d *Dashboard) SetView(v View) {
	d.mu.Lock()
	d.view = v
	d.mu.Unlock()
}

// CurrentView returns the active screen.
func (d *Dashboard) CurrentView() View {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.view
}

// Snapshot returns a copy of the display state.
func (d *Dashboard) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snap
}

type fetchResult struct {
	rows []attendance.Record
	err  error
}

func (d *Dashboard) fetch(ctx context.Context, results chan<- fetchResult) {
	rows, err := d.source.Today(ctx)
	select {
	case results <- fetchResult{rows: rows, err: err}:
	case <-d.stop:
	}
}

// apply reconciles a refresh result into the snapshot. Unreadable data
// renders as an empty list; an unreachable backend falls back to the
// last-known mirror. Either way the next tick retries.
func (d *Dashboard) apply(ctx context.Context, res fetchResult) {
	today := attendance.DateIn(time.Now(), d.loc)

	if errors.Is(res.err, backend.ErrMalformed) {
		log.Printf("dashboard refresh returned malformed data: %v", res.err)
		d.mu.Lock()
		d.snap.Today = history.Scope(nil, today)
		d.snap.Stale = false
		d.snap.Notice = "attendance data could not be read, showing empty list"
		d.mu.Unlock()
		return
	}

	if res.err != nil {
		log.Printf("dashboard refresh failed: %v", res.err)
		cached, cacheErr := d.mirror.Load(ctx)
		if cacheErr != nil {
			log.Printf("cache fallback failed: %v", cacheErr)
		}
		d.mu.Lock()
		d.snap.Today = history.Scope(cached, today)
		d.snap.Stale = true
		d.snap.Notice = "attendance service unreachable, showing cached data"
		d.mu.Unlock()
		return
	}

	if err := d.mirror.Replace(ctx, res.rows); err != nil {
		log.Printf("cache update failed: %v", err)
	}
	d.mu.Lock()
	d.snap.Today = history.Scope(res.rows, today)
	d.snap.Stale = false
	d.snap.Notice = ""
	d.mu.Unlock()
}

func (d *Dashboard) tickClock() {
	remaining := d.rotator.Remaining()
	tok := d.rotator.Current()
	d.mu.Lock()
	d.snap.Clock = time.Now().In(d.loc).Format("15:04:05")
	d.snap.Countdown = remaining
	d.snap.CountdownLevel = token.Level(remaining)
	d.snap.Token = tok.Value
	d.mu.Unlock()
}

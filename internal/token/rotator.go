// Package token produces the short-lived rotation tokens the kiosk displays
// as scannable codes.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// DefaultValidity is how long a displayed token stays current before the
// dashboard replaces it.
const DefaultValidity = 30 * time.Second

// Countdown display levels. Purely cosmetic.
const (
	LevelNormal   = "normal"
	LevelWarn     = "warn"
	LevelCritical = "critical"
)

// Token is an opaque scan target, not a security credential.
type Token struct {
	Value    string        `json:"token"`
	IssuedAt time.Time     `json:"issued_at"`
	ValidFor time.Duration `json:"-"`
}

// Generate returns a fresh token. The millisecond timestamp makes tokens
// issued more than 1 ms apart distinct; the 80-bit random suffix covers
// anything faster.
func Generate(validFor time.Duration) Token {
	if validFor <= 0 {
		validFor = DefaultValidity
	}
	now := time.Now()
	suffix := make([]byte, 10)
	_, _ = rand.Read(suffix)
	return Token{
		Value:    fmt.Sprintf("ABSENSI-%d-%s", now.UnixMilli(), hex.EncodeToString(suffix)),
		IssuedAt: now,
		ValidFor: validFor,
	}
}

// Level maps seconds remaining to a display escalation level.
func Level(secondsLeft int) string {
	switch {
	case secondsLeft <= 5:
		return LevelCritical
	case secondsLeft <= 10:
		return LevelWarn
	default:
		return LevelNormal
	}
}

// Rotator owns the rotation timer and always holds a current token. It is
// started on view entry and stopped on every exit path.
type Rotator struct {
	interval time.Duration
	onRotate func(Token)

	mu      sync.RWMutex
	current Token
	started bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewRotator creates a rotator that replaces its token every interval.
// onRotate, if non-nil, is called once per rotation with the new token.
func NewRotator(interval time.Duration, onRotate func(Token)) *Rotator {
	if interval <= 0 {
		interval = DefaultValidity
	}
	return &Rotator{
		interval: interval,
		onRotate: onRotate,
		current:  Generate(interval),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the rotation loop until Stop is called. Calling Start again is
// a no-op.
func (r *Rotator) Start() {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.rotate()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop halts rotation and releases the timer. Idempotent and safe on every
// teardown path, including a rotator that was never started.
func (r *Rotator) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.RLock()
	started := r.started
	r.mu.RUnlock()
	if started {
		<-r.done
	}
}

// Current returns the token on display.
func (r *Rotator) Current() Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Remaining reports whole seconds until the current token is replaced,
// floored at zero. Drives the countdown indicator.
func (r *Rotator) Remaining() int {
	tok := r.Current()
	left := time.Until(tok.IssuedAt.Add(tok.ValidFor))
	if left < 0 {
		return 0
	}
	return int(left.Round(time.Second) / time.Second)
}

// Rotate forces a fresh token outside the schedule (manual refresh button).
func (r *Rotator) Rotate() Token {
	return r.rotate()
}

func (r *Rotator) rotate() Token {
	tok := Generate(r.interval)
	r.mu.Lock()
	r.current = tok
	r.mu.Unlock()
	if r.onRotate != nil {
		r.onRotate(tok)
	}
	return tok
}

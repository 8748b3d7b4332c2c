// Package ratelimit implements a per-client fixed-window request limiter.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrRateExceeded = errors.New("rate limit exceeded")

// Decision describes the state of a client's window after a request.
type Decision struct {
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

type window struct {
	start time.Time
	count int
}

// FixedWindow admits at most max requests per client per window.
// A client's window starts with its first request and restarts with the first
// request after it elapses, so up to 2*max requests can land around a boundary.
type FixedWindow struct {
	name    string
	window  time.Duration
	max     int
	now     func() time.Time
	mu      sync.Mutex
	clients map[string]*window
}

func NewFixedWindow(name string, win time.Duration, max int) *FixedWindow {
	return &FixedWindow{
		name:    name,
		window:  win,
		max:     max,
		now:     time.Now,
		clients: make(map[string]*window),
	}
}

func (l *FixedWindow) Name() string          { return l.name }
func (l *FixedWindow) Window() time.Duration { return l.window }
func (l *FixedWindow) Max() int              { return l.max }

// Allow counts one request for clientID. It returns ErrRateExceeded once the
// window's count passes max; rejected requests still count.
func (l *FixedWindow) Allow(clientID string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.clients[clientID]
	if !ok || now.Sub(w.start) > l.window {
		w = &window{start: now}
		l.clients[clientID] = w
	}
	w.count++

	reset := w.start.Add(l.window)
	d := Decision{
		Limit:     l.max,
		Remaining: max(0, l.max-w.count),
		Reset:     reset,
	}
	if w.count > l.max {
		d.RetryAfter = reset.Sub(now)
		return d, ErrRateExceeded
	}
	return d, nil
}

// Sweep drops clients whose window has elapsed and returns how many were removed.
func (l *FixedWindow) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for id, w := range l.clients {
		if now.Sub(w.start) > l.window {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Run sweeps every interval until ctx is cancelled.
func (l *FixedWindow) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				log.Debug().Str("limiter", l.name).Int("removed", n).Msg("rate limit windows swept")
			}
		}
	}
}

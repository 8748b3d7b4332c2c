// Package anomaly tracks recent actions per principal and flags unusual patterns.
package anomaly

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/org/servercatalog/pkg/models"
)

const (
	KindHighFrequency   = "HIGH_FREQUENCY_ACTIONS"
	KindMultipleOrigins = "MULTIPLE_ORIGINS"
)

// Defaults for NewDetector.
const (
	HistorySize       = 100
	FrequencyWindow   = time.Minute
	FrequencyLimit    = 50
	OriginLimit       = 3
	InactivityTimeout = 24 * time.Hour
)

// Event is a detected anomaly.
type Event struct {
	Kind        string          `json:"type"`
	Severity    models.Severity `json:"severity"`
	PrincipalID string          `json:"userId"`
	Count       int             `json:"count"`
	Origins     []string        `json:"origins,omitempty"`
}

type action struct {
	name   string
	at     time.Time
	origin string
}

type history struct {
	actions   []action
	origins   map[string]struct{}
	firstSeen time.Time
	lastSeen  time.Time
}

// Detector keeps a bounded action log per principal.
type Detector struct {
	mu        sync.Mutex
	histories map[string]*history
	now       func() time.Time
}

func NewDetector() *Detector {
	return &Detector{
		histories: make(map[string]*history),
		now:       time.Now,
	}
}

// Record appends an action for principalID and returns any anomalies the
// updated history shows. Both checks run on every call.
func (d *Detector) Record(principalID, name, origin string) []Event {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	h, ok := d.histories[principalID]
	if !ok {
		h = &history{origins: make(map[string]struct{}), firstSeen: now}
		d.histories[principalID] = h
	}
	h.actions = append(h.actions, action{name: name, at: now, origin: origin})
	if len(h.actions) > HistorySize {
		h.actions = h.actions[len(h.actions)-HistorySize:]
	}
	h.origins[origin] = struct{}{}
	h.lastSeen = now

	var events []Event

	recent := 0
	for _, a := range h.actions {
		if now.Sub(a.at) < FrequencyWindow {
			recent++
		}
	}
	if recent > FrequencyLimit {
		events = append(events, Event{
			Kind:        KindHighFrequency,
			Severity:    models.SeverityHigh,
			PrincipalID: principalID,
			Count:       recent,
		})
	}

	if len(h.origins) > OriginLimit {
		events = append(events, Event{
			Kind:        KindMultipleOrigins,
			Severity:    models.SeverityMedium,
			PrincipalID: principalID,
			Count:       len(h.origins),
			Origins:     originList(h.origins),
		})
	}
	return events
}

// Sweep drops principals with no activity for longer than InactivityTimeout.
func (d *Detector) Sweep() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for id, h := range d.histories {
		if now.Sub(h.lastSeen) > InactivityTimeout {
			delete(d.histories, id)
			removed++
		}
	}
	return removed
}

// Run sweeps every interval until ctx is cancelled.
func (d *Detector) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := d.Sweep(); n > 0 {
				log.Debug().Int("removed", n).Msg("inactive action histories swept")
			}
		}
	}
}

// Summary is a read-only view of one principal's history.
type Summary struct {
	PrincipalID string    `json:"userId"`
	Actions     int       `json:"actions"`
	Origins     []string  `json:"origins"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
	LastAction  string    `json:"lastAction"`
}

// Snapshot returns a summary of every tracked principal, ordered by id.
func (d *Detector) Snapshot() []Summary {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Summary, 0, len(d.histories))
	for id, h := range d.histories {
		s := Summary{
			PrincipalID: id,
			Actions:     len(h.actions),
			Origins:     originList(h.origins),
			FirstSeen:   h.firstSeen,
			LastSeen:    h.lastSeen,
		}
		if n := len(h.actions); n > 0 {
			s.LastAction = h.actions[n-1].name
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrincipalID < out[j].PrincipalID })
	return out
}

func originList(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for o := range set {
		out = append(out, o)
	}
	sort.Strings(out)
	return out
}

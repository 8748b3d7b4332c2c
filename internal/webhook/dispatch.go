package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxParallel bounds concurrent deliveries for one event.
const maxParallel = 4

// Headers set on every delivery.
const (
	HeaderEvent     = "X-Webhook-Event"
	HeaderSignature = "X-Webhook-Signature"
)

// Delivery is the outcome of one POST to a subscriber.
type Delivery struct {
	WebhookID string
	Status    int
	Err       error
}

// Dispatcher posts events to registered webhooks.
type Dispatcher struct {
	registry *Registry
	http     *http.Client
	now      func() time.Time
}

// NewDispatcher returns a dispatcher whose client never follows redirects,
// so a subscriber cannot bounce a delivery to a host outside the allow-list.
func NewDispatcher(reg *Registry, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		registry: reg,
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		now: time.Now,
	}
}

type payload struct {
	Event     string `json:"event"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Dispatch sends data to every subscriber of event concurrently, at most
// maxParallel at once, and reports each attempt in subscriber order. Non-2xx
// answers are failures.
func (d *Dispatcher) Dispatch(ctx context.Context, event string, data any) []Delivery {
	subs := d.registry.Subscribers(event)
	if len(subs) == 0 {
		return nil
	}
	body, err := json.Marshal(payload{Event: event, Timestamp: d.now().UnixMilli(), Data: data})
	if err != nil {
		return []Delivery{{Err: fmt.Errorf("encoding payload: %w", err)}}
	}

	// Failed deliveries are reported per subscriber, never through the group,
	// so one slow or broken endpoint does not cancel the others.
	out := make([]Delivery, len(subs))
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for i, reg := range subs {
		g.Go(func() error {
			out[i] = d.deliver(ctx, reg, event, body)
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, reg Registration, event string, body []byte) Delivery {
	res := Delivery{WebhookID: reg.ID}

	sig, err := d.registry.Sign(reg.ID, body)
	if err != nil {
		res.Err = err
		return res
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reg.URL, bytes.NewReader(body))
	if err != nil {
		res.Err = err
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event)
	if sig != "" {
		req.Header.Set(HeaderSignature, sig)
	}

	resp, err := d.http.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck

	res.Status = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		res.Err = fmt.Errorf("webhook %s answered %d", reg.ID, resp.StatusCode)
	}
	return res
}

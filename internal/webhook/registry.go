package webhook

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/org/servercatalog/internal/crypto"
)

var ErrNotRegistered = errors.New("webhook not registered")

// Registration is the public view of a webhook. It never carries the secret.
type Registration struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Events    []string  `json:"events"`
	Owner     string    `json:"owner"`
	HasSecret bool      `json:"signed"`
	CreatedAt time.Time `json:"createdAt"`
}

type entry struct {
	reg    Registration
	secret *crypto.Sealed
}

// Registry holds webhooks in memory. Secrets are kept encrypted under a
// passphrase-derived key and only decrypted to sign deliveries.
type Registry struct {
	validator  *Validator
	passphrase string
	mu         sync.RWMutex
	hooks      map[string]*entry
	now        func() time.Time
}

func NewRegistry(v *Validator, passphrase string) *Registry {
	return &Registry{
		validator:  v,
		passphrase: passphrase,
		hooks:      make(map[string]*entry),
		now:        time.Now,
	}
}

// Register validates rawURL and stores a new webhook owned by owner.
func (r *Registry) Register(owner, rawURL string, events []string, secret string) (*Registration, error) {
	u, err := r.validator.Check(rawURL)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		events = []string{"product.created"}
	}

	e := &entry{reg: Registration{
		ID:        uuid.NewString(),
		URL:       u.String(),
		Events:    append([]string(nil), events...),
		Owner:     owner,
		CreatedAt: r.now().UTC(),
	}}
	if secret != "" {
		sealed, err := crypto.SealWithPassphrase([]byte(secret), r.passphrase)
		if err != nil {
			return nil, fmt.Errorf("encrypting webhook secret: %w", err)
		}
		e.secret = sealed
		e.reg.HasSecret = true
	}

	r.mu.Lock()
	r.hooks[e.reg.ID] = e
	r.mu.Unlock()

	reg := e.reg
	return &reg, nil
}

// List returns every registration ordered by creation time.
func (r *Registry) List() []Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Registration, 0, len(r.hooks))
	for _, e := range r.hooks {
		out = append(out, e.reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Sign returns the HMAC-SHA256 signature a delivery of payload to id would carry.
// Unsigned webhooks return "".
func (r *Registry) Sign(id string, payload []byte) (string, error) {
	r.mu.RLock()
	e, ok := r.hooks[id]
	r.mu.RUnlock()
	if !ok {
		return "", ErrNotRegistered
	}
	if e.secret == nil {
		return "", nil
	}
	secret, err := crypto.OpenWithPassphrase(e.secret, r.passphrase)
	if err != nil {
		return "", fmt.Errorf("decrypting webhook secret: %w", err)
	}
	return "sha256=" + crypto.HMACHex(secret, payload), nil
}

// Subscribers returns the registrations listening for event.
func (r *Registry) Subscribers(event string) []Registration {
	var out []Registration
	for _, reg := range r.List() {
		for _, e := range reg.Events {
			if e == event {
				out = append(out, reg)
				break
			}
		}
	}
	return out
}

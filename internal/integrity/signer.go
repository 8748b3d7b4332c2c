// Package integrity signs and verifies payloads and watches critical files for tampering.
package integrity

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/org/servercatalog/internal/crypto"
)

const (
	keyContext = "servercatalog-integrity-v1"

	// MaxAge is how long a signed envelope stays acceptable.
	MaxAge = 24 * time.Hour
	// MaxSkew is how far in the future a timestamp may lie.
	MaxSkew = time.Minute
)

var (
	ErrSignatureInvalid = errors.New("invalid signature")
	ErrExpired          = errors.New("signed data expired")
	ErrFutureTimestamp  = errors.New("signed data timestamp is in the future")
)

// Envelope is a signed payload. Timestamp is in Unix milliseconds and is
// covered by the signature.
type Envelope struct {
	Data      json.RawMessage `json:"data"`
	Signature string          `json:"signature"`
	Timestamp int64           `json:"timestamp"`
}

// canonical re-encodes raw JSON so that formatting and key order do not
// affect signatures.
func canonical(raw []byte) ([]byte, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return []byte("null"), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding data: %w", err)
	}
	return json.Marshal(v)
}

// Checksum returns the hex SHA-256 of v's canonical JSON encoding.
func Checksum(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding value: %w", err)
	}
	c, err := canonical(raw)
	if err != nil {
		return "", err
	}
	return crypto.SHA256Hex(c), nil
}

// mac signs the timestamp and the canonical data as "<ts>.<data>".
func (s *Signer) mac(ts int64, data []byte) string {
	msg := strconv.AppendInt(nil, ts, 10)
	msg = append(msg, '.')
	msg = append(msg, data...)
	return crypto.HMACHex(s.key, msg)
}

// Signer produces and checks HMAC-SHA256 envelopes.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner derives the HMAC key from the master secret.
func NewSigner(secret string) (*Signer, error) {
	key, err := crypto.DeriveKey([]byte(secret), keyContext)
	if err != nil {
		return nil, fmt.Errorf("deriving integrity key: %w", err)
	}
	return &Signer{key: key, now: time.Now}, nil
}

// Sign wraps v in a signed envelope stamped with the current time.
func (s *Signer) Sign(v any) (*Envelope, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding value: %w", err)
	}
	c, err := canonical(raw)
	if err != nil {
		return nil, err
	}
	ts := s.now().UnixMilli()
	return &Envelope{
		Data:      c,
		Signature: s.mac(ts, c),
		Timestamp: ts,
	}, nil
}

// Verify checks the envelope's age and signature.
func (s *Signer) Verify(env *Envelope) error {
	age := s.now().Sub(time.UnixMilli(env.Timestamp))
	if age > MaxAge {
		return ErrExpired
	}
	if age < -MaxSkew {
		return ErrFutureTimestamp
	}
	c, err := canonical(env.Data)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !crypto.EqualHex(env.Signature, s.mac(env.Timestamp, c)) {
		return ErrSignatureInvalid
	}
	return nil
}

// Unwrap reports whether body is a signed envelope. Plain bodies return
// (nil, false). Only a JSON object carrying both signature and timestamp
// counts as an envelope.
func Unwrap(body []byte) (*Envelope, bool) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, false
	}
	_, hasSig := probe["signature"]
	_, hasTS := probe["timestamp"]
	if !hasSig || !hasTS {
		return nil, false
	}
	env := &Envelope{}
	if err := json.Unmarshal(body, env); err != nil {
		// Malformed envelopes fail verification rather than pass through.
		return &Envelope{}, true
	}
	return env, true
}

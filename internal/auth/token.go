package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/org/servercatalog/internal/crypto"
	"github.com/org/servercatalog/internal/policy"
	"github.com/org/servercatalog/pkg/models"
)

const (
	issuerName = "servercatalog"
	keyContext = "servercatalog-jwt-v1"

	// DefaultTTL is the validity of every issued credential.
	DefaultTTL = time.Hour
)

var (
	ErrEmptySubject      = errors.New("subject id is empty")
	ErrMissingCredential = errors.New("access token required")
	ErrInvalidCredential = errors.New("invalid or expired token")
	ErrIncompletePayload = errors.New("token payload incomplete")
	errUnexpectedSigning = errors.New("unexpected signing method")
)

// Claims is the payload carried by an access token.
type Claims struct {
	User string `json:"user"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// signingKey derives the HS256 key from the configured master secret.
func signingKey(secret string) ([]byte, error) {
	return crypto.DeriveKey([]byte(secret), keyContext)
}

// Issuer mints signed, time-limited access tokens.
type Issuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewIssuer creates an Issuer. A non-positive ttl means DefaultTTL.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key, err := signingKey(secret)
	if err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{key: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a token for subjectID carrying role. The role is not checked
// against the role table; unknown roles simply resolve to no permissions.
func (i *Issuer) Issue(subjectID, role string) (string, error) {
	if strings.TrimSpace(subjectID) == "" {
		return "", ErrEmptySubject
	}
	now := i.now()
	claims := Claims{
		User: subjectID,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuerName,
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// TTL reports how long issued tokens stay valid.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Verifier resolves bearer tokens into principals.
type Verifier struct {
	key []byte
	now func() time.Time
}

func NewVerifier(secret string) (*Verifier, error) {
	key, err := signingKey(secret)
	if err != nil {
		return nil, fmt.Errorf("deriving signing key: %w", err)
	}
	return &Verifier{key: key, now: time.Now}, nil
}

// Verify parses and validates a raw token string. Tokens must carry an
// expiry, an issue time not in the future, and this service as issuer.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigning
		}
		return v.key, nil
	},
		jwt.WithTimeFunc(v.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(issuerName),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token has expired", ErrInvalidCredential)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredential
	}
	if claims.User == "" || claims.Role == "" {
		return nil, ErrIncompletePayload
	}
	return claims, nil
}

// Authenticate extracts the bearer token from r and returns the principal it names.
func (v *Verifier) Authenticate(r *http.Request) (*models.Principal, error) {
	raw := BearerToken(r)
	if raw == "" {
		return nil, ErrMissingCredential
	}
	claims, err := v.Verify(raw)
	if err != nil {
		return nil, err
	}
	return &models.Principal{
		ID:          claims.User,
		Role:        claims.Role,
		Permissions: policy.PermissionsOf(claims.Role),
	}, nil
}

// BearerToken returns the token from an "Authorization: Bearer <token>" header, or "".
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

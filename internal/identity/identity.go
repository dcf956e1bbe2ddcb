// Package identity resolves client credentials into verified principals.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nfrund/chatrelay/internal/domain"
)

// Authenticator turns an opaque credential into a Principal.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (domain.Principal, error)
}

// UserID accepts both string and numeric "id" claims. Tokens minted by older
// clients carry the numeric primary key of the users table.
type UserID string

func (u *UserID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = UserID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id claim must be a string or number: %w", err)
	}
	*u = UserID(n.String())
	return nil
}

// Claims is the JWT payload understood by the relay.
type Claims struct {
	UserID   UserID `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal extracts the identity carried by the claims.
func (c *Claims) Principal() (domain.Principal, error) {
	id := string(c.UserID)
	if id == "" {
		id = c.Subject
	}
	if id == "" {
		return domain.Principal{}, errors.New("token carries no user id")
	}

	name := c.Username
	if name == "" {
		name = c.Name
	}
	if name == "" {
		name = id
	}
	return domain.Principal{ID: id, DisplayName: name}, nil
}

// Verifier validates HS256 tokens against a shared secret that can be
// rotated at runtime.
type Verifier struct {
	mu     sync.RWMutex
	secret []byte
	issuer string
	now    func() time.Time
	logger *slog.Logger
}

// NewVerifier creates a verifier. Tokens it issues carry issuer as "iss", and
// a non-empty issuer is required on every token it accepts.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
		logger: slog.Default().With("component", "identity"),
	}
}

// SetSecret replaces the signing secret. Tokens signed with the previous
// secret stop validating immediately.
func (v *Verifier) SetSecret(secret string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.secret = []byte(secret)
	v.logger.Info("Signing secret rotated")
}

func (v *Verifier) key() []byte {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.secret
}

// Authenticate implements Authenticator. A leading "Bearer " is ignored.
func (v *Verifier) Authenticate(ctx context.Context, credential string) (domain.Principal, error) {
	raw := strings.TrimSpace(credential)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return domain.Principal{}, fmt.Errorf("%w: missing credential", domain.ErrUnauthenticated)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.key(), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return domain.Principal{}, fmt.Errorf("%w: token expired", domain.ErrUnauthenticated)
		}
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return domain.Principal{}, fmt.Errorf("%w: invalid token", domain.ErrUnauthenticated)
	}

	principal, err := claims.Principal()
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", domain.ErrUnauthenticated, err)
	}
	return principal, nil
}

// Issue signs a token for p that expires after ttl.
func (v *Verifier) Issue(p domain.Principal, ttl time.Duration) (string, error) {
	if p.ID == "" {
		return "", errors.New("principal id is required")
	}

	now := v.now()
	claims := Claims{
		UserID:   UserID(p.ID),
		Username: p.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.ID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.key())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
)

// TokenID identifies an issued bearer credential
type TokenID string

// TokenSecret is the secret half of a bearer credential
type TokenSecret string

// Validate checks that the token ID is non-empty
func (id TokenID) Validate() error {
	if id == "" {
		return goerr.New("token ID is empty")
	}
	return nil
}

// Token is the bearer credential the external identity collaborator issues
// to a client. It scopes every REST call and websocket subscription to one
// tenant.
type Token struct {
	ID        TokenID
	Secret    TokenSecret
	TenantID  types.TenantID
	Subject   string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NewToken issues a fresh credential for the given tenant identity
func NewToken(tenantID types.TenantID, subject string, ttl time.Duration) (*Token, error) {
	id, err := randomHex(16)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate token ID")
	}
	secret, err := randomHex(32)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate token secret")
	}

	now := time.Now().UTC()
	return &Token{
		ID:        TokenID(id),
		Secret:    TokenSecret(secret),
		TenantID:  tenantID,
		Subject:   subject,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}, nil
}

// Validate checks the structural fields of the token
func (t *Token) Validate() error {
	if err := t.ID.Validate(); err != nil {
		return err
	}
	if t.Secret == "" {
		return goerr.New("token secret is empty")
	}
	if err := t.TenantID.Validate(); err != nil {
		return goerr.Wrap(err, "token without tenant")
	}
	return nil
}

// IsExpired reports whether the token has passed its expiry
func (t *Token) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.After(t.ExpiresAt)
}

// VerifySecret compares the presented secret in constant time
func (t *Token) VerifySecret(secret TokenSecret) bool {
	return subtle.ConstantTimeCompare([]byte(t.Secret), []byte(secret)) == 1
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/repository/firestore"
	"github.com/trickpatty/hearthsync/pkg/repository/memory"
)

// ErrInvalidToken covers unknown, expired and secret-mismatched tokens. The
// caller cannot distinguish them, on purpose.
var ErrInvalidToken = goerr.New("invalid token")

// DefaultTokenTTL is the lifetime of an issued client credential
const DefaultTokenTTL = 30 * 24 * time.Hour

// AuthUseCase issues and validates the bearer credentials that scope every
// API call and subscription to one tenant
type AuthUseCase struct {
	repo interfaces.Repository
	ttl  time.Duration
}

type AuthOption func(*AuthUseCase)

// WithTokenTTL overrides the credential lifetime
func WithTokenTTL(ttl time.Duration) AuthOption {
	return func(uc *AuthUseCase) {
		uc.ttl = ttl
	}
}

func NewAuthUseCase(repo interfaces.Repository, opts ...AuthOption) *AuthUseCase {
	uc := &AuthUseCase{
		repo: repo,
		ttl:  DefaultTokenTTL,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// IssueToken creates a fresh credential for a tenant identity
func (uc *AuthUseCase) IssueToken(ctx context.Context, tenantID types.TenantID, subject string) (*auth.Token, error) {
	token, err := auth.NewToken(tenantID, subject, uc.ttl)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.PutToken(ctx, token); err != nil {
		return nil, goerr.Wrap(err, "failed to store token")
	}
	return token, nil
}

// ValidateToken checks a presented credential and returns the stored token
// on success
func (uc *AuthUseCase) ValidateToken(ctx context.Context, tokenID auth.TokenID, secret auth.TokenSecret) (*auth.Token, error) {
	token, err := uc.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidToken, "token lookup failed")
	}
	if !token.VerifySecret(secret) {
		return nil, goerr.Wrap(ErrInvalidToken, "secret mismatch")
	}
	if token.IsExpired(time.Now().UTC()) {
		return nil, goerr.Wrap(ErrInvalidToken, "token expired")
	}
	return token, nil
}

// RevokeToken deletes a credential. Revoking an unknown token succeeds.
func (uc *AuthUseCase) RevokeToken(ctx context.Context, tokenID auth.TokenID) error {
	if err := uc.repo.DeleteToken(ctx, tokenID); err != nil {
		if errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound) {
			return nil
		}
		return goerr.Wrap(err, "failed to revoke token")
	}
	return nil
}

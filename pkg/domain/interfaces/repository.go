package interfaces

import (
	"context"

	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
)

// Repository defines the interface for data persistence
type Repository interface {
	Connection() ConnectionRepository

	// Auth methods
	PutToken(ctx context.Context, token *auth.Token) error
	GetToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error)
	DeleteToken(ctx context.Context, tokenID auth.TokenID) error

	Close() error
}

package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type tokenDocument struct {
	ID        string    `firestore:"id"`
	Secret    string    `firestore:"secret"`
	TenantID  string    `firestore:"tenant_id"`
	Subject   string    `firestore:"subject"`
	ExpiresAt time.Time `firestore:"expires_at"`
	CreatedAt time.Time `firestore:"created_at"`
}

type tokenRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newTokenRepository(client *firestore.Client) *tokenRepository {
	return &tokenRepository{
		client:           client,
		collectionPrefix: "",
	}
}

func (r *tokenRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_tokens"
	}
	return "tokens"
}

func (f *Firestore) PutToken(ctx context.Context, token *auth.Token) error {
	if err := token.Validate(); err != nil {
		return goerr.Wrap(err, "invalid token")
	}

	doc := &tokenDocument{
		ID:        string(token.ID),
		Secret:    string(token.Secret),
		TenantID:  string(token.TenantID),
		Subject:   token.Subject,
		ExpiresAt: token.ExpiresAt,
		CreatedAt: token.CreatedAt,
	}

	docRef := f.client.Collection(f.tokens.collection()).Doc(doc.ID)
	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put token")
	}

	return nil
}

func (f *Firestore) GetToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error) {
	if err := tokenID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid token ID")
	}

	docRef := f.client.Collection(f.tokens.collection()).Doc(string(tokenID))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, goerr.Wrap(err, "failed to get token", goerr.V("id", tokenID))
	}

	var tokenDoc tokenDocument
	if err := doc.DataTo(&tokenDoc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal token", goerr.V("id", tokenID))
	}

	token := &auth.Token{
		ID:        auth.TokenID(tokenDoc.ID),
		Secret:    auth.TokenSecret(tokenDoc.Secret),
		TenantID:  types.TenantID(tokenDoc.TenantID),
		Subject:   tokenDoc.Subject,
		ExpiresAt: tokenDoc.ExpiresAt,
		CreatedAt: tokenDoc.CreatedAt,
	}

	// An expired credential is dropped on lookup so revocation-by-expiry
	// does not depend on a cleanup job.
	if token.IsExpired(time.Now().UTC()) {
		if _, err := docRef.Delete(ctx); err != nil {
			return nil, goerr.Wrap(err, "failed to drop expired token", goerr.V("id", tokenID))
		}
		return nil, goerr.Wrap(ErrNotFound, "token expired", goerr.V("id", tokenID))
	}

	return token, nil
}

func (f *Firestore) DeleteToken(ctx context.Context, tokenID auth.TokenID) error {
	if err := tokenID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid token ID")
	}

	docRef := f.client.Collection(f.tokens.collection()).Doc(string(tokenID))
	if _, err := docRef.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return goerr.Wrap(err, "failed to get token", goerr.V("id", tokenID))
	}

	if _, err := docRef.Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete token", goerr.V("id", tokenID))
	}

	return nil
}

package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type connectionDocument struct {
	ID       string   `firestore:"id"`
	TenantID string   `firestore:"tenant_id"`
	Provider string   `firestore:"provider"`
	Name     string   `firestore:"name"`
	Color    string   `firestore:"color"`
	Members  []string `firestore:"members"`

	Token              *tokenPairDocument `firestore:"token,omitempty"`
	SourceURL          string             `firestore:"source_url"`
	ExternalCalendarID string             `firestore:"external_calendar_id"`

	Status       string     `firestore:"status"`
	LastSyncAt   time.Time  `firestore:"last_sync_at"`
	LastError    string     `firestore:"last_error"`
	Failures     int        `firestore:"failures"`
	NextDueAt    *time.Time `firestore:"next_due_at"`
	Continuation string     `firestore:"continuation"`

	IntervalSeconds int64 `firestore:"interval_seconds"`
	LookBackDays    int   `firestore:"look_back_days"`
	LookAheadDays   int   `firestore:"look_ahead_days"`
	Enabled         bool  `firestore:"enabled"`

	Rev       int64     `firestore:"rev"`
	CreatedAt time.Time `firestore:"created_at"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type tokenPairDocument struct {
	AccessToken  string    `firestore:"access_token"`
	RefreshToken string    `firestore:"refresh_token"`
	Expiry       time.Time `firestore:"expiry"`
}

type connectionRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newConnectionRepository(client *firestore.Client) *connectionRepository {
	return &connectionRepository{
		client:           client,
		collectionPrefix: "",
	}
}

func (r *connectionRepository) collection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_connections"
	}
	return "connections"
}

func connectionToDocument(conn *model.Connection) *connectionDocument {
	doc := &connectionDocument{
		ID:                 string(conn.ID),
		TenantID:           string(conn.TenantID),
		Provider:           string(conn.Provider),
		Name:               conn.Name,
		Color:              conn.Color,
		SourceURL:          conn.SourceURL,
		ExternalCalendarID: conn.ExternalCalendarID,
		Status:             string(conn.Status),
		LastSyncAt:         conn.LastSyncAt,
		LastError:          conn.LastError,
		Failures:           conn.Failures,
		NextDueAt:          conn.NextDueAt,
		Continuation:       conn.Continuation,
		IntervalSeconds:    int64(conn.Interval / time.Second),
		LookBackDays:       conn.LookBackDays,
		LookAheadDays:      conn.LookAheadDays,
		Enabled:            conn.Enabled,
		Rev:                conn.Rev,
		CreatedAt:          conn.CreatedAt,
		UpdatedAt:          conn.UpdatedAt,
	}

	for _, m := range conn.Members {
		doc.Members = append(doc.Members, string(m))
	}
	if conn.Token != nil {
		doc.Token = &tokenPairDocument{
			AccessToken:  conn.Token.AccessToken,
			RefreshToken: conn.Token.RefreshToken,
			Expiry:       conn.Token.Expiry,
		}
	}

	return doc
}

func connectionToModel(doc *connectionDocument) *model.Connection {
	conn := &model.Connection{
		ID:                 types.ConnectionID(doc.ID),
		TenantID:           types.TenantID(doc.TenantID),
		Provider:           types.ProviderKind(doc.Provider),
		Name:               doc.Name,
		Color:              doc.Color,
		SourceURL:          doc.SourceURL,
		ExternalCalendarID: doc.ExternalCalendarID,
		Status:             types.ConnectionStatus(doc.Status),
		LastSyncAt:         doc.LastSyncAt,
		LastError:          doc.LastError,
		Failures:           doc.Failures,
		NextDueAt:          doc.NextDueAt,
		Continuation:       doc.Continuation,
		Interval:           time.Duration(doc.IntervalSeconds) * time.Second,
		LookBackDays:       doc.LookBackDays,
		LookAheadDays:      doc.LookAheadDays,
		Enabled:            doc.Enabled,
		Rev:                doc.Rev,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}

	for _, m := range doc.Members {
		conn.Members = append(conn.Members, types.MemberID(m))
	}
	if doc.Token != nil {
		conn.Token = &model.TokenPair{
			AccessToken:  doc.Token.AccessToken,
			RefreshToken: doc.Token.RefreshToken,
			Expiry:       doc.Token.Expiry,
		}
	}

	return conn
}

func (r *connectionRepository) Create(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	if err := conn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid connection")
	}

	now := time.Now().UTC()
	conn.Rev = 1
	conn.CreatedAt = now
	conn.UpdatedAt = now

	doc := connectionToDocument(conn)
	docRef := r.client.Collection(r.collection()).Doc(doc.ID)
	if _, err := docRef.Create(ctx, doc); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return nil, goerr.New("connection already exists", goerr.V("id", conn.ID))
		}
		return nil, goerr.Wrap(err, "failed to create connection")
	}

	return connectionToModel(doc), nil
}

func (r *connectionRepository) Get(ctx context.Context, tenantID types.TenantID, id types.ConnectionID) (*model.Connection, error) {
	docRef := r.client.Collection(r.collection()).Doc(string(id))
	doc, err := docRef.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get connection", goerr.V("id", id))
	}

	var connDoc connectionDocument
	if err := doc.DataTo(&connDoc); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal connection", goerr.V("id", id))
	}
	if connDoc.TenantID != string(tenantID) {
		return nil, goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", id))
	}

	return connectionToModel(&connDoc), nil
}

func (r *connectionRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.Connection, error) {
	iter := r.client.Collection(r.collection()).
		Where("tenant_id", "==", string(tenantID)).
		Documents(ctx)
	defer iter.Stop()

	var connections []*model.Connection
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate connections")
		}

		var connDoc connectionDocument
		if err := doc.DataTo(&connDoc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal connection")
		}

		connections = append(connections, connectionToModel(&connDoc))
	}

	return connections, nil
}

func (r *connectionRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Connection, error) {
	iter := r.client.Collection(r.collection()).
		Where("enabled", "==", true).
		Where("next_due_at", "<=", now).
		Documents(ctx)
	defer iter.Stop()

	var due []*model.Connection
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate due connections")
		}

		var connDoc connectionDocument
		if err := doc.DataTo(&connDoc); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal connection")
		}

		conn := connectionToModel(&connDoc)
		// The query cannot express the status filter; drop paused or
		// disconnected records here.
		if conn.IsDue(now) {
			due = append(due, conn)
		}
	}

	return due, nil
}

func (r *connectionRepository) Update(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	if err := conn.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid connection")
	}

	docRef := r.client.Collection(r.collection()).Doc(string(conn.ID))
	updated := connectionToDocument(conn)

	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(docRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", conn.ID))
			}
			return goerr.Wrap(err, "failed to get connection", goerr.V("id", conn.ID))
		}

		var existing connectionDocument
		if err := doc.DataTo(&existing); err != nil {
			return goerr.Wrap(err, "failed to unmarshal connection", goerr.V("id", conn.ID))
		}

		if existing.TenantID != string(conn.TenantID) {
			return goerr.Wrap(ErrNotFound, "connection not found", goerr.V("id", conn.ID))
		}
		if existing.Rev != conn.Rev {
			return goerr.Wrap(ErrConflict, "connection was modified concurrently",
				goerr.V("id", conn.ID), goerr.V("want", conn.Rev), goerr.V("have", existing.Rev))
		}

		updated.Rev = existing.Rev + 1
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = time.Now().UTC()

		return tx.Set(docRef, updated)
	})
	if err != nil {
		return nil, err
	}

	return connectionToModel(updated), nil
}

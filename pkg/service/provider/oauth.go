package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/utils/safe"
	"golang.org/x/oauth2"
)

// maxDeltaPages bounds one fetch so a huge backlog cannot pin a worker
const maxDeltaPages = 50

// OAuthCalendar syncs a hosted calendar API that speaks OAuth plus a paged
// delta protocol: each page returns changed items and a cursor, an expired
// cursor returns 410 and forces a full refetch.
type OAuthCalendar struct {
	kind    types.ProviderKind
	oauth   *oauth2.Config
	baseURL string
	client  *http.Client
}

var (
	_ interfaces.ProviderAdapter = &OAuthCalendar{}
	_ interfaces.Authorizer      = &OAuthCalendar{}
)

type OAuthCalendarOption func(*OAuthCalendar)

func WithAPIClient(client *http.Client) OAuthCalendarOption {
	return func(a *OAuthCalendar) {
		a.client = client
	}
}

func NewOAuthCalendar(kind types.ProviderKind, cfg *oauth2.Config, baseURL string, opts ...OAuthCalendarOption) *OAuthCalendar {
	a := &OAuthCalendar{
		kind:    kind,
		oauth:   cfg,
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *OAuthCalendar) AuthCodeURL(state string) string {
	return a.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

func (a *OAuthCalendar) Exchange(ctx context.Context, code string) (model.TokenPair, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	token, err := a.oauth.Exchange(ctx, code)
	if err != nil {
		return model.TokenPair{}, goerr.Wrap(err, "authorization code exchange failed",
			goerr.V("kind", a.kind), goerr.T(types.ErrTagAuthInvalid))
	}
	return model.TokenPair{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

// Validate checks that the API is reachable. OAuth sources are validated by
// the authorization flow itself, so only the endpoint is probed here.
func (a *OAuthCalendar) Validate(ctx context.Context, source string) (interfaces.ValidationResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return interfaces.ValidationResult{}, goerr.Wrap(err, "failed to build request")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return interfaces.ValidationResult{Valid: false, Reason: "provider API is unreachable"}, nil
	}
	defer safe.Close(ctx, resp.Body)

	return interfaces.ValidationResult{Valid: resp.StatusCode < 500}, nil
}

// deltaItem is one changed calendar item in the provider's delta response
type deltaItem struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type deltaResponse struct {
	Items      []deltaItem `json:"items"`
	NextCursor string      `json:"next_cursor"`
	Done       bool        `json:"done"`
}

// FetchChanges pages through the provider's delta feed from the stored
// cursor. A rejected cursor restarts from scratch and flags a full replace.
func (a *OAuthCalendar) FetchChanges(ctx context.Context, conn *model.Connection, continuation string) (model.SyncOutcome, error) {
	if conn.Token == nil {
		return model.SyncOutcome{}, goerr.New("connection holds no credentials",
			goerr.V("connection", conn.ID), goerr.T(types.ErrTagAuthInvalid))
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.client)
	source := a.oauth.TokenSource(ctx, &oauth2.Token{
		AccessToken:  conn.Token.AccessToken,
		RefreshToken: conn.Token.RefreshToken,
		Expiry:       conn.Token.Expiry,
	})
	client := oauth2.NewClient(ctx, source)

	outcome, err := a.pageChanges(ctx, client, conn, continuation, false)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return model.SyncOutcome{}, goerr.Wrap(err, "token refresh rejected",
				goerr.V("connection", conn.ID), goerr.T(types.ErrTagAuthInvalid))
		}
		return model.SyncOutcome{}, err
	}

	// Persist a rotated access token so the next run skips the refresh.
	if latest, terr := source.Token(); terr == nil && latest.AccessToken != conn.Token.AccessToken {
		outcome.RefreshedToken = &model.TokenPair{
			AccessToken:  latest.AccessToken,
			RefreshToken: latest.RefreshToken,
			Expiry:       latest.Expiry,
		}
		if outcome.RefreshedToken.RefreshToken == "" {
			outcome.RefreshedToken.RefreshToken = conn.Token.RefreshToken
		}
	}

	return outcome, nil
}

func (a *OAuthCalendar) pageChanges(ctx context.Context, client *http.Client, conn *model.Connection, cursor string, fullReplace bool) (model.SyncOutcome, error) {
	outcome := model.SyncOutcome{FullReplace: fullReplace}

	for page := 0; page < maxDeltaPages; page++ {
		resp, err := a.fetchPage(ctx, client, conn, cursor)
		if err != nil {
			var expired *cursorExpiredError
			if errors.As(err, &expired) && !fullReplace {
				// Provider discarded the cursor; restart with full state.
				return a.pageChanges(ctx, client, conn, "", true)
			}
			return model.SyncOutcome{}, err
		}

		for _, item := range resp.Items {
			switch {
			case item.Status == "cancelled":
				outcome.Removed++
			case !item.CreatedAt.IsZero() && item.CreatedAt.Equal(item.UpdatedAt):
				outcome.Added++
			default:
				outcome.Updated++
			}
		}

		cursor = resp.NextCursor
		if resp.Done {
			outcome.Continuation = cursor
			return outcome, nil
		}
	}

	return model.SyncOutcome{}, goerr.New("delta feed did not terminate",
		goerr.V("connection", conn.ID), goerr.V("pages", maxDeltaPages), goerr.T(types.ErrTagTransient))
}

type cursorExpiredError struct{}

func (e *cursorExpiredError) Error() string { return "delta cursor expired" }

func (a *OAuthCalendar) fetchPage(ctx context.Context, client *http.Client, conn *model.Connection, cursor string) (*deltaResponse, error) {
	endpoint := a.baseURL + "/calendars/" + url.PathEscape(conn.ExternalCalendarID) + "/changes"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build request", goerr.T(types.ErrTagPermanent))
	}
	if cursor != "" {
		q := req.URL.Query()
		q.Set("cursor", cursor)
		req.URL.RawQuery = q.Encode()
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "provider API call failed",
			goerr.V("connection", conn.ID), goerr.T(types.ErrTagTransient))
	}
	defer safe.Close(ctx, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, goerr.New("provider rejected credentials",
			goerr.V("status", resp.StatusCode), goerr.T(types.ErrTagAuthInvalid))
	case http.StatusGone:
		return nil, goerr.Wrap(&cursorExpiredError{}, "delta cursor rejected",
			goerr.V("connection", conn.ID))
	case http.StatusNotFound:
		return nil, goerr.New("calendar no longer exists",
			goerr.V("calendar", conn.ExternalCalendarID), goerr.T(types.ErrTagPermanent))
	default:
		return nil, goerr.New("provider API returned unexpected status",
			goerr.V("status", resp.StatusCode), goerr.T(types.ErrTagTransient))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read delta page", goerr.T(types.ErrTagTransient))
	}

	var delta deltaResponse
	if err := json.Unmarshal(body, &delta); err != nil {
		return nil, goerr.Wrap(err, "malformed delta page", goerr.T(types.ErrTagPermanent))
	}

	return &delta, nil
}

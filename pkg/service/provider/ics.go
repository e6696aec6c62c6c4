package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/interfaces"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/utils/safe"
)

// maxFeedSize bounds how much of a subscription feed is read
const maxFeedSize = 20 << 20

// ICS fetches calendar subscription feeds. The feed format has no delta
// protocol, so the continuation token carries HTTP validators plus a content
// fingerprint; an unchanged feed costs one conditional request.
type ICS struct {
	client *http.Client
}

var _ interfaces.ProviderAdapter = &ICS{}

type ICSOption func(*ICS)

func WithHTTPClient(client *http.Client) ICSOption {
	return func(a *ICS) {
		a.client = client
	}
}

func NewICS(opts ...ICSOption) *ICS {
	a := &ICS{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// icsCursor is the JSON shape of the continuation token for feeds
type icsCursor struct {
	ETag         string `json:"etag,omitempty"`
	LastModified string `json:"last_modified,omitempty"`
	Fingerprint  string `json:"fingerprint,omitempty"`
}

func decodeICSCursor(continuation string) icsCursor {
	var cursor icsCursor
	if continuation == "" {
		return cursor
	}
	// A stale or foreign token degrades to a full fetch.
	if err := json.Unmarshal([]byte(continuation), &cursor); err != nil {
		return icsCursor{}
	}
	return cursor
}

func (c icsCursor) encode() string {
	data, err := json.Marshal(c)
	if err != nil {
		return ""
	}
	return string(data)
}

// Validate fetches and parses the feed once before a record is created
func (a *ICS) Validate(ctx context.Context, source string) (interfaces.ValidationResult, error) {
	normalized, err := model.NormalizeSourceURL(source)
	if err != nil {
		return interfaces.ValidationResult{Valid: false, Reason: "invalid URL"}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return interfaces.ValidationResult{}, goerr.Wrap(err, "failed to build request")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return interfaces.ValidationResult{Valid: false, Reason: "feed is unreachable"}, nil
	}
	defer safe.Close(ctx, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return interfaces.ValidationResult{
			Valid:  false,
			Reason: fmt.Sprintf("feed returned status %d", resp.StatusCode),
		}, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return interfaces.ValidationResult{Valid: false, Reason: "failed to read feed"}, nil
	}
	if _, err := ical.ParseCalendar(bytes.NewReader(body)); err != nil {
		return interfaces.ValidationResult{Valid: false, Reason: "feed is not a valid calendar"}, nil
	}

	return interfaces.ValidationResult{Valid: true}, nil
}

// FetchChanges performs a conditional fetch of the subscription feed
func (a *ICS) FetchChanges(ctx context.Context, conn *model.Connection, continuation string) (model.SyncOutcome, error) {
	cursor := decodeICSCursor(continuation)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, conn.SourceURL, nil)
	if err != nil {
		return model.SyncOutcome{}, goerr.Wrap(err, "failed to build request", goerr.T(types.ErrTagPermanent))
	}
	if cursor.ETag != "" {
		req.Header.Set("If-None-Match", cursor.ETag)
	}
	if cursor.LastModified != "" {
		req.Header.Set("If-Modified-Since", cursor.LastModified)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return model.SyncOutcome{}, goerr.Wrap(err, "feed fetch failed",
			goerr.V("connection", conn.ID), goerr.T(types.ErrTagTransient))
	}
	defer safe.Close(ctx, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotModified:
		return model.SyncOutcome{Continuation: continuation}, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return model.SyncOutcome{}, goerr.New("feed rejected credentials",
			goerr.V("status", resp.StatusCode), goerr.T(types.ErrTagAuthInvalid))

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return model.SyncOutcome{}, goerr.New("feed no longer exists",
			goerr.V("status", resp.StatusCode), goerr.T(types.ErrTagPermanent))

	case resp.StatusCode != http.StatusOK:
		return model.SyncOutcome{}, goerr.New("feed returned unexpected status",
			goerr.V("status", resp.StatusCode), goerr.T(types.ErrTagTransient))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return model.SyncOutcome{}, goerr.Wrap(err, "failed to read feed", goerr.T(types.ErrTagTransient))
	}

	sum := sha256.Sum256(body)
	fingerprint := hex.EncodeToString(sum[:])

	next := icsCursor{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Fingerprint:  fingerprint,
	}

	// Servers without validator support return 200 for unchanged content;
	// the fingerprint catches that case.
	if fingerprint == cursor.Fingerprint {
		return model.SyncOutcome{Continuation: next.encode()}, nil
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return model.SyncOutcome{}, goerr.Wrap(err, "feed is not a valid calendar",
			goerr.V("connection", conn.ID), goerr.T(types.ErrTagPermanent))
	}

	return model.SyncOutcome{
		Added:        len(cal.Events()),
		FullReplace:  true,
		Continuation: next.encode(),
	}, nil
}

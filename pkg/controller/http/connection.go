package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/model"
	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/repository/firestore"
	"github.com/trickpatty/hearthsync/pkg/repository/memory"
	"github.com/trickpatty/hearthsync/pkg/usecase"
	"github.com/trickpatty/hearthsync/pkg/utils/errutil"
)

// connectionResponse is the wire shape of a connection. Credentials never
// leave the server.
type connectionResponse struct {
	ID        string     `json:"id"`
	Provider  string     `json:"provider"`
	Name      string     `json:"name"`
	Color     string     `json:"color,omitempty"`
	Members   []string   `json:"members,omitempty"`
	SourceURL string     `json:"source_url,omitempty"`
	Status    string     `json:"status"`
	LastSync  *time.Time `json:"last_sync_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Failures  int        `json:"failures"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	Interval  int64      `json:"interval_seconds"`
	Enabled   bool       `json:"enabled"`
	Rev       int64      `json:"rev"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func toConnectionResponse(conn *model.Connection) connectionResponse {
	resp := connectionResponse{
		ID:        string(conn.ID),
		Provider:  string(conn.Provider),
		Name:      conn.Name,
		Color:     conn.Color,
		SourceURL: conn.SourceURL,
		Status:    string(conn.Status),
		LastError: conn.LastError,
		Failures:  conn.Failures,
		NextDueAt: conn.NextDueAt,
		Interval:  int64(conn.Interval / time.Second),
		Enabled:   conn.Enabled,
		Rev:       conn.Rev,
		CreatedAt: conn.CreatedAt,
		UpdatedAt: conn.UpdatedAt,
	}
	if !conn.LastSyncAt.IsZero() {
		last := conn.LastSyncAt
		resp.LastSync = &last
	}
	for _, m := range conn.Members {
		resp.Members = append(resp.Members, string(m))
	}
	return resp
}

func tenantFrom(r *http.Request) (types.TenantID, bool) {
	token, ok := auth.TokenFromContext(r.Context())
	if !ok {
		return "", false
	}
	return token.TenantID, true
}

// statusFor maps a use-case error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, memory.ErrNotFound) || errors.Is(err, firestore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, memory.ErrConflict) || errors.Is(err, firestore.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrIllegalTransition) || errors.Is(err, model.ErrNotSyncable):
		return http.StatusConflict
	case goerr.HasTag(err, types.ErrTagValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type createConnectionRequest struct {
	Provider        string   `json:"provider"`
	Name            string   `json:"name"`
	Color           string   `json:"color"`
	Members         []string `json:"members"`
	SourceURL       string   `json:"source_url"`
	IntervalSeconds int64    `json:"interval_seconds"`
}

func (req *createConnectionRequest) members() []types.MemberID {
	if len(req.Members) == 0 {
		return nil
	}
	members := make([]types.MemberID, 0, len(req.Members))
	for _, m := range req.Members {
		members = append(members, types.MemberID(m))
	}
	return members
}

func createConnectionHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var req createConnectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		kind, err := types.ParseProviderKind(req.Provider)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}
		interval := time.Duration(req.IntervalSeconds) * time.Second

		if kind == types.ProviderICS {
			conn, err := uc.CreateICS(r.Context(), tenantID, usecase.CreateICSInput{
				Name:      req.Name,
				Color:     req.Color,
				Members:   req.members(),
				SourceURL: req.SourceURL,
				Interval:  interval,
			})
			if err != nil {
				errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
				return
			}
			writeJSON(w, http.StatusCreated, map[string]any{
				"connection": toConnectionResponse(conn),
			})
			return
		}

		result, err := uc.CreateOAuth(r.Context(), tenantID, usecase.CreateOAuthInput{
			Provider: kind,
			Name:     req.Name,
			Color:    req.Color,
			Members:  req.members(),
			Interval: interval,
		})
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"connection": toConnectionResponse(result.Connection),
			"auth_url":   result.AuthURL,
		})
	}
}

func listConnectionsHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		conns, err := uc.List(r.Context(), tenantID)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}

		responses := make([]connectionResponse, 0, len(conns))
		for _, conn := range conns {
			responses = append(responses, toConnectionResponse(conn))
		}
		writeJSON(w, http.StatusOK, map[string]any{"connections": responses})
	}
}

func getConnectionHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := uc.Get(r.Context(), tenantID, types.ConnectionID(chi.URLParam(r, "connectionID")))
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, toConnectionResponse(conn))
	}
}

type updateConnectionRequest struct {
	Name            *string  `json:"name"`
	Color           *string  `json:"color"`
	Members         []string `json:"members"`
	IntervalSeconds *int64   `json:"interval_seconds"`
	Enabled         *bool    `json:"enabled"`
}

func updateConnectionHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var req updateConnectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		input := usecase.UpdateSettingsInput{
			Name:    req.Name,
			Color:   req.Color,
			Enabled: req.Enabled,
		}
		if req.Members != nil {
			members := make([]types.MemberID, 0, len(req.Members))
			for _, m := range req.Members {
				members = append(members, types.MemberID(m))
			}
			input.Members = members
		}
		if req.IntervalSeconds != nil {
			interval := time.Duration(*req.IntervalSeconds) * time.Second
			input.Interval = &interval
		}

		conn, err := uc.UpdateSettings(r.Context(), tenantID, types.ConnectionID(chi.URLParam(r, "connectionID")), input)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, toConnectionResponse(conn))
	}
}

func disconnectHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := uc.Disconnect(r.Context(), tenantID, types.ConnectionID(chi.URLParam(r, "connectionID")))
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, toConnectionResponse(conn))
	}
}

type completeAuthRequest struct {
	Code string `json:"code"`
}

func completeAuthHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var req completeAuthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}
		if req.Code == "" {
			errutil.HandleHTTP(r.Context(), w, goerr.New("authorization code is required"), http.StatusBadRequest)
			return
		}

		conn, err := uc.CompleteAuth(r.Context(), tenantID, types.ConnectionID(chi.URLParam(r, "connectionID")), req.Code)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, toConnectionResponse(conn))
	}
}

func syncNowHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		outcome, err := uc.SyncNow(r.Context(), tenantID, types.ConnectionID(chi.URLParam(r, "connectionID")))
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}

		body := map[string]any{
			"added":        outcome.Added,
			"updated":      outcome.Updated,
			"removed":      outcome.Removed,
			"full_replace": outcome.FullReplace,
		}
		if outcome.Failed() {
			body["error"] = outcome.Err.Error()
			body["error_class"] = string(outcome.ErrClass)
		}
		writeJSON(w, http.StatusOK, body)
	}
}

func pauseHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := uc.Pause(r.Context(), tenantID, types.ConnectionID(chi.URLParam(r, "connectionID")))
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, toConnectionResponse(conn))
	}
}

func resumeHandler(uc *usecase.ConnectionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		conn, err := uc.Resume(r.Context(), tenantID, types.ConnectionID(chi.URLParam(r, "connectionID")))
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}
		writeJSON(w, http.StatusOK, toConnectionResponse(conn))
	}
}

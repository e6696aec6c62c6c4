package http

import (
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/trickpatty/hearthsync/pkg/domain/types"
	"github.com/trickpatty/hearthsync/pkg/usecase"
	"github.com/trickpatty/hearthsync/pkg/utils/errutil"
)

type announceChangeRequest struct {
	Kind     string          `json:"kind"`
	EntityID string          `json:"entity_id"`
	Payload  json.RawMessage `json:"payload"`
}

// announceChangeHandler is the hook a client calls after committing a local
// mutation, so the tenant's other clients hear about it
func announceChangeHandler(uc *usecase.ChangesUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := tenantFrom(r)
		if !ok {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		var req announceChangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
			return
		}

		kind, err := types.ParseMessageKind(req.Kind)
		if err != nil {
			errutil.HandleHTTP(r.Context(), w, err, http.StatusBadRequest)
			return
		}

		if err := uc.Announce(r.Context(), kind, tenantID, req.EntityID, req.Payload); err != nil {
			errutil.HandleHTTP(r.Context(), w, err, statusFor(err))
			return
		}

		w.WriteHeader(http.StatusAccepted)
	}
}

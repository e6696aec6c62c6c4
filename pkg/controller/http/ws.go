package http

import (
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/trickpatty/hearthsync/pkg/domain/model/auth"
	"github.com/trickpatty/hearthsync/pkg/service/notify"
	"github.com/trickpatty/hearthsync/pkg/usecase"
	"github.com/trickpatty/hearthsync/pkg/utils/logging"
)

// subscribeHandler upgrades the connection and registers it with the hub.
// The credential is validated before the upgrade so an invalid token is a
// plain 401, not a broken websocket.
func subscribeHandler(authUC *usecase.AuthUseCase, hub *notify.Hub, subOpts []notify.SubscriberOption) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		credential := r.URL.Query().Get("token")
		if credential == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}

		id, secret, _ := strings.Cut(credential, ":")
		token, err := authUC.ValidateToken(r.Context(), auth.TokenID(id), auth.TokenSecret(secret))
		if err != nil {
			http.Error(w, "Invalid authentication token", http.StatusUnauthorized)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logging.From(r.Context()).Warn("Subscription handshake failed",
				"tenant", token.TenantID,
				"error", err.Error())
			return
		}

		sub := notify.NewWebSocketSubscriber(conn, subOpts...)
		hub.Register(token.TenantID, sub)

		logging.From(r.Context()).Info("Subscriber connected",
			"tenant", token.TenantID,
			"subscribers", hub.SubscriberCount(token.TenantID))

		// Block until the peer goes away; the request context ends with it.
		_ = sub.ReadLoop(r.Context())
		hub.Unregister(token.TenantID, sub)
		sub.Close("connection closed")

		logging.From(r.Context()).Info("Subscriber disconnected",
			"tenant", token.TenantID,
			"subscribers", hub.SubscriberCount(token.TenantID))
	}
}

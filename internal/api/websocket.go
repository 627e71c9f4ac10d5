package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/beacon-notify-core/internal/auth"
)

// tokenQueryParam carries the credential for clients that cannot set
// headers on the upgrade request (browsers).
const tokenQueryParam = "token"

// handleWebSocket upgrades the request and hands the socket to the
// realtime handler, which authenticates it and serves it until close.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.isAllowedOrigin(origin)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Warn("websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	//nolint:errcheck // rejection is logged, audited and signalled with a close frame
	s.realtime.Accept(r.Context(), conn, credential(r))
}

// credential returns the Bearer token from the Authorization header,
// falling back to the token query parameter.
func credential(r *http.Request) string {
	if token := auth.BearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get(tokenQueryParam)
}

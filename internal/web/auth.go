package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authorizeRequest accepts the token from ?token= (browsers cannot set
// headers on websocket upgrades) or from an Authorization bearer header.
func (s *Server) authorizeRequest(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	if q := strings.TrimSpace(r.URL.Query().Get("token")); q != "" && secureEqual(q, s.cfg.Token) {
		return true
	}
	if h := bearerToken(r.Header.Get("Authorization")); h != "" && secureEqual(h, s.cfg.Token) {
		return true
	}
	return false
}

// guard rejects requests with the wrong method or credentials.
func (s *Server) guard(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			writeAPIError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
			return
		}
		if !s.authorizeRequest(r) {
			writeAPIError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		next(w, r)
	}
}

func bearerToken(authHeader string) string {
	const prefix = "Bearer "
	authHeader = strings.TrimSpace(authHeader)
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
}

func secureEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

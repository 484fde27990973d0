package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type pushConfigResponse struct {
	Enabled           bool   `json:"enabled"`
	VAPIDPublicKey    string `json:"vapidPublicKey,omitempty"`
	Subject           string `json:"subject,omitempty"`
	SubscriptionCount int    `json:"subscriptionCount,omitempty"`
}

type pushResultResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// pushEndpointRequest names a subscription (unsubscribe) or a tab (test).
type pushEndpointRequest struct {
	Endpoint string `json:"endpoint"`
	TabID    string `json:"tabId"`
}

// withPush answers 503 when the server runs without --push.
func (s *Server) withPush(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.push == nil {
			writeAPIError(w, http.StatusServiceUnavailable, "PUSH_NOT_CONFIGURED", "push notifications are not configured")
			return
		}
		next(w, r)
	}
}

// handlePushConfig is how the browser learns the VAPID key before calling
// pushManager.subscribe.
func (s *Server) handlePushConfig(w http.ResponseWriter, r *http.Request) {
	if s.push == nil {
		writeJSON(w, http.StatusOK, pushConfigResponse{})
		return
	}
	resp := pushConfigResponse{
		Enabled:        true,
		VAPIDPublicKey: s.push.PublicKey(),
		Subject:        s.push.Subject(),
	}
	if n, err := s.push.SubscriptionCount(); err == nil {
		resp.SubscriptionCount = n
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	var sub pushSubscription
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid subscription payload")
		return
	}
	sub = sub.normalize()
	if err := sub.validate(); err != nil {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if err := s.push.Subscribe(sub); err != nil {
		pushLog.Error("push_subscribe_failed", slog.String("error", err.Error()))
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to save push subscription")
		return
	}
	writeJSON(w, http.StatusOK, pushResultResponse{OK: true, Message: "subscription saved"})
}

func (s *Server) handlePushUnsubscribe(w http.ResponseWriter, r *http.Request) {
	var req pushEndpointRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	endpoint := strings.TrimSpace(req.Endpoint)
	if endpoint == "" {
		writeAPIError(w, http.StatusBadRequest, "INVALID_REQUEST", "endpoint is required")
		return
	}
	if err := s.push.Unsubscribe(endpoint); err != nil {
		writeAPIError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to remove push subscription")
		return
	}
	writeJSON(w, http.StatusOK, pushResultResponse{OK: true, Message: "subscription removed"})
}

// handlePushTest queues a test notification pointing at a tab, the active
// one when none is named. It skips the cooldown but not the queue.
func (s *Server) handlePushTest(w http.ResponseWriter, r *http.Request) {
	var req pushEndpointRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	tabID := strings.TrimSpace(req.TabID)
	if tabID == "" {
		tabID = s.ws.Snapshot().Active
	}
	tab, ok := s.ws.Tab(tabID)
	if !ok {
		writeAPIError(w, http.StatusNotFound, "TAB_NOT_FOUND", "tab not found")
		return
	}
	if !s.push.SendTest(tab.ID, tab.Title) {
		writeAPIError(w, http.StatusTooManyRequests, "PUSH_BUSY", "push queue is full")
		return
	}
	writeJSON(w, http.StatusAccepted, pushResultResponse{OK: true, Message: "test notification queued"})
}

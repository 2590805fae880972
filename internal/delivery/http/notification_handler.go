package http

import (
	"net/http"
	"time"

	"spot-engine/internal/domain"
)

// NotificationHandler sends a test event through every configured channel.
type NotificationHandler struct {
	notifiers []domain.Notifier
}

func NewNotificationHandler(notifiers ...domain.Notifier) *NotificationHandler {
	return &NotificationHandler{notifiers: notifiers}
}

func (h *NotificationHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/notifications/test", h.SendTestNotification)
}

// SendTestNotification handles POST /api/notifications/test
func (h *NotificationHandler) SendTestNotification(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if len(h.notifiers) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No notification channel configured",
		})
		return
	}

	event := domain.Event{
		Kind:  domain.EventTest,
		Title: "Test Notification",
		Body:  "Notifications from the trading engine are working.",
		Time:  time.Now().UTC(),
	}

	var failures []string
	for _, n := range h.notifiers {
		if err := n.Notify(r.Context(), event); err != nil {
			failures = append(failures, err.Error())
		}
	}

	if len(failures) > 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":  false,
			"message":  "Failed to send notification",
			"failures": failures,
			"channels": len(h.notifiers),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"message":  "Test notification sent successfully",
		"channels": len(h.notifiers),
	})
}

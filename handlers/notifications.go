package handlers

import (
	"encoding/json"
	"net/http"

	"streamflix/services/notify"
)

type notificationFeed interface {
	Drain() []notify.Notification
}

var _ notificationFeed = (*notify.Feed)(nil)

type NotificationsHandler struct {
	Feed notificationFeed
}

func NewNotificationsHandler(feed notificationFeed) *NotificationsHandler {
	return &NotificationsHandler{Feed: feed}
}

// Drain returns the undelivered notifications and clears the buffer, so
// clients poll it for toast messages.
func (h *NotificationsHandler) Drain(w http.ResponseWriter, r *http.Request) {
	notifications := h.Feed.Drain()
	if notifications == nil {
		notifications = []notify.Notification{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notifications)
}

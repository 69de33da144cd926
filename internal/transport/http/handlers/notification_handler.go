package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/campussync/messaging/internal/service"
	"github.com/campussync/messaging/internal/transport/http/middleware"
	"github.com/google/uuid"
)

type NotificationHandler struct {
	notificationService *service.NotificationService
}

func NewNotificationHandler(notificationService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notificationService: notificationService}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	unreadOnly := r.URL.Query().Get("unread") == "true"
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 20)

	resp, err := h.notificationService.List(r.Context(), userID, unreadOnly, page, pageSize)
	if err != nil {
		log.Printf("ERROR list notifications: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Failed to load notifications")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *NotificationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return
	}

	if err := h.notificationService.MarkRead(r.Context(), userID, id); err != nil {
		h.writeNotificationError(w, "mark notification read", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.notificationService.MarkAllRead(r.Context(), userID); err != nil {
		log.Printf("ERROR mark all notifications read: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ID", "Invalid notification ID")
		return
	}

	if err := h.notificationService.Delete(r.Context(), userID, id); err != nil {
		h.writeNotificationError(w, "delete notification", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) ClearRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.notificationService.ClearRead(r.Context(), userID); err != nil {
		log.Printf("ERROR clear read notifications: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationHandler) writeNotificationError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrNotificationNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Notification not found")
	case errors.Is(err, service.ErrNotRecipient):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "This notification belongs to another user")
	default:
		log.Printf("ERROR %s: %v", op, err)
		writeError(w, http.StatusInternalServerError, "INTERNAL", "Something went wrong")
	}
}

package notificationshandler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"permitflow/internal/domain/notifications"
	"permitflow/internal/transport/http/api"
	"permitflow/internal/transport/http/middleware"
	"permitflow/internal/transport/http/shared"
)

// Inbox is the in-app side of notification delivery.
type Inbox interface {
	List(ctx context.Context, userID string, limit, offset int) ([]notifications.Notification, error)
	Count(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
}

type Handler struct {
	Inbox Inbox
}

func NewHandler(inbox Inbox) *Handler {
	return &Handler{Inbox: inbox}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/", h.handleList)
		r.Post("/{notificationID}/read", h.handleMarkRead)
	})
}

// handleList returns the caller's notifications, newest first. A failed
// count only drops X-Total-Count.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustUser(r).UserID
	requestID := middleware.GetRequestID(r.Context())
	page := shared.FeedPages.From(r)

	items, err := h.Inbox.List(r.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		slog.Error("notification list failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", requestID)
		return
	}
	if items == nil {
		items = []notifications.Notification{}
	}
	if total, err := h.Inbox.Count(r.Context(), userID); err != nil {
		slog.Warn("notification count failed", "err", err)
	} else {
		shared.SetTotal(w, total)
	}
	api.Success(w, items, requestID)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	userID := middleware.MustUser(r).UserID
	requestID := middleware.GetRequestID(r.Context())

	switch err := h.Inbox.MarkRead(r.Context(), userID, chi.URLParam(r, "notificationID")); {
	case errors.Is(err, notifications.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "notification not found", requestID)
	case err != nil:
		slog.Error("notification mark read failed", "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to update notification", requestID)
	default:
		api.Success(w, map[string]string{"status": "read"}, requestID)
	}
}

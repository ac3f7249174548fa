package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/google/uuid"
)

func (h *Handler) notificationsUnread(user *model.User, w http.ResponseWriter, r *http.Request) {
	notifications, err := h.services.Notification.ListUnread(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, notifications, http.StatusOK)
}

func (h *Handler) notificationsUnreadCount(user *model.User, w http.ResponseWriter, r *http.Request) {
	count, err := h.services.Notification.CountUnread(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, Resp{"count": count}, http.StatusOK)
}

func (h *Handler) notificationsCreate(admin *model.User, w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(admin.ID) {
		h.Respond(w, Resp{"error": errTooManyRequests.Error()}, http.StatusTooManyRequests)
		return
	}

	h.guard.Do(w, r, admin.ID, func(w http.ResponseWriter, r *http.Request) {
		var input dto.CreateNotification
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.Respond(w, Resp{"error": err.Error()}, http.StatusBadRequest)
			return
		}

		notification, err := h.services.Notification.Create(r.Context(), input)
		if err != nil {
			h.respondError(w, err)
			return
		}

		h.Respond(w, notification, http.StatusCreated)
	})
}

func (h *Handler) notificationsMarkRead(user *model.User, w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.Respond(w, Resp{"error": errInvalidID.Error()}, http.StatusBadRequest)
		return
	}

	ok, err := h.services.Notification.MarkRead(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !ok {
		h.Respond(w, Resp{"success": false, "error": "notification not found"}, http.StatusNotFound)
		return
	}

	h.Respond(w, Resp{"success": true}, http.StatusOK)
}

func (h *Handler) notificationsMarkAllRead(user *model.User, w http.ResponseWriter, r *http.Request) {
	ok, err := h.services.Notification.MarkAllRead(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, Resp{"success": ok}, http.StatusOK)
}

func (h *Handler) notificationsCleanup(user *model.User, w http.ResponseWriter, r *http.Request) {
	deleted, err := h.services.Notification.Cleanup(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, Resp{"success": true, "deleted": deleted}, http.StatusOK)
}

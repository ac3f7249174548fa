package handler

import (
	"encoding/json"
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/dto"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

func (h *Handler) pushRegister(user *model.User, w http.ResponseWriter, r *http.Request) {
	var input dto.RegisterPush
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.Respond(w, Resp{"error": err.Error()}, http.StatusBadRequest)
		return
	}
	input.OwnerUserID = user.ID

	endpoint, err := h.services.Push.Register(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, endpoint, http.StatusOK)
}

func (h *Handler) pushUnregister(user *model.User, w http.ResponseWriter, r *http.Request) {
	var input dto.UnregisterPush
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil || input.Endpoint == "" {
		h.Respond(w, Resp{"error": "'endpoint' is required"}, http.StatusBadRequest)
		return
	}

	deleted, err := h.services.Push.Unregister(r.Context(), input.Endpoint)
	if err != nil {
		h.respondError(w, err)
		return
	}

	h.Respond(w, Resp{"success": deleted}, http.StatusOK)
}

func (h *Handler) pushSend(admin *model.User, w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(admin.ID) {
		h.Respond(w, Resp{"error": errTooManyRequests.Error()}, http.StatusTooManyRequests)
		return
	}

	h.guard.Do(w, r, admin.ID, func(w http.ResponseWriter, r *http.Request) {
		var input dto.SendPush
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			h.Respond(w, Resp{"error": err.Error()}, http.StatusBadRequest)
			return
		}

		if err := h.validate.Struct(input); err != nil {
			h.Respond(w, Resp{"error": err.Error()}, http.StatusBadRequest)
			return
		}

		result, err := h.services.Push.SendPush(r.Context(), input.UserIDs, input.Payload())
		if err != nil {
			h.respondError(w, err)
			return
		}

		h.Respond(w, result, http.StatusOK)
	})
}

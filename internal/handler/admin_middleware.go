package handler

import (
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

// adminMiddleware admits administrators and the inspection backend's
// service account.
func (h *Handler) adminMiddleware(r *http.Request) (*model.User, error) {
	user, err := h.authMiddleware(r, false)
	if err != nil {
		return nil, err
	}

	if !user.IsAdmin() {
		return nil, errNotAdmin
	}

	return user, nil
}

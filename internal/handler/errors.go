package handler

import (
	"errors"
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/service"
)

var (
	errNoToken           = errors.New("there is no token")
	errInvalidJWT        = errors.New("invalid jwt")
	errInvalidUserID     = errors.New("invalid user ID")
	errNotAdmin          = errors.New("you are not an admin")
	errInvalidID         = errors.New("invalid notification ID")
	errTooManyRequests   = errors.New("too many requests")
	errStreamUnsupported = errors.New("streaming is not supported")
)

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		h.Respond(w, Resp{"error": err.Error()}, http.StatusBadRequest)
	default:
		h.Respond(w, Resp{"error": service.ErrInternal.Error()}, http.StatusInternalServerError)
	}
}

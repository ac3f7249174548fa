package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/gateway"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

func (h *Handler) notificationsStream(user *model.User, w http.ResponseWriter, r *http.Request) {
	sink, err := gateway.NewSSESink(w)
	if errors.Is(err, http.ErrNotSupported) {
		h.Respond(w, Resp{"error": errStreamUnsupported.Error()}, http.StatusInternalServerError)
		return
	}
	if err != nil {
		// headers are already on the wire
		h.logger.Sugar().Infof("failed to open live stream of user(%s): %s", user.ID, err.Error())
		return
	}

	// r.Context() is cancelled when the client aborts the request
	if err := h.gateway.Serve(r.Context(), user.ID, sink); err != nil {
		h.logger.Sugar().Infof("live stream of user(%s) ended: %s", user.ID, err.Error())
	}
}

func (h *Handler) notificationsWebSocket(user *model.User, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Sugar().Errorf("failed to upgrade connection of user(%s): %s", user.ID, err.Error())
		return
	}

	sink := gateway.NewWebSocketSink(conn)
	defer sink.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go sink.ReadUntilClosed(cancel)

	if err := h.gateway.Serve(ctx, user.ID, sink); err != nil {
		h.logger.Sugar().Infof("websocket of user(%s) ended: %s", user.ID, err.Error())
	}
}

package handler

import (
	"net/http"
	"strings"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	jwtmanager "github.com/morf1lo/jwt-pair-manager"
)

func (h *Handler) bearerToken(r *http.Request, allowQuery bool) (string, error) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if found && token != "" {
		return token, nil
	}

	if allowQuery {
		if token := r.URL.Query().Get("token"); token != "" {
			return token, nil
		}
	}

	return "", errNoToken
}

func (h *Handler) authMiddleware(r *http.Request, allowQuery bool) (*model.User, error) {
	tokenString, err := h.bearerToken(r, allowQuery)
	if err != nil {
		return nil, err
	}

	claims, err := jwtmanager.DecodeJWT(tokenString, h.secret)
	if err != nil {
		return nil, errInvalidJWT
	}

	userID, ok := claims["id"].(string)
	if !ok || userID == "" {
		return nil, errInvalidUserID
	}

	role, _ := claims["role"].(string)

	return &model.User{
		ID:   userID,
		Role: role,
	}, nil
}

package checkout

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/polkart/storefront-api/internal/common"
)

// Handler exposes the checkout-session endpoint.
type Handler struct {
	Service *Service
	Logger  zerolog.Logger
}

// CreateSession handles POST /api/v1/checkout/session.
func (h Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, common.BadRequest("invalid json body", err))
		return
	}
	resp, err := h.Service.CreateSession(r.Context(), req)
	if err != nil {
		var app *common.AppError
		if !errors.As(err, &app) {
			h.Logger.Error().Err(err).Msg("create checkout session")
		}
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, resp)
}

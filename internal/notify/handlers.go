package notify

import (
	"encoding/json"
	"net/http"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/polkart/storefront-api/internal/common"
	"github.com/polkart/storefront-api/internal/events"
)

// Handler exposes the mail endpoints: the contact form relay and the
// abandoned-cart reminder scheduler.
type Handler struct {
	Bus       *events.Bus
	Scheduler Scheduler
	Validate  *validator.Validate
	Logger    zerolog.Logger
}

type contactRequest struct {
	Name    string `json:"name" validate:"required,min=2,max=120"`
	Email   string `json:"email" validate:"required,email"`
	Message string `json:"message" validate:"required,min=5,max=5000"`
}

type cartNotificationRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Name       string `json:"name" validate:"max=120"`
	CartURL    string `json:"cartUrl" validate:"omitempty,url"`
	ItemsCount int    `json:"itemsCount" validate:"gte=0"`
}

// Contact accepts a contact-form submission and relays it to the shop admin.
func (h Handler) Contact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, common.BadRequest("invalid json body", err))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.WriteError(w, common.BadRequest("validation failed", err))
		return
	}
	payload := ContactPayload{Email: req.Email, Name: req.Name, Message: req.Message}
	if _, err := h.Bus.Emit(r.Context(), events.TopicContactReceived, "", payload); err != nil {
		h.Logger.Error().Err(err).Msg("relay contact message")
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

// CartNotification schedules a delayed abandoned-cart reminder email.
func (h Handler) CartNotification(w http.ResponseWriter, r *http.Request) {
	var req cartNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.WriteError(w, common.BadRequest("invalid json body", err))
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.WriteError(w, common.BadRequest("validation failed", err))
		return
	}
	payload := CartPayload{Email: req.Email, Name: req.Name, CartURL: req.CartURL, ItemsCnt: req.ItemsCount}
	if err := h.Scheduler.ScheduleCartReminder(r.Context(), payload); err != nil {
		h.Logger.Error().Err(err).Msg("schedule cart reminder")
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"scheduled": true})
}

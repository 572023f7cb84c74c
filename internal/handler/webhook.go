// Package handler provides HTTP handlers for the settlement service.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"settld/internal/domain"
	"settld/internal/settlement"
	"settld/pkg/errors"
	"settld/pkg/logger"
	"settld/pkg/validator"
)

const maxWebhookBodyBytes = 64 << 10

// TransactionService is the engine surface the HTTP layer depends on.
type TransactionService interface {
	Intake(ctx context.Context, req *settlement.IntakeRequest) (settlement.IntakeOutcome, error)
	Lookup(ctx context.Context, transactionID string) (*domain.Transaction, error)
}

type IntakeResponse struct {
	Message string                   `json:"message"`
	Status  settlement.IntakeOutcome `json:"status"`
}

// WebhookHandler receives transaction notifications.
type WebhookHandler struct {
	service   TransactionService
	validator *validator.Validator
	logger    logger.Logger
}

func NewWebhookHandler(service TransactionService, val *validator.Validator, log logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		service:   service,
		validator: val,
		logger:    log,
	}
}

// Receive accepts a notification and returns before settlement happens.
// A new transaction gets 202; a repeated transaction_id gets 200 and no side effects.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes)
	defer r.Body.Close()

	var req settlement.IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			respondError(w, h.logger, http.StatusBadRequest, "Request body is required")
			return
		}
		respondError(w, h.logger, http.StatusBadRequest, "Invalid request body")
		return
	}

	errs := h.validator.ValidateStructured(&req)
	switch {
	case req.Amount == nil:
		errs = withFieldError(errs, "amount", "This field is required")
	case !domain.AmountInRange(*req.Amount):
		errs = withFieldError(errs, "amount", fmt.Sprintf(
			"Must have at most %d integer digits and %d decimal places",
			domain.MaxAmountIntegerDigits, domain.MaxAmountScale,
		))
	}
	if errs != nil {
		respondValidationErrors(w, h.logger, errs)
		return
	}

	outcome, err := h.service.Intake(r.Context(), &req)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidTransaction) {
			respondError(w, h.logger, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("Webhook intake failed", map[string]interface{}{
			"transaction_id": req.TransactionID,
			"error":          err.Error(),
		})
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to process webhook")
		return
	}

	if outcome == settlement.OutcomeDuplicate {
		respondJSON(w, h.logger, http.StatusOK, IntakeResponse{
			Message: "Transaction already exists",
			Status:  outcome,
		})
		return
	}
	respondJSON(w, h.logger, http.StatusAccepted, IntakeResponse{
		Message: "Webhook received",
		Status:  outcome,
	})
}

func withFieldError(errs map[string]string, field, message string) map[string]string {
	if errs == nil {
		errs = make(map[string]string)
	}
	errs[field] = message
	return errs
}

func respondJSON(w http.ResponseWriter, log logger.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error("json encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func respondError(w http.ResponseWriter, log logger.Logger, status int, message string) {
	respondJSON(w, log, status, map[string]string{"error": message})
}

func respondValidationErrors(w http.ResponseWriter, log logger.Logger, errs map[string]string) {
	respondJSON(w, log, http.StatusBadRequest, map[string]interface{}{
		"error":             "Validation failed",
		"validation_errors": errs,
	})
}

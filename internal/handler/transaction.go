package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"settld/internal/domain"
	"settld/pkg/errors"
	"settld/pkg/logger"

	"github.com/gorilla/mux"
)

// TransactionResponse renders amount as a JSON number and timestamps in UTC.
type TransactionResponse struct {
	TransactionID      string                   `json:"transaction_id"`
	SourceAccount      string                   `json:"source_account"`
	DestinationAccount string                   `json:"destination_account"`
	Amount             json.Number              `json:"amount"`
	Currency           string                   `json:"currency"`
	Status             domain.TransactionStatus `json:"status"`
	CreatedAt          time.Time                `json:"created_at"`
	ProcessedAt        *time.Time               `json:"processed_at"`
}

func newTransactionResponse(tx *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		TransactionID:      tx.TransactionID,
		SourceAccount:      tx.SourceAccount,
		DestinationAccount: tx.DestinationAccount,
		Amount:             json.Number(tx.Amount.String()),
		Currency:           tx.Currency,
		Status:             tx.Status,
		CreatedAt:          tx.CreatedAt.UTC(),
	}
	if tx.ProcessedAt != nil {
		at := tx.ProcessedAt.UTC()
		resp.ProcessedAt = &at
	}
	return resp
}

type TransactionHandler struct {
	service TransactionService
	logger  logger.Logger
}

func NewTransactionHandler(service TransactionService, log logger.Logger) *TransactionHandler {
	return &TransactionHandler{service: service, logger: log}
}

// GetTransaction returns the current state of one transaction.
func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := mux.Vars(r)["transaction_id"]

	tx, err := h.service.Lookup(r.Context(), transactionID)
	if err != nil {
		if errors.Is(err, errors.ErrTransactionNotFound) {
			respondError(w, h.logger, http.StatusNotFound, "Transaction not found")
			return
		}
		h.logger.Error("Failed to get transaction", map[string]interface{}{
			"transaction_id": transactionID,
			"error":          err.Error(),
		})
		respondError(w, h.logger, http.StatusInternalServerError, "Failed to get transaction")
		return
	}

	respondJSON(w, h.logger, http.StatusOK, newTransactionResponse(tx))
}

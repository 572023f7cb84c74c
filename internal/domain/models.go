// Package domain holds the core transaction types shared across the service.
package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus represents transaction lifecycle states.
type TransactionStatus string

const (
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusProcessed  TransactionStatus = "PROCESSED"
)

// Amounts carry at most MaxAmountIntegerDigits digits before the decimal
// point and MaxAmountScale after it, matching NUMERIC(38,18).
const (
	MaxAmountIntegerDigits = 20
	MaxAmountScale         = 18
)

// AmountInRange reports whether amount fits the stored precision. The
// exponent is checked before any digit is materialized, so values like
// 1e2000000000 are rejected without expanding them.
func AmountInRange(amount decimal.Decimal) bool {
	exp := int(amount.Exponent())
	if exp < -MaxAmountScale || exp > MaxAmountIntegerDigits {
		return false
	}
	return amount.NumDigits()+exp <= MaxAmountIntegerDigits
}

// Transaction is a webhook-notified money movement tracked through settlement.
// ProcessedAt is nil until Status is PROCESSED.
type Transaction struct {
	ID                 int64             `json:"-" db:"id"`
	TransactionID      string            `json:"transaction_id" db:"transaction_id"`
	SourceAccount      string            `json:"source_account" db:"source_account"`
	DestinationAccount string            `json:"destination_account" db:"destination_account"`
	Amount             decimal.Decimal   `json:"amount" db:"amount"`
	Currency           string            `json:"currency" db:"currency"`
	Status             TransactionStatus `json:"status" db:"status"`
	CreatedAt          time.Time         `json:"created_at" db:"created_at"`
	ProcessedAt        *time.Time        `json:"processed_at" db:"processed_at"`
}

// IsProcessed reports whether settlement has completed.
func (t *Transaction) IsProcessed() bool {
	return t.Status == TransactionStatusProcessed
}

// TransactionProcessed is emitted after a transaction settles.
type TransactionProcessed struct {
	TransactionID      string          `json:"transaction_id"`
	SourceAccount      string          `json:"source_account"`
	DestinationAccount string          `json:"destination_account"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	CreatedAt          time.Time       `json:"created_at"`
	ProcessedAt        time.Time       `json:"processed_at"`
}

// MarshalJSON renders amount as a JSON number, the same form lookups use.
func (e TransactionProcessed) MarshalJSON() ([]byte, error) {
	type event TransactionProcessed
	return json.Marshal(struct {
		event
		Amount json.Number `json:"amount"`
	}{
		event:  event(e),
		Amount: json.Number(e.Amount.String()),
	})
}

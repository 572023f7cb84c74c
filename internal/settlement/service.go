// ==============================================================================
// SETTLEMENT SERVICE - internal/settlement/service.go
// ==============================================================================
package settlement

import (
	"context"
	"strings"
	"time"

	"settld/internal/domain"
	"settld/pkg/errors"
	"settld/pkg/logger"

	"github.com/shopspring/decimal"
)

// IntakeOutcome is the result of accepting a webhook notification.
type IntakeOutcome string

const (
	OutcomeAccepted  IntakeOutcome = "ACCEPTED"
	OutcomeDuplicate IntakeOutcome = "DUPLICATE"
)

// IntakeRequest is a transaction notification received from a webhook.
type IntakeRequest struct {
	TransactionID      string           `json:"transaction_id" validate:"required,notblank,max=255"`
	SourceAccount      string           `json:"source_account" validate:"required,max=255"`
	DestinationAccount string           `json:"destination_account" validate:"required,max=255"`
	Amount             *decimal.Decimal `json:"amount"`
	Currency           string           `json:"currency" validate:"required,max=16"`
}

func (r *IntakeRequest) validate() error {
	switch {
	case r == nil:
		return errors.Wrap(errors.ErrInvalidTransaction, "request is required")
	case strings.TrimSpace(r.TransactionID) == "":
		return errors.Wrap(errors.ErrInvalidTransaction, "transaction_id is required")
	case r.SourceAccount == "" || r.DestinationAccount == "":
		return errors.Wrap(errors.ErrInvalidTransaction, "source_account and destination_account are required")
	case r.Amount == nil:
		return errors.Wrap(errors.ErrInvalidTransaction, "amount is required")
	case !domain.AmountInRange(*r.Amount):
		return errors.Wrap(errors.ErrInvalidTransaction, "amount out of range")
	case r.Currency == "":
		return errors.Wrap(errors.ErrInvalidTransaction, "currency is required")
	}
	return nil
}

type Service struct {
	repo       Repository
	scheduler  Scheduler
	publishers []EventPublisher
	logger     logger.Logger
	now        func() time.Time
}

func NewService(
	repo Repository,
	scheduler Scheduler,
	log logger.Logger,
	publishers ...EventPublisher,
) *Service {
	return &Service{
		repo:       repo,
		scheduler:  scheduler,
		publishers: publishers,
		logger:     log,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
}

// Intake records a transaction the first time its id is seen and schedules
// its settlement. Repeated ids return OutcomeDuplicate and change nothing.
// The row is persisted before settlement is scheduled, so a failure in
// between leaves a PROCESSING row and never a settlement without a row.
func (s *Service) Intake(ctx context.Context, req *IntakeRequest) (IntakeOutcome, error) {
	if err := req.validate(); err != nil {
		return "", err
	}

	exists, err := s.repo.Exists(ctx, req.TransactionID)
	if err != nil {
		return "", errors.Wrap(err, "idempotency check failed")
	}
	if exists {
		s.logger.Info("Duplicate transaction notification", map[string]interface{}{
			"transaction_id": req.TransactionID,
		})
		return OutcomeDuplicate, nil
	}

	tx := &domain.Transaction{
		TransactionID:      req.TransactionID,
		SourceAccount:      req.SourceAccount,
		DestinationAccount: req.DestinationAccount,
		Amount:             *req.Amount,
		Currency:           req.Currency,
		Status:             domain.TransactionStatusProcessing,
		CreatedAt:          s.now(),
	}

	if err := s.repo.Insert(ctx, tx); err != nil {
		if errors.Is(err, errors.ErrTransactionAlreadyExists) {
			// Lost the race against a concurrent intake of the same id.
			s.logger.Info("Duplicate transaction notification", map[string]interface{}{
				"transaction_id": req.TransactionID,
				"raced":          true,
			})
			return OutcomeDuplicate, nil
		}
		return "", err
	}

	if err := s.scheduler.Schedule(tx.TransactionID); err != nil {
		s.logger.Error("Transaction persisted but settlement not scheduled", map[string]interface{}{
			"transaction_id": tx.TransactionID,
			"error":          err.Error(),
		})
		return "", errors.Wrap(err, "failed to schedule settlement")
	}

	s.logger.Info("Transaction accepted", map[string]interface{}{
		"transaction_id": tx.TransactionID,
		"amount":         tx.Amount.String(),
		"currency":       tx.Currency,
	})
	return OutcomeAccepted, nil
}

// Settle moves a PROCESSING transaction to PROCESSED. It is called by the
// scheduler once per accepted transaction; settling twice is a no-op.
func (s *Service) Settle(ctx context.Context, transactionID string) error {
	processedAt := s.now()

	err := s.repo.MarkProcessed(ctx, transactionID, processedAt)
	switch {
	case errors.Is(err, errors.ErrTransactionAlreadyProcessed):
		s.logger.Warn("Transaction already processed", map[string]interface{}{
			"transaction_id": transactionID,
		})
		return nil
	case errors.Is(err, errors.ErrTransactionNotFound):
		s.logger.Error("Settlement for unknown transaction", map[string]interface{}{
			"transaction_id": transactionID,
		})
		return err
	case err != nil:
		return errors.Wrap(err, "failed to settle transaction")
	}

	s.logger.Info("Transaction processed", map[string]interface{}{
		"transaction_id": transactionID,
		"processed_at":   processedAt.Format(time.RFC3339Nano),
	})

	s.publishProcessed(ctx, transactionID)
	return nil
}

// Lookup returns the current state of a transaction.
func (s *Service) Lookup(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	return s.repo.Get(ctx, transactionID)
}

func (s *Service) publishProcessed(ctx context.Context, transactionID string) {
	if len(s.publishers) == 0 {
		return
	}

	tx, err := s.repo.Get(ctx, transactionID)
	if err != nil {
		s.logger.Warn("Failed to load processed transaction for publishing", map[string]interface{}{
			"transaction_id": transactionID,
			"error":          err.Error(),
		})
		return
	}

	event := domain.TransactionProcessed{
		TransactionID:      tx.TransactionID,
		SourceAccount:      tx.SourceAccount,
		DestinationAccount: tx.DestinationAccount,
		Amount:             tx.Amount,
		Currency:           tx.Currency,
		CreatedAt:          tx.CreatedAt,
	}
	if tx.ProcessedAt != nil {
		event.ProcessedAt = *tx.ProcessedAt
	}

	for _, p := range s.publishers {
		if err := p.Publish(ctx, event); err != nil {
			s.logger.Warn("Failed to publish transaction event", map[string]interface{}{
				"transaction_id": transactionID,
				"error":          err.Error(),
			})
		}
	}
}

// Interfaces
type Repository interface {
	Exists(ctx context.Context, transactionID string) (bool, error)
	Insert(ctx context.Context, tx *domain.Transaction) error
	MarkProcessed(ctx context.Context, transactionID string, processedAt time.Time) error
	Get(ctx context.Context, transactionID string) (*domain.Transaction, error)
}

type Scheduler interface {
	Schedule(transactionID string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.TransactionProcessed) error
}

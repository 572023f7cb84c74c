package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"settld/internal/domain"
	"settld/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

const transactionColumns = `
	id, transaction_id, source_account, destination_account,
	amount, currency, status, created_at, processed_at`

// TransactionRepository persists transactions. The UNIQUE constraint on
// transaction_id is the only serialization point between racing inserts.
type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Exists(ctx context.Context, transactionID string) (bool, error) {
	query := r.db.Rebind(`SELECT 1 FROM transactions WHERE transaction_id = ? LIMIT 1`)

	var found int
	err := r.db.QueryRowxContext(ctx, query, transactionID).Scan(&found)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "failed to check transaction")
	}
	return true, nil
}

// Insert stores tx as PROCESSING. A second insert of the same transaction_id
// fails with ErrTransactionAlreadyExists.
func (r *TransactionRepository) Insert(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			transaction_id, source_account, destination_account,
			amount, currency, status, created_at, processed_at
		) VALUES (
			:transaction_id, :source_account, :destination_account,
			:amount, :currency, :status, :created_at, NULL
		)
	`

	tx.Status = domain.TransactionStatusProcessing
	tx.ProcessedAt = nil

	if _, err := r.db.NamedExecContext(ctx, query, tx); err != nil {
		if isUniqueViolation(err) {
			return errors.ErrTransactionAlreadyExists
		}
		return errors.Wrap(err, "failed to create transaction")
	}
	return nil
}

// MarkProcessed flips a PROCESSING row to PROCESSED. It never touches a row
// that is already PROCESSED, so processed_at is written exactly once.
func (r *TransactionRepository) MarkProcessed(ctx context.Context, transactionID string, processedAt time.Time) error {
	query := r.db.Rebind(`
		UPDATE transactions SET status = ?, processed_at = ?
		WHERE transaction_id = ? AND status = ?
	`)

	res, err := r.db.ExecContext(ctx, query,
		domain.TransactionStatusProcessed, processedAt.UTC(),
		transactionID, domain.TransactionStatusProcessing,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update transaction")
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read update result")
	}
	if affected > 0 {
		return nil
	}

	exists, err := r.Exists(ctx, transactionID)
	if err != nil {
		return err
	}
	if !exists {
		return errors.ErrTransactionNotFound
	}
	return errors.ErrTransactionAlreadyProcessed
}

func (r *TransactionRepository) Get(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := r.db.Rebind(`SELECT ` + transactionColumns + ` FROM transactions WHERE transaction_id = ?`)

	var tx domain.Transaction
	err := r.db.GetContext(ctx, &tx, query, transactionID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transaction")
	}

	tx.CreatedAt = tx.CreatedAt.UTC()
	if tx.ProcessedAt != nil {
		processedAt := tx.ProcessedAt.UTC()
		tx.ProcessedAt = &processedAt
	}
	return &tx, nil
}

// Ping verifies the database is reachable.
func (r *TransactionRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" // unique_violation
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

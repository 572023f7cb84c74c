package settlement_test

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"settld/internal/domain"
	"settld/internal/repository/sqlstore"
	"settld/internal/scheduler"
	"settld/internal/settlement"
	"settld/pkg/config"
	"settld/pkg/errors"
	"settld/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engine struct {
	service   *settlement.Service
	scheduler *scheduler.Scheduler
	settled   *int32
}

func newEngine(t *testing.T, delay time.Duration) engine {
	t.Helper()

	path := filepath.Join(t.TempDir(), "transactions.db")
	require.NoError(t, sqlstore.Migrate(config.DriverSQLite, path))
	db, err := sqlstore.Connect(context.Background(), sqlstore.Options{Driver: config.DriverSQLite, URL: path})
	require.NoError(t, err)

	log := logger.NewNop()
	sched := scheduler.NewScheduler(delay, log)
	service := settlement.NewService(sqlstore.NewTransactionRepository(db), sched, log)

	var settled int32
	sched.Start(func(ctx context.Context, transactionID string) error {
		atomic.AddInt32(&settled, 1)
		return service.Settle(ctx, transactionID)
	})

	t.Cleanup(func() {
		_ = sched.Stop(context.Background())
		_ = db.Close()
	})
	return engine{service: service, scheduler: sched, settled: &settled}
}

func request(id string, amount float64) *settlement.IntakeRequest {
	a := decimal.NewFromFloat(amount)
	return &settlement.IntakeRequest{
		TransactionID:      id,
		SourceAccount:      "A",
		DestinationAccount: "B",
		Amount:             &a,
		Currency:           "USD",
	}
}

func waitProcessed(t *testing.T, svc *settlement.Service, id string) *domain.Transaction {
	t.Helper()
	var tx *domain.Transaction
	require.Eventually(t, func() bool {
		got, err := svc.Lookup(context.Background(), id)
		if err != nil {
			return false
		}
		tx = got
		return got.IsProcessed()
	}, 3*time.Second, 10*time.Millisecond)
	return tx
}

func TestEngine_WebhookScenario(t *testing.T) {
	const delay = 150 * time.Millisecond
	e := newEngine(t, delay)
	ctx := context.Background()

	outcome, err := e.service.Intake(ctx, request("tx1", 100.0))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeAccepted, outcome)

	tx, err := e.service.Lookup(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusProcessing, tx.Status)
	assert.Nil(t, tx.ProcessedAt)
	createdAt := tx.CreatedAt

	outcome, err = e.service.Intake(ctx, request("tx1", 100.0))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeDuplicate, outcome)

	unchanged, err := e.service.Lookup(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusProcessing, unchanged.Status)
	assert.Nil(t, unchanged.ProcessedAt)
	assert.True(t, tx.Amount.Equal(unchanged.Amount))
	assert.True(t, createdAt.Equal(unchanged.CreatedAt))

	processed := waitProcessed(t, e.service, "tx1")
	require.NotNil(t, processed.ProcessedAt)
	assert.True(t, createdAt.Equal(processed.CreatedAt))
	assert.GreaterOrEqual(t, processed.ProcessedAt.Sub(processed.CreatedAt), delay)
	assert.Equal(t, int32(1), atomic.LoadInt32(e.settled))
}

func TestEngine_ConcurrentDuplicatesAcceptExactlyOnce(t *testing.T) {
	e := newEngine(t, 50*time.Millisecond)
	ctx := context.Background()

	const callers = 20
	var wg sync.WaitGroup
	outcomes := make(chan settlement.IntakeOutcome, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Payload varies; only the id matters for idempotency.
			outcome, err := e.service.Intake(ctx, request("tx-dup", float64(i+1)))
			assert.NoError(t, err)
			outcomes <- outcome
		}(i)
	}
	wg.Wait()
	close(outcomes)

	var accepted, duplicate int
	for o := range outcomes {
		switch o {
		case settlement.OutcomeAccepted:
			accepted++
		case settlement.OutcomeDuplicate:
			duplicate++
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Equal(t, callers-1, duplicate)

	waitProcessed(t, e.service, "tx-dup")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(e.settled))
}

func TestEngine_ProcessedIsFinal(t *testing.T) {
	e := newEngine(t, 20*time.Millisecond)
	ctx := context.Background()

	_, err := e.service.Intake(ctx, request("tx1", 5))
	require.NoError(t, err)
	first := waitProcessed(t, e.service, "tx1")

	require.NoError(t, e.service.Settle(ctx, "tx1"))
	outcome, err := e.service.Intake(ctx, request("tx1", 5))
	require.NoError(t, err)
	assert.Equal(t, settlement.OutcomeDuplicate, outcome)

	again, err := e.service.Lookup(ctx, "tx1")
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusProcessed, again.Status)
	assert.True(t, first.ProcessedAt.Equal(*again.ProcessedAt))
}

func TestEngine_IndependentTransactions(t *testing.T) {
	e := newEngine(t, 30*time.Millisecond)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		outcome, err := e.service.Intake(ctx, request(id, 1))
		require.NoError(t, err)
		assert.Equal(t, settlement.OutcomeAccepted, outcome)
	}
	for _, id := range []string{"a", "b", "c"} {
		waitProcessed(t, e.service, id)
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(e.settled))
}

func TestEngine_UnknownID(t *testing.T) {
	e := newEngine(t, time.Second)

	tx, err := e.service.Lookup(context.Background(), "never-submitted")

	assert.Nil(t, tx)
	assert.ErrorIs(t, err, errors.ErrTransactionNotFound)
}

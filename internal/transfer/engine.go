// Package transfer implements the engine through which every UCM balance
// mutation flows. An engine call applies a batch of signed movements and
// writes their ledger entries as one database transaction: either every
// balance changes and every entry is written, or nothing is. No other code
// path mutates a balance or writes a ledger row.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/communitymarket/ucm-ledger/internal/domain/account"
	"github.com/communitymarket/ucm-ledger/internal/domain/idempotency"
	"github.com/communitymarket/ucm-ledger/internal/domain/ledger"
	"github.com/communitymarket/ucm-ledger/internal/platform/persistence"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Common errors
var (
	// ErrSelfTransfer rejects a transfer whose sender and recipient match
	ErrSelfTransfer = errors.New("sender and recipient must differ")

	// ErrEmptyBatch rejects an Apply call with no movements
	ErrEmptyBatch = errors.New("movement batch cannot be empty")
)

// Metrics
var (
	movementsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ucm_ledger_movements_total",
		Help: "Ledger movements applied, by reason",
	}, []string{"reason"})

	insufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ucm_ledger_insufficient_funds_total",
		Help: "Movement batches rejected for insufficient funds",
	})
)

// Movement is one signed balance change inside an atomic unit
type Movement struct {
	AccountID     uuid.UUID
	Delta         int64 // positive = credit, negative = debit
	Reason        ledger.Reason
	Related       *ledger.Related
	Meta          map[string]string
	CorrelationID string
}

// Engine applies movement batches atomically. Construct with NewEngine.
type Engine struct {
	txRunner    persistence.TxRunner
	accountRepo account.Repository
	recorder    ledger.Recorder
	idemRepo    idempotency.Repository
	logger      *slog.Logger
}

// NewEngine creates a transfer engine. idemRepo may be nil when idempotency
// keys are not in use (e.g. in the admin tooling).
func NewEngine(
	txRunner persistence.TxRunner,
	accountRepo account.Repository,
	recorder ledger.Recorder,
	idemRepo idempotency.Repository,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		txRunner:    txRunner,
		accountRepo: accountRepo,
		recorder:    recorder,
		idemRepo:    idemRepo,
		logger:      logger,
	}
}

// Apply runs a movement batch in its own transaction and returns the new
// balance of every touched account.
func (e *Engine) Apply(ctx context.Context, movements []Movement) (map[uuid.UUID]int64, error) {
	var balances map[uuid.UUID]int64
	err := e.txRunner.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var applyErr error
		balances, applyErr = e.ApplyInTx(ctx, tx, movements)
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return balances, nil
}

// ApplyInTx applies a movement batch inside the caller's transaction, so a
// caller can make the batch atomic with its own writes (request creation,
// settlement status). Accounts are locked in deterministic id order to avoid
// deadlocks between concurrent batches. If any resulting balance would go
// negative the whole batch fails with ErrInsufficientFunds naming the
// offending account, and the caller's transaction must roll back.
func (e *Engine) ApplyInTx(ctx context.Context, tx pgx.Tx, movements []Movement) (map[uuid.UUID]int64, error) {
	if len(movements) == 0 {
		return nil, ErrEmptyBatch
	}

	// Net the batch per account; one account may carry several movements
	// (e.g. base fee plus promotion fee).
	totals := make(map[uuid.UUID]int64)
	order := make([]uuid.UUID, 0, len(movements))
	for _, m := range movements {
		if m.Delta == 0 {
			return nil, account.ErrInvalidAmount
		}
		if m.AccountID == uuid.Nil {
			return nil, account.ErrAccountNotFound{AccountID: m.AccountID}
		}
		if _, seen := totals[m.AccountID]; !seen {
			order = append(order, m.AccountID)
		}
		totals[m.AccountID] += m.Delta
	}

	// Deterministic lock order across concurrent batches
	sort.Slice(order, func(i, j int) bool {
		return bytes.Compare(order[i][:], order[j][:]) < 0
	})

	accountRepo := e.accountRepo.WithTx(tx)
	recorder := e.recorder.WithTx(tx)

	balances := make(map[uuid.UUID]int64, len(order))
	for _, id := range order {
		acc, err := accountRepo.LockForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}

		total := totals[id]
		if total != 0 {
			if err := acc.ApplyDelta(total); err != nil {
				if errors.Is(err, account.ErrInsufficientFunds{}) {
					insufficientFunds.Inc()
					e.logger.Warn("Movement batch rejected: insufficient funds",
						"account_id", id.String(),
						"balance", acc.Balance,
						"delta", total,
					)
				}
				return nil, err
			}
			if err := accountRepo.Update(ctx, acc); err != nil {
				return nil, err
			}
		}
		balances[id] = acc.Balance
	}

	// Entries are written in batch order, inside the same transaction, so
	// the legs of one atomic unit appear contiguously in history.
	for _, m := range movements {
		entry := ledger.NewEntry(m.AccountID, m.Delta, m.Reason, m.Related)
		entry.Meta = m.Meta
		entry.CorrelationID = m.CorrelationID
		if err := recorder.Create(ctx, entry); err != nil {
			return nil, fmt.Errorf("failed to record movement: %w", err)
		}
		movementsApplied.WithLabelValues(string(m.Reason)).Inc()
	}

	return balances, nil
}

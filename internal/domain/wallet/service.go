package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/knockdown-io/knockdown/pkg/database"
	"github.com/knockdown-io/knockdown/pkg/events"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient available funds")

	// ErrConsistency indicates the ledger would have produced a negative
	// balance despite prior validation, or a settlement reference was
	// replayed with a different amount. It is a bug, not a user error, and
	// the operation must abort without partial effects.
	ErrConsistency = errors.New("ledger consistency violation")
)

// Service wraps the ledger primitives that are reachable from outside the
// bid and lifecycle paths: external deposit confirmation, withdrawals and
// balance reads. Each mutating call owns its own transaction.
type Service struct {
	txManager database.TransactionManager
	ledger    Ledger
	outbox    events.OutboxRepository
	logger    *slog.Logger
}

func NewService(txManager database.TransactionManager, ledger Ledger, outbox events.OutboxRepository, logger *slog.Logger) *Service {
	return &Service{
		txManager: txManager,
		ledger:    ledger,
		outbox:    outbox,
		logger:    logger,
	}
}

// Deposit credits a user's available balance after the external payment
// verifier reports the payment completed. Replaying the same payment
// reference is a no-op.
func (s *Service) Deposit(ctx context.Context, userID uuid.UUID, amount int64, paymentRef string) (*Balance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if paymentRef == "" {
		return nil, fmt.Errorf("payment reference is required")
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.ledger.Deposit(ctx, tx, userID, amount, paymentRef); err != nil {
		return nil, fmt.Errorf("failed to apply deposit: %w", err)
	}

	balance, err := s.ledger.GetBalanceForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	payload, err := json.Marshal(events.DepositCreditedPayload{
		UserID:     userID.String(),
		Amount:     amount,
		PaymentRef: paymentRef,
		Timestamp:  time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := s.outbox.SaveEvent(ctx, tx, &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: events.TypeDepositCredited,
		Payload:   payload,
		Status:    events.OutboxStatusPending,
		CreatedAt: time.Now(),
	}); err != nil {
		return nil, fmt.Errorf("failed to save outbox event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return balance, nil
}

// Withdraw debits a user's available balance. Held funds cannot be withdrawn.
func (s *Service) Withdraw(ctx context.Context, userID uuid.UUID, amount int64, ref string) (*Balance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if ref == "" {
		ref = uuid.NewString()
	}

	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := s.ledger.Withdraw(ctx, tx, userID, amount, ref); err != nil {
		if errors.Is(err, ErrInsufficientFunds) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply withdrawal: %w", err)
	}

	balance, err := s.ledger.GetBalanceForUpdate(ctx, tx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return balance, nil
}

// GetBalance returns the user's current balance, zero if they never transacted.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// ListTransactions returns the user's ledger history, newest first.
func (s *Service) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.ledger.ListTransactions(ctx, userID, limit, offset)
}

package wallet

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Ledger exposes the escrow bookkeeping primitives. Every mutating primitive
// must run inside the caller's transaction, apply atomically, and be
// idempotent with respect to (user, type, reference): replaying the same
// settlement for the same bid or auction reference must not double-apply.
//
// Balances are maintained as running totals updated alongside each
// transaction insert; nothing sums the log on the hot path.
type Ledger interface {
	// Hold moves amount from the user's available balance into held,
	// earmarking funds for a leading bid. Fails with ErrInsufficientFunds
	// if available would go negative.
	Hold(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error

	// Release returns a previously held amount to available (outbid or
	// superseded hold).
	Release(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error

	// Refund returns a held amount to available at close time when the
	// auction produced no winner.
	Refund(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error

	// Settle transfers a winning hold from the buyer to the seller's
	// available balance.
	Settle(ctx context.Context, tx pgx.Tx, fromUserID, toUserID uuid.UUID, amount int64, ref string) error

	// Deposit credits available balance once an external payment is completed.
	Deposit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error

	// Withdraw debits available balance. Fails with ErrInsufficientFunds if
	// available would go negative.
	Withdraw(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error

	// GetBalanceForUpdate reads the user's balance under a row lock, creating
	// a zero row if the user has never transacted.
	GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*Balance, error)

	// GetBalance reads the user's balance without locking.
	GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error)

	// ListTransactions returns the user's ledger entries, newest first.
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Transaction, error)
}

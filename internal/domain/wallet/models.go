package wallet

import (
	"time"

	"github.com/google/uuid"
)

// Balance is the materialized running total over a user's transaction log.
// Available is spendable; Held is the sum of the user's currently leading bid
// holds. The log remains the reconciliation source of truth.
type Balance struct {
	UserID    uuid.UUID `db:"user_id"`
	Available int64     `db:"available_balance"`
	Held      int64     `db:"held_balance"`
	UpdatedAt time.Time `db:"updated_at"`
}

// TransactionType tags a ledger entry with the operation that produced it.
type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxBidHold    TransactionType = "bid_hold"
	TxBidRelease TransactionType = "bid_release"
	TxWinSettle  TransactionType = "win_settle"
	TxRefund     TransactionType = "refund"
)

// TransactionStatus is the processing state of a ledger entry.
type TransactionStatus string

const (
	TxStatusPending   TransactionStatus = "pending"
	TxStatusCompleted TransactionStatus = "completed"
	TxStatusFailed    TransactionStatus = "failed"
	TxStatusReversed  TransactionStatus = "reversed"
	TxStatusCancelled TransactionStatus = "cancelled"
)

// Transaction is one append-only ledger entry. Amount is signed relative to
// the balance it moves: a bid_hold is negative against available, the matching
// bid_release positive. Reference links the entry to the bid, auction or
// external payment it settles, and makes retries idempotent.
type Transaction struct {
	ID        uuid.UUID         `db:"id"`
	UserID    uuid.UUID         `db:"user_id"`
	Type      TransactionType   `db:"type"`
	Amount    int64             `db:"amount"`
	Status    TransactionStatus `db:"status"`
	Reference string            `db:"reference"`
	CreatedAt time.Time         `db:"created_at"`
}

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knockdown-io/knockdown/internal/domain/wallet"
)

// PostgresWalletRepository implements wallet.Ledger using pgx. Balances are
// running totals updated in the same transaction as each ledger insert; the
// transaction log is never summed on the hot path.
type PostgresWalletRepository struct {
	pool *pgxpool.Pool // for non-transactional reads
}

func NewPostgresWalletRepository(pool *pgxpool.Pool) *PostgresWalletRepository {
	return &PostgresWalletRepository{pool: pool}
}

// apply records one ledger entry and moves the running totals. The UNIQUE
// (user_id, type, reference) constraint makes replays no-ops: if the entry
// already exists the balances are left untouched and apply returns nil.
// insufficientOK selects the error for a guarded update that matched no row:
// user-facing insufficiency for debits of available funds, consistency
// violation for moves that validation already vouched for.
func (r *PostgresWalletRepository) apply(
	ctx context.Context,
	tx pgx.Tx,
	userID uuid.UUID,
	txType wallet.TransactionType,
	amount int64,
	ref string,
	deltaAvailable, deltaHeld int64,
	insufficientOK bool,
) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallet_balances (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure balance row: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO wallet_transactions (id, user_id, type, amount, status, reference, created_at)
		VALUES ($1, $2, $3::wallet_tx_type, $4, $5::wallet_tx_status, $6, $7)
		ON CONFLICT (user_id, type, reference) DO NOTHING
	`, uuid.New(), userID, txType, amount, wallet.TxStatusCompleted, ref, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert wallet transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Same (user, type, reference) already applied; idempotent replay.
		return nil
	}

	tag, err = tx.Exec(ctx, `
		UPDATE wallet_balances
		SET available_balance = available_balance + $1,
		    held_balance = held_balance + $2,
		    updated_at = NOW()
		WHERE user_id = $3
		  AND available_balance + $1 >= 0
		  AND held_balance + $2 >= 0
	`, deltaAvailable, deltaHeld, userID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if insufficientOK {
			return wallet.ErrInsufficientFunds
		}
		return fmt.Errorf("%w: %s of %d for user %s (ref %s)", wallet.ErrConsistency, txType, amount, userID, ref)
	}
	return nil
}

func (r *PostgresWalletRepository) Hold(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error {
	return r.apply(ctx, tx, userID, wallet.TxBidHold, -amount, ref, -amount, amount, true)
}

func (r *PostgresWalletRepository) Release(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error {
	return r.apply(ctx, tx, userID, wallet.TxBidRelease, amount, ref, amount, -amount, false)
}

func (r *PostgresWalletRepository) Refund(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error {
	return r.apply(ctx, tx, userID, wallet.TxRefund, amount, ref, amount, -amount, false)
}

// Settle moves a winning hold out of the buyer's held balance and credits the
// seller's available balance, both legs under the same reference so a retried
// settlement cannot double-apply either side.
func (r *PostgresWalletRepository) Settle(ctx context.Context, tx pgx.Tx, fromUserID, toUserID uuid.UUID, amount int64, ref string) error {
	if err := r.apply(ctx, tx, fromUserID, wallet.TxWinSettle, -amount, ref, 0, -amount, false); err != nil {
		return err
	}
	return r.apply(ctx, tx, toUserID, wallet.TxWinSettle, amount, ref, amount, 0, false)
}

func (r *PostgresWalletRepository) Deposit(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error {
	return r.apply(ctx, tx, userID, wallet.TxDeposit, amount, ref, amount, 0, false)
}

func (r *PostgresWalletRepository) Withdraw(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int64, ref string) error {
	return r.apply(ctx, tx, userID, wallet.TxWithdrawal, -amount, ref, -amount, 0, true)
}

// GetBalanceForUpdate reads the balance under a row lock, creating a zero row
// for first-time users so the lock has something to grab.
func (r *PostgresWalletRepository) GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*wallet.Balance, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO wallet_balances (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure balance row: %w", err)
	}

	query := `
		SELECT user_id, available_balance, held_balance, updated_at
		FROM wallet_balances
		WHERE user_id = $1
		FOR UPDATE
	`
	var b wallet.Balance
	err = tx.QueryRow(ctx, query, userID).Scan(&b.UserID, &b.Available, &b.Held, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

func (r *PostgresWalletRepository) GetBalance(ctx context.Context, userID uuid.UUID) (*wallet.Balance, error) {
	query := `
		SELECT user_id, available_balance, held_balance, updated_at
		FROM wallet_balances
		WHERE user_id = $1
	`
	var b wallet.Balance
	err := r.pool.QueryRow(ctx, query, userID).Scan(&b.UserID, &b.Available, &b.Held, &b.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return &wallet.Balance{UserID: userID, UpdatedAt: time.Now()}, nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

func (r *PostgresWalletRepository) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	query := `
		SELECT id, user_id, type, amount, status, reference, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var result []*wallet.Transaction
	for rows.Next() {
		var t wallet.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.Reference, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return result, nil
}

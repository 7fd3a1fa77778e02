package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	pkgdb "github.com/knockdown-io/knockdown/pkg/database"
)

const auctionColumns = `id, seller_id, title, description, start_price, reserve_price,
	current_price, min_bid_increment, start_time, end_time, status, winner_id,
	winning_bid, created_at, updated_at`

// PostgresAuctionRepository implements auctions.Repository and the
// coordinator's AuctionStore using pgx.
type PostgresAuctionRepository struct {
	pool *pgxpool.Pool // for non-transactional reads
}

func NewPostgresAuctionRepository(pool *pgxpool.Pool) *PostgresAuctionRepository {
	return &PostgresAuctionRepository{pool: pool}
}

func (r *PostgresAuctionRepository) Create(ctx context.Context, a *auctions.Auction) error {
	query := `
		INSERT INTO auctions (id, seller_id, title, description, start_price, reserve_price,
			min_bid_increment, start_time, end_time, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::auction_status, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		a.ID, a.SellerID, a.Title, a.Description, a.StartPrice, a.ReservePrice,
		a.MinBidIncrement, a.StartTime, a.EndTime, a.Status, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

func (r *PostgresAuctionRepository) GetByID(ctx context.Context, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getByID(ctx, r.pool, auctionID, false)
}

// GetByIDForUpdate takes the per-auction row lock. Bids, admin overrides and
// time-driven transitions all serialize on this lock.
func (r *PostgresAuctionRepository) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error) {
	return r.getByID(ctx, tx, auctionID, true)
}

func (r *PostgresAuctionRepository) getByID(ctx context.Context, db pkgdb.DBTX, auctionID uuid.UUID, forUpdate bool) (*auctions.Auction, error) {
	query := fmt.Sprintf(`SELECT %s FROM auctions WHERE id = $1`, auctionColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var a auctions.Auction
	err := db.QueryRow(ctx, query, auctionID).Scan(
		&a.ID, &a.SellerID, &a.Title, &a.Description, &a.StartPrice, &a.ReservePrice,
		&a.CurrentPrice, &a.MinBidIncrement, &a.StartTime, &a.EndTime, &a.Status,
		&a.WinnerID, &a.WinningBid, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, auctions.ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return &a, nil
}

func (r *PostgresAuctionRepository) UpdateStatus(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, status auctions.Status) error {
	query := `
		UPDATE auctions
		SET status = $1::auction_status, updated_at = NOW()
		WHERE id = $2
	`
	tag, err := tx.Exec(ctx, query, status, auctionID)
	if err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auctions.ErrAuctionNotFound
	}
	return nil
}

func (r *PostgresAuctionRepository) UpdateCurrentPrice(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount int64) error {
	// The guard keeps current_price monotonic even if a caller ever slipped
	// past the row lock.
	query := `
		UPDATE auctions
		SET current_price = $1, updated_at = NOW()
		WHERE id = $2 AND (current_price IS NULL OR current_price <= $1)
	`
	tag, err := tx.Exec(ctx, query, amount, auctionID)
	if err != nil {
		return fmt.Errorf("failed to update current price: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("current price update rejected for auction %s", auctionID)
	}
	return nil
}

func (r *PostgresAuctionRepository) SetWinner(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, winnerID *uuid.UUID, winningBid *int64) error {
	query := `
		UPDATE auctions
		SET status = 'ended', winner_id = $1, winning_bid = $2, updated_at = NOW()
		WHERE id = $3 AND status <> 'ended'
	`
	tag, err := tx.Exec(ctx, query, winnerID, winningBid, auctionID)
	if err != nil {
		return fmt.Errorf("failed to set winner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("auction %s already ended", auctionID)
	}
	return nil
}

func (r *PostgresAuctionRepository) ListOngoing(ctx context.Context, limit, offset int) ([]*auctions.Auction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM auctions
		WHERE status = 'ongoing'
		ORDER BY end_time ASC
		LIMIT $1 OFFSET $2
	`, auctionColumns)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query auctions: %w", err)
	}
	defer rows.Close()

	var result []*auctions.Auction
	for rows.Next() {
		var a auctions.Auction
		if err := rows.Scan(
			&a.ID, &a.SellerID, &a.Title, &a.Description, &a.StartPrice, &a.ReservePrice,
			&a.CurrentPrice, &a.MinBidIncrement, &a.StartTime, &a.EndTime, &a.Status,
			&a.WinnerID, &a.WinningBid, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan auction: %w", err)
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auctions: %w", err)
	}
	return result, nil
}

func (r *PostgresAuctionRepository) ListDueToOpen(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM auctions
		WHERE status = 'approved' AND start_time <= $1
		ORDER BY start_time ASC
		LIMIT $2
	`
	return r.listIDs(ctx, query, now, limit)
}

func (r *PostgresAuctionRepository) ListDueToClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM auctions
		WHERE status = 'ongoing' AND end_time <= $1
		ORDER BY end_time ASC
		LIMIT $2
	`
	return r.listIDs(ctx, query, now, limit)
}

func (r *PostgresAuctionRepository) listIDs(ctx context.Context, query string, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query due auctions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating due auctions: %w", err)
	}
	return ids, nil
}

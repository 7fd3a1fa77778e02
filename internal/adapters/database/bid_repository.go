package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	"github.com/knockdown-io/knockdown/internal/domain/bids"
)

// PostgresBidRepository implements bids.BidRepository and auctions.BidReader
// using pgx.
type PostgresBidRepository struct {
	pool *pgxpool.Pool // for non-transactional reads
}

func NewPostgresBidRepository(pool *pgxpool.Pool) *PostgresBidRepository {
	return &PostgresBidRepository{pool: pool}
}

// SaveBid appends a bid within a transaction. The bid log is append-only.
func (r *PostgresBidRepository) SaveBid(ctx context.Context, tx pgx.Tx, bid *bids.Bid) error {
	query := `
		INSERT INTO bids (id, auction_id, bidder_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := tx.Exec(ctx, query, bid.ID, bid.AuctionID, bid.BidderID, bid.Amount, bid.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert bid: %w", err)
	}
	return nil
}

// GetLeadingBid returns the winning candidate: maximum amount, ties broken by
// the earliest created_at (first to reach that amount wins). Returns nil when
// the auction has no bids.
func (r *PostgresBidRepository) GetLeadingBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.LeadingBid, error) {
	query := `
		SELECT id, bidder_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
		LIMIT 1
	`
	var lb auctions.LeadingBid
	err := tx.QueryRow(ctx, query, auctionID).Scan(&lb.BidID, &lb.BidderID, &lb.Amount, &lb.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get leading bid: %w", err)
	}
	return &lb, nil
}

func (r *PostgresBidRepository) ListByAuction(ctx context.Context, auctionID uuid.UUID, limit, offset int) ([]*bids.Bid, error) {
	query := `
		SELECT id, auction_id, bidder_id, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, auctionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var result []*bids.Bid
	for rows.Next() {
		var b bids.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		result = append(result, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bids: %w", err)
	}
	return result, nil
}

package bids

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knockdown-io/knockdown/internal/domain/auctions"
)

// BidRepository defines the interface for bid persistence.
type BidRepository interface {
	// SaveBid appends a bid within a transaction.
	SaveBid(ctx context.Context, tx pgx.Tx, bid *Bid) error

	// GetLeadingBid returns the highest bid (ties broken by earliest
	// created_at) under the caller's transaction, or nil if there are none.
	GetLeadingBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.LeadingBid, error)

	// ListByAuction returns the bid history, newest first.
	ListByAuction(ctx context.Context, auctionID uuid.UUID, limit, offset int) ([]*Bid, error)
}

// AuctionStore is the slice of auction persistence the coordinator touches:
// the locked re-read and the price update. Status and winner belong to the
// lifecycle service.
type AuctionStore interface {
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*auctions.Auction, error)
	UpdateStatus(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, status auctions.Status) error
	UpdateCurrentPrice(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, amount int64) error
}

// Settler lets the coordinator lazily settle an auction whose stored status
// had not caught up with the clock, inside the same locked transaction.
type Settler interface {
	SettleInTx(ctx context.Context, tx pgx.Tx, auction *auctions.Auction, now time.Time) error
}

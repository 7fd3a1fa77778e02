package auctions

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository defines the interface for auction persistence.
type Repository interface {
	// Create inserts a new auction in pending state.
	Create(ctx context.Context, a *Auction) error

	// GetByID retrieves an auction without locking.
	GetByID(ctx context.Context, auctionID uuid.UUID) (*Auction, error)

	// GetByIDForUpdate retrieves an auction under the per-auction row lock.
	// Every path that mutates status, price or winner goes through this, so
	// bids, admin overrides and time-driven transitions serialize on it.
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*Auction, error)

	// UpdateStatus persists a status transition within a transaction.
	UpdateStatus(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, status Status) error

	// SetWinner marks the auction ended with the given winner, if any.
	SetWinner(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID, winnerID *uuid.UUID, winningBid *int64) error

	// ListOngoing returns ongoing auctions for the public listing view.
	ListOngoing(ctx context.Context, limit, offset int) ([]*Auction, error)

	// ListDueToOpen returns ids of approved auctions whose start time passed.
	ListDueToOpen(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)

	// ListDueToClose returns ids of ongoing auctions whose end time passed.
	ListDueToClose(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// LeadingBid is the projection of the highest bid the lifecycle needs for
// winner selection and hold release.
type LeadingBid struct {
	BidID     uuid.UUID
	BidderID  uuid.UUID
	Amount    int64
	CreatedAt time.Time
}

// BidReader exposes the bid log to winner selection. Highest amount wins;
// ties break on the earliest created_at.
type BidReader interface {
	GetLeadingBid(ctx context.Context, tx pgx.Tx, auctionID uuid.UUID) (*LeadingBid, error)
}

package bids

import (
	"time"

	"github.com/google/uuid"
)

// Bid is one entry in the append-only bid log. Bids are never updated or
// deleted, only superseded; the log is the audit trail for every escrow hold.
type Bid struct {
	ID        uuid.UUID `db:"id"`
	AuctionID uuid.UUID `db:"auction_id"`
	BidderID  uuid.UUID `db:"bidder_id"`
	Amount    int64     `db:"amount"`
	CreatedAt time.Time `db:"created_at"`
}

// PlaceBidCommand represents the command to place a bid.
type PlaceBidCommand struct {
	AuctionID uuid.UUID
	BidderID  uuid.UUID
	Amount    int64
}

// RejectReason is a stable code a presentation layer can map to guidance.
type RejectReason string

const (
	ReasonAuctionNotActive  RejectReason = "AuctionNotActive"
	ReasonSellerCannotBid   RejectReason = "SellerCannotBid"
	ReasonBidTooLow         RejectReason = "BidTooLow"
	ReasonInsufficientFunds RejectReason = "InsufficientFunds"
)

// BidResult is the outcome of a bid evaluation. A rejection is an expected,
// frequent outcome, so it is returned as data rather than an error.
type BidResult struct {
	Accepted        bool
	Reason          RejectReason
	BidID           uuid.UUID
	NewCurrentPrice int64
	NewMinimumBid   int64
}

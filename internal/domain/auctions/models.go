package auctions

import (
	"time"

	"github.com/google/uuid"
)

// Status is the persisted auction state. The stored value may lag the
// effective status computed from wall-clock time; ResolveEffectiveStatus
// reconciles the two.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaused   Status = "paused"
	StatusOngoing  Status = "ongoing"
	StatusEnded    Status = "ended"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusEnded
}

// transitions is the admissible state graph. Time-driven transitions
// (approved→ongoing, ongoing→ended) and admin transitions share it.
var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusOngoing, StatusEnded},
	StatusOngoing:  {StatusPaused, StatusEnded},
	StatusPaused:   {StatusOngoing, StatusEnded},
}

// CanTransition reports whether from→to is on the state graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Auction holds the metadata and pricing state of one listing. CurrentPrice
// is nil until the first accepted bid, then monotonically non-decreasing.
// Price is mutated only by the bid placement path; status and winner only by
// the lifecycle and admin paths.
type Auction struct {
	ID              uuid.UUID  `db:"id"`
	SellerID        uuid.UUID  `db:"seller_id"`
	Title           string     `db:"title"`
	Description     string     `db:"description"`
	StartPrice      int64      `db:"start_price"`
	ReservePrice    *int64     `db:"reserve_price"`
	CurrentPrice    *int64     `db:"current_price"`
	MinBidIncrement int64      `db:"min_bid_increment"`
	StartTime       time.Time  `db:"start_time"`
	EndTime         time.Time  `db:"end_time"`
	Status          Status     `db:"status"`
	WinnerID        *uuid.UUID `db:"winner_id"`
	WinningBid      *int64     `db:"winning_bid"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

// NextMinimumBid is the lowest amount the next bid may carry.
func (a *Auction) NextMinimumBid() int64 {
	floor := a.StartPrice
	if a.CurrentPrice != nil {
		floor = *a.CurrentPrice
	}
	return floor + a.MinBidIncrement
}

// ResolveEffectiveStatus computes the auction state implied by the stored
// state and the clock. It is a pure function; callers on a mutating path must
// persist the result under the per-auction lock before evaluating any bid, so
// a bid is never accepted against a logically expired auction whose stored
// status has not yet been lazily updated.
//
// A paused auction never expires on its own; only resume or force-close can
// move it forward.
func ResolveEffectiveStatus(a *Auction, now time.Time) Status {
	switch a.Status {
	case StatusApproved:
		if now.Before(a.StartTime) {
			return StatusApproved
		}
		if now.Before(a.EndTime) {
			return StatusOngoing
		}
		return StatusEnded
	case StatusOngoing:
		if now.Before(a.EndTime) {
			return StatusOngoing
		}
		return StatusEnded
	default:
		return a.Status
	}
}

// CreateAuctionCommand represents the command to create a new listing.
type CreateAuctionCommand struct {
	SellerID        uuid.UUID
	Title           string
	Description     string
	StartPrice      int64
	ReservePrice    *int64
	MinBidIncrement int64
	StartTime       time.Time
	EndTime         time.Time
}

// AdminActionCommand represents a privileged override on one auction.
type AdminActionCommand struct {
	AuctionID uuid.UUID
	AdminID   uuid.UUID
	// WinnerOverride is honored on force-close only, and only when the
	// auction has no bids or the override names the current leader.
	WinnerOverride *uuid.UUID
}

// CloseResult reports the outcome of a settlement pass.
type CloseResult struct {
	AuctionID  uuid.UUID
	WinnerID   *uuid.UUID
	WinningBid *int64
}

package bids

import (
	"errors"

	"github.com/google/uuid"

	"github.com/knockdown-io/knockdown/internal/domain/auctions"
)

// Validation errors
var (
	ErrAuctionNotActive  = errors.New("auction is not open for bidding")
	ErrSellerCannotBid   = errors.New("seller cannot bid on their own auction")
	ErrBidTooLow         = errors.New("bid amount is below the minimum for this auction")
	ErrInsufficientFunds = errors.New("available balance does not cover the bid")
)

// Validate decides whether a proposed bid is acceptable against a fresh
// auction snapshot taken under the per-auction lock. Rules run in order:
// effective status, seller self-bid, price floor, funds. The snapshot's
// Status must already be the resolved effective status.
//
// Purely advisory: no side effects until the coordinator commits.
func Validate(auction *auctions.Auction, bidderID uuid.UUID, amount, availableBalance int64) error {
	if auction.Status != auctions.StatusOngoing {
		return ErrAuctionNotActive
	}
	if auction.SellerID == bidderID {
		return ErrSellerCannotBid
	}
	if amount < auction.NextMinimumBid() {
		return ErrBidTooLow
	}
	if availableBalance < amount {
		return ErrInsufficientFunds
	}
	return nil
}

// ReasonFor maps a validation error to its stable reject code. It returns
// false for errors that are not bid rejections.
func ReasonFor(err error) (RejectReason, bool) {
	switch {
	case errors.Is(err, ErrAuctionNotActive):
		return ReasonAuctionNotActive, true
	case errors.Is(err, ErrSellerCannotBid):
		return ReasonSellerCannotBid, true
	case errors.Is(err, ErrBidTooLow):
		return ReasonBidTooLow, true
	case errors.Is(err, ErrInsufficientFunds):
		return ReasonInsufficientFunds, true
	default:
		return "", false
	}
}

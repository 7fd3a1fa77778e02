package events

import "time"

// Payloads are JSON-encoded into OutboxEvent.Payload. The notification sink
// on the other side of the broker only needs (user, event type, payload);
// delivery beyond publish is fire-and-forget.

type BidPlacedPayload struct {
	BidID     string    `json:"bid_id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    int64     `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

type BidOutbidPayload struct {
	AuctionID      string    `json:"auction_id"`
	OutbidUserID   string    `json:"outbid_user_id"`
	ReleasedAmount int64     `json:"released_amount"`
	NewPrice       int64     `json:"new_price"`
	Timestamp      time.Time `json:"timestamp"`
}

type AuctionWonPayload struct {
	AuctionID  string    `json:"auction_id"`
	WinnerID   string    `json:"winner_id"`
	WinningBid int64     `json:"winning_bid"`
	Timestamp  time.Time `json:"timestamp"`
}

type AuctionLostPayload struct {
	AuctionID      string    `json:"auction_id"`
	BidderID       string    `json:"bidder_id"`
	ReleasedAmount int64     `json:"released_amount"`
	Reason         string    `json:"reason"`
	Timestamp      time.Time `json:"timestamp"`
}

type AuctionClosedPayload struct {
	AuctionID  string    `json:"auction_id"`
	SellerID   string    `json:"seller_id"`
	WinnerID   string    `json:"winner_id,omitempty"`
	WinningBid int64     `json:"winning_bid,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

type DepositCreditedPayload struct {
	UserID     string    `json:"user_id"`
	Amount     int64     `json:"amount"`
	PaymentRef string    `json:"payment_ref"`
	Timestamp  time.Time `json:"timestamp"`
}

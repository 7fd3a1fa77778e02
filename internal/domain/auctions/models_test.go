package auctions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestCanTransition tests the admissible state graph
func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending can be approved", from: StatusPending, to: StatusApproved, want: true},
		{name: "pending can be rejected", from: StatusPending, to: StatusRejected, want: true},
		{name: "pending cannot start", from: StatusPending, to: StatusOngoing, want: false},
		{name: "approved can start", from: StatusApproved, to: StatusOngoing, want: true},
		{name: "approved can end without ever opening", from: StatusApproved, to: StatusEnded, want: true},
		{name: "ongoing can be paused", from: StatusOngoing, to: StatusPaused, want: true},
		{name: "ongoing can end", from: StatusOngoing, to: StatusEnded, want: true},
		{name: "paused can resume", from: StatusPaused, to: StatusOngoing, want: true},
		{name: "paused can be force closed", from: StatusPaused, to: StatusEnded, want: true},
		{name: "rejected is terminal", from: StatusRejected, to: StatusApproved, want: false},
		{name: "ended is terminal", from: StatusEnded, to: StatusOngoing, want: false},
		{name: "no reopening an ended auction", from: StatusEnded, to: StatusPaused, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

// TestStatus_IsTerminal tests terminal state detection
func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusRejected.IsTerminal())
	assert.True(t, StatusEnded.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusApproved.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.False(t, StatusOngoing.IsTerminal())
}

// TestResolveEffectiveStatus tests the clock-derived auction state
func TestResolveEffectiveStatus(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		stored    Status
		startTime time.Time
		endTime   time.Time
		want      Status
	}{
		{
			name:      "approved before start stays approved",
			stored:    StatusApproved,
			startTime: now.Add(1 * time.Hour),
			endTime:   now.Add(2 * time.Hour),
			want:      StatusApproved,
		},
		{
			name:      "approved within window is ongoing",
			stored:    StatusApproved,
			startTime: now.Add(-1 * time.Hour),
			endTime:   now.Add(1 * time.Hour),
			want:      StatusOngoing,
		},
		{
			name:      "approved past end is ended, even if it never opened",
			stored:    StatusApproved,
			startTime: now.Add(-2 * time.Hour),
			endTime:   now.Add(-1 * time.Hour),
			want:      StatusEnded,
		},
		{
			name:      "ongoing before end stays ongoing",
			stored:    StatusOngoing,
			startTime: now.Add(-1 * time.Hour),
			endTime:   now.Add(1 * time.Hour),
			want:      StatusOngoing,
		},
		{
			name:      "ongoing past end is ended",
			stored:    StatusOngoing,
			startTime: now.Add(-2 * time.Hour),
			endTime:   now.Add(-1 * time.Second),
			want:      StatusEnded,
		},
		{
			name:      "ongoing at exactly end time is ended",
			stored:    StatusOngoing,
			startTime: now.Add(-2 * time.Hour),
			endTime:   now,
			want:      StatusEnded,
		},
		{
			name:      "paused never expires on its own",
			stored:    StatusPaused,
			startTime: now.Add(-2 * time.Hour),
			endTime:   now.Add(-1 * time.Hour),
			want:      StatusPaused,
		},
		{
			name:      "pending is untouched by the clock",
			stored:    StatusPending,
			startTime: now.Add(-2 * time.Hour),
			endTime:   now.Add(-1 * time.Hour),
			want:      StatusPending,
		},
		{
			name:      "ended stays ended",
			stored:    StatusEnded,
			startTime: now.Add(-2 * time.Hour),
			endTime:   now.Add(1 * time.Hour),
			want:      StatusEnded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auction := &Auction{
				Status:    tt.stored,
				StartTime: tt.startTime,
				EndTime:   tt.endTime,
			}
			assert.Equal(t, tt.want, ResolveEffectiveStatus(auction, now))
		})
	}
}

// TestAuction_NextMinimumBid tests the price floor computation
func TestAuction_NextMinimumBid(t *testing.T) {
	price := func(v int64) *int64 { return &v }

	tests := []struct {
		name         string
		startPrice   int64
		currentPrice *int64
		increment    int64
		want         int64
	}{
		{
			name:         "no bids yet - floor is start price plus increment",
			startPrice:   100,
			currentPrice: nil,
			increment:    5,
			want:         105,
		},
		{
			name:         "with a current price the floor moves up",
			startPrice:   100,
			currentPrice: price(250),
			increment:    5,
			want:         255,
		},
		{
			name:         "default increment",
			startPrice:   10000,
			currentPrice: nil,
			increment:    DefaultMinBidIncrement,
			want:         10100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auction := &Auction{
				StartPrice:      tt.startPrice,
				CurrentPrice:    tt.currentPrice,
				MinBidIncrement: tt.increment,
			}
			assert.Equal(t, tt.want, auction.NextMinimumBid())
		})
	}
}

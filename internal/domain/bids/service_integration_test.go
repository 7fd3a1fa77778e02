package bids_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knockdown-io/knockdown/internal/adapters/database"
	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	"github.com/knockdown-io/knockdown/internal/domain/bids"
	pkgdb "github.com/knockdown-io/knockdown/pkg/database"
	"github.com/knockdown-io/knockdown/pkg/testhelpers"
)

// testEnv bundles the wired services and repositories for integration tests.
type testEnv struct {
	DB             *testhelpers.TestDatabase
	TxManager      pkgdb.TransactionManager
	AuctionRepo    *database.PostgresAuctionRepository
	BidRepo        *database.PostgresBidRepository
	WalletRepo     *database.PostgresWalletRepository
	OutboxRepo     *database.PostgresOutboxRepository
	AuctionService *auctions.Service
	Coordinator    *bids.Coordinator
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	td := testhelpers.NewTestDatabase(t, "../../../migrations")
	t.Cleanup(td.Close)

	logger := slog.Default()
	txManager := pkgdb.NewPostgresTransactionManager(td.Pool, 5*time.Second)
	auctionRepo := database.NewPostgresAuctionRepository(td.Pool)
	bidRepo := database.NewPostgresBidRepository(td.Pool)
	walletRepo := database.NewPostgresWalletRepository(td.Pool)
	outboxRepo := database.NewPostgresOutboxRepository(td.Pool)

	auctionService := auctions.NewService(txManager, auctionRepo, bidRepo, walletRepo, outboxRepo, logger)
	coordinator := bids.NewCoordinator(txManager, bidRepo, auctionRepo, walletRepo, outboxRepo, auctionService, logger)

	return &testEnv{
		DB:             td,
		TxManager:      txManager,
		AuctionRepo:    auctionRepo,
		BidRepo:        bidRepo,
		WalletRepo:     walletRepo,
		OutboxRepo:     outboxRepo,
		AuctionService: auctionService,
		Coordinator:    coordinator,
	}
}

func (e *testEnv) seedOngoingAuction(t *testing.T, sellerID uuid.UUID, startPrice, increment int64) uuid.UUID {
	t.Helper()
	return e.DB.SeedAuction(t, sellerID, "ongoing", startPrice, increment, nil,
		time.Now().Add(-1*time.Hour), time.Now().Add(24*time.Hour))
}

// TestCoordinator_PlaceBid_Accepted tests the happy path: bid saved, hold
// placed, price raised, event written
func TestCoordinator_PlaceBid_Accepted(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := setupEnv(t)
	ctx := context.Background()

	sellerID := uuid.New()
	bidderID := uuid.New()
	auctionID := env.seedOngoingAuction(t, sellerID, 10000, 500)
	env.DB.SeedWallet(t, bidderID, 50000)

	result, err := env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    10500,
	})

	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, int64(10500), result.NewCurrentPrice)
	assert.Equal(t, int64(11000), result.NewMinimumBid)

	// Hold moved funds from available to held
	balance, err := env.WalletRepo.GetBalance(ctx, bidderID)
	require.NoError(t, err)
	assert.Equal(t, int64(39500), balance.Available)
	assert.Equal(t, int64(10500), balance.Held)

	// Current price follows the accepted bid
	auction, err := env.AuctionRepo.GetByID(ctx, auctionID)
	require.NoError(t, err)
	require.NotNil(t, auction.CurrentPrice)
	assert.Equal(t, int64(10500), *auction.CurrentPrice)

	// One pending bid.placed event
	var count int
	err = env.DB.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox_events WHERE event_type = 'bid.placed'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestCoordinator_PlaceBid_Rejections tests that validation failures come back
// as data with no side effects
func TestCoordinator_PlaceBid_Rejections(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := setupEnv(t)
	ctx := context.Background()

	sellerID := uuid.New()
	bidderID := uuid.New()
	auctionID := env.seedOngoingAuction(t, sellerID, 10000, 500)
	env.DB.SeedWallet(t, bidderID, 50000)
	env.DB.SeedWallet(t, sellerID, 50000)

	tests := []struct {
		name       string
		bidder     uuid.UUID
		amount     int64
		wantReason bids.RejectReason
	}{
		{name: "one unit below the floor", bidder: bidderID, amount: 10499, wantReason: bids.ReasonBidTooLow},
		{name: "non-positive amount", bidder: bidderID, amount: 0, wantReason: bids.ReasonBidTooLow},
		{name: "seller bidding on own auction", bidder: sellerID, amount: 10500, wantReason: bids.ReasonSellerCannotBid},
		{name: "unfunded bidder", bidder: uuid.New(), amount: 10500, wantReason: bids.ReasonInsufficientFunds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
				AuctionID: auctionID,
				BidderID:  tt.bidder,
				Amount:    tt.amount,
			})

			require.NoError(t, err, "rejections are data, not errors")
			assert.False(t, result.Accepted)
			assert.Equal(t, tt.wantReason, result.Reason)
		})
	}

	// No bid, no hold, no price movement
	auction, err := env.AuctionRepo.GetByID(ctx, auctionID)
	require.NoError(t, err)
	assert.Nil(t, auction.CurrentPrice)

	balance, err := env.WalletRepo.GetBalance(ctx, bidderID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), balance.Held)
}

// TestCoordinator_PlaceBid_OutbidReleasesHold tests that a higher bid frees
// the previous leader's escrow in the same commit
func TestCoordinator_PlaceBid_OutbidReleasesHold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := setupEnv(t)
	ctx := context.Background()

	sellerID := uuid.New()
	first := uuid.New()
	second := uuid.New()
	auctionID := env.seedOngoingAuction(t, sellerID, 10000, 500)
	env.DB.SeedWallet(t, first, 50000)
	env.DB.SeedWallet(t, second, 50000)

	result, err := env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID: auctionID, BidderID: first, Amount: 10500,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	result, err = env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID: auctionID, BidderID: second, Amount: 11000,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	// First bidder's hold came back in full
	firstBalance, err := env.WalletRepo.GetBalance(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), firstBalance.Available)
	assert.Equal(t, int64(0), firstBalance.Held)

	// Second bidder carries the only live hold
	secondBalance, err := env.WalletRepo.GetBalance(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), secondBalance.Held)

	// An outbid notification was queued
	var count int
	err = env.DB.Pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM outbox_events WHERE event_type = 'bid.outbid'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// TestCoordinator_PlaceBid_SelfRaiseSupersedesHold tests that raising your own
// leading bid replaces the earlier hold rather than stacking a second one
func TestCoordinator_PlaceBid_SelfRaiseSupersedesHold(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := setupEnv(t)
	ctx := context.Background()

	sellerID := uuid.New()
	bidderID := uuid.New()
	auctionID := env.seedOngoingAuction(t, sellerID, 10000, 500)
	env.DB.SeedWallet(t, bidderID, 20000)

	result, err := env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID: auctionID, BidderID: bidderID, Amount: 10500,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	// 15000 would not fit on top of the existing 10500 hold, but the prior
	// hold is superseded, so 15000 against a 20000 balance is fine.
	result, err = env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID: auctionID, BidderID: bidderID, Amount: 15000,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	balance, err := env.WalletRepo.GetBalance(ctx, bidderID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), balance.Held, "only the latest hold survives")
	assert.Equal(t, int64(5000), balance.Available)
}

// TestCoordinator_PlaceBid_LazySettlesExpiredAuction tests that a bid landing
// on a logically expired auction settles it instead of being evaluated
func TestCoordinator_PlaceBid_LazySettlesExpiredAuction(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := setupEnv(t)
	ctx := context.Background()

	sellerID := uuid.New()
	winner := uuid.New()
	latecomer := uuid.New()

	// Stored as ongoing but the end time has already passed
	auctionID := env.DB.SeedAuction(t, sellerID, "ongoing", 10000, 500, nil,
		time.Now().Add(-2*time.Hour), time.Now().Add(1*time.Second))
	env.DB.SeedWallet(t, winner, 50000)
	env.DB.SeedWallet(t, latecomer, 50000)

	result, err := env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID: auctionID, BidderID: winner, Amount: 10500,
	})
	require.NoError(t, err)
	require.True(t, result.Accepted)

	time.Sleep(1100 * time.Millisecond)

	result, err = env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
		AuctionID: auctionID, BidderID: latecomer, Amount: 20000,
	})
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, bids.ReasonAuctionNotActive, result.Reason)

	// The late bid triggered settlement: winner recorded, funds moved
	auction, err := env.AuctionRepo.GetByID(ctx, auctionID)
	require.NoError(t, err)
	assert.Equal(t, auctions.StatusEnded, auction.Status)
	require.NotNil(t, auction.WinnerID)
	assert.Equal(t, winner, *auction.WinnerID)

	sellerBalance, err := env.WalletRepo.GetBalance(ctx, sellerID)
	require.NoError(t, err)
	assert.Equal(t, int64(10500), sellerBalance.Available)

	winnerBalance, err := env.WalletRepo.GetBalance(ctx, winner)
	require.NoError(t, err)
	assert.Equal(t, int64(0), winnerBalance.Held)
	assert.Equal(t, int64(39500), winnerBalance.Available)
}

// TestCoordinator_PlaceBid_Concurrent tests that concurrent bids serialize on
// the per-auction lock and leave the books consistent
func TestCoordinator_PlaceBid_Concurrent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	env := setupEnv(t)
	ctx := context.Background()

	sellerID := uuid.New()
	auctionID := env.seedOngoingAuction(t, sellerID, 10000, 100)

	numBidders := 10
	bidders := make([]uuid.UUID, numBidders)
	for i := range bidders {
		bidders[i] = uuid.New()
		env.DB.SeedWallet(t, bidders[i], 1000000)
	}

	var wg sync.WaitGroup
	results := make(chan *bids.BidResult, numBidders)

	for i := 0; i < numBidders; i++ {
		wg.Add(1)
		go func(bidderID uuid.UUID, amount int64) {
			defer wg.Done()
			result, err := env.Coordinator.PlaceBid(ctx, bids.PlaceBidCommand{
				AuctionID: auctionID,
				BidderID:  bidderID,
				Amount:    amount,
			})
			if err == nil {
				results <- result
			}
		}(bidders[i], int64(20000+i*1000))
	}

	wg.Wait()
	close(results)

	var accepted int
	for result := range results {
		if result.Accepted {
			accepted++
		}
	}
	require.GreaterOrEqual(t, accepted, 1, "the highest bid always clears the floor")

	// The recorded price is the highest accepted amount
	auction, err := env.AuctionRepo.GetByID(ctx, auctionID)
	require.NoError(t, err)
	require.NotNil(t, auction.CurrentPrice)
	assert.Equal(t, int64(20000+(numBidders-1)*1000), *auction.CurrentPrice,
		"highest bid wins regardless of arrival order")

	// Exactly one live hold: the leader's. Everyone else was released.
	var totalHeld int64
	err = env.DB.Pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(held_balance), 0) FROM wallet_balances").Scan(&totalHeld)
	require.NoError(t, err)
	assert.Equal(t, *auction.CurrentPrice, totalHeld,
		"only the leading bid's escrow remains held")

	// Accepted bids match rows in the bid log
	bidRows, err := env.BidRepo.ListByAuction(ctx, auctionID, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, accepted, len(bidRows))
}

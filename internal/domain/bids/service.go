package bids

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	"github.com/knockdown-io/knockdown/internal/domain/wallet"
	"github.com/knockdown-io/knockdown/pkg/database"
	"github.com/knockdown-io/knockdown/pkg/events"
)

// Coordinator orchestrates validator, ledger and auction store inside one
// atomic unit of work. The per-auction row lock taken by GetByIDForUpdate,
// with the bounded wait configured on the transaction manager, totally orders
// bid acceptances for one auction; bids on different auctions proceed
// independently.
type Coordinator struct {
	txManager database.TransactionManager
	bidRepo   BidRepository
	auctions  AuctionStore
	ledger    wallet.Ledger
	outbox    events.OutboxRepository
	settler   Settler
	logger    *slog.Logger
}

func NewCoordinator(
	txManager database.TransactionManager,
	bidRepo BidRepository,
	auctionStore AuctionStore,
	ledger wallet.Ledger,
	outbox events.OutboxRepository,
	settler Settler,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		txManager: txManager,
		bidRepo:   bidRepo,
		auctions:  auctionStore,
		ledger:    ledger,
		outbox:    outbox,
		settler:   settler,
		logger:    logger,
	}
}

// PlaceBid evaluates and, if valid, commits a bid as a single atomic unit:
// lock the auction row, re-read the fresh snapshot, resolve effective status,
// validate, supersede the bidder's own prior hold, place the new hold,
// release the previous leader's hold, append the bid and raise the price.
// On any failure no partial state is visible.
//
// Validation rejections come back as data on BidResult; an error return means
// the bid could not be evaluated at all (lock timeout, storage failure).
func (c *Coordinator) PlaceBid(ctx context.Context, cmd PlaceBidCommand) (*BidResult, error) {
	if cmd.Amount <= 0 {
		return &BidResult{Accepted: false, Reason: ReasonBidTooLow}, nil
	}

	tx, err := c.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Step 1+2: acquire the per-auction lock and re-read inside it. Never
	// trust a snapshot taken before the lock: that is the classic race where
	// two bidders both validate against a stale current price.
	auction, err := c.auctions.GetByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		if database.IsLockTimeout(err) {
			return nil, database.ErrLockTimeout
		}
		return nil, err
	}

	// Step 3a: reconcile stored status with the clock before evaluating
	// anything, so a bid never lands on a logically expired auction.
	now := time.Now()
	effective := auctions.ResolveEffectiveStatus(auction, now)
	if effective != auction.Status {
		if effective == auctions.StatusEnded {
			if settleErr := c.settler.SettleInTx(ctx, tx, auction, now); settleErr != nil {
				return nil, settleErr
			}
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
			return &BidResult{Accepted: false, Reason: ReasonAuctionNotActive}, nil
		}
		if updErr := c.auctions.UpdateStatus(ctx, tx, auction.ID, effective); updErr != nil {
			return nil, fmt.Errorf("failed to persist effective status: %w", updErr)
		}
		auction.Status = effective
	}

	leading, err := c.bidRepo.GetLeadingBid(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leading bid: %w", err)
	}

	// A bidder raising their own leading bid supersedes the earlier hold
	// rather than stacking a second one, so the release happens before the
	// funds check. Rolled back along with everything else if the bid is
	// ultimately rejected.
	if leading != nil && leading.BidderID == cmd.BidderID {
		if relErr := c.ledger.Release(ctx, tx, cmd.BidderID, leading.Amount, leading.BidID.String()); relErr != nil {
			return nil, fmt.Errorf("failed to supersede prior hold: %w", relErr)
		}
	}

	balance, err := c.ledger.GetBalanceForUpdate(ctx, tx, cmd.BidderID)
	if err != nil {
		return nil, fmt.Errorf("failed to read bidder balance: %w", err)
	}

	// Step 3b: run the pure validator against the fresh snapshot.
	if valErr := Validate(auction, cmd.BidderID, cmd.Amount, balance.Available); valErr != nil {
		reason, ok := ReasonFor(valErr)
		if !ok {
			return nil, valErr
		}
		return &BidResult{
			Accepted:      false,
			Reason:        reason,
			NewMinimumBid: auction.NextMinimumBid(),
		}, nil
	}

	// Step 4: escrow bookkeeping and the bid itself, all in this transaction.
	bid := &Bid{
		ID:        uuid.New(),
		AuctionID: cmd.AuctionID,
		BidderID:  cmd.BidderID,
		Amount:    cmd.Amount,
		CreatedAt: now,
	}

	if err := c.ledger.Hold(ctx, tx, cmd.BidderID, cmd.Amount, bid.ID.String()); err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			// The validator saw enough funds; the ledger disagreeing here
			// means a concurrent writer slipped past the wallet row lock.
			return nil, fmt.Errorf("%w: hold failed after validation", wallet.ErrConsistency)
		}
		return nil, fmt.Errorf("failed to place hold: %w", err)
	}

	if leading != nil && leading.BidderID != cmd.BidderID {
		if relErr := c.ledger.Release(ctx, tx, leading.BidderID, leading.Amount, leading.BidID.String()); relErr != nil {
			return nil, fmt.Errorf("failed to release outbid hold: %w", relErr)
		}
	}

	if err := c.bidRepo.SaveBid(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("failed to save bid: %w", err)
	}
	if err := c.auctions.UpdateCurrentPrice(ctx, tx, cmd.AuctionID, cmd.Amount); err != nil {
		return nil, fmt.Errorf("failed to update current price: %w", err)
	}

	if err := c.saveEvent(ctx, tx, events.TypeBidPlaced, events.BidPlacedPayload{
		BidID:     bid.ID.String(),
		AuctionID: bid.AuctionID.String(),
		BidderID:  bid.BidderID.String(),
		Amount:    bid.Amount,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}
	if leading != nil && leading.BidderID != cmd.BidderID {
		if err := c.saveEvent(ctx, tx, events.TypeBidOutbid, events.BidOutbidPayload{
			AuctionID:      cmd.AuctionID.String(),
			OutbidUserID:   leading.BidderID.String(),
			ReleasedAmount: leading.Amount,
			NewPrice:       cmd.Amount,
			Timestamp:      now,
		}); err != nil {
			return nil, err
		}
	}

	// Step 5: single atomic commit. No stranded hold, no price without a bid.
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &BidResult{
		Accepted:        true,
		BidID:           bid.ID,
		NewCurrentPrice: cmd.Amount,
		NewMinimumBid:   cmd.Amount + auction.MinBidIncrement,
	}, nil
}

// ListBids returns the bid history for an auction, newest first.
func (c *Coordinator) ListBids(ctx context.Context, auctionID uuid.UUID, limit, offset int) ([]*Bid, error) {
	if limit <= 0 {
		limit = 50
	}
	return c.bidRepo.ListByAuction(ctx, auctionID, limit, offset)
}

func (c *Coordinator) saveEvent(ctx context.Context, tx pgx.Tx, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := c.outbox.SaveEvent(ctx, tx, &events.OutboxEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Payload:   body,
		Status:    events.OutboxStatusPending,
		CreatedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("failed to save outbox event: %w", err)
	}
	return nil
}

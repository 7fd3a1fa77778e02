package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/knockdown-io/knockdown/internal/domain/wallet"
	"github.com/knockdown-io/knockdown/pkg/database"
	"github.com/knockdown-io/knockdown/pkg/events"
)

// Service errors
var (
	ErrAuctionNotFound        = errors.New("auction not found")
	ErrInvalidStartPrice      = errors.New("start price must be greater than 0")
	ErrInvalidIncrement       = errors.New("minimum bid increment must be greater than 0")
	ErrInvalidReservePrice    = errors.New("reserve price must be greater than 0")
	ErrInvalidTimeWindow      = errors.New("end time must be after start time")
	ErrEndTimeInPast          = errors.New("end time must be in the future")
	ErrInvalidTransition      = errors.New("transition not allowed from current status")
	ErrAlreadyEnded           = errors.New("auction has already ended")
	ErrWinnerOverrideConflict = errors.New("winner override does not match the current leader")
)

// DefaultMinBidIncrement is applied when a listing does not specify one (1.00
// in minor units).
const DefaultMinBidIncrement = 100

// Service owns the auction lifecycle: the admin override gateway, the
// time-driven open/close transitions, and settlement. Every mutation runs
// under the per-auction row lock so admin actions, bids and expiry can never
// interleave inconsistently.
type Service struct {
	txManager database.TransactionManager
	repo      Repository
	bids      BidReader
	ledger    wallet.Ledger
	outbox    events.OutboxRepository
	logger    *slog.Logger
}

func NewService(
	txManager database.TransactionManager,
	repo Repository,
	bids BidReader,
	ledger wallet.Ledger,
	outbox events.OutboxRepository,
	logger *slog.Logger,
) *Service {
	return &Service{
		txManager: txManager,
		repo:      repo,
		bids:      bids,
		ledger:    ledger,
		outbox:    outbox,
		logger:    logger,
	}
}

// CreateAuction registers a new listing in pending state, awaiting approval.
func (s *Service) CreateAuction(ctx context.Context, cmd CreateAuctionCommand) (*Auction, error) {
	if cmd.StartPrice <= 0 {
		return nil, ErrInvalidStartPrice
	}
	if cmd.MinBidIncrement < 0 {
		return nil, ErrInvalidIncrement
	}
	if cmd.ReservePrice != nil && *cmd.ReservePrice <= 0 {
		return nil, ErrInvalidReservePrice
	}
	if !cmd.EndTime.After(cmd.StartTime) {
		return nil, ErrInvalidTimeWindow
	}
	if !cmd.EndTime.After(time.Now()) {
		return nil, ErrEndTimeInPast
	}

	increment := cmd.MinBidIncrement
	if increment == 0 {
		increment = DefaultMinBidIncrement
	}

	now := time.Now()
	auction := &Auction{
		ID:              uuid.New(),
		SellerID:        cmd.SellerID,
		Title:           cmd.Title,
		Description:     cmd.Description,
		StartPrice:      cmd.StartPrice,
		ReservePrice:    cmd.ReservePrice,
		MinBidIncrement: increment,
		StartTime:       cmd.StartTime,
		EndTime:         cmd.EndTime,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.repo.Create(ctx, auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	return auction, nil
}

// GetAuction returns the auction with its effective status in place of the
// possibly stale stored one. Read-only: the stored row is not updated here.
func (s *Service) GetAuction(ctx context.Context, auctionID uuid.UUID) (*Auction, error) {
	auction, err := s.repo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	auction.Status = ResolveEffectiveStatus(auction, time.Now())
	return auction, nil
}

// ListOngoing returns currently biddable auctions.
func (s *Service) ListOngoing(ctx context.Context, limit, offset int) ([]*Auction, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.repo.ListOngoing(ctx, limit, offset)
}

// Approve moves a pending auction to approved.
func (s *Service) Approve(ctx context.Context, cmd AdminActionCommand) (*Auction, error) {
	return s.adminTransition(ctx, cmd.AuctionID, StatusPending, StatusApproved)
}

// Reject moves a pending auction to the terminal rejected state.
func (s *Service) Reject(ctx context.Context, cmd AdminActionCommand) (*Auction, error) {
	return s.adminTransition(ctx, cmd.AuctionID, StatusPending, StatusRejected)
}

// adminTransition performs a simple status move under the auction lock.
func (s *Service) adminTransition(ctx context.Context, auctionID uuid.UUID, from, to Status) (*Auction, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != from {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, auctionID, auction.Status)
	}

	if err := s.repo.UpdateStatus(ctx, tx, auctionID, to); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auction.Status = to
	return auction, nil
}

// Pause takes an ongoing auction out of bidding. Paused auctions do not
// expire; they wait for resume or force-close.
func (s *Service) Pause(ctx context.Context, cmd AdminActionCommand) (*Auction, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	effective := ResolveEffectiveStatus(auction, now)
	if effective == StatusEnded {
		// The clock beat the admin: settle instead of pausing.
		if _, settleErr := s.settleLocked(ctx, tx, auction, now, nil); settleErr != nil {
			return nil, settleErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
		return nil, ErrAlreadyEnded
	}
	if effective != StatusOngoing {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, cmd.AuctionID, effective)
	}

	if err := s.repo.UpdateStatus(ctx, tx, cmd.AuctionID, StatusPaused); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auction.Status = StatusPaused
	return auction, nil
}

// Resume puts a paused auction back into bidding. If the end time passed
// while paused, the auction settles immediately instead.
func (s *Service) Resume(ctx context.Context, cmd AdminActionCommand) (*Auction, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}
	if auction.Status != StatusPaused {
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, cmd.AuctionID, auction.Status)
	}

	now := time.Now()
	if !now.Before(auction.EndTime) {
		auction.Status = StatusOngoing
		if _, settleErr := s.settleLocked(ctx, tx, auction, now, nil); settleErr != nil {
			return nil, settleErr
		}
		if commitErr := tx.Commit(ctx); commitErr != nil {
			return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
		}
		return nil, ErrAlreadyEnded
	}

	if err := s.repo.UpdateStatus(ctx, tx, cmd.AuctionID, StatusOngoing); err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	auction.Status = StatusOngoing
	return auction, nil
}

// ForceClose ends an ongoing or paused auction ahead of its end time and runs
// the same settlement path as natural expiry. A winner override is honored
// only when the auction has no bids, or when it names the current leader
// (explicit confirmation).
func (s *Service) ForceClose(ctx context.Context, cmd AdminActionCommand) (*CloseResult, error) {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetByIDForUpdate(ctx, tx, cmd.AuctionID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	effective := ResolveEffectiveStatus(auction, now)
	if effective != StatusOngoing && effective != StatusPaused {
		if effective == StatusEnded && auction.Status != StatusEnded {
			// Expired but not yet settled; force-close settles it.
			result, settleErr := s.settleLocked(ctx, tx, auction, now, cmd.WinnerOverride)
			if settleErr != nil {
				return nil, settleErr
			}
			if commitErr := tx.Commit(ctx); commitErr != nil {
				return nil, fmt.Errorf("failed to commit transaction: %w", commitErr)
			}
			return result, nil
		}
		return nil, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, cmd.AuctionID, effective)
	}

	result, err := s.settleLocked(ctx, tx, auction, now, cmd.WinnerOverride)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return result, nil
}

// OpenDue transitions approved auctions whose start time passed into ongoing.
// Each auction is handled in its own transaction under its own lock.
func (s *Service) OpenDue(ctx context.Context, batchSize int) (int, error) {
	now := time.Now()
	ids, err := s.repo.ListDueToOpen(ctx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due auctions: %w", err)
	}

	opened := 0
	for _, id := range ids {
		if err := s.openOne(ctx, id); err != nil {
			s.logger.Error("failed to open auction", "auction_id", id, "error", err)
			continue
		}
		opened++
	}
	return opened, nil
}

func (s *Service) openOne(ctx context.Context, auctionID uuid.UUID) error {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return err
	}

	// Re-resolve under the lock; an admin may have moved it meanwhile.
	now := time.Now()
	effective := ResolveEffectiveStatus(auction, now)
	switch effective {
	case StatusOngoing:
		if err := s.repo.UpdateStatus(ctx, tx, auctionID, StatusOngoing); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
	case StatusEnded:
		if auction.Status != StatusEnded {
			if _, err := s.settleLocked(ctx, tx, auction, now, nil); err != nil {
				return err
			}
		}
	default:
		return nil
	}

	return tx.Commit(ctx)
}

// CloseDue settles ongoing auctions whose end time passed. Each auction is
// handled in its own transaction under its own lock, so a bid racing the
// expiry is deterministically either accepted just before or rejected just
// after, never both.
func (s *Service) CloseDue(ctx context.Context, batchSize int) (int, error) {
	now := time.Now()
	ids, err := s.repo.ListDueToClose(ctx, now, batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due auctions: %w", err)
	}

	closed := 0
	for _, id := range ids {
		if err := s.closeOne(ctx, id); err != nil {
			s.logger.Error("failed to close auction", "auction_id", id, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

func (s *Service) closeOne(ctx context.Context, auctionID uuid.UUID) error {
	tx, err := s.txManager.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	auction, err := s.repo.GetByIDForUpdate(ctx, tx, auctionID)
	if err != nil {
		return err
	}

	now := time.Now()
	if ResolveEffectiveStatus(auction, now) != StatusEnded || auction.Status == StatusEnded {
		// Concurrently settled, paused, or the listing query raced; nothing to do.
		return nil
	}

	if _, err := s.settleLocked(ctx, tx, auction, now, nil); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SettleInTx runs settlement inside an already-open transaction that holds
// the auction row lock. The bid placement path uses it to lazily settle an
// auction whose stored status had not caught up with the clock.
func (s *Service) SettleInTx(ctx context.Context, tx pgx.Tx, auction *Auction, now time.Time) error {
	if auction.Status == StatusEnded {
		return nil
	}
	_, err := s.settleLocked(ctx, tx, auction, now, nil)
	return err
}

// settleLocked performs the terminal transition and fund settlement. The
// caller must hold the auction row lock and have verified the stored status
// is not already ended; together with the idempotent ledger references that
// guarantees exactly one effective settlement pass per auction.
func (s *Service) settleLocked(ctx context.Context, tx pgx.Tx, auction *Auction, now time.Time, winnerOverride *uuid.UUID) (*CloseResult, error) {
	leading, err := s.bids.GetLeadingBid(ctx, tx, auction.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load leading bid: %w", err)
	}

	result := &CloseResult{AuctionID: auction.ID}

	switch {
	case leading == nil:
		// No bids. An explicit override may still record a winner, but no
		// funds move because nothing was held.
		result.WinnerID = winnerOverride

	case winnerOverride != nil && *winnerOverride != leading.BidderID:
		return nil, ErrWinnerOverrideConflict

	case auction.ReservePrice != nil && leading.Amount < *auction.ReservePrice:
		// Reserve not met: no winner, the leader's hold is returned in full.
		if err := s.ledger.Refund(ctx, tx, leading.BidderID, leading.Amount, leading.BidID.String()); err != nil {
			return nil, fmt.Errorf("failed to refund leading hold: %w", err)
		}
		if err := s.saveEvent(ctx, tx, events.TypeAuctionLost, events.AuctionLostPayload{
			AuctionID:      auction.ID.String(),
			BidderID:       leading.BidderID.String(),
			ReleasedAmount: leading.Amount,
			Reason:         "reserve_not_met",
			Timestamp:      now,
		}); err != nil {
			return nil, err
		}

	default:
		if err := s.ledger.Settle(ctx, tx, leading.BidderID, auction.SellerID, leading.Amount, auction.ID.String()); err != nil {
			return nil, fmt.Errorf("failed to settle winning bid: %w", err)
		}
		winnerID := leading.BidderID
		winningBid := leading.Amount
		result.WinnerID = &winnerID
		result.WinningBid = &winningBid
		if err := s.saveEvent(ctx, tx, events.TypeAuctionWon, events.AuctionWonPayload{
			AuctionID:  auction.ID.String(),
			WinnerID:   winnerID.String(),
			WinningBid: winningBid,
			Timestamp:  now,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.repo.SetWinner(ctx, tx, auction.ID, result.WinnerID, result.WinningBid); err != nil {
		return nil, fmt.Errorf("failed to mark auction ended: %w", err)
	}

	closed := events.AuctionClosedPayload{
		AuctionID: auction.ID.String(),
		SellerID:  auction.SellerID.String(),
		Timestamp: now,
	}
	if result.WinnerID != nil {
		closed.WinnerID = result.WinnerID.String()
	}
	if result.WinningBid != nil {
		closed.WinningBid = *result.WinningBid
	}
	if err := s.saveEvent(ctx, tx, events.TypeAuctionClosed, closed); err != nil {
		return nil, err
	}

	auction.Status = StatusEnded
	auction.WinnerID = result.WinnerID
	auction.WinningBid = result.WinningBid
	return result, nil
}

func (s *Service) saveEvent(ctx context.Context, tx pgx.Tx, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := s.outbox.SaveEvent(ctx, tx, &events.OutboxEvent{
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

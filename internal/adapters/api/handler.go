package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	"github.com/knockdown-io/knockdown/internal/domain/bids"
	"github.com/knockdown-io/knockdown/internal/domain/wallet"
	"github.com/knockdown-io/knockdown/pkg/auth"
	"github.com/knockdown-io/knockdown/pkg/database"
)

// Handler serves the public auction and bidding endpoints.
type Handler struct {
	auctionService *auctions.Service
	coordinator    *bids.Coordinator
	logger         *slog.Logger
}

func NewHandler(auctionService *auctions.Service, coordinator *bids.Coordinator, logger *slog.Logger) *Handler {
	return &Handler{
		auctionService: auctionService,
		coordinator:    coordinator,
		logger:         logger,
	}
}

type createAuctionRequest struct {
	Title           string    `json:"title" binding:"required"`
	Description     string    `json:"description"`
	StartPrice      int64     `json:"start_price" binding:"required"`
	ReservePrice    *int64    `json:"reserve_price"`
	MinBidIncrement int64     `json:"min_bid_increment"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	EndTime         time.Time `json:"end_time" binding:"required"`
}

type auctionResponse struct {
	ID              string     `json:"id"`
	SellerID        string     `json:"seller_id"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	StartPrice      int64      `json:"start_price"`
	ReservePrice    *int64     `json:"reserve_price,omitempty"`
	CurrentPrice    *int64     `json:"current_price,omitempty"`
	MinBidIncrement int64      `json:"min_bid_increment"`
	NextMinimumBid  int64      `json:"next_minimum_bid"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	Status          string     `json:"status"`
	WinnerID        *string    `json:"winner_id,omitempty"`
	WinningBid      *int64     `json:"winning_bid,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toAuctionResponse(a *auctions.Auction) auctionResponse {
	resp := auctionResponse{
		ID:              a.ID.String(),
		SellerID:        a.SellerID.String(),
		Title:           a.Title,
		Description:     a.Description,
		StartPrice:      a.StartPrice,
		ReservePrice:    a.ReservePrice,
		CurrentPrice:    a.CurrentPrice,
		MinBidIncrement: a.MinBidIncrement,
		NextMinimumBid:  a.NextMinimumBid(),
		StartTime:       a.StartTime,
		EndTime:         a.EndTime,
		Status:          string(a.Status),
		WinningBid:      a.WinningBid,
		CreatedAt:       a.CreatedAt,
	}
	if a.WinnerID != nil {
		winner := a.WinnerID.String()
		resp.WinnerID = &winner
	}
	return resp
}

// CreateAuction handles POST /api/v1/auctions
func (h *Handler) CreateAuction(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	auction, err := h.auctionService.CreateAuction(c.Request.Context(), auctions.CreateAuctionCommand{
		SellerID:        auth.MustGetUserID(c),
		Title:           req.Title,
		Description:     req.Description,
		StartPrice:      req.StartPrice,
		ReservePrice:    req.ReservePrice,
		MinBidIncrement: req.MinBidIncrement,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
	})
	if err != nil {
		switch {
		case errors.Is(err, auctions.ErrInvalidStartPrice),
			errors.Is(err, auctions.ErrInvalidIncrement),
			errors.Is(err, auctions.ErrInvalidReservePrice),
			errors.Is(err, auctions.ErrInvalidTimeWindow),
			errors.Is(err, auctions.ErrEndTimeInPast):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("create auction failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusCreated, toAuctionResponse(auction))
}

// GetAuction handles GET /api/v1/auctions/:id
func (h *Handler) GetAuction(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid auction id"})
		return
	}

	auction, err := h.auctionService.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		if errors.Is(err, auctions.ErrAuctionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "auction not found"})
			return
		}
		h.logger.Error("get auction failed", "auction_id", auctionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, toAuctionResponse(auction))
}

// ListAuctions handles GET /api/v1/auctions
func (h *Handler) ListAuctions(c *gin.Context) {
	limit, offset := pagination(c)
	list, err := h.auctionService.ListOngoing(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list auctions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	resp := make([]auctionResponse, len(list))
	for i, a := range list {
		resp[i] = toAuctionResponse(a)
	}
	c.JSON(http.StatusOK, gin.H{"auctions": resp})
}

type placeBidRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type bidResultResponse struct {
	Accepted        bool   `json:"accepted"`
	Reason          string `json:"reason,omitempty"`
	BidID           string `json:"bid_id,omitempty"`
	NewCurrentPrice int64  `json:"new_current_price,omitempty"`
	NewMinimumBid   int64  `json:"new_minimum_bid,omitempty"`
}

// PlaceBid handles POST /api/v1/auctions/:id/bids
func (h *Handler) PlaceBid(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid auction id"})
		return
	}

	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bidderID := auth.MustGetUserID(c)
	result, err := h.coordinator.PlaceBid(c.Request.Context(), bids.PlaceBidCommand{
		AuctionID: auctionID,
		BidderID:  bidderID,
		Amount:    req.Amount,
	})
	if err != nil {
		switch {
		case errors.Is(err, database.ErrLockTimeout):
			// Contention, not rejection: the caller should just try again.
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "auction is busy, try again"})
		case errors.Is(err, auctions.ErrAuctionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "auction not found"})
		case errors.Is(err, wallet.ErrConsistency):
			h.logger.Error("ledger consistency violation placing bid",
				"auction_id", auctionID, "bidder_id", bidderID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		default:
			h.logger.Error("place bid failed", "auction_id", auctionID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	resp := bidResultResponse{
		Accepted:        result.Accepted,
		Reason:          string(result.Reason),
		NewCurrentPrice: result.NewCurrentPrice,
		NewMinimumBid:   result.NewMinimumBid,
	}
	if result.Accepted {
		resp.BidID = result.BidID.String()
	}
	c.JSON(http.StatusOK, resp)
}

// ListBids handles GET /api/v1/auctions/:id/bids
func (h *Handler) ListBids(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid auction id"})
		return
	}

	limit, offset := pagination(c)
	list, err := h.coordinator.ListBids(c.Request.Context(), auctionID, limit, offset)
	if err != nil {
		h.logger.Error("list bids failed", "auction_id", auctionID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	type bidResponse struct {
		ID        string    `json:"id"`
		AuctionID string    `json:"auction_id"`
		BidderID  string    `json:"bidder_id"`
		Amount    int64     `json:"amount"`
		CreatedAt time.Time `json:"created_at"`
	}
	resp := make([]bidResponse, len(list))
	for i, b := range list {
		resp[i] = bidResponse{
			ID:        b.ID.String(),
			AuctionID: b.AuctionID.String(),
			BidderID:  b.BidderID.String(),
			Amount:    b.Amount,
			CreatedAt: b.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"bids": resp})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/knockdown-io/knockdown/internal/domain/auctions"
	"github.com/knockdown-io/knockdown/pkg/auth"
	"github.com/knockdown-io/knockdown/pkg/database"
)

// AdminHandler serves the privileged override endpoints. Role enforcement
// happens in the router; every action still runs through the same per-auction
// lock as bidding.
type AdminHandler struct {
	auctionService *auctions.Service
	logger         *slog.Logger
}

func NewAdminHandler(auctionService *auctions.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		auctionService: auctionService,
		logger:         logger,
	}
}

// Approve handles POST /api/v1/admin/auctions/:id/approve
func (h *AdminHandler) Approve(c *gin.Context) {
	h.transition(c, h.auctionService.Approve)
}

// Reject handles POST /api/v1/admin/auctions/:id/reject
func (h *AdminHandler) Reject(c *gin.Context) {
	h.transition(c, h.auctionService.Reject)
}

// Pause handles POST /api/v1/admin/auctions/:id/pause
func (h *AdminHandler) Pause(c *gin.Context) {
	h.transition(c, h.auctionService.Pause)
}

// Resume handles POST /api/v1/admin/auctions/:id/resume
func (h *AdminHandler) Resume(c *gin.Context) {
	h.transition(c, h.auctionService.Resume)
}

func (h *AdminHandler) transition(c *gin.Context, action func(ctx context.Context, cmd auctions.AdminActionCommand) (*auctions.Auction, error)) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid auction id"})
		return
	}

	auction, err := action(c.Request.Context(), auctions.AdminActionCommand{
		AuctionID: auctionID,
		AdminID:   auth.MustGetUserID(c),
	})
	if err != nil {
		h.mapError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auction_id": auction.ID.String(),
		"status":     string(auction.Status),
	})
}

type forceCloseRequest struct {
	WinnerID *string `json:"winner_id"`
}

// ForceClose handles POST /api/v1/admin/auctions/:id/close
func (h *AdminHandler) ForceClose(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid auction id"})
		return
	}

	var req forceCloseRequest
	if c.Request.ContentLength > 0 {
		if bindErr := c.ShouldBindJSON(&req); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": bindErr.Error()})
			return
		}
	}

	cmd := auctions.AdminActionCommand{
		AuctionID: auctionID,
		AdminID:   auth.MustGetUserID(c),
	}
	if req.WinnerID != nil {
		winnerID, parseErr := uuid.Parse(*req.WinnerID)
		if parseErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid winner_id"})
			return
		}
		cmd.WinnerOverride = &winnerID
	}

	result, err := h.auctionService.ForceClose(c.Request.Context(), cmd)
	if err != nil {
		h.mapError(c, err)
		return
	}

	resp := gin.H{"auction_id": result.AuctionID.String(), "status": string(auctions.StatusEnded)}
	if result.WinnerID != nil {
		resp["winner_id"] = result.WinnerID.String()
	}
	if result.WinningBid != nil {
		resp["winning_bid"] = *result.WinningBid
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminHandler) mapError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auctions.ErrAuctionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "auction not found"})
	case errors.Is(err, auctions.ErrInvalidTransition),
		errors.Is(err, auctions.ErrAlreadyEnded),
		errors.Is(err, auctions.ErrWinnerOverrideConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrLockTimeout):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "auction is busy, try again"})
	default:
		h.logger.Error("admin action failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

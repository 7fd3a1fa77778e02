package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/knockdown-io/knockdown/internal/domain/wallet"
	"github.com/knockdown-io/knockdown/pkg/auth"
)

// WalletHandler serves balance reads and the deposit/withdrawal surface. The
// deposit endpoint is called once the external payment verifier reports a
// payment completed.
type WalletHandler struct {
	walletService *wallet.Service
	logger        *slog.Logger
}

func NewWalletHandler(walletService *wallet.Service, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

type balanceResponse struct {
	UserID    string `json:"user_id"`
	Available int64  `json:"available_balance"`
	Held      int64  `json:"held_balance"`
}

func toBalanceResponse(b *wallet.Balance) balanceResponse {
	return balanceResponse{
		UserID:    b.UserID.String(),
		Available: b.Available,
		Held:      b.Held,
	}
}

// GetBalance handles GET /api/v1/wallet
func (h *WalletHandler) GetBalance(c *gin.Context) {
	balance, err := h.walletService.GetBalance(c.Request.Context(), auth.MustGetUserID(c))
	if err != nil {
		h.logger.Error("get balance failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toBalanceResponse(balance))
}

type depositRequest struct {
	Amount     int64  `json:"amount" binding:"required"`
	PaymentRef string `json:"payment_ref" binding:"required"`
}

// Deposit handles POST /api/v1/wallet/deposits
func (h *WalletHandler) Deposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.walletService.Deposit(c.Request.Context(), auth.MustGetUserID(c), req.Amount, req.PaymentRef)
	if err != nil {
		if errors.Is(err, wallet.ErrInvalidAmount) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("deposit failed", "payment_ref", req.PaymentRef, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, toBalanceResponse(balance))
}

type withdrawRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Ref    string `json:"ref"`
}

// Withdraw handles POST /api/v1/wallet/withdrawals
func (h *WalletHandler) Withdraw(c *gin.Context) {
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	balance, err := h.walletService.Withdraw(c.Request.Context(), auth.MustGetUserID(c), req.Amount, req.Ref)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrInsufficientFunds):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			h.logger.Error("withdrawal failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, toBalanceResponse(balance))
}

// ListTransactions handles GET /api/v1/wallet/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	limit, offset := pagination(c)
	list, err := h.walletService.ListTransactions(c.Request.Context(), auth.MustGetUserID(c), limit, offset)
	if err != nil {
		h.logger.Error("list transactions failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	type txResponse struct {
		ID        string    `json:"id"`
		Type      string    `json:"type"`
		Amount    int64     `json:"amount"`
		Status    string    `json:"status"`
		Reference string    `json:"reference"`
		CreatedAt time.Time `json:"created_at"`
	}
	resp := make([]txResponse, len(list))
	for i, t := range list {
		resp[i] = txResponse{
			ID:        t.ID.String(),
			Type:      string(t.Type),
			Amount:    t.Amount,
			Status:    string(t.Status),
			Reference: t.Reference,
			CreatedAt: t.CreatedAt,
		}
	}
	c.JSON(http.StatusOK, gin.H{"transactions": resp})
}

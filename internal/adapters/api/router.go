package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/knockdown-io/knockdown/pkg/auth"
)

// RouterConfig carries the dependencies the HTTP surface needs.
type RouterConfig struct {
	Handler       *Handler
	AdminHandler  *AdminHandler
	WalletHandler *WalletHandler
	Signer        *auth.Signer
	Redis         *redis.Client
	RateLimit     rate.Limit
	RateBurst     int
}

// NewRouter assembles the gin engine with auth, rate limiting and routes.
func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	if cfg.RateLimit > 0 {
		router.Use(RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	v1 := router.Group("/api/v1")

	// Public reads
	v1.GET("/auctions", cfg.Handler.ListAuctions)
	v1.GET("/auctions/:id", cfg.Handler.GetAuction)
	v1.GET("/auctions/:id/bids", cfg.Handler.ListBids)

	// Authenticated
	authed := v1.Group("")
	authed.Use(auth.Middleware(cfg.Signer))
	authed.POST("/auctions", cfg.Handler.CreateAuction)
	authed.POST("/auctions/:id/bids", IdempotencyMiddleware(cfg.Redis), cfg.Handler.PlaceBid)
	authed.GET("/wallet", cfg.WalletHandler.GetBalance)
	authed.GET("/wallet/transactions", cfg.WalletHandler.ListTransactions)
	authed.POST("/wallet/deposits", cfg.WalletHandler.Deposit)
	authed.POST("/wallet/withdrawals", cfg.WalletHandler.Withdraw)

	// Admin overrides
	admin := authed.Group("/admin")
	admin.Use(auth.AdminOnly())
	admin.POST("/auctions/:id/approve", cfg.AdminHandler.Approve)
	admin.POST("/auctions/:id/reject", cfg.AdminHandler.Reject)
	admin.POST("/auctions/:id/pause", cfg.AdminHandler.Pause)
	admin.POST("/auctions/:id/resume", cfg.AdminHandler.Resume)
	admin.POST("/auctions/:id/close", cfg.AdminHandler.ForceClose)

	return router
}

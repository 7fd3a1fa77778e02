package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	tokenHeader = "Authorization"
	tokenPrefix = "Bearer "

	userIDKey = "auth.user_id"
	roleKey   = "auth.role"
)

// Middleware validates the bearer token and stores the caller's identity on
// the request context. Handlers behind it may call MustGetUserID.
func Middleware(signer *Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(tokenHeader)
		if header == "" || !strings.HasPrefix(header, tokenPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		claims, err := signer.ValidateToken(strings.TrimPrefix(header, tokenPrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid subject"})
			return
		}

		c.Set(userIDKey, userID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// AdminOnly rejects callers whose token does not carry the admin role.
// Must run after Middleware.
func AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, exists := c.Get(roleKey)
		if !exists || role.(Role) != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

// MustGetUserID returns the authenticated user id. It panics if called outside
// a route protected by Middleware, which is a programming error.
func MustGetUserID(c *gin.Context) uuid.UUID {
	v, exists := c.Get(userIDKey)
	if !exists {
		panic("auth: MustGetUserID called on unauthenticated route")
	}
	return v.(uuid.UUID)
}

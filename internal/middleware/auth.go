package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/auditlens/auditlens-backend/internal/platform/logger"
	"github.com/auditlens/auditlens-backend/internal/services"
)

const claimsKey = "auth_claims"

type AuthMiddleware struct {
	log  *logger.Logger
	auth services.AuthService
}

func NewAuthMiddleware(baseLog *logger.Logger, auth services.AuthService) *AuthMiddleware {
	return &AuthMiddleware{log: baseLog.With("middleware", "Auth"), auth: auth}
}

func extractToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[len("bearer "):])
	}
	if q := strings.TrimSpace(c.Query("token")); q != "" {
		return q
	}
	return ""
}

// RequireAuth rejects the request unless a valid access token identifies a
// user and tenant.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required."})
			return
		}
		claims, err := m.auth.ParseToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token."})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the authenticated identity set by RequireAuth.
func ClaimsFrom(c *gin.Context) *services.AuthClaims {
	val, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, ok := val.(*services.AuthClaims)
	if !ok {
		return nil
	}
	return claims
}

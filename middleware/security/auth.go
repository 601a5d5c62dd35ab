package security

import (
	"net/http"
	"strings"

	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// context keys
const (
	PPCtxUserIDKey = "userId"
	PPCtxTokenKey  = "authorization"
)

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// BearerToken reads `Authorization: Bearer xxx`, then the `token` query
// parameter (browsers cannot set headers on a websocket handshake).
func BearerToken(c *gin.Context) string {
	if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
		if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
			return strings.TrimSpace(authz[7:])
		}
	}
	return strings.TrimSpace(c.Query("token"))
}

// Middleware rejects requests without a valid token and stores the user id.
func Middleware(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrUnauthenticated)
			return
		}
		uid, err := v.VerifyToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrTokenInvalid)
			return
		}
		c.Set(PPCtxTokenKey, token)
		c.Set(PPCtxUserIDKey, uid)
		c.Next()
	}
}

// UserID returns the id set by Middleware.
func UserID(c *gin.Context) string {
	return c.GetString(PPCtxUserIDKey)
}

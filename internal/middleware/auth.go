package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/hiring-api/internal/handler"
	"github.com/jwalitptl/hiring-api/internal/ratelimit"
	"github.com/jwalitptl/hiring-api/pkg/auth"
	apperrors "github.com/jwalitptl/hiring-api/pkg/errors"
)

const HeaderXUserID = "X-User-ID"

type AuthMiddleware struct {
	jwt             auth.JWTService
	trustUserHeader bool
	limiter         ratelimit.Limiter
	class           ratelimit.Class
}

// NewAuthMiddleware verifies bearer tokens when jwt is non-nil. Without a
// token service it trusts X-User-ID from an authenticating gateway, if
// trustUserHeader is set. Failed attempts count against the auth class per
// client address.
func NewAuthMiddleware(jwt auth.JWTService, trustUserHeader bool, limiter ratelimit.Limiter, class ratelimit.Class) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:             jwt,
		trustUserHeader: trustUserHeader,
		limiter:         limiter,
		class:           class,
	}
}

// Authenticate resolves the caller and stores it under handler.ContextUserID.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := m.identify(c)
		if err != nil {
			m.reject(c, err)
			return
		}

		c.Set(handler.ContextUserID, userID)
		c.Next()
	}
}

func (m *AuthMiddleware) identify(c *gin.Context) (uuid.UUID, error) {
	if m.jwt != nil {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			return uuid.Nil, apperrors.Unauthorized(nil)
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return uuid.Nil, apperrors.Unauthorized(nil)
		}

		claims, err := m.jwt.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			return uuid.Nil, apperrors.Unauthorized(err)
		}
		return claims.UserID()
	}

	if m.trustUserHeader {
		raw := c.GetHeader(HeaderXUserID)
		id, err := uuid.Parse(raw)
		if err != nil || id == uuid.Nil {
			return uuid.Nil, apperrors.Unauthorized(err)
		}
		return id, nil
	}

	return uuid.Nil, apperrors.Unauthorized(nil)
}

func (m *AuthMiddleware) reject(c *gin.Context, err error) {
	if m.limiter != nil {
		addr := ratelimit.NormalizeClientAddr(c.ClientIP())
		if !m.limiter.Allow(c.Request.Context(), addr, m.class) {
			c.Header("Retry-After", retryAfterSeconds(m.class.Window))
			status, resp := handler.ErrorBody(apperrors.RateLimited(m.class.Name))
			c.AbortWithStatusJSON(status, resp)
			return
		}
	}

	if !apperrors.Is(err, apperrors.ErrUnauthorized) {
		err = apperrors.Unauthorized(err)
	}
	c.Header("WWW-Authenticate", `Bearer realm="hiring-api"`)
	_, resp := handler.ErrorBody(err)
	c.AbortWithStatusJSON(http.StatusUnauthorized, resp)
}

package middleware

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/duynhne/settings-web/internal/core/domain"
	"github.com/duynhne/settings-web/internal/session"
)

const sessionContextKey = "session"

// SessionResolver resolves the signed-in user behind a session token.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (*session.Context, error)
}

// SessionMiddleware resolves the current user from the session cookie and
// stores the resulting *session.Context in the gin context. Requests without
// a usable session continue anonymously; handlers decide what to render.
func SessionMiddleware(resolver SessionResolver, cookieName string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			c.Next()
			return
		}

		sess, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			if logger != nil && !errors.Is(err, domain.ErrUnauthenticated) {
				logger.Warn("Session resolution failed", zap.Error(err))
			}
			c.Next()
			return
		}

		c.Set(sessionContextKey, sess)
		c.Set("user_id", sess.User().ID)
		c.Next()
	}
}

// SessionFromContext returns the session resolved by SessionMiddleware, or
// nil when the request is anonymous.
func SessionFromContext(c *gin.Context) *session.Context {
	v, exists := c.Get(sessionContextKey)
	if !exists {
		return nil
	}
	sess, _ := v.(*session.Context)
	return sess
}

// SetSession stores sess in the gin context. Used by tests and by handlers
// that resolve sessions themselves.
func SetSession(c *gin.Context, sess *session.Context) {
	c.Set(sessionContextKey, sess)
}

// Package session resolves the signed-in user for a session token and keeps a
// short-lived cache of resolved users that successful updates are written into.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/duynhne/settings-web/internal/core/domain"
)

// Context is the explicit current-user state handed to the profile section:
// the token identifying the session, the cached user and the callback that
// writes a new user back to the owner of the cache.
type Context struct {
	token  string
	mutate func(domain.User)

	mu   sync.RWMutex
	user domain.User
}

// NewContext builds a session context. mutate may be nil.
func NewContext(token string, user domain.User, mutate func(domain.User)) *Context {
	return &Context{token: token, user: user, mutate: mutate}
}

// Token returns the session token the context was resolved for.
func (s *Context) Token() string { return s.token }

// User returns a copy of the cached user.
func (s *Context) User() domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// Mutate replaces the cached user and propagates it to the cache owner.
func (s *Context) Mutate(u domain.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	if s.mutate != nil {
		s.mutate(u)
	}
}

// Store resolves users through the backend and caches them per token.
type Store struct {
	gateway domain.UserGateway
	cache   *expirable.LRU[string, domain.User]
	logger  *zap.Logger
}

// NewStore creates a store caching up to size users for ttl each.
func NewStore(gateway domain.UserGateway, size int, ttl time.Duration, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		gateway: gateway,
		cache:   expirable.NewLRU[string, domain.User](size, nil, ttl),
		logger:  logger,
	}
}

// Resolve returns the session context for token. It returns
// domain.ErrUnauthenticated when the backend reports no signed-in user.
func (s *Store) Resolve(ctx context.Context, token string) (*Context, error) {
	if token == "" {
		return nil, domain.ErrUnauthenticated
	}

	if user, ok := s.cache.Get(token); ok {
		return s.newContext(token, user), nil
	}

	user, err := s.gateway.CurrentUser(ctx, token)
	if err != nil {
		var statusErr interface{ HTTPStatus() int }
		if errors.As(err, &statusErr) {
			s.logger.Debug("Backend rejected session", zap.Int("status", statusErr.HTTPStatus()))
			return nil, domain.ErrUnauthenticated
		}
		return nil, fmt.Errorf("resolve current user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthenticated
	}

	s.cache.Add(token, *user)
	return s.newContext(token, *user), nil
}

// Mutate overwrites the cached user for token.
func (s *Store) Mutate(token string, user domain.User) {
	s.cache.Add(token, user)
}

// Invalidate drops the cached user for token.
func (s *Store) Invalidate(token string) {
	s.cache.Remove(token)
}

func (s *Store) newContext(token string, user domain.User) *Context {
	return NewContext(token, user, func(u domain.User) {
		s.Mutate(token, u)
	})
}

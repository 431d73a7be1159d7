// Package token caches assistant authorization tokens. A token is fetched on
// first use, reused until it is about to expire, and concurrent callers
// share a single in-flight fetch.
package token

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RefreshSkew is how long before its expiry a token is refreshed.
const RefreshSkew = 30 * time.Second

// ErrNoExpiry is returned by Expiry for tokens without a readable exp claim.
var ErrNoExpiry = errors.New("token has no readable expiry")

// Fetcher obtains a fresh token for an assistant.
type Fetcher interface {
	Fetch(ctx context.Context, assistantID string) (string, error)
}

// Config is the configuration for a Cache.
type Config struct {
	Fetcher Fetcher

	// Now defaults to time.Now.
	Now func() time.Time

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// Cache holds the current token per assistant id.
type Cache struct {
	fetcher Fetcher
	now     func() time.Time
	logger  *zap.Logger

	mu     sync.Mutex
	tokens map[string]string

	group singleflight.Group
}

// NewCache creates an empty Cache.
func NewCache(c *Config) *Cache {
	cache := &Cache{
		fetcher: c.Fetcher,
		now:     c.Now,
		logger:  c.Logger,
		tokens:  map[string]string{},
	}
	if cache.now == nil {
		cache.now = time.Now
	}
	if cache.logger == nil {
		cache.logger = zap.NewNop()
	}
	return cache
}

// Token returns a valid token for assistantID, fetching one when none is
// cached or the cached one expires within RefreshSkew. Tokens whose expiry
// cannot be read are always refetched.
func (c *Cache) Token(ctx context.Context, assistantID string) (string, error) {
	c.mu.Lock()
	tok, ok := c.tokens[assistantID]
	c.mu.Unlock()

	if ok && !c.expired(tok) {
		return tok, nil
	}

	// The fetch is shared, so one caller cancelling must not fail the others.
	ch := c.group.DoChan(assistantID, func() (any, error) {
		c.logger.Debug("fetching token", zap.String("assistant_id", assistantID))

		tok, err := c.fetcher.Fetch(context.WithoutCancel(ctx), assistantID)
		if err != nil {
			return "", err
		}

		c.mu.Lock()
		c.tokens[assistantID] = tok
		c.mu.Unlock()
		return tok, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", context.Cause(ctx)
	}
}

// Invalidate drops the cached token for assistantID.
func (c *Cache) Invalidate(assistantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, assistantID)
}

func (c *Cache) expired(tok string) bool {
	exp, err := Expiry(tok)
	if err != nil {
		c.logger.Debug("token expiry unreadable", zap.Error(err))
		return true
	}
	return c.now().After(exp.Add(-RefreshSkew))
}

// Expiry reads the exp claim of tok without verifying its signature. Besides
// JWTs it accepts tokens whose first dot separated segment is a base64 JSON
// object carrying exp.
func Expiry(tok string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok, claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time, nil
	}

	segment, _, _ := strings.Cut(tok, ".")
	segment = strings.TrimRight(segment, "=")

	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(segment)
		if err != nil {
			return time.Time{}, ErrNoExpiry
		}
	}

	var payload struct {
		Exp *float64 `json:"exp"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Exp == nil {
		return time.Time{}, ErrNoExpiry
	}

	return time.Unix(int64(*payload.Exp), 0), nil
}

// Package mockserver is a stand-in assistant backend. It replays a scripted
// UI message stream for every chat request and issues short lived tokens,
// so the client can be exercised end to end without the real service.
package mockserver

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/launchdarkly/eventsource"
	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/llm"
	"github.com/papercomputeco/uistream/pkg/safejson"
)

const (
	defaultTokenTTL = 5 * time.Minute

	assistantHeader = "X-Algolia-Assistant-ID"
)

var errInvalidToken = errors.New("invalid token")

// Config is the configuration for the mock server.
type Config struct {
	ListenAddr string

	// Delay is slept between scripted events.
	Delay time.Duration

	// Script is replayed for every chat request. Defaults to
	// DocSearchScript.
	Script []Event

	// RequireToken rejects chat requests without a token issued by this
	// server.
	RequireToken bool

	// TokenTTL defaults to five minutes.
	TokenTTL time.Duration

	// Logger is the provided zap logger
	Logger *zap.Logger
}

// ChatRequest is the body of a chat request as received.
type ChatRequest struct {
	ID        string         `json:"id"`
	Messages  []*llm.Message `json:"messages"`
	Trigger   string         `json:"trigger"`
	MessageID string         `json:"messageId,omitempty"`
}

// Server is the mock assistant backend.
type Server struct {
	config Config
	app    *fiber.App
	key    []byte
	logger *zap.Logger

	mu       sync.Mutex
	requests []ChatRequest
}

// NewServer creates a mock server.
func NewServer(c *Config) (*Server, error) {
	config := *c
	if config.Script == nil {
		config.Script = DocSearchScript()
	}
	if config.TokenTTL <= 0 {
		config.TokenTTL = defaultTokenTTL
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating signing key: %w", err)
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config: config,
		app:    app,
		key:    key,
		logger: logger,
	}

	app.Get("/ping", s.handlePing)
	app.Post("/chat", s.handleChat)
	app.Post("/chat/token", s.handleToken)

	return s, nil
}

// Handler exposes the server as an http.Handler. Responses are buffered
// until the script completes.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Run starts the server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting mock server",
		zap.String("listen", s.config.ListenAddr),
		zap.Int("script_events", len(s.config.Script)),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// Requests returns the chat requests received so far.
func (s *Server) Requests() []ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ChatRequest(nil), s.requests...)
}

func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.SendString("pong")
}

func (s *Server) handleToken(c *fiber.Ctx) error {
	assistantID := c.Get(assistantHeader)
	if assistantID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing assistant id"})
	}

	now := time.Now()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   assistantID,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TokenTTL)),
	}).SignedString(s.key)
	if err != nil {
		s.logger.Error("failed to sign token", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}

	s.logger.Debug("issued token", zap.String("assistant_id", assistantID))
	return c.JSON(fiber.Map{"token": tok})
}

func (s *Server) handleChat(c *fiber.Ctx) error {
	if err := s.authorize(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).SendString(err.Error())
	}

	var req ChatRequest
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return c.Status(fiber.StatusBadRequest).SendString("invalid request body")
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	s.logger.Debug("replaying script",
		zap.String("chat_id", req.ID),
		zap.Int("message_count", len(req.Messages)),
	)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")

	// io.Pipe gives per-event flushing: fasthttp writes each chunk as soon
	// as the encoder produces it.
	pr, pw := io.Pipe()
	go s.replay(pw)
	c.Context().Response.SetBodyStream(pr, -1)

	return nil
}

func (s *Server) replay(pw *io.PipeWriter) {
	defer pw.Close()

	enc := eventsource.NewEncoder(pw, false)
	for i, ev := range s.config.Script {
		if i > 0 && s.config.Delay > 0 {
			time.Sleep(s.config.Delay)
		}
		if err := enc.Encode(ev); err != nil {
			s.logger.Debug("client went away", zap.Error(err))
			return
		}
	}

	if err := enc.Encode(Event{Payload: safejson.Done}); err != nil {
		s.logger.Debug("client went away", zap.Error(err))
	}
}

func (s *Server) authorize(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		if s.config.RequireToken {
			return errInvalidToken
		}
		return nil
	}

	raw, ok := strings.CutPrefix(header, "TOKEN ")
	if !ok {
		return errInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("%w: %w", errInvalidToken, err)
	}

	if want := c.Get(assistantHeader); want != "" && claims.Subject != want {
		return fmt.Errorf("%w: issued for another assistant", errInvalidToken)
	}

	return nil
}

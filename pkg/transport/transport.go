// Package transport opens the UI message stream for a conversation. The
// stream package only consumes the returned body.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/uistream/pkg/llm"
)

// TriggerSubmitMessage is the only request trigger the assistant backend
// accepts.
const TriggerSubmitMessage = "submit-message"

const (
	defaultSDKVersion = "v5"
	defaultTimeout    = 5 * time.Minute
	maxErrorBodyBytes = 4096
)

// ErrRequest matches every *RequestError.
var ErrRequest = errors.New("request failed")

// RequestError reports a failure to obtain a stream: token acquisition,
// connection failure, a non-2xx status or an empty body.
type RequestError struct {
	Err error
}

func (e *RequestError) Error() string {
	return "error making request: " + e.Err.Error()
}

func (e *RequestError) Unwrap() []error {
	return []error{ErrRequest, e.Err}
}

// Request is the conversation sent to the assistant backend.
type Request struct {
	ChatID    string
	Messages  []*llm.Message
	MessageID string
	Trigger   string
}

// Transport sends a conversation and returns the streamed response body.
// Cancelling ctx must abort both the request and any read in progress on the
// returned body.
type Transport interface {
	SendMessages(ctx context.Context, req *Request) (io.ReadCloser, error)
}

// TokenSource supplies the authorization token for an assistant.
type TokenSource interface {
	Token(ctx context.Context, assistantID string) (string, error)
}

// tokenInvalidator is implemented by token sources that can drop a token the
// backend rejected.
type tokenInvalidator interface {
	Invalidate(assistantID string)
}

// HTTPConfig is the configuration for the HTTP transport.
type HTTPConfig struct {
	Endpoint    string
	AppID       string
	APIKey      string
	IndexName   string
	AssistantID string

	// SDKVersion is sent as X-AI-SDK-Version. Defaults to "v5".
	SDKVersion string

	// Tokens authorizes requests. When nil no Authorization header is sent.
	Tokens TokenSource

	// Client defaults to an http.Client with a five minute timeout, since
	// assistant responses can be slow.
	Client *http.Client

	Logger *zap.Logger
}

// HTTP is the Transport posting conversations to the assistant backend.
type HTTP struct {
	config *HTTPConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTP creates an HTTP transport.
func NewHTTP(c *HTTPConfig) *HTTP {
	cfg := *c
	if cfg.SDKVersion == "" {
		cfg.SDKVersion = defaultSDKVersion
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HTTP{
		config: &cfg,
		client: client,
		logger: logger,
	}
}

type requestBody struct {
	ID        string         `json:"id"`
	Messages  []*llm.Message `json:"messages"`
	Trigger   string         `json:"trigger"`
	MessageID string         `json:"messageId,omitempty"`
}

// SendMessages posts the conversation and returns the SSE response body.
// Every failure is a *RequestError.
func (t *HTTP) SendMessages(ctx context.Context, req *Request) (io.ReadCloser, error) {
	body, err := t.send(ctx, req)
	if err != nil {
		t.logger.Error("chat request failed",
			zap.String("endpoint", t.config.Endpoint),
			zap.Error(err),
		)
		return nil, &RequestError{Err: err}
	}
	return body, nil
}

func (t *HTTP) send(ctx context.Context, req *Request) (io.ReadCloser, error) {
	trigger := req.Trigger
	if trigger == "" {
		trigger = TriggerSubmitMessage
	}

	payload, err := json.Marshal(requestBody{
		ID:        req.ChatID,
		Messages:  req.Messages,
		Trigger:   trigger,
		MessageID: req.MessageID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-AI-SDK-Version", t.config.SDKVersion)
	httpReq.Header.Set("X-Algolia-Application-Id", t.config.AppID)
	httpReq.Header.Set("X-Algolia-API-Key", t.config.APIKey)
	httpReq.Header.Set("X-Algolia-Index-Name", t.config.IndexName)
	httpReq.Header.Set("X-Algolia-Assistant-ID", t.config.AssistantID)

	if t.config.Tokens != nil {
		token, err := t.config.Tokens.Token(ctx, t.config.AssistantID)
		if err != nil {
			return nil, fmt.Errorf("getting token: %w", err)
		}
		httpReq.Header.Set("Authorization", "TOKEN "+token)
	}

	t.logger.Debug("sending chat request",
		zap.String("endpoint", t.config.Endpoint),
		zap.String("chat_id", req.ChatID),
		zap.Int("message_count", len(req.Messages)),
	)

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusUnauthorized {
			if inv, ok := t.config.Tokens.(tokenInvalidator); ok {
				inv.Invalidate(t.config.AssistantID)
			}
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		msg := strings.TrimSpace(string(respBody))
		if msg == "" {
			msg = "failed to fetch the chat response"
		}
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, msg)
	}

	// The client wraps every body, so emptiness has to come from the
	// response metadata.
	if resp.StatusCode == http.StatusNoContent || resp.ContentLength == 0 {
		resp.Body.Close()
		return nil, errors.New("the response body is empty")
	}

	return resp.Body, nil
}

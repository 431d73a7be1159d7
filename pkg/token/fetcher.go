package token

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultFetchTimeout = 30 * time.Second

// HTTPFetcher requests tokens from the assistant token endpoint.
type HTTPFetcher struct {
	Endpoint string

	// Client defaults to an http.Client with a 30 second timeout.
	Client *http.Client
}

type tokenResponse struct {
	Token string `json:"token"`
}

// Fetch posts to the token endpoint for assistantID.
func (f *HTTPFetcher) Fetch(ctx context.Context, assistantID string) (string, error) {
	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Endpoint, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("x-algolia-assistant-id", assistantID)
	req.Header.Set("content-type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, string(body))
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}
	if out.Token == "" {
		return "", fmt.Errorf("token endpoint returned no token")
	}

	return out.Token, nil
}

package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Model is one entry of an upstream provider's model catalog.
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Client fetches model catalogs from upstream image-generation providers.
// Upstreams are plain bearer-token REST APIs; responses are either a bare
// array or the common {"data": [...]} envelope.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// ListModels calls the provider's models endpoint with the given API key.
func (c *Client) ListModels(ctx context.Context, baseURL, modelsPath, apiKey string) ([]Model, error) {
	endpoint, err := url.JoinPath(baseURL, modelsPath)
	if err != nil {
		return nil, fmt.Errorf("building models url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building models request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("models endpoint returned status %d", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}

	var list []Model
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var envelope struct {
		Data []Model `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decoding models response: %w", err)
	}

	return envelope.Data, nil
}

// ValidateKeyFormat applies cheap sanity checks before a key is stored.
// It is intentionally loose: upstream key formats vary and the real test
// is the first catalog fetch.
func ValidateKeyFormat(apiKey string) error {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	if key != apiKey {
		return fmt.Errorf("API key has leading or trailing whitespace")
	}
	if len(key) < 8 {
		return fmt.Errorf("API key is too short")
	}
	return nil
}

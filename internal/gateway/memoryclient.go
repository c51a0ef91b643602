package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// retrieveMinScore filters out weakly-related memories from enrichment.
const retrieveMinScore = 0.4

// MemoryClient is the HTTP client for the memory manager's retrieve endpoint.
// It implements ContextRetriever.
type MemoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMemoryClient creates a client for the memory manager at baseURL
// (e.g. "http://memory-manager:8001").
func NewMemoryClient(baseURL string) *MemoryClient {
	return &MemoryClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 2 * time.Second},
	}
}

// Retrieve fetches the top relevant memory snippets for a query. The caller
// bounds the call with its own context deadline; any failure or non-success
// status is an error for the caller to degrade on.
func (m *MemoryClient) Retrieve(ctx context.Context, query, sessionID string) ([]string, error) {
	reqBody, err := json.Marshal(map[string]any{
		"query":      query,
		"limit":      3,
		"min_score":  retrieveMinScore,
		"session_id": sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal retrieve request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/retrieve", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build retrieve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieve request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("retrieve returned status %d", resp.StatusCode)
	}

	var hits []struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("failed to decode retrieve response: %w", err)
	}

	snippets := make([]string, 0, len(hits))
	for _, hit := range hits {
		if hit.Content != "" {
			snippets = append(snippets, hit.Content)
		}
	}
	return snippets, nil
}

// Healthy reports whether the memory manager answers its health endpoint.
// Used by the gateway's /status connectivity flags.
func (m *MemoryClient) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

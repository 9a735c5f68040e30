// Package reasoning provides an HTTP client for the external reasoning
// service used for slow-path pattern extraction.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/calyptra/mnemo/internal/types"
)

// Client is an HTTP client for the reasoning service.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewClient creates a new reasoning service client.
// baseURL should be like "http://localhost:8080".
// apiKey, if non-empty, is passed as a Bearer token on all requests.
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // outer bound; callers pass tighter ctx deadlines
		},
	}
}

// PatternResult is one pattern proposed by the reasoning service.
type PatternResult struct {
	Type        string  `json:"type"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description"`
}

// eventPayload is the serialized form of a cluster member sent for analysis.
type eventPayload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Outcome   string `json:"outcome"`
}

type extractRequest struct {
	Model  string         `json:"model,omitempty"`
	Events []eventPayload `json:"events"`
}

type extractResponse struct {
	Patterns []PatternResult `json:"patterns"`
}

// ExtractPatterns serializes a cluster of events and asks the reasoning
// service for patterns the heuristics cannot see. The caller bounds the
// call with a context deadline.
func (c *Client) ExtractPatterns(ctx context.Context, events []*types.EpisodicEvent) ([]PatternResult, error) {
	if len(events) == 0 {
		return nil, nil
	}

	req := extractRequest{Model: c.model, Events: make([]eventPayload, len(events))}
	for i, e := range events {
		req.Events[i] = eventPayload{
			ID:        e.ID,
			Type:      e.Type,
			Content:   e.Content,
			Timestamp: e.Timestamp,
			Outcome:   string(e.Outcome),
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extract request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/patterns/extract", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build extract request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("reasoning service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reasoning service returned %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read extract response: %w", err)
	}

	var parsed extractResponse
	if err := json.Unmarshal([]byte(extractJSON(string(data))), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse extract response: %w", err)
	}

	// Drop malformed entries rather than failing the batch.
	results := make([]PatternResult, 0, len(parsed.Patterns))
	for _, p := range parsed.Patterns {
		if p.Type == "" || p.Confidence < 0 || p.Confidence > 1 {
			continue
		}
		results = append(results, p)
	}
	return results, nil
}

// extractJSON extracts JSON from markdown code blocks or returns the input
// if no code block is found. Reasoning backends that proxy an LLM sometimes
// wrap their JSON in fences.
func extractJSON(s string) string {
	if start := strings.Index(s, "```json"); start != -1 {
		start += 7
		if end := strings.Index(s[start:], "```"); end != -1 {
			return strings.TrimSpace(s[start : start+end])
		}
	}
	if start := strings.Index(s, "```"); start != -1 {
		start += 3
		if end := strings.Index(s[start:], "```"); end != -1 {
			content := strings.TrimSpace(s[start : start+end])
			if idx := strings.Index(content, "\n"); idx != -1 {
				content = content[idx+1:]
			}
			return strings.TrimSpace(content)
		}
	}
	return strings.TrimSpace(s)
}

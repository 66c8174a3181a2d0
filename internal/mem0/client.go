// Package mem0 talks to the Mem0 long-term memory REST API.
package mem0

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Message is one conversational turn stored in Mem0.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Memory is a search hit.
type Memory struct {
	ID     string
	Memory string
	Score  float64
}

// Client is a Mem0 REST client. A Client without an API key is disabled and every call is a no-op.
type Client struct {
	apiKey     string
	baseURL    string
	source     string
	httpClient *http.Client
	logger     *log.Logger
}

// New creates a client for baseURL (for example https://api.mem0.ai).
func New(apiKey, baseURL string, logger *log.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		source:     "dinghook_chat",
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// Enabled reports whether an API key is configured.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

// Add stores messages for userID.
func (c *Client) Add(ctx context.Context, userID string, messages []Message) error {
	if !c.Enabled() {
		return nil
	}
	if len(messages) == 0 || userID == "" {
		return fmt.Errorf("mem0: add needs messages and a user id")
	}

	payload := map[string]any{
		"messages": messages,
		"user_id":  userID,
		"metadata": map[string]string{"source": c.source},
	}
	if _, err := c.post(ctx, "/v1/memories/", payload); err != nil {
		return fmt.Errorf("mem0: add for %s: %w", userID, err)
	}
	c.logger.Printf("mem0: added %d message(s) for %s", len(messages), userID)
	return nil
}

// Search returns up to limit memories relevant to query.
func (c *Client) Search(ctx context.Context, query, userID string, limit int) ([]Memory, error) {
	if !c.Enabled() {
		return nil, nil
	}
	if strings.TrimSpace(query) == "" || userID == "" {
		return nil, nil
	}

	payload := map[string]any{
		"query":   query,
		"user_id": userID,
		"limit":   limit,
	}
	raw, err := c.post(ctx, "/v1/memories/search/", payload)
	if err != nil {
		return nil, fmt.Errorf("mem0: search for %s: %w", userID, err)
	}
	memories := parseSearch(raw)
	if limit > 0 && len(memories) > limit {
		memories = memories[:limit]
	}
	return memories, nil
}

// FormatContext renders memories as a bullet list for a prompt.
func FormatContext(memories []Memory) string {
	lines := make([]string, 0, len(memories))
	for _, m := range memories {
		if text := strings.TrimSpace(m.Memory); text != "" {
			lines = append(lines, "- "+text)
		}
	}
	return strings.Join(lines, "\n")
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return raw, nil
}

// parseSearch accepts either a bare list or {"results": [...]}.
func parseSearch(raw []byte) []Memory {
	parsed := gjson.ParseBytes(raw)
	if parsed.IsObject() {
		parsed = parsed.Get("results")
	}
	if !parsed.IsArray() {
		return nil
	}

	var memories []Memory
	parsed.ForEach(func(_, item gjson.Result) bool {
		text := item.Get("memory").String()
		if text == "" {
			text = item.Get("content").String()
		}
		if text != "" {
			memories = append(memories, Memory{
				ID:     item.Get("id").String(),
				Memory: text,
				Score:  item.Get("score").Float(),
			})
		}
		return true
	})
	return memories
}

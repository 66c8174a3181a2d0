package dingtalk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultEndpoint is the custom robot send API.
const DefaultEndpoint = "https://oapi.dingtalk.com/robot/send"

// Client sends text messages through a DingTalk custom robot.
type Client struct {
	accessToken string
	secret      string
	endpoint    string
	httpClient  *http.Client
	now         func() time.Time
	logger      *log.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithEndpoint overrides the robot send URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) {
		c.endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides the time source used for signing.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a robot client bound to an access token and signing secret.
func New(accessToken, secret string, logger *log.Logger, opts ...Option) *Client {
	c := &Client{
		accessToken: accessToken,
		secret:      secret,
		endpoint:    DefaultEndpoint,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SignedURL returns the send URL with access token, timestamp and signature.
func (c *Client) SignedURL() (string, error) {
	base, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("dingtalk: parse endpoint: %w", err)
	}
	ts := c.now().UnixMilli()
	query := base.Query()
	query.Set("access_token", c.accessToken)
	query.Set("timestamp", strconv.FormatInt(ts, 10))
	query.Set("sign", Sign(ts, c.secret))
	base.RawQuery = query.Encode()
	return base.String(), nil
}

// SendText posts a text message, mentioning atUserIDs.
func (c *Client) SendText(ctx context.Context, text string, atUserIDs ...string) error {
	if c.accessToken == "" || c.secret == "" {
		return fmt.Errorf("dingtalk: ACCESS_TOKEN and SECRET must be configured")
	}

	target, err := c.SignedURL()
	if err != nil {
		return err
	}

	mentions := make([]string, 0, len(atUserIDs))
	for _, id := range atUserIDs {
		if id != "" {
			mentions = append(mentions, id)
		}
	}
	body, err := json.Marshal(outgoingMessage{
		MsgType: MsgTypeText,
		Text:    Text{Content: text},
		At:      at{AtUserIDs: mentions, AtMobiles: []string{}},
	})
	if err != nil {
		return fmt.Errorf("dingtalk: encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("dingtalk: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dingtalk: send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("dingtalk: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("dingtalk: send: status %d: %s", resp.StatusCode, raw)
	}

	var result sendResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("dingtalk: decode response %q: %w", raw, err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("dingtalk: send: errcode %d: %s", result.ErrCode, result.ErrMsg)
	}

	c.logger.Printf("dingtalk: sent message (%d chars, at=%v)", len([]rune(text)), mentions)
	return nil
}

package twilio

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// sendTimeout bounds one API call; the SDK does not accept a context.
const sendTimeout = 15 * time.Second

// Client pushes bot messages to a single WhatsApp chat through Twilio.
type Client struct {
	client       *twilio.RestClient
	fromWhatsApp string
	recipient    string
	logger       *log.Logger
}

// New creates a Twilio client bound to the configured sender and recipient numbers.
func New(accountSID, authToken, fromWhatsApp, recipient string, logger *log.Logger) *Client {
	var rest *twilio.RestClient
	if accountSID != "" && authToken != "" {
		rest = twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken})
		rest.SetTimeout(sendTimeout)
	}
	return &Client{
		client:       rest,
		fromWhatsApp: fromWhatsApp,
		recipient:    recipient,
		logger:       logger,
	}
}

// SendText delivers text to the configured recipient. WhatsApp has no group
// mentions, so at-user ids are written as a prefix instead.
//
// twilio-go has no context-aware API: a cancelled ctx makes SendText return
// immediately, but a request already in flight runs until sendTimeout.
func (c *Client) SendText(ctx context.Context, text string, atUserIDs ...string) error {
	if c.client == nil {
		return fmt.Errorf("twilio client not initialised")
	}

	sender := normalizeWhatsAppAddress(c.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(c.recipient)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(withMentions(text, atUserIDs))

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("twilio send message: %w", err)
	}

	type result struct {
		resp *openapi.ApiV2010Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := c.client.Api.CreateMessage(params)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("twilio send message: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("twilio send message error: %w", res.err)
		}
		if res.resp != nil && res.resp.Sid != nil {
			c.logger.Printf("twilio: message sent to %s, SID: %s", recipient, *res.resp.Sid)
		}
		return nil
	}
}

func withMentions(text string, atUserIDs []string) string {
	var mentions []string
	for _, id := range atUserIDs {
		if id != "" {
			mentions = append(mentions, "@"+id)
		}
	}
	if len(mentions) == 0 {
		return text
	}
	return strings.Join(mentions, " ") + " " + text
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}

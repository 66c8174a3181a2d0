package twilio

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeWhatsAppAddress(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":                      "",
		"   ":                   "",
		"whatsapp:+15551234567": "whatsapp:+15551234567",
		"+15551234567":          "whatsapp:+15551234567",
		" 15551234567 ":         "whatsapp:+15551234567",
	}
	for input, want := range cases {
		assert.Equal(t, want, normalizeWhatsAppAddress(input), "input %q", input)
	}
}

func TestWithMentions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hi", withMentions("hi", nil))
	assert.Equal(t, "@ann @bo hi", withMentions("hi", []string{"ann", "", "bo"}))
}

func TestSendTextWithoutCredentials(t *testing.T) {
	t.Parallel()

	client := New("", "", "+1555", "+1666", log.New(io.Discard, "", 0))
	assert.Error(t, client.SendText(context.Background(), "hello"))
}

func TestSendTextWithoutRecipient(t *testing.T) {
	t.Parallel()

	client := New("AC123", "token", "+1555", "", log.New(io.Discard, "", 0))
	assert.EqualError(t, client.SendText(context.Background(), "hello"), "recipient number missing or invalid")
}

func TestSendTextHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := New("AC123", "token", "+1555", "+1666", log.New(io.Discard, "", 0))
	err := client.SendText(ctx, "hello")
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

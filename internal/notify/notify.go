// Package notify selects the outbound channel the bot speaks through.
package notify

import (
	"context"
	"log"

	"github.com/pathakanu/dingbot/internal/config"
	"github.com/pathakanu/dingbot/internal/dingtalk"
	"github.com/pathakanu/dingbot/internal/twilio"
)

// Notifier sends a text message to the chat, optionally mentioning users.
type Notifier interface {
	SendText(ctx context.Context, text string, atUserIDs ...string) error
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, text string, atUserIDs ...string) error

// SendText calls f.
func (f Func) SendText(ctx context.Context, text string, atUserIDs ...string) error {
	return f(ctx, text, atUserIDs...)
}

// LogNotifier only logs what would have been sent. Used when network access is disabled.
type LogNotifier struct {
	Logger *log.Logger
}

// SendText logs the message and reports success.
func (n LogNotifier) SendText(_ context.Context, text string, atUserIDs ...string) error {
	n.Logger.Printf("notify (simulated): at=%v text=%q", atUserIDs, text)
	return nil
}

// FromConfig builds the notifier selected by cfg.
func FromConfig(cfg *config.Config, logger *log.Logger) Notifier {
	if cfg.DisableNetwork {
		logger.Printf("notify: network disabled, messages are only logged")
		return LogNotifier{Logger: logger}
	}
	switch cfg.Notifier {
	case config.NotifierTwilio:
		return twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, cfg.TwilioRecipient, logger)
	default:
		return dingtalk.New(cfg.AccessToken, cfg.Secret, logger)
	}
}

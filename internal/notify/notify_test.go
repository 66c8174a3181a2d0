package notify

import (
	"bytes"
	"context"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/dingbot/internal/config"
	"github.com/pathakanu/dingbot/internal/dingtalk"
	"github.com/pathakanu/dingbot/internal/twilio"
)

func TestFromConfig(t *testing.T) {
	t.Parallel()
	logger := log.New(io.Discard, "", 0)

	assert.IsType(t, LogNotifier{}, FromConfig(&config.Config{DisableNetwork: true, Notifier: config.NotifierTwilio}, logger))
	assert.IsType(t, &twilio.Client{}, FromConfig(&config.Config{Notifier: config.NotifierTwilio}, logger))
	assert.IsType(t, &dingtalk.Client{}, FromConfig(&config.Config{Notifier: config.NotifierDingTalk}, logger))
}

func TestLogNotifier(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer

	n := LogNotifier{Logger: log.New(&buf, "", 0)}
	require.NoError(t, n.SendText(context.Background(), "ping", "u1"))
	assert.Contains(t, buf.String(), `"ping"`)
	assert.Contains(t, buf.String(), "u1")
}

func TestFunc(t *testing.T) {
	t.Parallel()
	var got []string

	var n Notifier = Func(func(_ context.Context, text string, at ...string) error {
		got = append(append(got, text), at...)
		return nil
	})
	require.NoError(t, n.SendText(context.Background(), "a", "b"))
	assert.Equal(t, []string{"a", "b"}, got)
}

package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pathakanu/dingbot/internal/dingtalk"
	"github.com/pathakanu/dingbot/internal/history"
	"github.com/pathakanu/dingbot/internal/mem0"
	"github.com/pathakanu/dingbot/internal/openai"
	"github.com/pathakanu/dingbot/internal/reminder"
	"github.com/pathakanu/dingbot/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var epoch = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type outbound struct {
	text string
	at   []string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []outbound
	err  error
}

func (n *recordingNotifier) SendText(_ context.Context, text string, at ...string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, outbound{text: text, at: at})
	return n.err
}

func (n *recordingNotifier) last(t *testing.T) outbound {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent)
	return n.sent[len(n.sent)-1]
}

type stubReplier struct {
	reply   openai.Reply
	err     error
	prompts []string
}

func (s *stubReplier) Reply(_ context.Context, prompt string) (openai.Reply, error) {
	s.prompts = append(s.prompts, prompt)
	return s.reply, s.err
}

type stubMemory struct {
	added []string
	found []mem0.Memory
}

func (s *stubMemory) Add(_ context.Context, _ string, messages []mem0.Message) error {
	for _, m := range messages {
		s.added = append(s.added, m.Content)
	}
	return nil
}

func (s *stubMemory) Search(context.Context, string, string, int) ([]mem0.Memory, error) {
	return s.found, nil
}

type harness struct {
	bot       *Bot
	router    *gin.Engine
	reminders *reminder.Store
	history   *history.Store
	notifier  *recordingNotifier
	replier   *stubReplier
	memory    *stubMemory
}

func newHarness(t *testing.T, appSecret string) *harness {
	t.Helper()
	db := testutil.NewTestDB(t)
	clock := &testutil.Clock{Current: epoch}

	h := &harness{
		reminders: reminder.NewStore(db, reminder.WithClock(clock.Now)),
		history:   history.NewStore(db, clock.Now),
		notifier:  &recordingNotifier{},
		replier:   &stubReplier{reply: openai.Reply{Text: "你好呀"}},
		memory:    &stubMemory{},
	}
	h.bot = New(Deps{
		Reminders: h.reminders,
		History:   h.history,
		Memory:    h.memory,
		Replier:   h.replier,
		Notifier:  h.notifier,
		Logger:    testutil.DiscardLogger(),
		AppSecret: appSecret,
		Location:  time.UTC,
		Now:       clock.Now,
	})
	h.router = h.bot.Router()
	return h
}

func (h *harness) post(t *testing.T, payload any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func textMessage(content string) map[string]any {
	return map[string]any{
		"msgtype":       "text",
		"text":          map[string]string{"content": content},
		"senderNick":    "Ann",
		"senderStaffId": "staff-1",
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestIgnoresNonText(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	rec := h.post(t, map[string]any{"msgtype": "picture"}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored non-text")
	assert.Empty(t, h.notifier.sent)
}

func TestRejectsBadPayload(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSignatureVerification(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "app-secret")

	rec := h.post(t, textMessage("/ping"), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ts := epoch.UnixMilli()
	rec = h.post(t, textMessage("/ping"), map[string]string{
		"timestamp": strconv.FormatInt(ts, 10),
		"sign":      dingtalk.Sign(ts, "app-secret"),
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, h.notifier.last(t).text, "pong")
}

func TestRememberListForget(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	ctx := context.Background()

	rec := h.post(t, textMessage("/remember 3600 drink water"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	out := h.notifier.last(t)
	assert.Contains(t, out.text, "每 3600 秒推送一次")
	assert.Equal(t, []string{"staff-1"}, out.at)

	list, err := h.reminders.List(ctx, "staff-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "drink water", list[0].Content)
	assert.Equal(t, epoch.Add(time.Hour).Unix(), list[0].NextPush)

	h.post(t, textMessage("/memories"), nil)
	assert.Contains(t, h.notifier.last(t).text, "interval=3600s: drink water")

	h.post(t, textMessage("/forget "+strconv.FormatUint(uint64(list[0].ID), 10)), nil)
	assert.Contains(t, h.notifier.last(t).text, "已删除记忆")

	h.post(t, textMessage("/memories"), nil)
	assert.Contains(t, h.notifier.last(t).text, "你没有记忆")
}

func TestRememberAcceptsDuration(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	rec := h.post(t, textMessage("/remember 90m stretch"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	list, err := h.reminders.List(context.Background(), "staff-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 5400, list[0].IntervalSeconds)
}

func TestRememberErrors(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	rec := h.post(t, textMessage("/remember 3600"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, rememberUsage, h.notifier.last(t).text)

	rec = h.post(t, textMessage("/remember soon do things"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errBadInterval.Error(), h.notifier.last(t).text)

	rec = h.post(t, textMessage("/remember 10000000000 far future"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, errBadInterval.Error(), h.notifier.last(t).text)

	list, err := h.reminders.List(context.Background(), "staff-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParseIntervalBounds(t *testing.T) {
	t.Parallel()

	d, err := parseInterval(strconv.FormatInt(maxIntervalSeconds, 10))
	require.NoError(t, err)
	assert.Positive(t, d)

	_, err = parseInterval(strconv.FormatInt(maxIntervalSeconds+1, 10))
	assert.Error(t, err)

	_, err = parseInterval("-10000000000")
	assert.Error(t, err)
}

func TestChatDropsOutOfRangeProposedReminder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	h.replier.reply = openai.Reply{
		Text:       "好的。",
		SaveMemory: &openai.SaveMemory{IntervalSeconds: 10000000000, Content: "很久以后"},
	}

	rec := h.post(t, textMessage("很久以后提醒我"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "好的。", rec.Body.String())

	list, err := h.reminders.List(context.Background(), "staff-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestForgetOnlyOwnReminders(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	ctx := context.Background()

	id, err := h.reminders.Insert(ctx, "someone-else", "secret", time.Hour)
	require.NoError(t, err)

	h.post(t, textMessage("/forget "+strconv.FormatUint(uint64(id), 10)), nil)
	assert.Equal(t, "指定 id 无效或不存在", h.notifier.last(t).text)

	_, err = h.reminders.Get(ctx, id)
	assert.NoError(t, err)

	h.post(t, textMessage("/forget abc"), nil)
	assert.Equal(t, "指定 id 无效或不存在", h.notifier.last(t).text)

	rec := h.post(t, textMessage("/forget"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTimeCommand(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")

	h.post(t, textMessage("/time"), nil)
	assert.Equal(t, "当前时间: 2025-03-01 08:00:00", h.notifier.last(t).text)
}

func TestChatUsesMemoryAndSavesProposedReminder(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	h.memory.found = []mem0.Memory{{Memory: "likes green tea"}}
	h.replier.reply = openai.Reply{
		Text:       "好的，每天提醒你喝茶。",
		SaveMemory: &openai.SaveMemory{IntervalSeconds: 86400, Content: "喝茶"},
	}

	rec := h.post(t, textMessage("每天提醒我喝茶"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "好的，每天提醒你喝茶。", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))

	require.Len(t, h.replier.prompts, 1)
	prompt := h.replier.prompts[0]
	assert.Contains(t, prompt, "'Ann'")
	assert.Contains(t, prompt, "- likes green tea")
	assert.Contains(t, prompt, "每天提醒我喝茶")

	assert.Equal(t, []string{"每天提醒我喝茶"}, h.memory.added)

	list, err := h.reminders.List(context.Background(), "staff-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "喝茶", list[0].Content)

	recent, err := h.history.Recent(context.Background(), "staff-1", 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
}

func TestChatFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply openai.Reply
		err   error
		want  string
	}{
		{name: "model not configured", err: openai.ErrClientNotInitialised, want: replyNoModel},
		{name: "model failure", err: errors.New("timeout"), want: replyFailed},
		{name: "empty reply", reply: openai.Reply{Text: "  "}, want: replyEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, "")
			h.replier.reply = tt.reply
			h.replier.err = tt.err

			rec := h.post(t, textMessage("hello"), nil)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, rec.Body.String())
		})
	}
}

func TestChatReplyStillReturnedWhenSendFails(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	h.notifier.err = errors.New("robot disabled")

	rec := h.post(t, textMessage("hello"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "你好呀", rec.Body.String())
}

func TestParseCommand(t *testing.T) {
	t.Parallel()

	cmd, args, ok := parseCommand("/remember 60 take a break")
	assert.True(t, ok)
	assert.Equal(t, cmdRemember, cmd)
	assert.Equal(t, "60 take a break", args)

	_, _, ok = parseCommand("/unknown thing")
	assert.False(t, ok)

	_, _, ok = parseCommand("hello /ping")
	assert.False(t, ok)
}

func TestBuildPromptLimitsRecentMessages(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "")
	ctx := context.Background()
	for _, m := range []string{"a1", "a2", "a3", "a4"} {
		require.NoError(t, h.history.Append(ctx, "u", m))
	}
	recent, err := h.history.Recent(ctx, "u", 5)
	require.NoError(t, err)

	prompt := buildPrompt("Ann", "now", nil, recent)
	assert.NotContains(t, prompt, "关于用户的相关信息")
	assert.Equal(t, 3, strings.Count(prompt, "\n- a"))
}

package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Client wraps the OpenAI SDK. Any OpenAI-compatible endpoint works, including Gemini's.
type Client struct {
	client *openai.Client
	model  openai.ChatModel
}

// ErrClientNotInitialised is returned when attempting to call the API without a configured client.
var ErrClientNotInitialised = errors.New("openai client not initialised")

// DefaultReminderPrefix starts template reminder pushes when the model is unavailable.
const DefaultReminderPrefix = "提醒: "

// DefaultFactsPush is sent when a user has no facts or the model gives nothing back.
const DefaultFactsPush = "提醒: 保持关注，今天也要注意身体哦。"

// New returns a client. Without apiKey the client is inert and every helper falls back to a template.
func New(apiKey, baseURL, model string) *Client {
	if apiKey == "" {
		return &Client{}
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = string(openai.ChatModelGPT4oMini)
	}
	client := openai.NewClient(opts...)
	return &Client{
		client: &client,
		model:  openai.ChatModel(model),
	}
}

// Enabled reports whether an API key was configured.
func (c *Client) Enabled() bool {
	return c != nil && c.client != nil
}

// Complete sends a single user prompt and returns the model's text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.complete(ctx, "", prompt, 512, 0.7, 20*time.Second)
}

func (c *Client) complete(ctx context.Context, system, prompt string, maxTokens int64, temperature float64, timeout time.Duration) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}
	if !c.Enabled() {
		return "", ErrClientNotInitialised
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{
					OfString: openai.String(system),
				},
			},
		})
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{
		OfUser: &openai.ChatCompletionUserMessageParam{
			Content: openai.ChatCompletionUserMessageParamContentUnion{
				OfString: openai.String(prompt),
			},
		},
	})

	req := openai.ChatCompletionNewParams{
		Model:               c.model,
		Messages:            messages,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no completion received")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Reply asks the model to answer a chat prompt and parses its JSON reply.
func (c *Client) Reply(ctx context.Context, prompt string) (Reply, error) {
	raw, err := c.complete(ctx, "", prompt, 512, 0.7, 20*time.Second)
	if err != nil {
		return Reply{}, err
	}
	if raw == "" {
		return Reply{}, fmt.Errorf("empty model response")
	}
	return ParseReply(raw), nil
}

// ReminderPush writes a friendly push message for a due reminder.
func (c *Client) ReminderPush(ctx context.Context, content string) string {
	fallback := DefaultReminderPrefix + content
	if !c.Enabled() {
		return fallback
	}
	prompt := fmt.Sprintf("Write a friendly short reminder message for: %s\nOutput only the message text.", content)
	raw, err := c.complete(ctx, "", prompt, 120, 0.7, 8*time.Second)
	if err != nil || raw == "" {
		return fallback
	}
	if reply := ParseReply(raw); reply.Text != "" {
		return reply.Text
	}
	return fallback
}

// ExtractFacts asks the model for objective facts contained in the messages.
func (c *Client) ExtractFacts(ctx context.Context, messages []string) ([]string, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString("从以下用户消息中提取客观事实（不包含主观判断）。\n请以 JSON 数组的形式返回，每个元素为 {\"fact\": <简短事实文本>} 。\n消息列表：")
	for _, m := range messages {
		sb.WriteString("\n- ")
		sb.WriteString(m)
	}

	raw, err := c.complete(ctx, "", sb.String(), 512, 0.2, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return ParseFacts(raw), nil
}

// PushFromFacts writes a short group push message based on a user's facts.
func (c *Client) PushFromFacts(ctx context.Context, facts []string) string {
	if len(facts) == 0 || !c.Enabled() {
		return DefaultFactsPush
	}
	var sb strings.Builder
	sb.WriteString("为用户写一段友好的、简短的推送消息，基于以下事实（不要@用户，输出仅为消息文本）：")
	for _, f := range facts {
		sb.WriteString("\n- ")
		sb.WriteString(f)
	}
	sb.WriteString("\n请仅输出最终消息。")

	raw, err := c.complete(ctx, "", sb.String(), 200, 0.7, 8*time.Second)
	if err != nil || raw == "" {
		return DefaultFactsPush
	}
	if reply := ParseReply(raw); reply.Text != "" {
		return reply.Text
	}
	return DefaultFactsPush
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pathakanu/dingbot/internal/dingtalk"
	"github.com/pathakanu/dingbot/internal/mem0"
	"github.com/pathakanu/dingbot/internal/model"
	"github.com/pathakanu/dingbot/internal/openai"
)

const (
	memorySearchLimit = 5
	recentLimit       = 5
	recentInPrompt    = 3

	replyFailed  = "抱歉，处理失败。"
	replyEmpty   = "抱歉，未能生成回复。"
	replyNoModel = "抱歉，机器人未配置语言模型。管理员请设置 API Key 后重启服务。"
)

// chat answers an ordinary message: it records the message, pulls related long-term
// memories, asks the model and stores any reminder the model proposes.
func (b *Bot) chat(ctx context.Context, msg dingtalk.IncomingMessage) string {
	userID := msg.OwnerID()
	content := msg.Content()

	if err := b.history.Append(ctx, userID, content); err != nil {
		b.logger.Printf("chat: record message: %v", err)
	}

	var memories []mem0.Memory
	if b.memory != nil {
		if err := b.memory.Add(ctx, userID, []mem0.Message{{Role: "user", Content: content}}); err != nil {
			b.logger.Printf("chat: %v", err)
		}
		found, err := b.memory.Search(ctx, content, userID, memorySearchLimit)
		if err != nil {
			b.logger.Printf("chat: %v", err)
		}
		memories = found
	}

	recent, err := b.history.Recent(ctx, userID, recentLimit)
	if err != nil {
		b.logger.Printf("chat: recent messages: %v", err)
	}

	prompt := buildPrompt(msg.Nick(), content, memories, recent)
	reply, err := b.replier.Reply(ctx, prompt)
	if err != nil {
		if errors.Is(err, openai.ErrClientNotInitialised) {
			return replyNoModel
		}
		b.logger.Printf("chat: model call failed: %v", err)
		return replyFailed
	}

	if save := reply.SaveMemory; save != nil {
		if interval, err := secondsInterval(save.IntervalSeconds); err != nil {
			b.logger.Printf("chat: proposed reminder rejected: %v", err)
		} else if id, err := b.reminders.Insert(ctx, userID, save.Content, interval); err != nil {
			b.logger.Printf("chat: save proposed reminder: %v", err)
		} else {
			b.logger.Printf("chat: saved reminder %d for %s from model reply", id, userID)
		}
	}

	if strings.TrimSpace(reply.Text) == "" {
		return replyEmpty
	}
	return reply.Text
}

// buildPrompt assembles the chat prompt from the message, related memories and recent history.
func buildPrompt(nick, content string, memories []mem0.Memory, recent []model.Message) string {
	parts := []string{fmt.Sprintf("你是一个贴心且记忆力超群的助手。请简洁、自然地回复用户 '%s'。", nick)}

	if text := mem0.FormatContext(memories); text != "" {
		parts = append(parts, "关于用户的相关信息（基于历史对话）：\n"+text)
	}

	parts = append(parts, "\n用户消息:\n"+content)

	if len(recent) > 0 {
		parts = append(parts, "最近消息摘要：")
		for i, m := range recent {
			if i == recentInPrompt {
				break
			}
			parts = append(parts, "- "+m.Content)
		}
	}

	parts = append(parts,
		"\n请返回 JSON: {\"reply\": <回复文本>}，不要包含其它内容。"+
			"如果用户希望被定期提醒，额外返回 \"save_memory\": {\"interval\": <间隔秒数，0 表示一次>, \"content\": <提醒内容>}。")
	return strings.Join(parts, "\n")
}

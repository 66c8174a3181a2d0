package bot

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pathakanu/dingbot/internal/dingtalk"
	"github.com/pathakanu/dingbot/internal/reminder"
)

const (
	cmdHelp     = "/help"
	cmdPing     = "/ping"
	cmdTime     = "/time"
	cmdRemember = "/remember"
	cmdForget   = "/forget"
	cmdMemories = "/memories"
)

const (
	rememberUsage = "用法: /remember <interval_seconds> <text>"
	forgetUsage   = "用法: /forget <id>"
)

var errBadInterval = errors.New("interval_seconds 必须为整数（秒）")

// parseCommand splits "/cmd rest" into its parts. Unknown commands are treated as chat.
func parseCommand(content string) (string, string, bool) {
	if !strings.HasPrefix(content, "/") {
		return "", "", false
	}
	name, args, _ := strings.Cut(content, " ")
	switch name {
	case cmdHelp, cmdPing, cmdTime, cmdRemember, cmdForget, cmdMemories:
		return name, strings.TrimSpace(args), true
	}
	return "", "", false
}

func (b *Bot) runCommand(c *gin.Context, msg dingtalk.IncomingMessage, cmd, args string) {
	ctx := c.Request.Context()

	switch cmd {
	case cmdHelp:
		b.send(ctx, msg, helpResponse())
	case cmdPing:
		b.send(ctx, msg, "pong! 机器人运行正常 ✅")
	case cmdTime:
		b.send(ctx, msg, "当前时间: "+b.now().In(b.location).Format("2006-01-02 15:04:05"))
	case cmdRemember:
		reply, err := b.remember(c, msg.OwnerID(), args)
		b.send(ctx, msg, reply)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errcode": 1, "errmsg": err.Error()})
			return
		}
	case cmdForget:
		if args == "" {
			b.send(ctx, msg, forgetUsage)
			c.JSON(http.StatusBadRequest, gin.H{"errcode": 1, "errmsg": "bad request"})
			return
		}
		b.send(ctx, msg, b.forget(c, msg.OwnerID(), args))
	case cmdMemories:
		b.send(ctx, msg, b.listReminders(c, msg.OwnerID()))
	}

	c.JSON(http.StatusOK, gin.H{"errcode": 0, "errmsg": "ok"})
}

// remember stores a reminder from "/remember <interval> <text>".
func (b *Bot) remember(c *gin.Context, userID, args string) (string, error) {
	intervalText, text, _ := strings.Cut(args, " ")
	text = strings.TrimSpace(text)
	if intervalText == "" || text == "" {
		return rememberUsage, errors.New("bad request")
	}

	interval, err := parseInterval(intervalText)
	if err != nil {
		return errBadInterval.Error(), errors.New("bad interval")
	}

	id, err := b.reminders.Insert(c.Request.Context(), userID, text, interval)
	if err != nil {
		b.logger.Printf("remember: %v", err)
		return "保存失败，请稍后再试。", nil
	}

	if interval <= 0 {
		return fmt.Sprintf("已记录一次性提醒 id=%d。", id), nil
	}
	return fmt.Sprintf("已记录记忆 id=%d, 每 %d 秒推送一次。", id, int64(interval/time.Second)), nil
}

// forget deletes one of the user's reminders.
func (b *Bot) forget(c *gin.Context, userID, args string) string {
	const invalid = "指定 id 无效或不存在"

	id, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return invalid
	}

	ctx := c.Request.Context()
	existing, err := b.reminders.Get(ctx, uint(id))
	if err != nil {
		if !errors.Is(err, reminder.ErrNotFound) {
			b.logger.Printf("forget: %v", err)
		}
		return invalid
	}
	if existing.UserID != userID {
		return invalid
	}

	if err := b.reminders.Delete(ctx, uint(id)); err != nil {
		b.logger.Printf("forget: %v", err)
		return invalid
	}
	return fmt.Sprintf("已删除记忆 id=%d", id)
}

// listReminders returns a human-readable list of reminders for a user.
func (b *Bot) listReminders(c *gin.Context, userID string) string {
	reminders, err := b.reminders.List(c.Request.Context(), userID)
	if err != nil {
		b.logger.Printf("list reminders error: %v", err)
		return "暂时无法读取你的记忆，请稍后再试。"
	}
	if len(reminders) == 0 {
		return "你没有记忆。使用 /remember 添加一个。"
	}

	var sb strings.Builder
	for i, r := range reminders {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "id=%d interval=%ds: %s (下次 %s)",
			r.ID, r.IntervalSeconds, r.Content, r.NextDue().In(b.location).Format("01-02 15:04"))
	}
	return sb.String()
}

// maxIntervalSeconds is the largest interval a time.Duration can hold.
const maxIntervalSeconds = math.MaxInt64 / int64(time.Second)

// parseInterval accepts whole seconds ("3600") or a Go duration ("1h30m").
func parseInterval(text string) (time.Duration, error) {
	if seconds, err := strconv.ParseInt(text, 10, 64); err == nil {
		return secondsInterval(seconds)
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return 0, err
	}
	return d.Round(time.Second), nil
}

// secondsInterval converts whole seconds, rejecting values a Duration would overflow on.
func secondsInterval(seconds int64) (time.Duration, error) {
	if seconds > maxIntervalSeconds || seconds < -maxIntervalSeconds {
		return 0, fmt.Errorf("interval %ds out of range", seconds)
	}
	return time.Duration(seconds) * time.Second, nil
}

func helpResponse() string {
	return "可用命令:\n" +
		"/remember <interval_seconds> <text> - 保存记忆并按周期推送（0 表示只提醒一次）\n" +
		"/forget <id> - 删除记忆\n" +
		"/memories - 列出你的记忆\n" +
		"/ping - 测试机器人\n" +
		"/time - 获取当前时间"
}

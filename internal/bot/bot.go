package bot

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pathakanu/dingbot/internal/dingtalk"
	"github.com/pathakanu/dingbot/internal/mem0"
	"github.com/pathakanu/dingbot/internal/model"
	"github.com/pathakanu/dingbot/internal/notify"
	"github.com/pathakanu/dingbot/internal/openai"
)

// Reminders is the reminder table as seen by chat commands.
type Reminders interface {
	Insert(ctx context.Context, userID, content string, interval time.Duration) (uint, error)
	Delete(ctx context.Context, id uint) error
	Get(ctx context.Context, id uint) (*model.Reminder, error)
	List(ctx context.Context, userID string) ([]model.Reminder, error)
}

// History records chat lines.
type History interface {
	Append(ctx context.Context, userID, content string) error
	Recent(ctx context.Context, userID string, limit int) ([]model.Message, error)
}

// Memory is the long-term memory service.
type Memory interface {
	Add(ctx context.Context, userID string, messages []mem0.Message) error
	Search(ctx context.Context, query, userID string, limit int) ([]mem0.Memory, error)
}

// Replier answers chat prompts.
type Replier interface {
	Reply(ctx context.Context, prompt string) (openai.Reply, error)
}

// Deps are the collaborators of a Bot.
type Deps struct {
	Reminders Reminders
	History   History
	Memory    Memory
	Replier   Replier
	Notifier  notify.Notifier
	Logger    *log.Logger

	// AppSecret enables inbound signature checks when set.
	AppSecret string
	Location  *time.Location
	Now       func() time.Time
}

// Bot answers DingTalk webhook messages.
type Bot struct {
	reminders Reminders
	history   History
	memory    Memory
	replier   Replier
	notifier  notify.Notifier
	logger    *log.Logger
	appSecret string
	location  *time.Location
	now       func() time.Time
}

// New creates a fully configured Bot instance.
func New(deps Deps) *Bot {
	b := &Bot{
		reminders: deps.Reminders,
		history:   deps.History,
		memory:    deps.Memory,
		replier:   deps.Replier,
		notifier:  deps.Notifier,
		logger:    deps.Logger,
		appSecret: deps.AppSecret,
		location:  deps.Location,
		now:       deps.Now,
	}
	if b.logger == nil {
		b.logger = log.Default()
	}
	if b.location == nil {
		b.location = time.Local
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Router returns a gin engine serving the bot's routes.
func (b *Bot) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), b.requestLogger())
	b.Register(r)
	return r
}

// Register mounts the health check and webhook routes.
func (b *Bot) Register(r gin.IRouter) {
	r.GET("/", b.handleHealth)
	r.POST("/webhook", b.handleWebhook)
}

func (b *Bot) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		b.logger.Printf("http: %s %s from %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, c.ClientIP(), c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

func (b *Bot) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "DingBot Server is running"})
}

// handleWebhook processes DingTalk outgoing-robot POST requests.
func (b *Bot) handleWebhook(c *gin.Context) {
	if b.appSecret != "" {
		if err := dingtalk.Verify(c.GetHeader("timestamp"), c.GetHeader("sign"), b.appSecret, b.now()); err != nil {
			b.logger.Printf("webhook: rejected request: %v", err)
			c.JSON(http.StatusUnauthorized, gin.H{"errcode": 1, "errmsg": "invalid signature"})
			return
		}
	}

	var msg dingtalk.IncomingMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		b.logger.Printf("webhook: parse error: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"errcode": 1, "errmsg": "invalid payload"})
		return
	}

	if msg.MsgType != dingtalk.MsgTypeText {
		c.JSON(http.StatusOK, gin.H{"errcode": 0, "errmsg": "ignored non-text"})
		return
	}

	content := msg.Content()
	if cmd, args, ok := parseCommand(content); ok {
		b.runCommand(c, msg, cmd, args)
		return
	}

	reply := b.chat(c.Request.Context(), msg)
	b.send(c.Request.Context(), msg, reply)
	c.String(http.StatusOK, reply)
}

// send replies in the group, mentioning the sender when DingTalk gave us an id.
// Failures are logged only; the caller still answers the webhook.
func (b *Bot) send(ctx context.Context, msg dingtalk.IncomingMessage, text string) {
	var err error
	if key := msg.SenderKey(); key != "" {
		err = b.notifier.SendText(ctx, text, key)
	} else {
		err = b.notifier.SendText(ctx, text)
	}
	if err != nil {
		b.logger.Printf("webhook: send reply to %s: %v", msg.OwnerID(), err)
	}
}

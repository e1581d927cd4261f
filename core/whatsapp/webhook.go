package whatsapp

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	coreconfig "hotelbot/core/config"
	"hotelbot/core/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"log/slog"
)

// MessageHandler processes one inbound text message from a phone number.
type MessageHandler interface {
	HandleMessage(ctx context.Context, phone, text string) error
}

// webhookEnvelope mirrors the Cloud API notification payload. Only the
// parts needed for inbound text messages are modelled.
type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string `json:"field"`
			Value struct {
				MessagingProduct string `json:"messaging_product"`
				Messages         []struct {
					From string `json:"from"`
					ID   string `json:"id"`
					Type string `json:"type"`
					Text struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// Webhook wires the Cloud API verification and notification endpoints.
type Webhook struct {
	verifyToken string
	handler     MessageHandler
	limiter     *rateLimiter
}

// NewWebhook builds the webhook endpoints for the given handler.
func NewWebhook(cfg *coreconfig.Config, handler MessageHandler) *Webhook {
	return &Webhook{
		verifyToken: cfg.WhatsApp.VerifyToken,
		handler:     handler,
		limiter:     newRateLimiter(time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond),
	}
}

// Register attaches the webhook routes to the router.
func (w *Webhook) Register(r gin.IRouter) {
	r.GET("/webhook", w.verify)
	r.POST("/webhook", w.receive)
}

// verify answers the Cloud API subscription handshake.
func (w *Webhook) verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == w.verifyToken {
		logger.Info(c.Request.Context(), "wa", "webhook.verify",
			slog.String("status", "ok"),
		)
		c.String(http.StatusOK, challenge)
		return
	}

	logger.Warn(c.Request.Context(), "wa", "webhook.verify",
		slog.String("status", "fail"),
		slog.String("mode", mode),
	)
	c.String(http.StatusForbidden, "Forbidden")
}

func (w *Webhook) receive(c *gin.Context) {
	var env webhookEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		logger.Warn(c.Request.Context(), "wa", "webhook.parse",
			slog.String("err", err.Error()),
		)
		c.String(http.StatusBadRequest, "Bad Request")
		return
	}

	if env.Object != "whatsapp_business_account" {
		c.String(http.StatusOK, "OK")
		return
	}

	var failed bool
	for _, entry := range env.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					logger.Debug(c.Request.Context(), "wa", "webhook.skip",
						slog.String("phone", msg.From),
						slog.String("mode", msg.Type),
					)
					continue
				}
				if !w.dispatch(c.Request.Context(), msg.From, msg.Text.Body) {
					failed = true
				}
			}
		}
	}

	if failed {
		c.String(http.StatusInternalServerError, "Internal Server Error")
		return
	}
	c.String(http.StatusOK, "OK")
}

// dispatch runs one message through the conversation engine. It returns
// false when the engine reports a fault.
func (w *Webhook) dispatch(ctx context.Context, phone, body string) bool {
	if !w.limiter.Allow(phone) {
		logger.Warn(ctx, "wa", "rate_limit",
			slog.String("phone", phone),
		)
		return true
	}

	rid := uuid.NewString()
	ctx = logger.WithRID(ctx, rid)
	ctx = logger.WithPhone(ctx, phone)

	text := strings.ToLower(strings.TrimSpace(body))

	start := time.Now()
	logger.Info(ctx, "wa", "message.received",
		slog.Int("count", len(text)),
	)

	if err := w.handler.HandleMessage(ctx, phone, text); err != nil {
		logger.Error(ctx, "wa", "message.failed",
			slog.String("err", err.Error()),
			slog.Duration("duration", logger.Took(start)),
		)
		return false
	}

	logger.Debug(ctx, "wa", "message.handled",
		slog.Duration("duration", logger.Took(start)),
	)
	return true
}

// Recovery returns a middleware that logs panics with a stack trace and
// responds 500 instead of crashing the process.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(c.Request.Context(), "wa", "panic",
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// Package telegram publishes generated newspapers to a Telegram chat or channel.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/deusflow/newspaper/internal/logger"
	"github.com/deusflow/newspaper/internal/model"
	"github.com/deusflow/newspaper/internal/newspaper"
	"github.com/deusflow/newspaper/internal/retry"
	"github.com/deusflow/newspaper/internal/textutil"
)

const (
	// Telegram rejects messages above 4096 characters and captions above 1024.
	maxMessageLen = 4000
	maxCaptionLen = 1000
)

// Client posts to one chat. ChatID is either a numeric id or a public
// channel name such as "@mypaper".
type Client struct {
	bot    *tgbotapi.BotAPI
	ChatID string
	Retry  retry.RetryConfig
}

func New(token, chatID string) (*Client, error) {
	return NewWithEndpoint(token, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: 30 * time.Second})
}

// NewWithEndpoint connects to a Bot API server at endpoint, a format string
// taking the token and the method name.
func NewWithEndpoint(token, chatID, endpoint string, client *http.Client) (*Client, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &Client{
		bot:    bot,
		ChatID: chatID,
		Retry:  retry.RetryConfig{MaxAttempts: 3, BaseDelay: 2 * time.Second},
	}, nil
}

// Publish posts the lead photo, when there is one, followed by the digest.
// A failed photo does not stop the digest.
func (c *Client) Publish(ctx context.Context, paper *newspaper.Newspaper) error {
	log := logger.With("newspaper", paper.ID, "chat", c.ChatID)
	if lead := paper.Layout().Lead; lead != nil && lead.HasImage() {
		caption := fmt.Sprintf("<b>%s</b>\n%s",
			html.EscapeString(textutil.Truncate(paper.Name, maxCaptionLen/4)),
			html.EscapeString(textutil.Truncate(headline(*lead), maxCaptionLen/2)))
		if err := c.SendPhoto(ctx, lead.ImageURL, caption); err != nil {
			log.Warn("Telegram photo failed", "err", err)
		}
	}
	if err := c.SendMessage(ctx, FormatDigest(paper)); err != nil {
		return fmt.Errorf("publish newspaper %s: %w", paper.ID, err)
	}
	log.Info("Newspaper published to Telegram", "articles", len(paper.Articles))
	return nil
}

func (c *Client) SendMessage(ctx context.Context, text string) error {
	var msg tgbotapi.MessageConfig
	if id, ok := c.numericChat(); ok {
		msg = tgbotapi.NewMessage(id, text)
	} else {
		msg = tgbotapi.NewMessageToChannel(c.ChatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return c.send(ctx, "sendMessage", msg)
}

func (c *Client) SendPhoto(ctx context.Context, photoURL, caption string) error {
	var photo tgbotapi.PhotoConfig
	if id, ok := c.numericChat(); ok {
		photo = tgbotapi.NewPhoto(id, tgbotapi.FileURL(photoURL))
	} else {
		photo = tgbotapi.NewPhotoToChannel(c.ChatID, tgbotapi.FileURL(photoURL))
	}
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	return c.send(ctx, "sendPhoto", photo)
}

func (c *Client) numericChat() (int64, bool) {
	id, err := strconv.ParseInt(c.ChatID, 10, 64)
	return id, err == nil
}

// send retries server errors and rate limiting. Other API errors are final.
func (c *Client) send(ctx context.Context, method string, msg tgbotapi.Chattable) error {
	return retry.WithRetry(ctx, c.Retry, func(attempt int) error {
		_, err := c.bot.Send(msg)
		if err == nil {
			return nil
		}
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return retry.Permanent(fmt.Errorf("telegram %s: %w", method, err))
		}
		logger.Warn("Telegram request failed", "method", method, "attempt", attempt, "err", err)
		return fmt.Errorf("telegram %s: %w", method, err)
	})
}

func headline(a model.ScoredArticle) string {
	if a.TranslatedTitle != "" {
		return a.TranslatedTitle
	}
	return a.Title
}

// FormatDigest renders the newspaper as a Telegram HTML message, adding
// stories in layout order while they fit.
func FormatDigest(paper *newspaper.Newspaper) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📰 <b>%s</b>\n", html.EscapeString(paper.Name))
	b.WriteString("━━━━━━━━━━━━━━━━━━━━\n\n")
	if paper.Summary != "" {
		fmt.Fprintf(&b, "<i>%s</i>\n\n", html.EscapeString(paper.Summary))
	}

	for i, a := range paper.Articles {
		var item strings.Builder
		emoji := "▪️"
		if i == 0 {
			emoji = "🔥"
		}
		fmt.Fprintf(&item, "%s <b>%d.</b> <a href=\"%s\">%s</a>\n", emoji, i+1, html.EscapeString(a.Link), html.EscapeString(headline(a)))
		if a.TranslatedTitle != "" {
			fmt.Fprintf(&item, "<i>%s</i>\n", html.EscapeString(a.Title))
		}
		if b.Len()+item.Len() > maxMessageLen {
			break
		}
		b.WriteString(item.String())
	}
	return b.String()
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pathakanu/remindly/internal/bot"
	"github.com/pathakanu/remindly/internal/delivery"
	"github.com/rs/zerolog"
)

// botAPI is the subset of *tgbotapi.BotAPI used here.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handler answers one inbound chat message.
type Handler interface {
	Handle(ctx context.Context, msg bot.Message) string
}

// Client sends messages to Telegram chats and receives bot commands.
type Client struct {
	api    botAPI
	logger zerolog.Logger
}

// New authenticates against the Bot API with token.
func New(token string, logger zerolog.Logger) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot init: %w", err)
	}
	api.Debug = false
	logger.Info().Str("bot", api.Self.UserName).Msg("telegram: authorised")
	return &Client{api: api, logger: logger}, nil
}

// Send delivers text to the private chat of recipient.
// Unknown chats and users who blocked the bot are reported as permanent failures.
func (c *Client) Send(ctx context.Context, recipient int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.api == nil {
		return delivery.Permanent(errors.New("telegram client not initialised"))
	}

	_, err := c.api.Send(tgbotapi.NewMessage(recipient, text))
	if err != nil {
		return classify(err)
	}
	return nil
}

// Listen polls for updates and answers private text messages with handler
// until ctx is cancelled.
func (c *Client) Listen(ctx context.Context, handler Handler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.api.GetUpdatesChan(u)
	defer c.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("telegram: stop listening")
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			c.handleUpdate(ctx, handler, upd)
		}
	}
}

func (c *Client) handleUpdate(ctx context.Context, handler Handler, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.From == nil || msg.Chat == nil || msg.Text == "" {
		return
	}
	if !msg.Chat.IsPrivate() {
		return
	}

	reply := handler.Handle(ctx, bot.Message{
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
		Text:     msg.Text,
	})
	if reply == "" {
		return
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		c.logger.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("telegram: reply failed")
	}
}

// classify tags Bot API errors that will not go away on retry.
func classify(err error) error {
	code := 0
	var perr *tgbotapi.Error
	var verr tgbotapi.Error
	switch {
	case errors.As(err, &perr):
		code = perr.Code
	case errors.As(err, &verr):
		code = verr.Code
	}

	switch code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return delivery.Permanent(fmt.Errorf("telegram send: %w", err))
	default:
		return fmt.Errorf("telegram send: %w", err)
	}
}

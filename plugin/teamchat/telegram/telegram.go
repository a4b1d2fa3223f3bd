// Package telegram adapts the outbound sender contract to Telegram,
// an optional alternate delivery channel for direct notifications.
package telegram

import (
	"context"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/crewmind/crewmind/ai/format"
	"github.com/crewmind/crewmind/plugin/teamchat"
)

// Sender posts replies through the Telegram bot API. Blocks flatten to
// markdown since Telegram has no block layout.
type Sender struct {
	bot *tgbotapi.BotAPI
}

// NewSender authenticates the bot token.
func NewSender(token string) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram auth")
	}
	return &Sender{bot: bot}, nil
}

// Send posts to a chat. channel must be a numeric Telegram chat id.
func (s *Sender) Send(_ context.Context, channel, text string, _ []format.Block) error {
	chatID, err := strconv.ParseInt(channel, 10, 64)
	if err != nil {
		return errors.Wrapf(err, "telegram chat id %q", channel)
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(msg); err != nil {
		return errors.Wrap(err, "telegram send")
	}
	return nil
}

// SendDirect posts to a user chat; Telegram addresses users and
// channels the same way.
func (s *Sender) SendDirect(ctx context.Context, user, text string, blocks []format.Block) error {
	return s.Send(ctx, user, text, blocks)
}

// LookupUserByEmail is not available on Telegram.
func (s *Sender) LookupUserByEmail(context.Context, string) (*teamchat.User, error) {
	return nil, nil
}

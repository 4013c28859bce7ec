// Package telegram is the social platform the sentinel posts to and reads
// mentions from.
package telegram

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"guardian-sentinel-bot/internal/publisher"
	"guardian-sentinel-bot/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot. The Bot API identity call is made here,
// so an invalid token fails immediately.
func NewBot(c BotConfig) (*Bot, error) {
	if c.Token == "" {
		return nil, errors.New("telegram bot token is not set")
	}
	if c.APIEndpoint == "" {
		c.APIEndpoint = tgbotapi.APIEndpoint
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.UpdatesLimit <= 0 {
		c.UpdatesLimit = defaultUpdatesLimit
	}

	b := &Bot{config: c}
	if err := b.setChannel(c.ChannelID); err != nil {
		return nil, err
	}

	api, err := tgbotapi.NewBotAPIWithClient(c.Token, c.APIEndpoint, &http.Client{Timeout: c.Timeout})
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}
	api.Debug = c.Debug
	b.api = api

	log.Infof("🤖 Authorized on account @%s", api.Self.UserName)
	return b, nil
}

func (b *Bot) setChannel(channel string) error {
	channel = strings.TrimSpace(channel)
	switch {
	case channel == "":
		return errors.New("telegram channel id is not set")
	case strings.HasPrefix(channel, "@"):
		b.channelUsername = channel
	default:
		id, err := strconv.ParseInt(channel, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid telegram channel id %q", channel)
		}
		b.chatID = id
	}
	return nil
}

// Identity re-checks the bot credentials and returns the bot's username.
func (b *Bot) Identity(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	me, err := b.api.GetMe()
	if err != nil {
		return "", errors.Wrap(err, "identity check failed")
	}
	b.api.Self = me
	return me.UserName, nil
}

// SelfID is the bot's own user id.
func (b *Bot) SelfID() int64 {
	return b.api.Self.ID
}

// Post publishes text to the configured channel, as a photo caption when an
// image is given and the text fits.
func (b *Bot) Post(ctx context.Context, text string, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var c tgbotapi.Chattable
	if image != nil && len([]rune(text)) <= maxCaptionLength {
		photo := tgbotapi.NewPhoto(b.chatID, tgbotapi.FileBytes{Name: "guardian.png", Bytes: image})
		photo.ChannelUsername = b.channelUsername
		photo.Caption = text
		c = photo
	} else {
		if image != nil {
			log.Debugf("Caption too long (%d chars), posting text only", len([]rune(text)))
		}
		msg := tgbotapi.NewMessage(b.chatID, text)
		msg.ChannelUsername = b.channelUsername
		msg.DisableWebPagePreview = true
		c = msg
	}

	if _, err := b.api.Send(c); err != nil {
		return classify(err, "could not post to channel")
	}
	return nil
}

// Mentions returns updates newer than afterID, oldest first. Updates that
// carry no message are returned as indirect mentions so the cursor can move
// past them.
func (b *Bot) Mentions(ctx context.Context, afterID int64) ([]types.Mention, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := tgbotapi.NewUpdate(int(afterID + 1))
	cfg.Limit = b.config.UpdatesLimit
	updates, err := b.api.GetUpdates(cfg)
	if err != nil {
		return nil, classify(err, "could not fetch updates")
	}

	mentions := make([]types.Mention, 0, len(updates))
	for _, u := range updates {
		mentions = append(mentions, b.toMention(u))
	}
	return mentions, nil
}

func (b *Bot) toMention(u tgbotapi.Update) types.Mention {
	m := types.Mention{ID: int64(u.UpdateID)}
	msg := u.Message
	if msg == nil {
		return m
	}

	m.Text = msg.Text
	m.MessageID = msg.MessageID
	if msg.Chat != nil {
		m.ChatID = msg.Chat.ID
	}
	if msg.From != nil {
		m.AuthorID = msg.From.ID
		m.Author = msg.From.UserName
		if m.Author == "" {
			m.Author = msg.From.FirstName
		}
	}
	m.Direct = b.addressed(msg)
	return m
}

func (b *Bot) addressed(msg *tgbotapi.Message) bool {
	if msg.Chat != nil && msg.Chat.IsPrivate() {
		return true
	}
	if r := msg.ReplyToMessage; r != nil && r.From != nil && r.From.ID == b.api.Self.ID {
		return true
	}
	for _, e := range msg.Entities {
		if e.Type == "text_mention" && e.User != nil && e.User.ID == b.api.Self.ID {
			return true
		}
	}
	name := b.api.Self.UserName
	return name != "" && strings.Contains(strings.ToLower(msg.Text), "@"+strings.ToLower(name))
}

// Reply answers a mention in its thread.
func (b *Bot) Reply(ctx context.Context, m types.Mention, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(m.ChatID, text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return classify(err, "could not send reply")
	}
	return nil
}

// classify wraps Bot API refusals (forbidden, duplicate or malformed content)
// as publisher.ErrRejected.
func classify(err error, msg string) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) && rejected(apiErr) {
		return errors.Wrapf(publisher.ErrRejected, "%s: %s", msg, apiErr.Message)
	}
	return errors.Wrap(err, msg)
}

func rejected(e *tgbotapi.Error) bool {
	switch e.Code {
	case http.StatusForbidden, http.StatusBadRequest:
		return true
	case 0:
		// multipart uploads report the description only
		return strings.HasPrefix(e.Message, "Forbidden") || strings.HasPrefix(e.Message, "Bad Request")
	}
	return false
}

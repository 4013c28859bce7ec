package telegram

import (
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	defaultTimeout      = 30 * time.Second
	defaultUpdatesLimit = 100
	maxCaptionLength    = 1024
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token string
	// ChannelID is a numeric chat id or an @channel username.
	ChannelID string
	Debug     bool
	// APIEndpoint is a Bot API URL format, tgbotapi.APIEndpoint when empty.
	APIEndpoint  string
	Timeout      time.Duration
	UpdatesLimit int
}

// Bot telegram interaction client
type Bot struct {
	api    *tgbotapi.BotAPI
	config BotConfig

	chatID          int64
	channelUsername string
}

// Package bot runs the companion Telegram bot that opens the mini-app and
// hands out personal invite links.
package bot

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/mazeportal/maze-api/internal/store"
	"github.com/mazeportal/maze-api/pkg/config"
)

const defaultPollTimeout = 10 * time.Second

// Bot wraps telebot.Bot with the dependencies its handlers need.
type Bot struct {
	telebot *telebot.Bot
	users   store.UserStore
	cfg     config.TelegramConfig
	log     *slog.Logger
}

// New builds a long-polling telegram bot configured from cfg.
func New(cfg config.TelegramConfig, users store.UserStore, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}

	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}

	tb, err := telebot.NewBot(telebot.Settings{
		Token:  cfg.BotToken,
		Poller: &telebot.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	b := &Bot{
		telebot: tb,
		users:   users,
		cfg:     cfg,
		log:     log,
	}

	tb.Handle("/start", b.handleStart)

	return b, nil
}

// Start runs the telegram bot event loop. It blocks until Stop is called.
func (b *Bot) Start() {
	if b.telebot != nil {
		b.telebot.Start()
	}
}

// Stop gracefully stops the telegram bot.
func (b *Bot) Stop() {
	if b.telebot == nil {
		return
	}

	b.log.Info("stopping telegram bot")
	b.telebot.Stop()
}

// Telebot exposes the underlying instance for health checks.
func (b *Bot) Telebot() *telebot.Bot {
	return b.telebot
}

func (b *Bot) handleStart(c telebot.Context) error {
	sender := c.Sender()
	if sender == nil {
		return nil
	}

	markup := b.telebot.NewMarkup()
	play := markup.WebApp("Play", &telebot.WebApp{URL: b.cfg.WebAppURL})
	markup.Inline(markup.Row(play))

	text := "Welcome to the maze! Tap Play to start your first run."

	userID := strconv.FormatInt(sender.ID, 10)
	_, err := b.users.Get(context.Background(), userID)
	switch {
	case err == nil:
		text = fmt.Sprintf(
			"Welcome back! Tap Play to continue.\n\nInvite friends with your personal link:\n%s",
			b.inviteLink(userID),
		)
	case stdErrors.Is(err, store.ErrNotFound):
		// first contact, the mini-app creates the user on open
	default:
		b.log.Error("failed to look up user for /start",
			slog.String("user_id", userID),
			slog.Any("error", err))
	}

	return c.Send(text, markup)
}

func (b *Bot) inviteLink(userID string) string {
	username := ""
	if b.telebot.Me != nil {
		username = b.telebot.Me.Username
	}

	return fmt.Sprintf("https://t.me/%s?startapp=ref-%s", username, userID)
}

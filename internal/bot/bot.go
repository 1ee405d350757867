package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"release_bot/internal/config"
	"release_bot/internal/model"
	"release_bot/internal/storage"
)

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot is the Telegram bot that handles user commands and posts announcements.
type Bot struct {
	api   telegramAPI
	store storage.Storage
	cfg   *config.Config
	log   *slog.Logger
}

// New creates a Bot with the given Telegram token, storage, and config.
func New(token string, store storage.Storage, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	return &Bot{
		api:   api,
		store: store,
		cfg:   cfg,
		log:   log,
	}, nil
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			if update.Message == nil || update.Message.From == nil || !update.Message.IsCommand() {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

// SendAnnouncement posts a photo with an HTML caption and a row of link
// buttons to chatID.
func (b *Bot) SendAnnouncement(_ context.Context, chatID int64, a model.Announcement) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(a.PhotoURL))
	photo.Caption = a.Caption
	photo.ParseMode = tgbotapi.ModeHTML

	if len(a.Buttons) > 0 {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(a.Buttons))
		for _, btn := range a.Buttons {
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(btn.Text, btn.URL))
		}
		photo.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(row)
	}

	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

// SendMessage sends an HTML text message to the given chat.
func (b *Bot) SendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.SendMessage(chatID, text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID)

	user, err := b.store.GetOrCreateUser(ctx, userFromTelegram(msg.From))
	if err != nil {
		b.log.Error("get or create user", "user_id", msg.From.ID, "error", err)
		b.reply(chatID, msgInternalError)
		return
	}

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "makeadmin":
		b.handleAdminToggle(ctx, chatID, user, args, true)
	case "removeadmin":
		b.handleAdminToggle(ctx, chatID, user, args, false)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}

func userFromTelegram(u *tgbotapi.User) *model.User {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return &model.User{ID: u.ID, Name: name, Username: u.UserName}
}

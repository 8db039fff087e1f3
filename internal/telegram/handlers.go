package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/formatter"
	appmodels "github.com/mixelka/chatmirror/pkg/models"
)

// handleStart handles /start command
func (b *Bot) handleStart(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	connected := false
	account, err := b.db.GetAccount(ctx, msg.From.ID)
	switch {
	case err == nil:
		connected = account.BusinessBotActive
	case !errors.Is(err, database.ErrNotFound):
		b.logger.Error("failed to get account", "error", err, "user_id", msg.From.ID)
	}

	if _, err := b.sendHTML(ctx, msg.Chat.ID, b.formatter.Start(connected), nil); err != nil {
		b.logger.Error("failed to send greeting", "error", err)
	}
}

// handleProfile handles /profile command
func (b *Bot) handleProfile(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg.From == nil {
		return
	}

	account, err := b.db.GetAccount(ctx, msg.From.ID)
	if errors.Is(err, database.ErrNotFound) {
		b.sendHTML(ctx, msg.Chat.ID, b.formatter.Start(false), nil)
		return
	}
	if err != nil {
		b.logger.Error("failed to get account", "error", err, "user_id", msg.From.ID)
		b.sendHTML(ctx, msg.Chat.ID, "Ошибка загрузки профиля", nil)
		return
	}

	text := b.formatter.Profile(displayName(msg.From), account, b.subscriptionEnd(ctx, account.TelegramID))
	if _, err := b.sendHTML(ctx, msg.Chat.ID, text, formatter.ProfileKeyboard(account)); err != nil {
		b.logger.Error("failed to send profile", "error", err)
	}
}

func (b *Bot) subscriptionEnd(ctx context.Context, accountID int64) *time.Time {
	end, err := b.db.SubscriptionEnd(ctx, accountID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			b.logger.Warn("failed to get subscription", "account_id", accountID, "error", err)
		}
		return nil
	}
	return &end
}

func displayName(u *models.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// handleCallback handles inline button callbacks
func (b *Bot) handleCallback(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	callback := update.CallbackQuery
	if callback == nil {
		return
	}

	data, err := formatter.DecodeCallback(callback.Data)
	if err != nil {
		b.logger.Error("failed to decode callback", "error", err, "data", callback.Data)
		b.answerCallback(ctx, callback.ID, "Ошибка", false)
		return
	}

	switch data.Action {
	case appmodels.CallbackHistory:
		b.handleHistory(ctx, callback, data)
	case appmodels.CallbackToggle:
		b.handleToggle(ctx, callback, data)
	case appmodels.CallbackClose:
		b.handleClose(ctx, callback)
	default:
		b.answerCallback(ctx, callback.ID, "Неизвестное действие", false)
	}
}

// handleHistory replays every version of a message to the owner
func (b *Bot) handleHistory(ctx context.Context, callback *models.CallbackQuery, data appmodels.CallbackData) {
	key := appmodels.MessageKey{ChatID: data.ChatID, MessageID: data.MessageID}
	ownerID := callback.From.ID

	rec, err := b.db.GetProvenance(ctx, key)
	if err != nil || rec.AccountID != ownerID {
		b.answerCallback(ctx, callback.ID, "Сообщение не найдено", false)
		return
	}
	b.answerCallback(ctx, callback.ID, "Загружаю историю...", false)

	chatID := ownerID
	if callback.Message.Message != nil {
		chatID = callback.Message.Message.Chat.ID
	}

	b.dispatcher.Submit(ctx, ownerID, "history", func(ctx context.Context) error {
		snippets, err := b.replayer.Replay(ctx, key)
		if err != nil {
			return b.filterError(err)
		}
		if len(snippets) == 0 {
			_, err := b.sendHTML(ctx, chatID, b.formatter.HistoryEmpty(), nil)
			return err
		}
		for _, s := range snippets {
			if _, err := b.sendHTML(ctx, chatID, b.formatter.HistoryTitle(s), nil); err != nil {
				return err
			}
			if _, err := b.Send(ctx, chatID, s.Content); err != nil {
				b.logger.Warn("failed to send history version", "key", key.String(), "seq", s.Seq, "error", err)
			}
		}
		return nil
	})
}

// handleToggle flips a notification toggle and refreshes the profile keyboard
func (b *Bot) handleToggle(ctx context.Context, callback *models.CallbackQuery, data appmodels.CallbackData) {
	enabled, err := b.db.ToggleNotification(ctx, callback.From.ID, data.Kind)
	if err != nil {
		b.logger.Error("failed to toggle notifications", "error", err, "user_id", callback.From.ID, "kind", data.Kind)
		b.answerCallback(ctx, callback.ID, "Ошибка", false)
		return
	}
	b.answerCallback(ctx, callback.ID, b.formatter.ToggleResult(data.Kind, enabled), false)

	account, err := b.db.GetAccount(ctx, callback.From.ID)
	if err != nil || callback.Message.Message == nil {
		return
	}
	msg := callback.Message.Message
	if err := b.editMessageReplyMarkup(ctx, msg.Chat.ID, msg.ID, formatter.ProfileKeyboard(account)); err != nil {
		b.logger.Warn("failed to refresh keyboard", "error", err)
	}
}

// handleClose removes the message the button belongs to
func (b *Bot) handleClose(ctx context.Context, callback *models.CallbackQuery) {
	b.answerCallback(ctx, callback.ID, "", false)
	if msg := callback.Message.Message; msg != nil {
		if err := b.deleteMessage(ctx, msg.Chat.ID, msg.ID); err != nil {
			b.logger.Warn("failed to delete message", "error", err)
		}
	}
}

package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/formatter"
	"github.com/mixelka/chatmirror/internal/mirror"
	appmodels "github.com/mixelka/chatmirror/pkg/models"
)

// Send delivers content to a chat and returns the new message id.
// A video note cannot carry a caption, so its text goes out first as a
// separate message.
func (b *Bot) Send(ctx context.Context, destination int64, content appmodels.Content) (int, error) {
	var (
		msg *models.Message
		err error
	)

	switch content.Class {
	case appmodels.ContentText:
		msg, err = b.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:             destination,
			Text:               content.Text,
			Entities:           content.Entities,
			LinkPreviewOptions: &models.LinkPreviewOptions{IsDisabled: bot.True()},
		})
	case appmodels.ContentVoice:
		msg, err = b.bot.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID:          destination,
			Voice:           &models.InputFileString{Data: content.FileID},
			Caption:         content.Text,
			CaptionEntities: content.Entities,
		})
	case appmodels.ContentVideo:
		msg, err = b.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID:          destination,
			Video:           &models.InputFileString{Data: content.FileID},
			Caption:         content.Text,
			CaptionEntities: content.Entities,
		})
	case appmodels.ContentVideoNote:
		if content.Text != "" {
			if _, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
				ChatID:   destination,
				Text:     content.Text,
				Entities: content.Entities,
			}); err != nil {
				return 0, err
			}
		}
		msg, err = b.bot.SendVideoNote(ctx, &bot.SendVideoNoteParams{
			ChatID:    destination,
			VideoNote: &models.InputFileString{Data: content.FileID},
		})
	case appmodels.ContentPhoto:
		msg, err = b.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:          destination,
			Photo:           &models.InputFileString{Data: content.FileID},
			Caption:         content.Text,
			CaptionEntities: content.Entities,
		})
	default:
		return 0, fmt.Errorf("unsupported content class %q", content.Class)
	}
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Retrieve reads a mirrored message back. The Bot API has no call to read
// a channel message, so the message is forwarded into the fallback channel,
// decoded and the forwarded copy removed again.
func (b *Bot) Retrieve(ctx context.Context, source int64, messageID int) (appmodels.Content, error) {
	scratch := b.channels.Fallback()

	fwd, err := b.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
		ChatID:              scratch,
		FromChatID:          source,
		MessageID:           messageID,
		DisableNotification: true,
	})
	if err != nil {
		if errors.Is(err, bot.ErrorBadRequest) {
			return appmodels.Content{}, fmt.Errorf("%w: %v", mirror.ErrNotFound, err)
		}
		return appmodels.Content{}, err
	}

	if err := b.deleteMessage(ctx, scratch, fwd.ID); err != nil {
		b.logger.Warn("failed to remove probe copy", "chat_id", scratch, "message_id", fwd.ID, "error", err)
	}

	content, ok := appmodels.Classify(fwd)
	if !ok {
		return appmodels.Content{}, fmt.Errorf("%w: unsupported content in %d/%d", mirror.ErrNotFound, source, messageID)
	}
	return content, nil
}

// Notify tells the owner about an edit or a deletion. Recovered content
// follows the notice as a separate message.
func (b *Bot) Notify(ctx context.Context, accountID int64, notice mirror.Notice) error {
	chatID := b.ownerChat(ctx, accountID)

	var keyboard *models.InlineKeyboardMarkup
	if notice.Kind == mirror.NoticeEdited {
		keyboard = formatter.HistoryKeyboard(notice.Key)
	}

	if _, err := b.sendHTML(ctx, chatID, b.formatter.Notice(notice), keyboard); err != nil {
		return fmt.Errorf("failed to send notice: %w", err)
	}

	if notice.Content != nil {
		if _, err := b.Send(ctx, chatID, *notice.Content); err != nil {
			return fmt.Errorf("failed to relay recovered content: %w", err)
		}
	}
	return nil
}

// NotifyOwner sends an HTML text to the owner of an account
func (b *Bot) NotifyOwner(ctx context.Context, accountID int64, text string) error {
	_, err := b.sendHTML(ctx, b.ownerChat(ctx, accountID), text, nil)
	return err
}

// ownerChat returns the private chat with the owner. A user's private chat
// id equals the user id, which serves when no connection is stored.
func (b *Bot) ownerChat(ctx context.Context, accountID int64) int64 {
	chatID, err := b.db.GetOwnerChatID(ctx, accountID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			b.logger.Warn("failed to get owner chat", "account_id", accountID, "error", err)
		}
		return accountID
	}
	return chatID
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mixelka/chatmirror/internal/database"
	"github.com/mixelka/chatmirror/internal/mirror"
	appmodels "github.com/mixelka/chatmirror/pkg/models"
)

// onBusinessConnection stores a connection toggle and tells the owner
func (b *Bot) onBusinessConnection(ctx context.Context, conn *models.BusinessConnection) {
	accountID := conn.User.ID
	b.connections.Store(conn.ID, accountID)

	b.dispatcher.Submit(ctx, accountID, "business_connection", func(ctx context.Context) error {
		if err := b.saveConnection(ctx, conn); err != nil {
			return err
		}

		b.logger.Info("business connection changed",
			"account_id", accountID, "connection_id", conn.ID, "enabled", conn.IsEnabled)

		if err := b.NotifyOwner(ctx, accountID, b.formatter.ConnectionChanged(conn.IsEnabled)); err != nil {
			b.logger.Warn("failed to notify about connection", "account_id", accountID, "error", err)
		}
		return nil
	})
}

// saveConnection creates the account on first sight and stores the connection
func (b *Bot) saveConnection(ctx context.Context, conn *models.BusinessConnection) error {
	accountID := conn.User.ID

	if _, err := b.allocator.Ensure(ctx, accountID); err != nil {
		return err
	}
	if err := b.db.UpsertConnection(ctx, &appmodels.BusinessConnection{
		ID:          conn.ID,
		AccountID:   accountID,
		OwnerChatID: conn.UserChatID,
		IsEnabled:   conn.IsEnabled,
	}); err != nil {
		return err
	}
	if err := b.db.SetAccountActive(ctx, accountID, conn.IsEnabled); err != nil {
		return err
	}
	if conn.User.Username != "" {
		if err := b.db.SetUsername(ctx, accountID, conn.User.Username); err != nil {
			b.logger.Warn("failed to store username", "account_id", accountID, "error", err)
		}
	}
	return nil
}

// accountFor resolves the owner account of a business connection
func (b *Bot) accountFor(ctx context.Context, connectionID string) (int64, error) {
	if id, ok := b.connections.Load(connectionID); ok {
		return id.(int64), nil
	}

	conn, err := b.db.GetConnection(ctx, connectionID)
	if err == nil {
		b.connections.Store(connectionID, conn.AccountID)
		return conn.AccountID, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return 0, err
	}

	// Connection made before the bot started tracking it
	remote, err := b.bot.GetBusinessConnection(ctx, &bot.GetBusinessConnectionParams{
		BusinessConnectionID: connectionID,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get business connection: %w", err)
	}
	if err := b.saveConnection(ctx, remote); err != nil {
		return 0, err
	}
	b.connections.Store(connectionID, remote.User.ID)
	return remote.User.ID, nil
}

// owner returns the person behind an account
func (b *Bot) owner(ctx context.Context, accountID int64) appmodels.Person {
	p := appmodels.Person{ID: accountID}
	if acc, err := b.db.GetAccount(ctx, accountID); err == nil {
		p.Username = acc.Username
	}
	return p
}

// onBusinessMessage mirrors a new message of a connected chat
func (b *Bot) onBusinessMessage(ctx context.Context, msg *models.Message) {
	accountID, err := b.accountFor(ctx, msg.BusinessConnectionID)
	if err != nil {
		b.logger.Error("failed to resolve account", "connection_id", msg.BusinessConnectionID, "error", err)
		return
	}

	b.dispatcher.Submit(ctx, accountID, "business_message", func(ctx context.Context) error {
		event, ok := toMessage(accountID, b.owner(ctx, accountID), msg)
		if !ok {
			b.logger.Debug("unsupported message skipped", "chat_id", msg.Chat.ID, "message_id", msg.ID)
			return nil
		}
		_, err := b.mirror.Mirror(ctx, event)
		return b.filterError(err)
	})
}

// onEditedBusinessMessage records a new version of a message
func (b *Bot) onEditedBusinessMessage(ctx context.Context, msg *models.Message) {
	accountID, err := b.accountFor(ctx, msg.BusinessConnectionID)
	if err != nil {
		b.logger.Error("failed to resolve account", "connection_id", msg.BusinessConnectionID, "error", err)
		return
	}

	b.dispatcher.Submit(ctx, accountID, "edited_business_message", func(ctx context.Context) error {
		event, ok := toEdit(accountID, b.owner(ctx, accountID), msg)
		if !ok {
			return nil
		}
		return b.filterError(b.edits.OnEdit(ctx, event))
	})
}

// onDeletedBusinessMessages recovers deleted messages for the owner
func (b *Bot) onDeletedBusinessMessages(ctx context.Context, deleted *models.BusinessMessagesDeleted) {
	accountID, err := b.accountFor(ctx, deleted.BusinessConnectionID)
	if err != nil {
		b.logger.Error("failed to resolve account", "connection_id", deleted.BusinessConnectionID, "error", err)
		return
	}

	event := mirror.Deletion{
		AccountID:  accountID,
		ChatID:     deleted.Chat.ID,
		MessageIDs: deleted.MessageIDs,
		Actor:      personFromChat(deleted.Chat),
		At:         time.Now(),
	}
	b.dispatcher.Submit(ctx, accountID, "deleted_business_messages", func(ctx context.Context) error {
		return b.filterError(b.prober.OnDelete(ctx, event))
	})
}

// filterError keeps expected outcomes out of the error log
func (b *Bot) filterError(err error) error {
	var failure *mirror.MirrorFailure
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mirror.ErrProvenanceMissing):
		b.logger.Info("event references an untracked message")
		return nil
	case errors.Is(err, mirror.ErrAccountBanned):
		b.logger.Debug("banned account skipped")
		return nil
	case errors.As(err, &failure):
		b.logger.Warn("message dropped after delivery failures", "error", err)
		return nil
	}
	return err
}

// toMessage converts a business message into a mirror event
func toMessage(accountID int64, owner appmodels.Person, msg *models.Message) (mirror.Message, bool) {
	content, ok := appmodels.Classify(msg)
	if !ok {
		return mirror.Message{}, false
	}

	from, to := participants(msg, owner)
	return mirror.Message{
		AccountID: accountID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		From:      from,
		To:        to,
		Date:      unixTime(msg.Date),
		Content:   content,
	}, true
}

// toEdit converts an edited business message into an edit event
func toEdit(accountID int64, owner appmodels.Person, msg *models.Message) (mirror.Edit, bool) {
	content, ok := appmodels.Classify(msg)
	if !ok {
		return mirror.Edit{}, false
	}

	editor, to := participants(msg, owner)
	at := unixTime(msg.EditDate)
	if msg.EditDate == 0 {
		at = time.Now()
	}
	return mirror.Edit{
		AccountID: accountID,
		ChatID:    msg.Chat.ID,
		MessageID: msg.ID,
		Editor:    editor,
		To:        to,
		Date:      at,
		Content:   content,
	}, true
}

// participants returns sender and recipient. Messages written by the owner
// go to the chat partner, everything else goes to the owner.
func participants(msg *models.Message, owner appmodels.Person) (appmodels.Person, appmodels.Person) {
	partner := personFromChat(msg.Chat)

	if msg.From == nil {
		return partner, owner
	}
	from := personFromUser(msg.From)
	if from.ID == owner.ID {
		if owner.Username == "" {
			owner.Username = from.Username
		}
		owner.Name = from.Name
		return owner, partner
	}
	return from, owner
}

func personFromUser(u *models.User) appmodels.Person {
	return appmodels.Person{
		ID:       u.ID,
		Name:     strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username: u.Username,
	}
}

func personFromChat(c models.Chat) appmodels.Person {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		name = c.Title
	}
	return appmodels.Person{ID: c.ID, Name: name, Username: c.Username}
}

func unixTime(sec int) time.Time {
	return time.Unix(int64(sec), 0)
}

package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/mixelka/chatmirror/internal/mirror"
	"github.com/mixelka/chatmirror/pkg/models"
)

// TelegramFormatter renders owner-facing texts in Telegram HTML
type TelegramFormatter struct {
	location *time.Location
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter(loc *time.Location) *TelegramFormatter {
	if loc == nil {
		loc = time.UTC
	}
	return &TelegramFormatter{location: loc}
}

// Notice renders the text of an edit or delete notice
func (f *TelegramFormatter) Notice(n mirror.Notice) string {
	who := f.userLink(n.Actor)
	at := f.clock(n.At)

	switch n.Kind {
	case mirror.NoticeEdited:
		return fmt.Sprintf("✏️ Пользователь %s изменил сообщение в %s", who, at)
	case mirror.NoticeEditUnavailable:
		return fmt.Sprintf("✏️ Пользователь %s изменил сообщение в %s\n\n<i>Новое содержимое недоступно</i>", who, at)
	case mirror.NoticeDeleted:
		return fmt.Sprintf("🗑 Пользователь %s удалил сообщение в %s 👇", who, at)
	case mirror.NoticeDeleteUnavailable:
		return fmt.Sprintf("🗑 Пользователь %s удалил сообщение в %s\n\n<i>Исходное сообщение недоступно</i>", who, at)
	}
	return ""
}

// HistoryTitle caption of one version in a replayed history
func (f *TelegramFormatter) HistoryTitle(s mirror.Snippet) string {
	if s.Seq == 0 {
		return fmt.Sprintf("📄 <b>Оригинал</b> (%s)", f.dateTime(s.At))
	}
	return fmt.Sprintf("✏️ <b>Изменение %d</b> (%s)", s.Seq, f.dateTime(s.At))
}

// HistoryEmpty text when no version of the message could be fetched
func (f *TelegramFormatter) HistoryEmpty() string {
	return "🔍 История сообщения недоступна"
}

// Start greeting for /start
func (f *TelegramFormatter) Start(connected bool) string {
	if connected {
		return "🎉 <b>Бот подключен к вашему аккаунту.</b>\n\nИзменённые и удалённые сообщения будут приходить сюда. /profile покажет статистику и настройки."
	}
	return "👋 <b>Добро пожаловать!</b>\n\nЧтобы начать, подключите бота к своему аккаунту: Настройки → Telegram для бизнеса → Чат-боты."
}

// ConnectionChanged notice sent when the business connection is toggled
func (f *TelegramFormatter) ConnectionChanged(enabled bool) string {
	if enabled {
		return "✅ <b>Бизнес-бот активирован!</b>"
	}
	return "❌ <b>Бизнес-бот деактивирован.</b>"
}

// SubscriptionEnded notice sent by the expiry sweep
func (f *TelegramFormatter) SubscriptionEnded() string {
	return "⏰ <b>Ваша подписка истекла.</b> Уведомления об изменениях и удалениях отключены."
}

// InactivityReminder notice for owners without recent traffic
func (f *TelegramFormatter) InactivityReminder(since time.Time) string {
	return fmt.Sprintf("💤 С %s через бота не прошло ни одного сообщения. Проверьте, что бот подключен к аккаунту.", f.dateTime(since))
}

// Profile renders the /profile card
func (f *TelegramFormatter) Profile(name string, account *models.Account, subscriptionEnd *time.Time) string {
	status := "Не активна"
	if subscriptionEnd != nil {
		status = subscriptionEnd.In(f.location).Format("02.01.2006")
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("👤 <b>Профиль:</b> %s\n\n", f.escapeHTML(name)))
	sb.WriteString(fmt.Sprintf("🆔 <b>ID:</b> <code>%d</code>\n", account.TelegramID))
	sb.WriteString(fmt.Sprintf("📅 <b>Подписка до:</b> %s\n\n", status))
	sb.WriteString("📊 <b>Статистика:</b>\n")
	sb.WriteString(fmt.Sprintf("- Отслеживаемых сообщений: %d\n", account.ActiveMessagesCount))
	sb.WriteString(fmt.Sprintf("- Перехвачено удалённых сообщений: %d\n", account.DeletedMessagesCount))
	sb.WriteString(fmt.Sprintf("- Перехвачено изменённых сообщений: %d", account.EditedMessagesCount))
	return sb.String()
}

// ToggleResult answer shown after a notification toggle
func (f *TelegramFormatter) ToggleResult(kind models.NotificationKind, enabled bool) string {
	state := "выключены"
	if enabled {
		state = "включены"
	}
	return fmt.Sprintf("%s %s", kindTitle(kind), state)
}

func kindTitle(kind models.NotificationKind) string {
	switch kind {
	case models.NotificationEdit:
		return "Уведомления об изменениях"
	case models.NotificationDelete:
		return "Уведомления об удалениях"
	}
	return "Уведомления"
}

// userLink renders a person as an HTML link
func (f *TelegramFormatter) userLink(p models.Person) string {
	name := p.Name
	if strings.TrimSpace(name) == "" {
		name = p.Username
	}
	if name == "" {
		name = fmt.Sprintf("id%d", p.ID)
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, mirror.PersonURL(p), f.escapeHTML(name))
}

func (f *TelegramFormatter) clock(t time.Time) string {
	return t.In(f.location).Format("15:04:05")
}

func (f *TelegramFormatter) dateTime(t time.Time) string {
	return t.In(f.location).Format("02.01.2006 15:04:05")
}

// escapeHTML escapes HTML special characters for Telegram
func (f *TelegramFormatter) escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

package formatter

import (
	"encoding/json"

	"github.com/go-telegram/bot/models"

	appmodels "github.com/mixelka/chatmirror/pkg/models"
)

// HistoryKeyboard "view history" button for an edit notice
func HistoryKeyboard(key appmodels.MessageKey) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{
					Text: "🔍 Показать историю",
					CallbackData: EncodeCallback(appmodels.CallbackData{
						Action:    appmodels.CallbackHistory,
						ChatID:    key.ChatID,
						MessageID: key.MessageID,
					}),
				},
			},
		},
	}
}

// ProfileKeyboard notification toggles and a close button
func ProfileKeyboard(account *appmodels.Account) *models.InlineKeyboardMarkup {
	toggle := func(title string, enabled bool, kind appmodels.NotificationKind) models.InlineKeyboardButton {
		mark := "❌"
		if enabled {
			mark = "✅"
		}
		return models.InlineKeyboardButton{
			Text: mark + " " + title,
			CallbackData: EncodeCallback(appmodels.CallbackData{
				Action: appmodels.CallbackToggle,
				Kind:   kind,
			}),
		}
	}

	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{toggle("Все уведомления", account.NotificationsEnabled, appmodels.NotificationAll)},
			{
				toggle("Изменения", account.EditNotifications, appmodels.NotificationEdit),
				toggle("Удаления", account.DeleteNotifications, appmodels.NotificationDelete),
			},
			{closeButton()},
		},
	}
}

// CloseKeyboard single close button
func CloseKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{{closeButton()}},
	}
}

func closeButton() models.InlineKeyboardButton {
	return models.InlineKeyboardButton{
		Text:         "❌ Закрыть",
		CallbackData: EncodeCallback(appmodels.CallbackData{Action: appmodels.CallbackClose}),
	}
}

// EncodeCallback encodes callback data to string
func EncodeCallback(data appmodels.CallbackData) string {
	b, _ := json.Marshal(data)
	return string(b)
}

// DecodeCallback decodes callback data from string
func DecodeCallback(data string) (appmodels.CallbackData, error) {
	var cb appmodels.CallbackData
	err := json.Unmarshal([]byte(data), &cb)
	return cb, err
}

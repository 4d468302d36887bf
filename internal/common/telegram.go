package common

import (
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Sender — часть tgbotapi.BotAPI, через которую обработчики отвечают в чат.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// SendText отправляет текстовое сообщение и логирует ошибку отправки.
func SendText(s Sender, chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := s.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// TelegramAuthority — идентификатор участника трекера для пользователя Telegram.
func TelegramAuthority(userID int64) string {
	return "tg:" + strconv.FormatInt(userID, 10)
}

// ReplyError отвечает пользователю текстом ошибки. Неизвестные ошибки
// логируются как Error, ожидаемые отказы как Debug.
func ReplyError(s Sender, chatID int64, err error, action string) {
	entry := log.WithError(err).WithFields(log.Fields{
		"chat_id":  chatID,
		"action":   action,
		"category": Classify(err),
	})
	if Classify(err) == CategoryUnknown {
		entry.Error("Ошибка операции")
	} else {
		entry.Debug("Операция отклонена")
	}
	SendText(s, chatID, "❌ "+UserMessage(err))
}

// Package filters решает, с какими чатами и пользователями работает бот.
package filters

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
)

// memberTTL — сколько помним подтверждённое членство в чате организации.
const memberTTL = 10 * time.Minute

// ChatAPI — часть tgbotapi.BotAPI, нужная фильтру.
type ChatAPI interface {
	common.Sender
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// ChatFilter пропускает сообщения из чата организации и личные сообщения
// его участников. Операторы из ADMIN_IDS проходят всегда.
type ChatFilter struct {
	orgChatID  int64
	isOperator func(userID int64) bool
	bot        ChatAPI

	mu      sync.Mutex
	members map[int64]time.Time // userID → до какого времени доверяем
	now     func() time.Time
}

func NewChatFilter(orgChatID int64, isOperator func(userID int64) bool, bot ChatAPI) *ChatFilter {
	return &ChatFilter{
		orgChatID:  orgChatID,
		isOperator: isOperator,
		bot:        bot,
		members:    make(map[int64]time.Time),
		now:        time.Now,
	}
}

func (f *ChatFilter) CheckAccess(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}
	if f.orgChatID == 0 {
		log.WithField("component", "ChatFilter").Error("orgChatID is 0 (config bug)")
		return false
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	logger := log.WithFields(log.Fields{
		"component":   "ChatFilter",
		"chat_id":     chatID,
		"chat_type":   message.Chat.Type,
		"user_id":     userID,
		"org_chat_id": f.orgChatID,
	})

	// 1) Чат организации
	if chatID == f.orgChatID {
		f.remember(userID)
		return true
	}

	// 2) Остальные группы игнорируем
	if !message.Chat.IsPrivate() {
		logger.Info("deny: not org chat and not private")
		return false
	}

	// 3) Личка: операторы и недавно подтверждённые участники
	if f.isOperator != nil && f.isOperator(userID) {
		return true
	}
	if f.known(userID) {
		return true
	}

	// 3.1) Проверяем членство через Telegram API
	cm, err := f.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: f.orgChatID,
			UserID: userID,
		},
	})
	if err != nil {
		logger.WithError(err).Error("member check failed (telegram GetChatMember)")
		return false
	}

	switch cm.Status {
	case "creator", "administrator", "member", "restricted":
		f.remember(userID)
		logger.WithField("tg_status", cm.Status).Info("allow: private (telegram member)")
		return true
	default:
		logger.WithField("tg_status", cm.Status).Info("deny: private (not a chat member)")
		common.SendText(f.bot, chatID, "❌ Бот работает только для участников чата организации")
		return false
	}
}

func (f *ChatFilter) remember(userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[userID] = f.now().Add(memberTTL)
}

func (f *ChatFilter) known(userID int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	until, ok := f.members[userID]
	if !ok {
		return false
	}
	if f.now().After(until) {
		delete(f.members, userID)
		return false
	}
	return true
}

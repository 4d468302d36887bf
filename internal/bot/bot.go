// Package bot принимает апдейты Telegram и маршрутизирует команды трекера.
package bot

import (
	"context"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/bot/filters"
	"github.com/0xCipherCoder/contribution-tracker/internal/bot/middleware"
	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/config"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/admin"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/distribution"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
)

const helpText = "🤖 Трекер вкладов\n\n" +
	"!вклад <категория> <серьёзность> <описание> — отправить вклад\n" +
	"!мои — ваши вклады и баллы\n" +
	"!период [n] — состояние периода\n" +
	"!прогноз <n> — сколько токенов вы получите за период\n" +
	"!получить <n> — получить награду за период\n" +
	"!баланс — ваш баланс токенов\n\n" +
	"Администраторам: /login в личных сообщениях"

// API — часть tgbotapi.BotAPI, с которой работает бот.
type API interface {
	common.Sender
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Handlers — обработчики команд по фичам.
type Handlers struct {
	Ledger       *ledger.Handler
	Periods      *periods.Handler
	Distribution *distribution.Handler
	Settlement   *settlement.Handler
	Admin        *admin.Handler
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api API
	cfg *config.Config

	chatFilter *filters.ChatFilter
	limiter    middleware.Limiter
	handlers   Handlers

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(api API, cfg *config.Config, chatFilter *filters.ChatFilter, limiter middleware.Limiter, handlers Handlers) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:        api,
		cfg:        cfg,
		chatFilter: chatFilter,
		limiter:    limiter,
		handlers:   handlers,
		parser:     NewCommandParser(),
		inflight:   make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram и блокируется до отмены ctx.
// Перед возвратом дожидается обработки уже принятых апдейтов.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			select {
			case b.inflight <- struct{}{}:
			case <-ctx.Done():
				b.api.StopReceivingUpdates()
				return
			}
			b.wg.Add(1)
			go func(upd tgbotapi.Update) {
				defer func() {
					<-b.inflight
					b.wg.Done()
				}()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	if update.Message == nil || update.Message.Text == "" {
		return
	}
	message := update.Message

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	if !b.limiter.Allow(ctx, message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID
	private := message.Chat.IsPrivate()

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	log.WithFields(log.Fields{
		"isCommand": isCommand,
		"cmd":       cmd,
		"args":      len(args),
	}).Debug("parsed command")

	if !isCommand {
		// В личке оператор может вводить пароль отдельным сообщением
		if private {
			b.handlers.Admin.HandleAdminMessage(ctx, chatID, userID, message.Text)
		}
		return
	}

	b.routeCommand(ctx, chatID, userID, private, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, private bool, cmd string, args []string) {
	switch cmd {
	case "start", "help", "помощь":
		common.SendText(b.api, chatID, helpText)

	case "login":
		if !private {
			common.SendText(b.api, chatID, "🔒 Пароль вводится только в личных сообщениях")
			return
		}
		b.handlers.Admin.HandleLogin(ctx, chatID, userID, args)

	case "вклад":
		b.handlers.Ledger.HandleSubmit(ctx, chatID, userID, args)

	case "мои":
		b.handlers.Ledger.HandleMine(ctx, chatID, userID)

	case "период":
		b.handlers.Periods.HandlePeriod(ctx, chatID, args)

	case "получить":
		b.handlers.Distribution.HandleClaim(ctx, chatID, userID, args)

	case "прогноз":
		b.handlers.Distribution.HandlePreview(ctx, chatID, userID, args)

	case "баланс":
		b.handlers.Settlement.HandleBalance(ctx, chatID, userID)

	default:
		if admin.IsAdminCommand(cmd) {
			b.handlers.Admin.HandleCommand(ctx, chatID, userID, private, cmd, args)
		}
	}
}

// CommandParser парсит русские команды с префиксами !, . и /
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Суффикс @имя_бота у команды отбрасывается.
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}
	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	command := strings.ToLower(parts[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}
	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return command, args, true
}

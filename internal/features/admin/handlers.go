// Package admin — handlers.go обрабатывает админ-команды трекера в личных сообщениях.
// Поток: /login <пароль> → активная сессия → команды очереди, финализации и казны.
package admin

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/config"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/distribution"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
)

// queueLimit — сколько вкладов показывать в очереди по умолчанию.
const queueLimit = 10

const helpText = "🛠 Админ-команды:\n" +
	"!очередь [n] — вклады на рассмотрении\n" +
	"!одобрить <id> / !отклонить <id>\n" +
	"!завершить <период> — финализировать\n" +
	"!следующий — открыть следующий период\n" +
	"!пополнить <сумма> — пополнить хранилище наград\n" +
	"!казна — балансы хранилищ\n" +
	"!запуск — запустить трекер с параметрами из конфига\n" +
	"!выйти — закрыть сессию"

// commands — команды, для которых нужна админ-сессия.
var commands = map[string]bool{
	"админ":     true,
	"очередь":   true,
	"одобрить":  true,
	"отклонить": true,
	"завершить": true,
	"следующий": true,
	"пополнить": true,
	"казна":     true,
	"запуск":    true,
	"выйти":     true,
}

// IsAdminCommand — относится ли команда к админке.
func IsAdminCommand(cmd string) bool {
	return commands[cmd]
}

// Handler обрабатывает админ-команды.
type Handler struct {
	service      *Service
	ledger       *ledger.Service
	periods      *periods.Service
	distribution *distribution.Service
	settlement   *settlement.Service
	cfg          *config.Config
	bot          common.Sender
}

// NewHandler создаёт обработчик админки.
func NewHandler(
	service *Service,
	ledgerService *ledger.Service,
	periodService *periods.Service,
	distributionService *distribution.Service,
	settlementService *settlement.Service,
	cfg *config.Config,
	bot common.Sender,
) *Handler {
	return &Handler{
		service:      service,
		ledger:       ledgerService,
		periods:      periodService,
		distribution: distributionService,
		settlement:   settlementService,
		cfg:          cfg,
		bot:          bot,
	}
}

// HandleAdminMessage обрабатывает не-командное сообщение оператора в DM.
// Возвращает true, если сообщение было вводом пароля.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool {
	if !h.service.IsOperator(userID) {
		return false
	}
	state := h.service.GetState(userID)
	if state == nil || state.State != StateAwaitingPassword {
		return false
	}
	h.service.ClearState(userID)
	h.login(ctx, chatID, userID, strings.TrimSpace(text))
	return true
}

// HandleLogin обрабатывает /login [пароль]. Без пароля бот ждёт его следующим сообщением.
func (h *Handler) HandleLogin(ctx context.Context, chatID, userID int64, args []string) {
	if !h.service.IsOperator(userID) {
		common.SendText(h.bot, chatID, "❌ "+common.ErrUnauthorizedAdmin.Error())
		return
	}
	if len(args) == 0 {
		h.service.SetState(userID, StateAwaitingPassword)
		common.SendText(h.bot, chatID, "🔐 Введите пароль для доступа к админке:")
		return
	}
	h.login(ctx, chatID, userID, strings.Join(args, " "))
}

func (h *Handler) login(ctx context.Context, chatID, userID int64, password string) {
	if err := h.service.VerifyPassword(ctx, userID, password); err != nil {
		common.ReplyError(h.bot, chatID, err, "login")
		return
	}
	common.SendText(h.bot, chatID, "✅ Аутентификация успешна!\n\n"+helpText)
}

// HandleCommand выполняет админ-команду. Нужны личный чат и активная сессия.
func (h *Handler) HandleCommand(ctx context.Context, chatID, userID int64, private bool, cmd string, args []string) {
	if !h.service.IsOperator(userID) {
		common.SendText(h.bot, chatID, "❌ "+common.ErrUnauthorizedAdmin.Error())
		return
	}
	if !private {
		common.SendText(h.bot, chatID, "🔒 Админ-команды доступны только в личных сообщениях")
		return
	}
	if !h.service.HasActiveSession(ctx, userID) {
		common.SendText(h.bot, chatID, "🔐 Сначала войдите: /login <пароль>")
		return
	}

	log.WithFields(log.Fields{
		"user_id": userID,
		"cmd":     cmd,
		"args":    args,
	}).Info("Админ-команда")

	switch cmd {
	case "админ":
		common.SendText(h.bot, chatID, helpText)
	case "очередь":
		h.handleQueue(ctx, chatID, args)
	case "одобрить":
		h.handleReview(ctx, chatID, args, true)
	case "отклонить":
		h.handleReview(ctx, chatID, args, false)
	case "завершить":
		h.handleFinalize(ctx, chatID, args)
	case "следующий":
		h.handleAdvance(ctx, chatID)
	case "пополнить":
		h.handleFund(ctx, chatID, args)
	case "казна":
		h.handleVaults(ctx, chatID)
	case "запуск":
		h.handleBootstrap(ctx, chatID)
	case "выйти":
		if err := h.service.Logout(ctx, userID); err != nil {
			common.ReplyError(h.bot, chatID, err, "logout")
			return
		}
		common.SendText(h.bot, chatID, "👋 Сессия закрыта")
	}
}

func (h *Handler) handleQueue(ctx context.Context, chatID int64, args []string) {
	limit := queueLimit
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			common.SendText(h.bot, chatID, "Использование: !очередь [количество]")
			return
		}
		limit = n
	}
	pending, err := h.ledger.ListPending(ctx, limit)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "queue")
		return
	}
	if len(pending) == 0 {
		common.SendText(h.bot, chatID, "Очередь пуста")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("⏳ На рассмотрении (%d):\n\n", len(pending)))
	for i, c := range pending {
		sb.WriteString(fmt.Sprintf("%d. %s\n   от %s, период %d\n   %s\n",
			i+1, ledger.FormatContribution(c), c.Contributor, c.Period, c.ID))
	}
	common.SendText(h.bot, chatID, sb.String())
}

func (h *Handler) handleReview(ctx context.Context, chatID int64, args []string, approve bool) {
	if len(args) < 1 {
		common.SendText(h.bot, chatID, "Использование: !одобрить <id> или !отклонить <id>")
		return
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		common.SendText(h.bot, chatID, "❌ Некорректный ID вклада")
		return
	}
	c, err := h.ledger.Review(ctx, h.service.Authority(), id, approve)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "review")
		return
	}
	common.SendText(h.bot, chatID, fmt.Sprintf("%s %s\nУчастник: %s",
		ledger.StatusIcon(c.Status), ledger.FormatContribution(c), c.Contributor))
}

func (h *Handler) handleFinalize(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		common.SendText(h.bot, chatID, "Использование: !завершить <номер периода>")
		return
	}
	number, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		common.SendText(h.bot, chatID, "❌ Номер периода должен быть числом")
		return
	}
	res, err := h.distribution.Finalize(ctx, h.service.Authority(), number)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "finalize")
		return
	}
	threshold := "порог не набран, половина бюджета ушла в резерв"
	if res.ThresholdMet {
		threshold = "порог набран, раздаётся весь бюджет"
	}
	common.SendText(h.bot, chatID, fmt.Sprintf(
		"🏁 Период %d финализирован: %s\nК раздаче: %s\nВ резерв: %s",
		res.Period, threshold, common.FormatTokens(res.Distribute), common.FormatTokens(res.Reserve),
	))
}

func (h *Handler) handleAdvance(ctx context.Context, chatID int64) {
	next, err := h.periods.Advance(ctx, h.service.Authority())
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "advance")
		return
	}
	common.SendText(h.bot, chatID, fmt.Sprintf("▶️ Открыт период %d до %s",
		next.Number, common.FormatDateTime(next.EndTime)))
}

func (h *Handler) handleFund(ctx context.Context, chatID int64, args []string) {
	if len(args) < 1 {
		common.SendText(h.bot, chatID, "Использование: !пополнить <сумма>")
		return
	}
	amount, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		common.SendText(h.bot, chatID, "❌ Сумма должна быть целым числом")
		return
	}
	balance, err := h.settlement.Fund(ctx, h.service.Authority(), amount)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "fund")
		return
	}
	common.SendText(h.bot, chatID, fmt.Sprintf("💰 Хранилище наград пополнено на %s\nБаланс: %s",
		common.FormatTokens(amount), common.FormatTokens(balance)))
}

func (h *Handler) handleVaults(ctx context.Context, chatID int64) {
	vaults := h.settlement.Vaults()
	reward, err := h.settlement.Balance(ctx, vaults.Reward)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "vaults")
		return
	}
	reserve, err := h.settlement.Balance(ctx, vaults.Reserve)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "vaults")
		return
	}
	common.SendText(h.bot, chatID, fmt.Sprintf("🏦 Хранилище наград: %s\n🏦 Резерв: %s",
		common.FormatTokens(reward), common.FormatTokens(reserve)))
}

func (h *Handler) handleBootstrap(ctx context.Context, chatID int64) {
	settings := h.cfg.TrackerSettings()
	_, period, err := h.periods.Bootstrap(ctx, h.service.Authority(), settings)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "bootstrap")
		return
	}
	common.SendText(h.bot, chatID, fmt.Sprintf(
		"🚀 Трекер запущен\nПериод: %s\nПорог: %s\nБюджет периода: %s\nПериод 0 до %s",
		common.FormatDuration(settings.PeriodDuration),
		common.FormatPoints(settings.MinimumPointsThreshold),
		common.FormatTokens(settings.TokensPerPeriod),
		common.FormatDateTime(period.EndTime),
	))
}

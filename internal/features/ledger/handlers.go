// Package ledger — handlers.go обрабатывает команды участника:
// !вклад и !мои.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/scoring"
)

// recentLimit — сколько последних вкладов показывать в !мои.
const recentLimit = 10

const submitUsage = "Использование: !вклад <категория> <серьёзность> <описание>\n" +
	"Категории: фикс, фича, оптимизация, баг, тест\n" +
	"Серьёзность: мелкий, средний, крупный, критичный"

// Handler обрабатывает команды журнала вкладов.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleSubmit обрабатывает команду !вклад <категория> <серьёзность> <описание>.
func (h *Handler) HandleSubmit(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 3 {
		common.SendText(h.bot, chatID, submitUsage)
		return
	}
	category, err := scoring.ParseCategory(args[0])
	if err != nil {
		common.SendText(h.bot, chatID, "❌ "+common.UserMessage(err)+"\n\n"+submitUsage)
		return
	}
	severity, err := scoring.ParseSeverity(args[1])
	if err != nil {
		common.SendText(h.bot, chatID, "❌ "+common.UserMessage(err)+"\n\n"+submitUsage)
		return
	}
	description := strings.Join(args[2:], " ")

	c, err := h.service.Submit(ctx, common.TelegramAuthority(userID), category, severity, description)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "submit")
		return
	}

	text := fmt.Sprintf(
		"📝 Вклад принят на рассмотрение\n\n%s\n\nПериод: %d\nБаллы после одобрения: %s\nID: %s",
		FormatContribution(c), c.Period, common.FormatPoints(uint64(c.Points)), c.ID,
	)
	common.SendText(h.bot, chatID, text)
}

// HandleMine обрабатывает команду !мои — сводка участника и последние вклады.
func (h *Handler) HandleMine(ctx context.Context, chatID, userID int64) {
	authority := common.TelegramAuthority(userID)
	contributor, err := h.service.Contributor(ctx, authority)
	if errors.Is(err, common.ErrContributorNotInitialized) {
		common.SendText(h.bot, chatID, "Вы ещё не отправляли вкладов. Начните с !вклад")
		return
	}
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "contributor")
		return
	}
	list, err := h.service.ListByContributor(ctx, authority)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "contributions")
		return
	}

	var sb strings.Builder
	sb.WriteString("👤 Ваши вклады\n\n")
	sb.WriteString(fmt.Sprintf("Всего баллов: %s\n", common.FormatPoints(contributor.TotalPointsAllTime)))
	sb.WriteString(fmt.Sprintf("Баллов к получению: %s\n", common.FormatPoints(contributor.CurrentPeriodPoints)))
	if contributor.LastClaimedPeriod == domain.NeverClaimed {
		sb.WriteString("Награды ещё не получали\n")
	} else {
		sb.WriteString(fmt.Sprintf("Последняя награда за период: %d\n", contributor.LastClaimedPeriod))
	}
	sb.WriteString(fmt.Sprintf("Вкладов: %d из %d\n", len(contributor.Contributions), domain.MaxContributions))

	if len(list) > recentLimit {
		list = list[len(list)-recentLimit:]
	}
	if len(list) > 0 {
		sb.WriteString("\nПоследние:\n")
		for _, c := range list {
			sb.WriteString(fmt.Sprintf("%s %s\n", StatusIcon(c.Status), FormatContribution(c)))
		}
	}
	common.SendText(h.bot, chatID, sb.String())
}

// FormatContribution — однострочное описание вклада.
func FormatContribution(c *domain.Contribution) string {
	return fmt.Sprintf("%s, %s (%s): %s",
		scoring.CategoryTitle(c.Category),
		scoring.SeverityTitle(c.Severity),
		common.FormatPoints(uint64(c.Points)),
		c.Description,
	)
}

// StatusIcon — значок статуса вклада.
func StatusIcon(s domain.Status) string {
	switch s {
	case domain.StatusApproved:
		return "✅"
	case domain.StatusRejected:
		return "❌"
	default:
		return "⏳"
	}
}

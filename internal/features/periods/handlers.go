// Package periods — handlers.go обрабатывает команду !период [n].
package periods

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
)

// Handler обрабатывает команды периодов.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandlePeriod показывает текущий период или период с номером из аргумента.
func (h *Handler) HandlePeriod(ctx context.Context, chatID int64, args []string) {
	var (
		period *domain.Period
		err    error
	)
	if len(args) > 0 {
		number, perr := strconv.ParseUint(args[0], 10, 64)
		if perr != nil {
			common.SendText(h.bot, chatID, "Использование: !период [номер]")
			return
		}
		period, err = h.service.Get(ctx, number)
	} else {
		period, err = h.service.Current(ctx)
	}
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "period")
		return
	}
	tr, err := h.service.Tracker(ctx)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "tracker")
		return
	}
	common.SendText(h.bot, chatID, FormatPeriod(period, tr, h.service.Now()))
}

// FormatPeriod — карточка периода для чата.
func FormatPeriod(p *domain.Period, tr *domain.Tracker, now int64) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📅 Период %d: %s\n\n", p.Number, StateTitle(p.State(now))))
	sb.WriteString(fmt.Sprintf("Начало: %s\n", common.FormatDateTime(p.StartTime)))
	sb.WriteString(fmt.Sprintf("Конец: %s\n", common.FormatDateTime(p.EndTime)))
	sb.WriteString(fmt.Sprintf("Одобрено: %s (порог %s)\n",
		common.FormatPoints(p.TotalPoints), common.FormatPoints(tr.MinimumPointsThreshold)))
	sb.WriteString(fmt.Sprintf("Бюджет: %s\n", common.FormatTokens(p.TokensAllocated)))
	if p.IsFinalized {
		sb.WriteString(fmt.Sprintf("Выплачено: %s\n", common.FormatTokens(p.TokensDistributed)))
		sb.WriteString(fmt.Sprintf("Осталось: %s\n", common.FormatTokens(p.Remaining())))
	}
	sb.WriteString(fmt.Sprintf("Резерв трекера: %s", common.FormatTokens(tr.ReservePoolAmount)))
	return sb.String()
}

// StateTitle — название состояния периода.
func StateTitle(s domain.PeriodState) string {
	switch s {
	case domain.PeriodOpen:
		return "идёт"
	case domain.PeriodEnded:
		return "завершён, ждёт финализации"
	case domain.PeriodFinalized:
		return "финализирован"
	default:
		return string(s)
	}
}

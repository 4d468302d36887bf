// Package settlement — handlers.go обрабатывает команду !баланс.
package settlement

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
)

// historyLimit — сколько записей журнала показывать.
const historyLimit = 5

// Handler обрабатывает команды выплат.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleBalance показывает баланс участника и последние выплаты.
func (h *Handler) HandleBalance(ctx context.Context, chatID, userID int64) {
	account := common.TelegramAuthority(userID)
	balance, err := h.service.Balance(ctx, account)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "balance")
		return
	}
	history, err := h.service.History(ctx, account, historyLimit)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "history")
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("💰 Баланс: %s\n", common.FormatTokens(balance)))
	if len(history) > 0 {
		sb.WriteString("\nПоследние выплаты:\n")
		for _, s := range history {
			sb.WriteString(FormatSettlement(s) + "\n")
		}
	}
	common.SendText(h.bot, chatID, sb.String())
}

// FormatSettlement — строка журнала выплат.
func FormatSettlement(s *domain.Settlement) string {
	var kind string
	switch s.Kind {
	case domain.SettlementClaim:
		kind = "награда"
	case domain.SettlementReserve:
		kind = "в резерв"
	case domain.SettlementFund:
		kind = "пополнение"
	default:
		kind = string(s.Kind)
	}
	return fmt.Sprintf("%s · период %d · %s · %s",
		common.FormatDateTime(s.CreatedAt), s.Period, kind, common.FormatTokens(s.Amount))
}

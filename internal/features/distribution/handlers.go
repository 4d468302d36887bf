// Package distribution — handlers.go обрабатывает команды !получить и !прогноз.
package distribution

import (
	"context"
	"fmt"
	"strconv"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
)

// Handler обрабатывает команды получения наград.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт обработчик.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleClaim обрабатывает !получить <период>.
func (h *Handler) HandleClaim(ctx context.Context, chatID, userID int64, args []string) {
	number, ok := h.periodArg(chatID, args, "!получить")
	if !ok {
		return
	}
	reward, err := h.service.Claim(ctx, common.TelegramAuthority(userID), number)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "claim")
		return
	}
	if reward == 0 {
		common.SendText(h.bot, chatID, fmt.Sprintf(
			"Период %d отмечен, но начислять нечего: баллов к получению нет", number))
		return
	}
	common.SendText(h.bot, chatID, fmt.Sprintf("🎉 Награда за период %d: %s", number, common.FormatTokensDelta(reward)))
}

// HandlePreview обрабатывает !прогноз <период>.
func (h *Handler) HandlePreview(ctx context.Context, chatID, userID int64, args []string) {
	number, ok := h.periodArg(chatID, args, "!прогноз")
	if !ok {
		return
	}
	reward, err := h.service.Preview(ctx, common.TelegramAuthority(userID), number)
	if err != nil {
		common.ReplyError(h.bot, chatID, err, "preview")
		return
	}
	common.SendText(h.bot, chatID, fmt.Sprintf("🔮 За период %d вы получите %s", number, common.FormatTokens(reward)))
}

func (h *Handler) periodArg(chatID int64, args []string, command string) (uint64, bool) {
	if len(args) < 1 {
		common.SendText(h.bot, chatID, "Использование: "+command+" <номер периода>")
		return 0, false
	}
	number, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		common.SendText(h.bot, chatID, "❌ Номер периода должен быть числом")
		return 0, false
	}
	return number, true
}

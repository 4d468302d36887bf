// Package periods — repository.go загружает записи трекера и периодов
// из транзакции и переводит ошибки хранилища в ошибки трекера.
package periods

import (
	"context"
	"errors"
	"fmt"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

// LoadTracker читает трекер. Если трекер не запущен — ErrTrackerNotInitialized.
func LoadTracker(ctx context.Context, tx storage.Tx) (*domain.Tracker, error) {
	tr, err := tx.GetTracker(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, common.ErrTrackerNotInitialized
		}
		return nil, fmt.Errorf("ошибка чтения трекера: %w", err)
	}
	return tr, nil
}

// LoadPeriod читает период. Если периода нет — ErrPeriodDoesNotExist.
func LoadPeriod(ctx context.Context, tx storage.Tx, number uint64) (*domain.Period, error) {
	p, err := tx.GetPeriod(ctx, number)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("период %d: %w", number, common.ErrPeriodDoesNotExist)
		}
		return nil, fmt.Errorf("ошибка чтения периода %d: %w", number, err)
	}
	return p, nil
}

// LoadAdminTracker читает трекер и проверяет, что caller — администратор.
func LoadAdminTracker(ctx context.Context, tx storage.Tx, caller string) (*domain.Tracker, error) {
	tr, err := LoadTracker(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !tr.IsAdmin(caller) {
		return nil, common.ErrUnauthorizedAdmin
	}
	return tr, nil
}

// createPeriod создаёт запись периода; повторное создание — ошибка.
func createPeriod(ctx context.Context, tx storage.Tx, p *domain.Period) error {
	if err := tx.CreatePeriod(ctx, p); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return fmt.Errorf("период %d уже создан: %w", p.Number, err)
		}
		return fmt.Errorf("ошибка создания периода %d: %w", p.Number, err)
	}
	return nil
}

// newPeriod строит период number, начинающийся в start.
func newPeriod(number uint64, start, duration int64, tokens uint64) (*domain.Period, error) {
	if start < 0 || duration <= 0 || start > (1<<63-1)-duration {
		return nil, common.ErrInvalidTimestamp
	}
	return &domain.Period{
		Number:          number,
		StartTime:       start,
		EndTime:         start + duration,
		TokensAllocated: tokens,
	}, nil
}

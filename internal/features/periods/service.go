// Package periods управляет жизненным циклом периодов распределения:
// запуск трекера с периодом 0 и переход к следующему периоду.
package periods

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

// Service управляет трекером и периодами.
type Service struct {
	store   storage.Store
	clock   domain.Clock
	metrics *metrics.Metrics
}

// NewService создаёт сервис периодов.
func NewService(store storage.Store, clock domain.Clock, m *metrics.Metrics) *Service {
	return &Service{store: store, clock: clock, metrics: m}
}

// Bootstrap создаёт трекер с администратором caller и период 0.
// Повторный запуск — ErrTrackerAlreadyInitialized.
func (s *Service) Bootstrap(ctx context.Context, caller string, settings validation.TrackerSettings) (*domain.Tracker, *domain.Period, error) {
	if caller == "" {
		return nil, nil, common.ErrInvalidAuthority
	}
	if err := validation.ValidateTrackerSettings(settings); err != nil {
		return nil, nil, err
	}
	now := s.clock.Now()

	tracker := &domain.Tracker{
		Admin:                  caller,
		CurrentPeriod:          0,
		PeriodDuration:         settings.PeriodDuration,
		MinimumPointsThreshold: settings.MinimumPointsThreshold,
		TokensPerPeriod:        settings.TokensPerPeriod,
	}
	period, err := newPeriod(0, now, settings.PeriodDuration, settings.TokensPerPeriod)
	if err != nil {
		return nil, nil, err
	}

	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.CreateTracker(ctx, tracker); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				return common.ErrTrackerAlreadyInitialized
			}
			return fmt.Errorf("ошибка создания трекера: %w", err)
		}
		return createPeriod(ctx, tx, period)
	})
	if err != nil {
		return nil, nil, err
	}

	log.WithFields(log.Fields{
		"admin":       caller,
		"duration":    settings.PeriodDuration,
		"threshold":   settings.MinimumPointsThreshold,
		"tokens":      settings.TokensPerPeriod,
		"period0_end": period.EndTime,
	}).Info("Трекер запущен")
	return tracker, period, nil
}

// Advance закрывает текущий период и открывает следующий.
// Текущий период должен закончиться. Если он не был финализирован,
// он помечается финализированным без расчёта раздачи и сохраняет полный бюджет.
func (s *Service) Advance(ctx context.Context, caller string) (*domain.Period, error) {
	now := s.clock.Now()

	var (
		next       *domain.Period
		rolledOver bool
	)
	err := s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		tr, err := LoadAdminTracker(ctx, tx, caller)
		if err != nil {
			return err
		}
		current, err := LoadPeriod(ctx, tx, tr.CurrentPeriod)
		if err != nil {
			return err
		}
		if !current.HasEnded(now) {
			return common.ErrPeriodNotEnded
		}

		if !current.IsFinalized {
			current.IsFinalized = true
			rolledOver = true
			if err := tx.UpdatePeriod(ctx, current); err != nil {
				return fmt.Errorf("ошибка закрытия периода %d: %w", current.Number, err)
			}
		}

		number, err := domain.CheckedAdd(tr.CurrentPeriod, 1)
		if err != nil {
			return err
		}
		next, err = newPeriod(number, now, tr.PeriodDuration, tr.TokensPerPeriod)
		if err != nil {
			return err
		}
		if err := createPeriod(ctx, tx, next); err != nil {
			return err
		}

		tr.CurrentPeriod = number
		if err := tx.UpdateTracker(ctx, tr); err != nil {
			return fmt.Errorf("ошибка обновления трекера: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PeriodsAdvanced.Inc()
	if rolledOver {
		s.metrics.PeriodsFinalized.WithLabelValues("rollover").Inc()
	}
	log.WithFields(log.Fields{
		"period":      next.Number,
		"end_time":    next.EndTime,
		"rolled_over": rolledOver,
	}).Info("Открыт новый период")
	return next, nil
}

// Tracker возвращает состояние трекера.
func (s *Service) Tracker(ctx context.Context) (*domain.Tracker, error) {
	var tr *domain.Tracker
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		tr, err = LoadTracker(ctx, tx)
		return err
	})
	return tr, err
}

// Current возвращает текущий период.
func (s *Service) Current(ctx context.Context) (*domain.Period, error) {
	var p *domain.Period
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		tr, err := LoadTracker(ctx, tx)
		if err != nil {
			return err
		}
		p, err = LoadPeriod(ctx, tx, tr.CurrentPeriod)
		return err
	})
	return p, err
}

// Get возвращает период по номеру.
func (s *Service) Get(ctx context.Context, number uint64) (*domain.Period, error) {
	var p *domain.Period
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		p, err = LoadPeriod(ctx, tx, number)
		return err
	})
	return p, err
}

// Now — текущее время часов сервиса.
func (s *Service) Now() int64 { return s.clock.Now() }

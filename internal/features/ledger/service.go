// Package ledger ведёт журнал вкладов: отправка участником
// и рассмотрение администратором.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/scoring"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

// Service — журнал вкладов.
type Service struct {
	store   storage.Store
	clock   domain.Clock
	metrics *metrics.Metrics
}

// NewService создаёт сервис журнала.
func NewService(store storage.Store, clock domain.Clock, m *metrics.Metrics) *Service {
	return &Service{store: store, clock: clock, metrics: m}
}

// Submit регистрирует вклад участника caller в текущем периоде со статусом Pending.
// Баллы берутся из таблицы и больше не пересчитываются.
func (s *Service) Submit(ctx context.Context, caller string, category domain.Category, severity domain.Severity, description string) (*domain.Contribution, error) {
	if caller == "" {
		return nil, common.ErrInvalidAuthority
	}
	if err := validation.ValidateDescription(description); err != nil {
		return nil, err
	}
	points, err := scoring.Points(category, severity)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()

	var contribution *domain.Contribution
	err = s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		tr, err := periods.LoadTracker(ctx, tx)
		if err != nil {
			return err
		}
		period, err := periods.LoadPeriod(ctx, tx, tr.CurrentPeriod)
		if err != nil {
			return err
		}
		if period.IsFinalized {
			return common.ErrPeriodAlreadyFinalized
		}
		if now < period.StartTime {
			return common.ErrInvalidTimestamp
		}

		contributor, isNew, err := loadOrNewContributor(ctx, tx, caller)
		if err != nil {
			return err
		}
		if err := validation.ValidateSubmission(validation.Submission{
			Description:   description,
			Points:        points,
			Contributions: len(contributor.Contributions),
		}); err != nil {
			return err
		}

		contribution = &domain.Contribution{
			ID:          domain.ContributionID(caller, period.Number, len(contributor.Contributions)),
			Contributor: caller,
			Period:      period.Number,
			Category:    category,
			Severity:    severity,
			Points:      points,
			Timestamp:   now,
			Description: description,
			Status:      domain.StatusPending,
		}
		contributor.Contributions = append(contributor.Contributions, contribution.ID)

		// Участник создаётся раньше вклада: вклад ссылается на него
		if err := saveContributor(ctx, tx, contributor, isNew); err != nil {
			return err
		}
		if err := tx.CreateContribution(ctx, contribution); err != nil {
			return fmt.Errorf("ошибка создания вклада: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ContributionsSubmitted.Inc()
	log.WithFields(log.Fields{
		"id":          contribution.ID,
		"contributor": caller,
		"period":      contribution.Period,
		"category":    category,
		"severity":    severity,
		"points":      points,
	}).Info("Вклад отправлен")
	return contribution, nil
}

// Review одобряет или отклоняет вклад. Только для администратора.
// При одобрении баллы добавляются к периоду, участнику (всего и текущие)
// и трекеру одной транзакцией.
func (s *Service) Review(ctx context.Context, caller string, id uuid.UUID, approve bool) (*domain.Contribution, error) {
	var contribution *domain.Contribution
	err := s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		tr, err := periods.LoadAdminTracker(ctx, tx, caller)
		if err != nil {
			return err
		}
		contribution, err = loadContribution(ctx, tx, id)
		if err != nil {
			return err
		}
		status, err := contribution.Status.Review(approve)
		if err != nil {
			return err
		}
		period, err := periods.LoadPeriod(ctx, tx, contribution.Period)
		if err != nil {
			return err
		}
		if period.IsFinalized {
			return common.ErrPeriodAlreadyFinalized
		}

		if approve {
			if err := applyPoints(ctx, tx, tr, period, contribution); err != nil {
				return err
			}
		}

		contribution.Status = status
		if err := tx.UpdateContribution(ctx, contribution); err != nil {
			return fmt.Errorf("ошибка обновления вклада: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ContributionsReviewed.WithLabelValues(string(contribution.Status)).Inc()
	log.WithFields(log.Fields{
		"id":          contribution.ID,
		"contributor": contribution.Contributor,
		"status":      contribution.Status,
		"points":      contribution.Points,
	}).Info("Вклад рассмотрен")
	return contribution, nil
}

// applyPoints считает все четыре суммы до записи, чтобы переполнение
// в любой из них не оставило частичных изменений.
func applyPoints(ctx context.Context, tx storage.Tx, tr *domain.Tracker, period *domain.Period, c *domain.Contribution) error {
	contributor, err := LoadContributor(ctx, tx, c.Contributor)
	if err != nil {
		return err
	}
	points := uint64(c.Points)

	periodTotal, err := domain.CheckedAdd(period.TotalPoints, points)
	if err != nil {
		return err
	}
	allTime, err := domain.CheckedAdd(contributor.TotalPointsAllTime, points)
	if err != nil {
		return err
	}
	current, err := domain.CheckedAdd(contributor.CurrentPeriodPoints, points)
	if err != nil {
		return err
	}
	trackerTotal, err := domain.CheckedAdd(tr.TotalPointsAllTime, points)
	if err != nil {
		return err
	}

	period.TotalPoints = periodTotal
	contributor.TotalPointsAllTime = allTime
	contributor.CurrentPeriodPoints = current
	tr.TotalPointsAllTime = trackerTotal

	if err := tx.UpdatePeriod(ctx, period); err != nil {
		return fmt.Errorf("ошибка обновления периода: %w", err)
	}
	if err := tx.UpdateContributor(ctx, contributor); err != nil {
		return fmt.Errorf("ошибка обновления участника: %w", err)
	}
	if err := tx.UpdateTracker(ctx, tr); err != nil {
		return fmt.Errorf("ошибка обновления трекера: %w", err)
	}
	return nil
}

// Get возвращает вклад по идентификатору.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Contribution, error) {
	var c *domain.Contribution
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		c, err = loadContribution(ctx, tx, id)
		return err
	})
	return c, err
}

// Contributor возвращает запись участника.
func (s *Service) Contributor(ctx context.Context, authority string) (*domain.Contributor, error) {
	var c *domain.Contributor
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		c, err = LoadContributor(ctx, tx, authority)
		return err
	})
	return c, err
}

// ListByContributor возвращает вклады участника в порядке отправки.
func (s *Service) ListByContributor(ctx context.Context, authority string) ([]*domain.Contribution, error) {
	return s.list(ctx, storage.ContributionFilter{Contributor: authority})
}

// ListPending возвращает вклады, ожидающие рассмотрения.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*domain.Contribution, error) {
	return s.list(ctx, storage.ContributionFilter{Status: domain.StatusPending, Limit: limit})
}

// ListByPeriod возвращает вклады периода.
func (s *Service) ListByPeriod(ctx context.Context, number uint64) ([]*domain.Contribution, error) {
	return s.list(ctx, storage.ContributionFilter{Period: &number})
}

func (s *Service) list(ctx context.Context, f storage.ContributionFilter) ([]*domain.Contribution, error) {
	var out []*domain.Contribution
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListContributions(ctx, f)
		return err
	})
	return out, err
}

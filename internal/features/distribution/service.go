package distribution

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

// Service — движок распределения.
type Service struct {
	store      storage.Store
	settlement *settlement.Service
	clock      domain.Clock
	metrics    *metrics.Metrics
}

// NewService создаёт движок распределения.
func NewService(store storage.Store, settlementService *settlement.Service, clock domain.Clock, m *metrics.Metrics) *Service {
	return &Service{
		store:      store,
		settlement: settlementService,
		clock:      clock,
		metrics:    m,
	}
}

// Finalize фиксирует раздачу закончившегося периода. Только для администратора.
// Резерв переводится одним переводом; если перевод не удался, период
// остаётся нефинализированным.
func (s *Service) Finalize(ctx context.Context, caller string, number uint64) (*FinalizeResult, error) {
	now := s.clock.Now()

	var res FinalizeResult
	err := s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		tr, err := periods.LoadAdminTracker(ctx, tx, caller)
		if err != nil {
			return err
		}
		period, err := periods.LoadPeriod(ctx, tx, number)
		if err != nil {
			return err
		}
		if !period.HasEnded(now) {
			return common.ErrPeriodNotEnded
		}
		if period.IsFinalized {
			return common.ErrPeriodAlreadyFinalized
		}

		res = Split(period.TokensAllocated, period.TotalPoints, tr.MinimumPointsThreshold)
		res.Period = number

		if res.Reserve > 0 {
			reserve, err := domain.CheckedAdd(tr.ReservePoolAmount, res.Reserve)
			if err != nil {
				return fmt.Errorf("%w: %w", common.ErrReservePool, err)
			}
			if err := s.settlement.Reserve(ctx, tx, number, res.Reserve, now); err != nil {
				return err
			}
			tr.ReservePoolAmount = reserve
			if err := tx.UpdateTracker(ctx, tr); err != nil {
				return fmt.Errorf("ошибка обновления трекера: %w", err)
			}
		}

		period.TokensAllocated = res.Distribute
		period.IsFinalized = true
		period.DistributionProcessed = true
		if err := tx.UpdatePeriod(ctx, period); err != nil {
			return fmt.Errorf("ошибка обновления периода: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PeriodsFinalized.WithLabelValues("distribution").Inc()
	s.metrics.TokensReserved.Add(float64(res.Reserve))
	log.WithFields(log.Fields{
		"period":        number,
		"distribute":    res.Distribute,
		"reserve":       res.Reserve,
		"threshold_met": res.ThresholdMet,
	}).Info("Период финализирован")
	return &res, nil
}

// Claim выплачивает участнику caller его долю в периоде number.
// Награда = floor(текущие баллы * бюджет / баллы периода).
// Нулевая награда не переводится, но период всё равно отмечается полученным.
func (s *Service) Claim(ctx context.Context, caller string, number uint64) (uint64, error) {
	now := s.clock.Now()

	var reward uint64
	err := s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		period, contributor, err := loadClaim(ctx, tx, caller, number)
		if err != nil {
			return err
		}
		reward, err = rewardFor(contributor, period)
		if err != nil {
			return err
		}

		if reward > 0 {
			distributed, err := domain.CheckedAdd(period.TokensDistributed, reward)
			if err != nil || distributed > period.TokensAllocated {
				return fmt.Errorf("%w: выплачено %d + %d из %d", common.ErrDistributionCalculation,
					period.TokensDistributed, reward, period.TokensAllocated)
			}
			if err := s.settlement.PayReward(ctx, tx, number, caller, reward, now); err != nil {
				return err
			}
			contributor.CurrentPeriodPoints = 0
			period.TokensDistributed = distributed
			if err := tx.UpdatePeriod(ctx, period); err != nil {
				return fmt.Errorf("ошибка обновления периода: %w", err)
			}
		}

		contributor.LastClaimedPeriod = int64(number)
		if err := tx.UpdateContributor(ctx, contributor); err != nil {
			return fmt.Errorf("ошибка обновления участника: %w", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.Claims.WithLabelValues("rejected").Inc()
		return 0, err
	}

	outcome := "paid"
	if reward == 0 {
		outcome = "zero"
	}
	s.metrics.Claims.WithLabelValues(outcome).Inc()
	s.metrics.TokensDistributed.Add(float64(reward))
	log.WithFields(log.Fields{
		"period":      number,
		"contributor": caller,
		"reward":      reward,
	}).Info("Награда получена")
	return reward, nil
}

// Preview считает награду, не меняя состояние.
func (s *Service) Preview(ctx context.Context, caller string, number uint64) (uint64, error) {
	var reward uint64
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		period, contributor, err := loadClaim(ctx, tx, caller, number)
		if err != nil {
			return err
		}
		reward, err = rewardFor(contributor, period)
		return err
	})
	return reward, err
}

// loadClaim проверяет условия получения награды в порядке:
// период существует и финализирован, участник есть и ещё не получал,
// в периоде есть баллы.
func loadClaim(ctx context.Context, tx storage.Tx, caller string, number uint64) (*domain.Period, *domain.Contributor, error) {
	if caller == "" {
		return nil, nil, common.ErrInvalidAuthority
	}
	tr, err := periods.LoadTracker(ctx, tx)
	if err != nil {
		return nil, nil, err
	}
	if number > tr.CurrentPeriod {
		return nil, nil, common.ErrFuturePeriodClaim
	}
	period, err := periods.LoadPeriod(ctx, tx, number)
	if err != nil {
		return nil, nil, err
	}
	if !period.IsFinalized {
		return nil, nil, common.ErrPeriodNotEnded
	}
	contributor, err := ledger.LoadContributor(ctx, tx, caller)
	if err != nil {
		return nil, nil, err
	}
	if contributor.Authority != caller {
		return nil, nil, common.ErrInvalidAuthority
	}
	if contributor.HasClaimed(number) {
		return nil, nil, common.ErrAlreadyClaimed
	}
	if period.TotalPoints == 0 {
		return nil, nil, common.ErrInsufficientPoints
	}
	return period, contributor, nil
}

func rewardFor(c *domain.Contributor, p *domain.Period) (uint64, error) {
	reward, err := domain.MulDiv(c.CurrentPeriodPoints, p.TokensAllocated, p.TotalPoints)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", common.ErrDistributionCalculation, err)
	}
	return reward, nil
}

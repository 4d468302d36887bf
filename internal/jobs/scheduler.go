// Package jobs управляет фоновыми задачами (cron).
// scheduler.go запускает хранителя периодов: закончившийся период
// финализируется, после чего открывается следующий.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/distribution"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
)

// Результаты прогона для метрики keeper_runs_total.
const (
	ResultIdle     = "idle"
	ResultAdvanced = "advanced"
	ResultSkipped  = "skipped"
	ResultError    = "error"
)

// Keeper закрывает периоды по расписанию от имени администратора трекера.
type Keeper struct {
	cron         *cron.Cron
	schedule     string
	authority    string
	periods      *periods.Service
	distribution *distribution.Service
	metrics      *metrics.Metrics
	notify       func(text string)

	// прогоны не пересекаются
	mu sync.Mutex
}

// NewKeeper создаёт хранителя. timezone — IANA-зона для расписания,
// при ошибке загрузки используется UTC. notify может быть nil.
func NewKeeper(
	schedule, timezone, authority string,
	periodService *periods.Service,
	distributionService *distribution.Service,
	m *metrics.Metrics,
	notify func(text string),
) *Keeper {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		log.WithError(err).Warnf("Не удалось загрузить %s, используем UTC", timezone)
		loc = time.UTC
	}

	return &Keeper{
		cron:         cron.New(cron.WithLocation(loc)),
		schedule:     schedule,
		authority:    authority,
		periods:      periodService,
		distribution: distributionService,
		metrics:      m,
		notify:       notify,
	}
}

// Start регистрирует задачу и запускает планировщик.
func (k *Keeper) Start(ctx context.Context) error {
	_, err := k.cron.AddFunc(k.schedule, func() {
		log.Debug("[CRON] Проверка периода")
		if _, err := k.RunOnce(ctx); err != nil {
			log.WithError(err).Error("[CRON] Ошибка смены периода")
		}
	})
	if err != nil {
		return fmt.Errorf("некорректное расписание %q: %w", k.schedule, err)
	}

	k.cron.Start()
	log.WithField("schedule", k.schedule).Info("Хранитель периодов запущен")
	return nil
}

// Stop останавливает планировщик и ждёт текущий прогон.
func (k *Keeper) Stop() {
	ctx := k.cron.Stop()
	<-ctx.Done()
	log.Info("Хранитель периодов остановлен")
}

// RunOnce выполняет один прогон и возвращает его результат.
func (k *Keeper) RunOnce(ctx context.Context) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	result, err := k.run(ctx)
	k.metrics.KeeperRuns.WithLabelValues(result).Inc()
	return result, err
}

func (k *Keeper) run(ctx context.Context) (string, error) {
	current, err := k.periods.Current(ctx)
	if errors.Is(err, common.ErrTrackerNotInitialized) {
		return ResultSkipped, nil
	}
	if err != nil {
		return ResultError, err
	}
	if !current.HasEnded(k.periods.Now()) {
		return ResultIdle, nil
	}

	res, err := k.distribution.Finalize(ctx, k.authority, current.Number)
	switch {
	case errors.Is(err, common.ErrPeriodAlreadyFinalized):
	case err != nil:
		// Период закрывается только после успешной финализации
		return ResultError, fmt.Errorf("финализация периода %d: %w", current.Number, err)
	default:
		k.send(finalizeText(res))
	}

	next, err := k.periods.Advance(ctx, k.authority)
	if err != nil {
		return ResultError, fmt.Errorf("открытие периода после %d: %w", current.Number, err)
	}
	k.send(fmt.Sprintf("▶️ Открыт период %d до %s",
		next.Number, common.FormatDateTime(next.EndTime)))
	return ResultAdvanced, nil
}

func (k *Keeper) send(text string) {
	if k.notify != nil {
		k.notify(text)
	}
}

func finalizeText(res *distribution.FinalizeResult) string {
	text := fmt.Sprintf("🏁 Период %d завершён. К раздаче: %s",
		res.Period, common.FormatTokens(res.Distribute))
	if res.Reserve > 0 {
		text += fmt.Sprintf("\nПорог баллов не набран, в резерв: %s", common.FormatTokens(res.Reserve))
	}
	if res.Distribute > 0 {
		text += fmt.Sprintf("\nЗабрать награду: !получить %d", res.Period)
	}
	return text
}

// Package metrics — счётчики Prometheus трекера вкладов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "contribution_tracker"

// Metrics хранит все счётчики. Регистрируются в переданном Registerer,
// чтобы тесты могли использовать отдельный реестр.
type Metrics struct {
	ContributionsSubmitted prometheus.Counter
	ContributionsReviewed  *prometheus.CounterVec
	PeriodsAdvanced        prometheus.Counter
	PeriodsFinalized       *prometheus.CounterVec
	TokensReserved         prometheus.Counter
	Claims                 *prometheus.CounterVec
	TokensDistributed      prometheus.Counter
	TokensFunded           prometheus.Counter
	KeeperRuns             *prometheus.CounterVec
}

// New создаёт и регистрирует счётчики.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ContributionsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contributions_submitted_total",
			Help:      "Отправленные вклады",
		}),
		ContributionsReviewed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "contributions_reviewed_total",
			Help:      "Рассмотренные вклады по результату",
		}, []string{"result"}),
		PeriodsAdvanced: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_advanced_total",
			Help:      "Открытые новые периоды",
		}),
		PeriodsFinalized: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "periods_finalized_total",
			Help:      "Финализированные периоды: distribution или rollover",
		}, []string{"mode"}),
		TokensReserved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_reserved_total",
			Help:      "Токены, ушедшие в резерв",
		}),
		Claims: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Получение наград по исходу",
		}, []string{"outcome"}),
		TokensDistributed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_distributed_total",
			Help:      "Выплаченные участникам токены",
		}),
		TokensFunded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_funded_total",
			Help:      "Пополнения хранилища наград",
		}),
		KeeperRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keeper_runs_total",
			Help:      "Запуски фоновой смены периодов по результату",
		}, []string{"result"}),
	}
}

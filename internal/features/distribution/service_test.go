package distribution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage/memory"
	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

const (
	admin = "tg:1"
	alice = "tg:100"
	bob   = "tg:200"
	carol = "tg:300"

	start = int64(1_700_000_000)
	day   = int64(86400)
)

var vaults = settlement.Vaults{Reward: "vault:reward", Reserve: "vault:reserve"}

// switchTransferer переводит через хранилище, пока fail не выставлен.
type switchTransferer struct {
	fail  atomic.Bool
	calls atomic.Int64
}

func (s *switchTransferer) Transfer(ctx context.Context, tx storage.Tx, from, to string, amount uint64) error {
	s.calls.Add(1)
	if s.fail.Load() {
		return errors.New("казначейство недоступно")
	}
	return settlement.VaultTransferer{}.Transfer(ctx, tx, from, to, amount)
}

type fixture struct {
	ctx        context.Context
	store      *memory.Store
	clock      *domain.ManualClock
	metrics    *metrics.Metrics
	transfer   *switchTransferer
	periods    *periods.Service
	ledger     *ledger.Service
	settlement *settlement.Service
	engine     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    memory.NewStore(),
		clock:    domain.NewManualClock(start),
		metrics:  metrics.New(prometheus.NewRegistry()),
		transfer: &switchTransferer{},
	}
	f.periods = periods.NewService(f.store, f.clock, f.metrics)
	f.ledger = ledger.NewService(f.store, f.clock, f.metrics)
	f.settlement = settlement.NewService(f.store, f.transfer, vaults, f.clock, f.metrics)
	f.engine = NewService(f.store, f.settlement, f.clock, f.metrics)

	_, _, err := f.periods.Bootstrap(f.ctx, admin, validation.TrackerSettings{
		PeriodDuration:         day,
		MinimumPointsThreshold: 100,
		TokensPerPeriod:        1000,
	})
	require.NoError(t, err)
	_, err = f.settlement.Fund(f.ctx, admin, 1_000_000)
	require.NoError(t, err)
	return f
}

// approved отправляет и одобряет вклад, возвращает его баллы.
func (f *fixture) approved(t *testing.T, who string, c domain.Category, s domain.Severity) uint8 {
	t.Helper()
	contribution, err := f.ledger.Submit(f.ctx, who, c, s, "работа")
	require.NoError(t, err)
	_, err = f.ledger.Review(f.ctx, admin, contribution.ID, true)
	require.NoError(t, err)
	return contribution.Points
}

func (f *fixture) period(t *testing.T, n uint64) *domain.Period {
	t.Helper()
	p, err := f.periods.Get(f.ctx, n)
	require.NoError(t, err)
	return p
}

func (f *fixture) contributor(t *testing.T, who string) *domain.Contributor {
	t.Helper()
	c, err := f.ledger.Contributor(f.ctx, who)
	require.NoError(t, err)
	return c
}

func (f *fixture) balance(t *testing.T, account string) uint64 {
	t.Helper()
	b, err := f.settlement.Balance(f.ctx, account)
	require.NoError(t, err)
	return b
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)

	// Запуск: период 0 длится сутки
	p0 := f.period(t, 0)
	assert.Equal(t, start, p0.StartTime)
	assert.Equal(t, start+day, p0.EndTime)
	assert.Zero(t, p0.TotalPoints)
	assert.Equal(t, uint64(1000), p0.TokensAllocated)

	// Критичное исправление бага = 10 баллов, статус Pending
	c, err := f.ledger.Submit(f.ctx, alice, domain.BugFix, domain.Critical, "падение при старте")
	require.NoError(t, err)
	assert.Equal(t, uint8(10), c.Points)
	assert.Equal(t, domain.StatusPending, c.Status)

	// Одобрение
	_, err = f.ledger.Review(f.ctx, admin, c.ID, true)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), f.period(t, 0).TotalPoints)
	assert.Equal(t, uint64(10), f.contributor(t, alice).CurrentPeriodPoints)
	tr, err := f.periods.Tracker(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tr.TotalPointsAllTime)

	// Финализация ниже порога: половина в раздачу, половина в резерв
	f.clock.Advance(day)
	res, err := f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), res.Distribute)
	assert.Equal(t, uint64(500), res.Reserve)
	assert.False(t, res.ThresholdMet)

	p0 = f.period(t, 0)
	assert.True(t, p0.IsFinalized)
	assert.True(t, p0.DistributionProcessed)
	assert.Equal(t, uint64(500), p0.TokensAllocated)
	tr, err = f.periods.Tracker(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), tr.ReservePoolAmount)
	assert.Equal(t, uint64(500), f.balance(t, vaults.Reserve))

	// Единственный участник получает всё
	reward, err := f.engine.Claim(f.ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), reward)
	assert.Equal(t, uint64(500), f.balance(t, alice))

	contributor := f.contributor(t, alice)
	assert.Zero(t, contributor.CurrentPeriodPoints)
	assert.Equal(t, int64(0), contributor.LastClaimedPeriod)
	assert.Equal(t, uint64(500), f.period(t, 0).TokensDistributed)

	// Повторное получение отклоняется без перевода
	calls := f.transfer.calls.Load()
	_, err = f.engine.Claim(f.ctx, alice, 0)
	assert.ErrorIs(t, err, common.ErrAlreadyClaimed)
	assert.Equal(t, calls, f.transfer.calls.Load())
	assert.Equal(t, uint64(500), f.balance(t, alice))

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Claims.WithLabelValues("paid")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Claims.WithLabelValues("rejected")))
	assert.Equal(t, 500.0, testutil.ToFloat64(f.metrics.TokensReserved))
}

func TestFinalizeThresholdMet(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		f.approved(t, alice, domain.BugFix, domain.Critical)
	}
	require.Equal(t, uint64(100), f.period(t, 0).TotalPoints)

	f.clock.Advance(day)
	res, err := f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)
	assert.True(t, res.ThresholdMet)
	assert.Equal(t, uint64(1000), res.Distribute)
	assert.Zero(t, res.Reserve)
	assert.Zero(t, f.balance(t, vaults.Reserve))

	history, err := f.settlement.History(f.ctx, vaults.Reserve, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestFinalizeOddAllocationRemainderGoesToReserve(t *testing.T) {
	res := Split(1001, 5, 100)
	assert.Equal(t, uint64(500), res.Distribute)
	assert.Equal(t, uint64(501), res.Reserve)

	res = Split(1001, 100, 100)
	assert.Equal(t, uint64(1001), res.Distribute)
	assert.Zero(t, res.Reserve)
}

func TestFinalizePreconditions(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.Finalize(f.ctx, admin, 0)
	assert.ErrorIs(t, err, common.ErrPeriodNotEnded)

	f.clock.Advance(day)
	_, err = f.engine.Finalize(f.ctx, alice, 0)
	assert.ErrorIs(t, err, common.ErrUnauthorizedAdmin)

	_, err = f.engine.Finalize(f.ctx, admin, 7)
	assert.ErrorIs(t, err, common.ErrPeriodDoesNotExist)

	_, err = f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)
	_, err = f.engine.Finalize(f.ctx, admin, 0)
	assert.ErrorIs(t, err, common.ErrPeriodAlreadyFinalized)
}

func TestFinalizeTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)
	f.clock.Advance(day)

	f.transfer.fail.Store(true)
	_, err := f.engine.Finalize(f.ctx, admin, 0)
	assert.ErrorIs(t, err, common.ErrTokenTransferFailed)
	assert.Equal(t, common.CategoryExternal, common.Classify(err))

	p0 := f.period(t, 0)
	assert.False(t, p0.IsFinalized)
	assert.Equal(t, uint64(1000), p0.TokensAllocated)
	tr, err := f.periods.Tracker(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, tr.ReservePoolAmount)

	f.transfer.fail.Store(false)
	_, err = f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)
}

func TestClaimPreconditions(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)

	_, err := f.engine.Claim(f.ctx, alice, 0)
	assert.ErrorIs(t, err, common.ErrPeriodNotEnded)

	_, err = f.engine.Claim(f.ctx, alice, 1)
	assert.ErrorIs(t, err, common.ErrFuturePeriodClaim)

	f.clock.Advance(day)
	_, err = f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	_, err = f.engine.Claim(f.ctx, bob, 0)
	assert.ErrorIs(t, err, common.ErrContributorNotInitialized)

	_, err = f.engine.Claim(f.ctx, "", 0)
	assert.ErrorIs(t, err, common.ErrInvalidAuthority)
}

func TestClaimZeroTotalPoints(t *testing.T) {
	f := newFixture(t)
	c, err := f.ledger.Submit(f.ctx, alice, domain.BugReport, domain.Minor, "опечатка")
	require.NoError(t, err)
	_, err = f.ledger.Review(f.ctx, admin, c.ID, false)
	require.NoError(t, err)

	f.clock.Advance(day)
	_, err = f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	_, err = f.engine.Claim(f.ctx, alice, 0)
	assert.ErrorIs(t, err, common.ErrInsufficientPoints)
	assert.Equal(t, domain.NeverClaimed, f.contributor(t, alice).LastClaimedPeriod)
}

func TestClaimZeroRewardAdvancesMarker(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)

	// Отклонённый вклад: у bob есть запись, но нет баллов
	c, err := f.ledger.Submit(f.ctx, bob, domain.BugReport, domain.Minor, "дубль")
	require.NoError(t, err)
	_, err = f.ledger.Review(f.ctx, admin, c.ID, false)
	require.NoError(t, err)

	f.clock.Advance(day)
	_, err = f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	calls := f.transfer.calls.Load()
	reward, err := f.engine.Claim(f.ctx, bob, 0)
	require.NoError(t, err)
	assert.Zero(t, reward)
	assert.Equal(t, calls, f.transfer.calls.Load())
	assert.Equal(t, int64(0), f.contributor(t, bob).LastClaimedPeriod)
	assert.Zero(t, f.period(t, 0).TokensDistributed)

	_, err = f.engine.Claim(f.ctx, bob, 0)
	assert.ErrorIs(t, err, common.ErrAlreadyClaimed)
}

func TestClaimConservation(t *testing.T) {
	f := newFixture(t)
	// 1 + 2 + 7 баллов
	points := map[string]uint8{
		alice: f.approved(t, alice, domain.BugReport, domain.Minor),
		bob:   f.approved(t, bob, domain.BugFix, domain.Minor),
		carol: f.approved(t, carol, domain.BugFix, domain.Major),
	}
	var total uint64
	for _, p := range points {
		total += uint64(p)
	}
	require.Equal(t, uint64(10), total)

	f.clock.Advance(day)
	res, err := f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	var paid uint64
	for who := range points {
		reward, err := f.engine.Claim(f.ctx, who, 0)
		require.NoError(t, err)
		paid += reward
	}

	p0 := f.period(t, 0)
	assert.Equal(t, paid, p0.TokensDistributed)
	assert.LessOrEqual(t, paid, res.Distribute)
	assert.Less(t, res.Distribute-paid, total)
	assert.Equal(t, paid, f.balance(t, alice)+f.balance(t, bob)+f.balance(t, carol))
}

func TestClaimTransferFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)
	f.clock.Advance(day)
	_, err := f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	f.transfer.fail.Store(true)
	_, err = f.engine.Claim(f.ctx, alice, 0)
	assert.ErrorIs(t, err, common.ErrTokenTransferFailed)

	c := f.contributor(t, alice)
	assert.Equal(t, domain.NeverClaimed, c.LastClaimedPeriod)
	assert.Equal(t, uint64(10), c.CurrentPeriodPoints)
	assert.Zero(t, f.period(t, 0).TokensDistributed)

	f.transfer.fail.Store(false)
	reward, err := f.engine.Claim(f.ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), reward)
}

func TestClaimEmptyVaultFails(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)
	f.clock.Advance(day)
	_, err := f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	// Выводим всё из хранилища наград
	require.NoError(t, f.store.Atomic(f.ctx, func(ctx context.Context, tx storage.Tx) error {
		balance, err := tx.Balance(ctx, vaults.Reward)
		require.NoError(t, err)
		return tx.Transfer(ctx, vaults.Reward, "elsewhere", balance)
	}))

	_, err = f.engine.Claim(f.ctx, alice, 0)
	assert.ErrorIs(t, err, common.ErrTokenTransferFailed)
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)
	f.clock.Advance(day)
	_, err := f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	const workers = 16
	var (
		wg       sync.WaitGroup
		paid     atomic.Int64
		rejected atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Claim(f.ctx, alice, 0)
			switch {
			case err == nil:
				paid.Add(1)
			case errors.Is(err, common.ErrAlreadyClaimed):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), paid.Load())
	assert.Equal(t, int64(workers-1), rejected.Load())
	assert.Equal(t, uint64(500), f.balance(t, alice))
}

// Период, закрытый сменой периода без финализации, остаётся доступным
// для получения наград с полным исходным бюджетом.
func TestRolloverFinalizedPeriodKeepsFullAllocation(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)

	f.clock.Advance(day)
	_, err := f.periods.Advance(f.ctx, admin)
	require.NoError(t, err)

	p0 := f.period(t, 0)
	assert.True(t, p0.IsFinalized)
	assert.False(t, p0.DistributionProcessed)
	assert.Equal(t, uint64(1000), p0.TokensAllocated)

	_, err = f.engine.Finalize(f.ctx, admin, 0)
	assert.ErrorIs(t, err, common.ErrPeriodAlreadyFinalized)

	reward, err := f.engine.Claim(f.ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), reward)
	assert.Zero(t, f.balance(t, vaults.Reserve))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PeriodsFinalized.WithLabelValues("rollover")))
}

// Текущие баллы участника копятся между периодами до получения награды.
// Получение за поздний период учитывает все накопленные баллы, и выплата
// сверх бюджета периода отклоняется.
func TestPointsAccumulateAcrossPeriodsUntilClaim(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)

	f.clock.Advance(day)
	_, err := f.periods.Advance(f.ctx, admin)
	require.NoError(t, err)

	f.approved(t, alice, domain.BugFix, domain.Critical)
	f.approved(t, bob, domain.BugFix, domain.Critical)
	require.Equal(t, uint64(20), f.contributor(t, alice).CurrentPeriodPoints)

	f.clock.Advance(day)
	_, err = f.engine.Finalize(f.ctx, admin, 1)
	require.NoError(t, err)

	reward, err := f.engine.Claim(f.ctx, alice, 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), reward)

	_, err = f.engine.Claim(f.ctx, bob, 1)
	assert.ErrorIs(t, err, common.ErrDistributionCalculation)
	assert.Equal(t, common.CategoryArithmetic, common.Classify(err))

	// Период 0 пропущен: маркер уже на периоде 1
	_, err = f.engine.Claim(f.ctx, alice, 0)
	assert.ErrorIs(t, err, common.ErrAlreadyClaimed)
}

func TestPreviewDoesNotMutate(t *testing.T) {
	f := newFixture(t)
	f.approved(t, alice, domain.BugFix, domain.Critical)
	f.approved(t, bob, domain.BugFix, domain.Minor)
	f.clock.Advance(day)
	_, err := f.engine.Finalize(f.ctx, admin, 0)
	require.NoError(t, err)

	reward, err := f.engine.Preview(f.ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(416), reward) // 10 * 500 / 12

	assert.Equal(t, domain.NeverClaimed, f.contributor(t, alice).LastClaimedPeriod)
	claimed, err := f.engine.Claim(f.ctx, alice, 0)
	require.NoError(t, err)
	assert.Equal(t, reward, claimed)
}

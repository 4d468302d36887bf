// Package settlement проводит переводы токенов трекера и ведёт журнал выплат.
// Каждый перевод выполняется внутри транзакции вызывающей операции:
// если перевод не удался, операция откатывается целиком.
package settlement

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

// Transferer — примитив перевода токенов между счетами.
type Transferer interface {
	Transfer(ctx context.Context, tx storage.Tx, from, to string, amount uint64) error
}

// VaultTransferer переводит токены по счетам хранилища в той же транзакции.
type VaultTransferer struct{}

func (VaultTransferer) Transfer(ctx context.Context, tx storage.Tx, from, to string, amount uint64) error {
	return tx.Transfer(ctx, from, to, amount)
}

// Vaults — счета, с которыми работает трекер.
type Vaults struct {
	Reward  string
	Reserve string
}

// Service проводит выплаты.
type Service struct {
	store    storage.Store
	transfer Transferer
	vaults   Vaults
	clock    domain.Clock
	metrics  *metrics.Metrics
}

// NewService создаёт сервис выплат.
func NewService(store storage.Store, transfer Transferer, vaults Vaults, clock domain.Clock, m *metrics.Metrics) *Service {
	return &Service{
		store:    store,
		transfer: transfer,
		vaults:   vaults,
		clock:    clock,
		metrics:  m,
	}
}

// Vaults возвращает настроенные счета.
func (s *Service) Vaults() Vaults { return s.vaults }

// PayReward переводит награду из хранилища наград участнику и пишет запись в журнал.
func (s *Service) PayReward(ctx context.Context, tx storage.Tx, period uint64, to string, amount uint64, now int64) error {
	return s.move(ctx, tx, domain.SettlementClaim, period, s.vaults.Reward, to, amount, now)
}

// Reserve переводит недораспределённые токены периода в резерв.
func (s *Service) Reserve(ctx context.Context, tx storage.Tx, period uint64, amount uint64, now int64) error {
	return s.move(ctx, tx, domain.SettlementReserve, period, s.vaults.Reward, s.vaults.Reserve, amount, now)
}

func (s *Service) move(ctx context.Context, tx storage.Tx, kind domain.SettlementKind, period uint64, from, to string, amount uint64, now int64) error {
	if err := s.transfer.Transfer(ctx, tx, from, to, amount); err != nil {
		return fmt.Errorf("%w: %w", common.ErrTokenTransferFailed, err)
	}
	err := tx.RecordSettlement(ctx, &domain.Settlement{
		Kind:      kind,
		Period:    period,
		From:      from,
		To:        to,
		Amount:    amount,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("ошибка записи выплаты: %w", err)
	}
	return nil
}

// Fund пополняет хранилище наград. Только для администратора.
func (s *Service) Fund(ctx context.Context, caller string, amount uint64) (uint64, error) {
	if amount == 0 {
		return 0, common.ErrInvalidAmount
	}
	now := s.clock.Now()

	var balance uint64
	err := s.store.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		tr, err := periods.LoadTracker(ctx, tx)
		if err != nil {
			return err
		}
		if !tr.IsAdmin(caller) {
			return common.ErrUnauthorizedAdmin
		}
		if err := tx.Credit(ctx, s.vaults.Reward, amount); err != nil {
			return fmt.Errorf("ошибка пополнения: %w", err)
		}
		if err := tx.RecordSettlement(ctx, &domain.Settlement{
			Kind:      domain.SettlementFund,
			Period:    tr.CurrentPeriod,
			From:      caller,
			To:        s.vaults.Reward,
			Amount:    amount,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("ошибка записи выплаты: %w", err)
		}
		balance, err = tx.Balance(ctx, s.vaults.Reward)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.metrics.TokensFunded.Add(float64(amount))
	log.WithFields(log.Fields{
		"admin":   caller,
		"amount":  amount,
		"balance": balance,
	}).Info("Хранилище наград пополнено")
	return balance, nil
}

// Balance возвращает баланс счёта.
func (s *Service) Balance(ctx context.Context, account string) (uint64, error) {
	var balance uint64
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		balance, err = tx.Balance(ctx, account)
		return err
	})
	return balance, err
}

// History возвращает последние записи журнала по счёту.
func (s *Service) History(ctx context.Context, account string, limit int) ([]*domain.Settlement, error) {
	var out []*domain.Settlement
	err := s.store.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		out, err = tx.ListSettlements(ctx, account, limit)
		return err
	})
	return out, err
}

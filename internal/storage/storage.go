// Package storage описывает хранилище записей трекера.
// Каждая операция трекера выполняется внутри одной транзакции Atomic:
// все изменения и перевод токенов фиксируются вместе или не фиксируются вовсе.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
)

var (
	// ErrNotFound — запись с таким ключом не существует
	ErrNotFound = errors.New("запись не найдена")
	// ErrDuplicate — запись с таким ключом уже создана
	ErrDuplicate = errors.New("запись уже существует")
)

// Store — хранилище с транзакциями.
type Store interface {
	// Atomic выполняет fn в транзакции на запись.
	// Записи, прочитанные через tx, заблокированы до конца транзакции.
	// Если fn вернула ошибку, ни одно изменение не сохраняется.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	// View выполняет fn только на чтение.
	View(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// ContributionFilter — условия выборки вкладов. Пустые поля не фильтруют.
type ContributionFilter struct {
	Contributor string
	Period      *uint64
	Status      domain.Status
	Limit       int
}

// Match проверяет вклад по фильтру.
func (f ContributionFilter) Match(c *domain.Contribution) bool {
	if f.Contributor != "" && c.Contributor != f.Contributor {
		return false
	}
	if f.Period != nil && c.Period != *f.Period {
		return false
	}
	if f.Status != "" && c.Status != f.Status {
		return false
	}
	return true
}

// Tx — операции над записями внутри транзакции.
// Get возвращают копию; изменения сохраняются только через Update.
type Tx interface {
	GetTracker(ctx context.Context) (*domain.Tracker, error)
	CreateTracker(ctx context.Context, t *domain.Tracker) error
	UpdateTracker(ctx context.Context, t *domain.Tracker) error

	GetPeriod(ctx context.Context, number uint64) (*domain.Period, error)
	CreatePeriod(ctx context.Context, p *domain.Period) error
	UpdatePeriod(ctx context.Context, p *domain.Period) error

	GetContributor(ctx context.Context, authority string) (*domain.Contributor, error)
	CreateContributor(ctx context.Context, c *domain.Contributor) error
	UpdateContributor(ctx context.Context, c *domain.Contributor) error

	GetContribution(ctx context.Context, id uuid.UUID) (*domain.Contribution, error)
	CreateContribution(ctx context.Context, c *domain.Contribution) error
	UpdateContribution(ctx context.Context, c *domain.Contribution) error
	ListContributions(ctx context.Context, f ContributionFilter) ([]*domain.Contribution, error)

	// Transfer переводит amount со счёта from на счёт to.
	Transfer(ctx context.Context, from, to string, amount uint64) error
	// Credit зачисляет amount на счёт (пополнение хранилища наград).
	Credit(ctx context.Context, account string, amount uint64) error
	Balance(ctx context.Context, account string) (uint64, error)

	RecordSettlement(ctx context.Context, s *domain.Settlement) error
	ListSettlements(ctx context.Context, account string, limit int) ([]*domain.Settlement, error)
}

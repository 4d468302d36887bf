// Package ledger — repository.go читает и сохраняет участников и вклады
// в рамках транзакции хранилища.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

// LoadContributor читает участника. Если он ещё ничего не отправлял —
// ErrContributorNotInitialized.
func LoadContributor(ctx context.Context, tx storage.Tx, authority string) (*domain.Contributor, error) {
	c, err := tx.GetContributor(ctx, authority)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, common.ErrContributorNotInitialized
		}
		return nil, fmt.Errorf("ошибка чтения участника: %w", err)
	}
	return c, nil
}

// loadOrNewContributor возвращает участника и признак того, что он новый.
func loadOrNewContributor(ctx context.Context, tx storage.Tx, authority string) (*domain.Contributor, bool, error) {
	c, err := LoadContributor(ctx, tx, authority)
	if errors.Is(err, common.ErrContributorNotInitialized) {
		return domain.NewContributor(authority), true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return c, false, nil
}

func saveContributor(ctx context.Context, tx storage.Tx, c *domain.Contributor, isNew bool) error {
	var err error
	if isNew {
		err = tx.CreateContributor(ctx, c)
	} else {
		err = tx.UpdateContributor(ctx, c)
	}
	if err != nil {
		return fmt.Errorf("ошибка сохранения участника: %w", err)
	}
	return nil
}

func loadContribution(ctx context.Context, tx storage.Tx, id uuid.UUID) (*domain.Contribution, error) {
	c, err := tx.GetContribution(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, common.ErrContributionNotFound
		}
		return nil, fmt.Errorf("ошибка чтения вклада: %w", err)
	}
	return c, nil
}

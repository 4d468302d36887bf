package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

func TestAtomicCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreatePeriod(ctx, &domain.Period{Number: 0, EndTime: 10})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.GetPeriod(ctx, 0)
		require.NoError(t, err)
		p.TotalPoints = 99
		require.NoError(t, tx.UpdatePeriod(ctx, p))
		require.NoError(t, tx.CreatePeriod(ctx, &domain.Period{Number: 1}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		p, err := tx.GetPeriod(ctx, 0)
		require.NoError(t, err)
		assert.Zero(t, p.TotalPoints)
		_, err = tx.GetPeriod(ctx, 1)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestCreateOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	err := s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.CreateTracker(ctx, &domain.Tracker{Admin: "a"}))
		assert.ErrorIs(t, tx.CreateTracker(ctx, &domain.Tracker{Admin: "b"}), storage.ErrDuplicate)
		require.NoError(t, tx.CreateContributor(ctx, domain.NewContributor("x")))
		assert.ErrorIs(t, tx.CreateContributor(ctx, domain.NewContributor("x")), storage.ErrDuplicate)
		return nil
	})
	require.NoError(t, err)

	err = s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateContributor(ctx, domain.NewContributor("nobody"))
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	id := domain.ContributionID("x", 0, 0)

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		c := domain.NewContributor("x")
		c.Contributions = append(c.Contributions, id)
		return tx.CreateContributor(ctx, c)
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		c, err := tx.GetContributor(ctx, "x")
		require.NoError(t, err)
		c.Contributions[0] = domain.ContributionID("y", 0, 0)
		c.TotalPointsAllTime = 100

		again, err := tx.GetContributor(ctx, "x")
		require.NoError(t, err)
		assert.Equal(t, id, again.Contributions[0])
		assert.Zero(t, again.TotalPointsAllTime)
		return nil
	}))
}

func TestViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	err := s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.CreatePeriod(ctx, &domain.Period{})
	})
	assert.Error(t, err)
}

func TestListContributions(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p1 := uint64(1)

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		for i, who := range []string{"a", "b", "a"} {
			period := uint64(i % 2)
			c := &domain.Contribution{
				ID:          domain.ContributionID(who, period, i),
				Contributor: who,
				Period:      period,
				Status:      domain.StatusPending,
			}
			require.NoError(t, tx.CreateContribution(ctx, c))
		}
		return nil
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		all, err := tx.ListContributions(ctx, storage.ContributionFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		mine, err := tx.ListContributions(ctx, storage.ContributionFilter{Contributor: "a"})
		require.NoError(t, err)
		assert.Len(t, mine, 2)

		inP1, err := tx.ListContributions(ctx, storage.ContributionFilter{Period: &p1})
		require.NoError(t, err)
		require.Len(t, inP1, 1)
		assert.Equal(t, "b", inP1[0].Contributor)

		limited, err := tx.ListContributions(ctx, storage.ContributionFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
		return nil
	}))
}

func TestTransfer(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Credit(ctx, "vault", 100)
	}))

	err := s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Transfer(ctx, "vault", "alice", 101)
	})
	assert.ErrorIs(t, err, common.ErrInsufficientBalance)

	require.NoError(t, s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.Transfer(ctx, "vault", "alice", 60))
		return tx.RecordSettlement(ctx, &domain.Settlement{Kind: domain.SettlementClaim, From: "vault", To: "alice", Amount: 60})
	}))

	require.NoError(t, s.View(ctx, func(ctx context.Context, tx storage.Tx) error {
		v, _ := tx.Balance(ctx, "vault")
		a, _ := tx.Balance(ctx, "alice")
		assert.Equal(t, uint64(40), v)
		assert.Equal(t, uint64(60), a)

		list, err := tx.ListSettlements(ctx, "alice", 10)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, uint64(60), list[0].Amount)
		return nil
	}))

	err = s.Atomic(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.Transfer(ctx, "vault", "alice", 0)
	})
	assert.ErrorIs(t, err, common.ErrInvalidAmount)
}

// Package memory — хранилище трекера в памяти процесса.
// Используется в тестах и при STORE_DRIVER=memory.
// Транзакции на запись выполняются по одной: изменения копятся в tx
// и переносятся в Store только при успешном завершении.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

// Store хранит записи в map под одним мьютексом.
type Store struct {
	mu sync.RWMutex

	tracker       *domain.Tracker
	periods       map[uint64]domain.Period
	contributors  map[string]domain.Contributor
	contributions map[uuid.UUID]domain.Contribution
	order         []uuid.UUID
	balances      map[string]uint64
	settlements   []domain.Settlement
}

var _ storage.Store = (*Store)(nil)

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		periods:       make(map[uint64]domain.Period),
		contributors:  make(map[string]domain.Contributor),
		contributions: make(map[uuid.UUID]domain.Contribution),
		balances:      make(map[string]uint64),
	}
}

// Atomic выполняет fn под эксклюзивной блокировкой.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTx(s, false)
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// View выполняет fn под блокировкой на чтение.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, newTx(s, true))
}

// tx — набор изменений поверх Store.
type tx struct {
	s        *Store
	readOnly bool

	tracker       *domain.Tracker
	periods       map[uint64]domain.Period
	contributors  map[string]domain.Contributor
	contributions map[uuid.UUID]domain.Contribution
	newOrder      []uuid.UUID
	balances      map[string]uint64
	settlements   []domain.Settlement
}

func newTx(s *Store, readOnly bool) *tx {
	return &tx{
		s:             s,
		readOnly:      readOnly,
		periods:       make(map[uint64]domain.Period),
		contributors:  make(map[string]domain.Contributor),
		contributions: make(map[uuid.UUID]domain.Contribution),
		balances:      make(map[string]uint64),
	}
}

func (t *tx) commit() {
	if t.tracker != nil {
		tr := *t.tracker
		t.s.tracker = &tr
	}
	for k, v := range t.periods {
		t.s.periods[k] = v
	}
	for k, v := range t.contributors {
		t.s.contributors[k] = v
	}
	for k, v := range t.contributions {
		t.s.contributions[k] = v
	}
	t.s.order = append(t.s.order, t.newOrder...)
	for k, v := range t.balances {
		t.s.balances[k] = v
	}
	t.s.settlements = append(t.s.settlements, t.settlements...)
}

func (t *tx) writable() error {
	if t.readOnly {
		return fmt.Errorf("транзакция только на чтение")
	}
	return nil
}

// --- Tracker ---

func (t *tx) GetTracker(_ context.Context) (*domain.Tracker, error) {
	if t.tracker != nil {
		tr := *t.tracker
		return &tr, nil
	}
	if t.s.tracker == nil {
		return nil, storage.ErrNotFound
	}
	tr := *t.s.tracker
	return &tr, nil
}

func (t *tx) CreateTracker(ctx context.Context, tr *domain.Tracker) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetTracker(ctx); err == nil {
		return storage.ErrDuplicate
	}
	cp := *tr
	t.tracker = &cp
	return nil
}

func (t *tx) UpdateTracker(ctx context.Context, tr *domain.Tracker) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetTracker(ctx); err != nil {
		return err
	}
	cp := *tr
	t.tracker = &cp
	return nil
}

// --- Period ---

func (t *tx) GetPeriod(_ context.Context, number uint64) (*domain.Period, error) {
	if p, ok := t.periods[number]; ok {
		return &p, nil
	}
	if p, ok := t.s.periods[number]; ok {
		return &p, nil
	}
	return nil, storage.ErrNotFound
}

func (t *tx) CreatePeriod(ctx context.Context, p *domain.Period) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetPeriod(ctx, p.Number); err == nil {
		return storage.ErrDuplicate
	}
	t.periods[p.Number] = *p
	return nil
}

func (t *tx) UpdatePeriod(ctx context.Context, p *domain.Period) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetPeriod(ctx, p.Number); err != nil {
		return err
	}
	t.periods[p.Number] = *p
	return nil
}

// --- Contributor ---

func cloneContributor(c domain.Contributor) *domain.Contributor {
	c.Contributions = slices.Clone(c.Contributions)
	return &c
}

func (t *tx) GetContributor(_ context.Context, authority string) (*domain.Contributor, error) {
	if c, ok := t.contributors[authority]; ok {
		return cloneContributor(c), nil
	}
	if c, ok := t.s.contributors[authority]; ok {
		return cloneContributor(c), nil
	}
	return nil, storage.ErrNotFound
}

func (t *tx) CreateContributor(ctx context.Context, c *domain.Contributor) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetContributor(ctx, c.Authority); err == nil {
		return storage.ErrDuplicate
	}
	t.contributors[c.Authority] = *cloneContributor(*c)
	return nil
}

func (t *tx) UpdateContributor(ctx context.Context, c *domain.Contributor) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetContributor(ctx, c.Authority); err != nil {
		return err
	}
	t.contributors[c.Authority] = *cloneContributor(*c)
	return nil
}

// --- Contribution ---

func (t *tx) GetContribution(_ context.Context, id uuid.UUID) (*domain.Contribution, error) {
	if c, ok := t.contributions[id]; ok {
		return &c, nil
	}
	if c, ok := t.s.contributions[id]; ok {
		return &c, nil
	}
	return nil, storage.ErrNotFound
}

func (t *tx) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetContribution(ctx, c.ID); err == nil {
		return storage.ErrDuplicate
	}
	t.contributions[c.ID] = *c
	t.newOrder = append(t.newOrder, c.ID)
	return nil
}

func (t *tx) UpdateContribution(ctx context.Context, c *domain.Contribution) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, err := t.GetContribution(ctx, c.ID); err != nil {
		return err
	}
	t.contributions[c.ID] = *c
	return nil
}

func (t *tx) ListContributions(ctx context.Context, f storage.ContributionFilter) ([]*domain.Contribution, error) {
	var out []*domain.Contribution
	for _, id := range slices.Concat(t.s.order, t.newOrder) {
		c, err := t.GetContribution(ctx, id)
		if err != nil {
			return nil, err
		}
		if !f.Match(c) {
			continue
		}
		out = append(out, c)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// --- Vault ---

func (t *tx) Balance(_ context.Context, account string) (uint64, error) {
	if b, ok := t.balances[account]; ok {
		return b, nil
	}
	return t.s.balances[account], nil
}

func (t *tx) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if amount == 0 {
		return common.ErrInvalidAmount
	}
	fromBalance, _ := t.Balance(ctx, from)
	if fromBalance < amount {
		return fmt.Errorf("%w: нужно %d, есть %d", common.ErrInsufficientBalance, amount, fromBalance)
	}
	toBalance, _ := t.Balance(ctx, to)
	credited, err := domain.CheckedAdd(toBalance, amount)
	if err != nil {
		return err
	}
	t.balances[from] = fromBalance - amount
	if from != to {
		t.balances[to] = credited
	} else {
		t.balances[to] = fromBalance
	}
	return nil
}

func (t *tx) Credit(ctx context.Context, account string, amount uint64) error {
	if err := t.writable(); err != nil {
		return err
	}
	if amount == 0 {
		return common.ErrInvalidAmount
	}
	balance, _ := t.Balance(ctx, account)
	credited, err := domain.CheckedAdd(balance, amount)
	if err != nil {
		return err
	}
	t.balances[account] = credited
	return nil
}

// --- Settlements ---

func (t *tx) RecordSettlement(_ context.Context, s *domain.Settlement) error {
	if err := t.writable(); err != nil {
		return err
	}
	t.settlements = append(t.settlements, *s)
	return nil
}

func (t *tx) ListSettlements(_ context.Context, account string, limit int) ([]*domain.Settlement, error) {
	all := slices.Concat(t.s.settlements, t.settlements)
	var out []*domain.Settlement
	for i := len(all) - 1; i >= 0; i-- {
		s := all[i]
		if account != "" && s.From != account && s.To != account {
			continue
		}
		out = append(out, &s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
)

// Store реализует storage.Store поверх pgxpool.
type Store struct {
	db *pgxpool.Pool
}

var _ storage.Store = (*Store)(nil)

// NewStore создаёт хранилище.
func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Atomic выполняет fn в транзакции. Все Get внутри блокируют строки FOR UPDATE,
// поэтому операции над одной записью выполняются строго по очереди.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	// Откатываем транзакцию, если что-то пошло не так
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx, lock: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// View выполняет fn в транзакции только на чтение.
func (s *Store) View(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// pgTx — операции над таблицами трекера в рамках pgx.Tx.
type pgTx struct {
	tx   pgx.Tx
	lock bool
}

func (t *pgTx) forUpdate(query string) string {
	if t.lock {
		return query + " FOR UPDATE"
	}
	return query
}

// --- Tracker ---

func (t *pgTx) GetTracker(ctx context.Context) (*domain.Tracker, error) {
	query := t.forUpdate(`
		SELECT admin, current_period, period_duration, total_points_all_time,
		       minimum_points_threshold, reserve_pool_amount, tokens_per_period
		FROM tracker WHERE id = 1`)
	var tr domain.Tracker
	err := t.tx.QueryRow(ctx, query).Scan(
		&tr.Admin, &tr.CurrentPeriod, &tr.PeriodDuration, &tr.TotalPointsAllTime,
		&tr.MinimumPointsThreshold, &tr.ReservePoolAmount, &tr.TokensPerPeriod,
	)
	if err != nil {
		return nil, mapError(err, "чтение трекера")
	}
	return &tr, nil
}

func (t *pgTx) CreateTracker(ctx context.Context, tr *domain.Tracker) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO tracker (id, admin, current_period, period_duration, total_points_all_time,
		                     minimum_points_threshold, reserve_pool_amount, tokens_per_period)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7)
	`, tr.Admin, tr.CurrentPeriod, tr.PeriodDuration, tr.TotalPointsAllTime,
		tr.MinimumPointsThreshold, tr.ReservePoolAmount, tr.TokensPerPeriod)
	return mapError(err, "создание трекера")
}

func (t *pgTx) UpdateTracker(ctx context.Context, tr *domain.Tracker) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE tracker
		SET admin = $1, current_period = $2, period_duration = $3, total_points_all_time = $4,
		    minimum_points_threshold = $5, reserve_pool_amount = $6, tokens_per_period = $7,
		    updated_at = NOW()
		WHERE id = 1
	`, tr.Admin, tr.CurrentPeriod, tr.PeriodDuration, tr.TotalPointsAllTime,
		tr.MinimumPointsThreshold, tr.ReservePoolAmount, tr.TokensPerPeriod)
	if err != nil {
		return mapError(err, "обновление трекера")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("обновление трекера: %w", storage.ErrNotFound)
	}
	return nil
}

// --- Period ---

func (t *pgTx) GetPeriod(ctx context.Context, number uint64) (*domain.Period, error) {
	query := t.forUpdate(`
		SELECT number, start_time, end_time, total_points, tokens_allocated,
		       tokens_distributed, is_finalized, distribution_processed
		FROM periods WHERE number = $1`)
	var p domain.Period
	err := t.tx.QueryRow(ctx, query, number).Scan(
		&p.Number, &p.StartTime, &p.EndTime, &p.TotalPoints, &p.TokensAllocated,
		&p.TokensDistributed, &p.IsFinalized, &p.DistributionProcessed,
	)
	if err != nil {
		return nil, mapError(err, fmt.Sprintf("чтение периода %d", number))
	}
	return &p, nil
}

func (t *pgTx) CreatePeriod(ctx context.Context, p *domain.Period) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO periods (number, start_time, end_time, total_points, tokens_allocated,
		                     tokens_distributed, is_finalized, distribution_processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.Number, p.StartTime, p.EndTime, p.TotalPoints, p.TokensAllocated,
		p.TokensDistributed, p.IsFinalized, p.DistributionProcessed)
	return mapError(err, fmt.Sprintf("создание периода %d", p.Number))
}

func (t *pgTx) UpdatePeriod(ctx context.Context, p *domain.Period) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE periods
		SET total_points = $2, tokens_allocated = $3, tokens_distributed = $4,
		    is_finalized = $5, distribution_processed = $6, updated_at = NOW()
		WHERE number = $1
	`, p.Number, p.TotalPoints, p.TokensAllocated, p.TokensDistributed,
		p.IsFinalized, p.DistributionProcessed)
	if err != nil {
		return mapError(err, fmt.Sprintf("обновление периода %d", p.Number))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("обновление периода %d: %w", p.Number, storage.ErrNotFound)
	}
	return nil
}

// --- Contributor ---

func (t *pgTx) GetContributor(ctx context.Context, authority string) (*domain.Contributor, error) {
	query := t.forUpdate(`
		SELECT authority, total_points_all_time, current_period_points,
		       last_claimed_period, contributions
		FROM contributors WHERE authority = $1`)
	var c domain.Contributor
	err := t.tx.QueryRow(ctx, query, authority).Scan(
		&c.Authority, &c.TotalPointsAllTime, &c.CurrentPeriodPoints,
		&c.LastClaimedPeriod, &c.Contributions,
	)
	if err != nil {
		return nil, mapError(err, "чтение участника")
	}
	return &c, nil
}

func (t *pgTx) CreateContributor(ctx context.Context, c *domain.Contributor) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO contributors (authority, total_points_all_time, current_period_points,
		                          last_claimed_period, contributions)
		VALUES ($1, $2, $3, $4, $5)
	`, c.Authority, c.TotalPointsAllTime, c.CurrentPeriodPoints, c.LastClaimedPeriod, uuids(c.Contributions))
	return mapError(err, "создание участника")
}

func (t *pgTx) UpdateContributor(ctx context.Context, c *domain.Contributor) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE contributors
		SET total_points_all_time = $2, current_period_points = $3,
		    last_claimed_period = $4, contributions = $5, updated_at = NOW()
		WHERE authority = $1
	`, c.Authority, c.TotalPointsAllTime, c.CurrentPeriodPoints, c.LastClaimedPeriod, uuids(c.Contributions))
	if err != nil {
		return mapError(err, "обновление участника")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("обновление участника: %w", storage.ErrNotFound)
	}
	return nil
}

// uuids гарантирует пустой массив вместо NULL.
func uuids(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

// --- Contribution ---

const contributionColumns = `id, contributor, period, category, severity, points, submitted_at, description, status`

func scanContribution(row pgx.Row) (*domain.Contribution, error) {
	var (
		c                          domain.Contribution
		category, severity, points int16
		status                     string
	)
	err := row.Scan(
		&c.ID, &c.Contributor, &c.Period, &category, &severity,
		&points, &c.Timestamp, &c.Description, &status,
	)
	if err != nil {
		return nil, err
	}
	c.Category = domain.Category(category)
	c.Severity = domain.Severity(severity)
	c.Points = uint8(points)
	c.Status = domain.Status(status)
	return &c, nil
}

func (t *pgTx) GetContribution(ctx context.Context, id uuid.UUID) (*domain.Contribution, error) {
	query := t.forUpdate(`SELECT ` + contributionColumns + ` FROM contributions WHERE id = $1`)
	c, err := scanContribution(t.tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "чтение вклада")
	}
	return c, nil
}

func (t *pgTx) CreateContribution(ctx context.Context, c *domain.Contribution) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO contributions (`+contributionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Contributor, c.Period, int16(c.Category), int16(c.Severity),
		int16(c.Points), c.Timestamp, c.Description, string(c.Status))
	return mapError(err, "создание вклада")
}

func (t *pgTx) UpdateContribution(ctx context.Context, c *domain.Contribution) error {
	tag, err := t.tx.Exec(ctx, `UPDATE contributions SET status = $2 WHERE id = $1`, c.ID, string(c.Status))
	if err != nil {
		return mapError(err, "обновление вклада")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("обновление вклада: %w", storage.ErrNotFound)
	}
	return nil
}

func (t *pgTx) ListContributions(ctx context.Context, f storage.ContributionFilter) ([]*domain.Contribution, error) {
	var (
		where []string
		args  []any
	)
	if f.Contributor != "" {
		args = append(args, f.Contributor)
		where = append(where, fmt.Sprintf("contributor = $%d", len(args)))
	}
	if f.Period != nil {
		args = append(args, *f.Period)
		where = append(where, fmt.Sprintf("period = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + contributionColumns + ` FROM contributions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY seq"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "выборка вкладов")
	}
	defer rows.Close()

	var out []*domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования вклада: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- Vault ---

func (t *pgTx) Balance(ctx context.Context, account string) (uint64, error) {
	var balance uint64
	err := t.tx.QueryRow(ctx, `SELECT balance FROM vault_accounts WHERE account = $1`, account).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, mapError(err, "баланс")
	}
	return balance, nil
}

// Transfer блокирует оба счёта в порядке имён, проверяет баланс отправителя,
// списывает, начисляет и пишет перевод в журнал.
func (t *pgTx) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 {
		return common.ErrInvalidAmount
	}

	// Счёт получателя может ещё не существовать
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO vault_accounts (account) VALUES ($1) ON CONFLICT (account) DO NOTHING
	`, to); err != nil {
		return mapError(err, "создание счёта")
	}

	rows, err := t.tx.Query(ctx, `
		SELECT account, balance FROM vault_accounts
		WHERE account = ANY($1) ORDER BY account FOR UPDATE
	`, []string{from, to})
	if err != nil {
		return mapError(err, "блокировка счетов")
	}
	balances := make(map[string]uint64, 2)
	for rows.Next() {
		var account string
		var balance uint64
		if err := rows.Scan(&account, &balance); err != nil {
			rows.Close()
			return fmt.Errorf("ошибка сканирования счёта: %w", err)
		}
		balances[account] = balance
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return mapError(err, "блокировка счетов")
	}

	if balances[from] < amount {
		return fmt.Errorf("%w: нужно %d, есть %d", common.ErrInsufficientBalance, amount, balances[from])
	}

	if _, err := t.tx.Exec(ctx, `
		UPDATE vault_accounts
		SET balance = balance - $2, total_out = total_out + $2, updated_at = NOW()
		WHERE account = $1
	`, from, amount); err != nil {
		return mapError(err, "списание")
	}
	if _, err := t.tx.Exec(ctx, `
		UPDATE vault_accounts
		SET balance = balance + $2, total_in = total_in + $2, updated_at = NOW()
		WHERE account = $1
	`, to, amount); err != nil {
		return mapError(err, "начисление")
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO vault_transfers (from_account, to_account, amount) VALUES ($1, $2, $3)
	`, from, to, amount); err != nil {
		return mapError(err, "запись перевода")
	}
	return nil
}

func (t *pgTx) Credit(ctx context.Context, account string, amount uint64) error {
	if amount == 0 {
		return common.ErrInvalidAmount
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO vault_accounts (account, balance, total_in) VALUES ($1, $2, $2)
		ON CONFLICT (account) DO UPDATE
		SET balance = vault_accounts.balance + EXCLUDED.balance,
		    total_in = vault_accounts.total_in + EXCLUDED.total_in,
		    updated_at = NOW()
	`, account, amount); err != nil {
		return mapError(err, "пополнение")
	}
	if _, err := t.tx.Exec(ctx, `
		INSERT INTO vault_transfers (from_account, to_account, amount) VALUES (NULL, $1, $2)
	`, account, amount); err != nil {
		return mapError(err, "запись пополнения")
	}
	return nil
}

// --- Settlements ---

func (t *pgTx) RecordSettlement(ctx context.Context, s *domain.Settlement) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO settlements (kind, period, from_account, to_account, amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, string(s.Kind), s.Period, s.From, s.To, s.Amount, s.CreatedAt)
	return mapError(err, "запись выплаты")
}

func (t *pgTx) ListSettlements(ctx context.Context, account string, limit int) ([]*domain.Settlement, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := t.tx.Query(ctx, `
		SELECT kind, period, from_account, to_account, amount, created_at
		FROM settlements
		WHERE $1 = '' OR from_account = $1 OR to_account = $1
		ORDER BY id DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, mapError(err, "выборка выплат")
	}
	defer rows.Close()

	var out []*domain.Settlement
	for rows.Next() {
		var s domain.Settlement
		var kind string
		if err := rows.Scan(&kind, &s.Period, &s.From, &s.To, &s.Amount, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования выплаты: %w", err)
		}
		s.Kind = domain.SettlementKind(kind)
		out = append(out, &s)
	}
	return out, rows.Err()
}

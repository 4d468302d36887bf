// Package admin — repository.go хранит сессии и попытки входа:
// в таблицах admin_sessions и admin_login_attempts или в памяти.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoSession — у пользователя нет активной сессии.
var ErrNoSession = errors.New("активная сессия не найдена")

// SessionRepository — хранилище сессий администраторов.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *AdminSession) error
	GetActiveSession(ctx context.Context, userID int64, now time.Time) (*AdminSession, error)
	DeactivateSession(ctx context.Context, userID int64) error
	UpdateActivity(ctx context.Context, userID int64, now time.Time) error
	LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error
	GetRecentAttempts(ctx context.Context, userID int64, since time.Time) (int, error)
}

// Repository работает с админ-таблицами PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

var _ SessionRepository = (*Repository)(nil)

// NewRepository создаёт репозиторий.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// CreateSession создаёт новую сессию администратора.
func (r *Repository) CreateSession(ctx context.Context, session *AdminSession) error {
	query := `
		INSERT INTO admin_sessions (user_id, session_token, authenticated_at, expires_at, last_activity, is_active)
		VALUES ($1, $2, $3, $4, $3, TRUE)
	`
	_, err := r.db.Exec(ctx, query, session.UserID, session.SessionToken, session.AuthenticatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("ошибка создания сессии: %w", err)
	}
	return nil
}

// GetActiveSession возвращает активную сессию пользователя.
func (r *Repository) GetActiveSession(ctx context.Context, userID int64, now time.Time) (*AdminSession, error) {
	query := `
		SELECT id, user_id, session_token, authenticated_at, expires_at, last_activity, is_active
		FROM admin_sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at > $2
		ORDER BY authenticated_at DESC
		LIMIT 1
	`
	var s AdminSession
	err := r.db.QueryRow(ctx, query, userID, now).Scan(
		&s.ID, &s.UserID, &s.SessionToken, &s.AuthenticatedAt,
		&s.ExpiresAt, &s.LastActivity, &s.IsActive,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	return &s, nil
}

// DeactivateSession деактивирует сессии пользователя.
func (r *Repository) DeactivateSession(ctx context.Context, userID int64) error {
	query := `UPDATE admin_sessions SET is_active = FALSE WHERE user_id = $1`
	_, err := r.db.Exec(ctx, query, userID)
	return err
}

// UpdateActivity обновляет время последней активности.
func (r *Repository) UpdateActivity(ctx context.Context, userID int64, now time.Time) error {
	query := `UPDATE admin_sessions SET last_activity = $2 WHERE user_id = $1 AND is_active = TRUE`
	_, err := r.db.Exec(ctx, query, userID, now)
	return err
}

// LogAttempt записывает попытку входа.
func (r *Repository) LogAttempt(ctx context.Context, userID int64, success bool, at time.Time) error {
	query := `INSERT INTO admin_login_attempts (user_id, success, attempt_time) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, userID, success, at)
	return err
}

// GetRecentAttempts возвращает количество неудачных попыток начиная с since.
func (r *Repository) GetRecentAttempts(ctx context.Context, userID int64, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM admin_login_attempts
		WHERE user_id = $1 AND success = FALSE AND attempt_time >= $2
	`
	var count int
	err := r.db.QueryRow(ctx, query, userID, since).Scan(&count)
	return count, err
}

// MemoryRepository хранит сессии в памяти процесса (STORE_DRIVER=memory).
type MemoryRepository struct {
	mu       sync.Mutex
	nextID   int64
	sessions []AdminSession
	attempts []LoginAttempt
}

var _ SessionRepository = (*MemoryRepository)(nil)

// NewMemoryRepository создаёт пустой репозиторий.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) CreateSession(_ context.Context, session *AdminSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s := *session
	s.ID = r.nextID
	s.LastActivity = s.AuthenticatedAt
	s.IsActive = true
	r.sessions = append(r.sessions, s)
	return nil
}

func (r *MemoryRepository) GetActiveSession(_ context.Context, userID int64, now time.Time) (*AdminSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sessions) - 1; i >= 0; i-- {
		s := r.sessions[i]
		if s.UserID == userID && s.IsActive && s.ExpiresAt.After(now) {
			return &s, nil
		}
	}
	return nil, ErrNoSession
}

func (r *MemoryRepository) DeactivateSession(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].UserID == userID {
			r.sessions[i].IsActive = false
		}
	}
	return nil
}

func (r *MemoryRepository) UpdateActivity(_ context.Context, userID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.sessions {
		if r.sessions[i].UserID == userID && r.sessions[i].IsActive {
			r.sessions[i].LastActivity = now
		}
	}
	return nil
}

func (r *MemoryRepository) LogAttempt(_ context.Context, userID int64, success bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, LoginAttempt{
		ID:          int64(len(r.attempts) + 1),
		UserID:      userID,
		AttemptTime: at,
		Success:     success,
	})
	return nil
}

func (r *MemoryRepository) GetRecentAttempts(_ context.Context, userID int64, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, a := range r.attempts {
		if a.UserID == userID && !a.Success && !a.AttemptTime.Before(since) {
			count++
		}
	}
	return count, nil
}

// Package config загружает конфигурацию трекера из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// перед этим godotenv подхватывает .env, если он есть.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"

	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

// Драйверы хранилища
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS"`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	// ID чата организации: вклады принимаются оттуда и из лички его участников
	OrgChatID int64 `envconfig:"ORG_CHAT_ID"`

	// --- Storage ---
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`

	// --- Database ---
	// Дефолт "postgres" — имя сервиса в docker-compose, для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"tracker"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"contribution_tracker"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	BotEnabled bool `envconfig:"BOT_ENABLED" default:"true"`
	// Сколько апдейтов обрабатываем параллельно
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Admin ---
	AdminPasswordHash string        `envconfig:"ADMIN_PASSWORD_HASH"`
	AdminSessionTTL   time.Duration `envconfig:"ADMIN_SESSION_TTL" default:"24h"`
	AdminMaxAttempts  int           `envconfig:"ADMIN_MAX_ATTEMPTS" default:"3"`

	// --- Tracker ---
	// Администратор трекера: от его имени действуют операторы бота и keeper
	TrackerAdmin           string        `envconfig:"TRACKER_ADMIN" required:"true"`
	TrackerPeriodDuration  time.Duration `envconfig:"TRACKER_PERIOD_DURATION" default:"168h"`
	TrackerMinPoints       uint64        `envconfig:"TRACKER_MIN_POINTS" default:"100"`
	TrackerTokensPerPeriod uint64        `envconfig:"TRACKER_TOKENS_PER_PERIOD" default:"1000"`

	// --- Vault ---
	VaultRewardAccount  string `envconfig:"VAULT_REWARD_ACCOUNT" default:"vault:reward"`
	VaultReserveAccount string `envconfig:"VAULT_RESERVE_ACCOUNT" default:"vault:reserve"`

	// --- Keeper ---
	KeeperSchedule string `envconfig:"KEEPER_SCHEDULE" default:"*/5 * * * *"`

	// --- HTTP ---
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8080"`

	// Через запятую; пустое значение разрешает любой origin
	HTTPAllowedOrigins []string `envconfig:"HTTP_ALLOWED_ORIGINS"`

	// --- Rate Limiting ---
	// Пустой REDIS_URL — лимит считается в памяти процесса
	RedisURL          string        `envconfig:"REDIS_URL"`
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Feature Flags ---
	FeatureKeeperEnabled bool `envconfig:"FEATURE_KEEPER_ENABLED" default:"true"`
	FeatureAPIEnabled    bool `envconfig:"FEATURE_API_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// TrackerSettings возвращает параметры запуска трекера.
func (c *Config) TrackerSettings() validation.TrackerSettings {
	return validation.TrackerSettings{
		PeriodDuration:         int64(c.TrackerPeriodDuration / time.Second),
		MinimumPointsThreshold: c.TrackerMinPoints,
		TokensPerPeriod:        c.TrackerTokensPerPeriod,
	}
}

// IsAdminUser — входит ли пользователь Telegram в ADMIN_IDS.
func (c *Config) IsAdminUser(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.TrackerAdmin) == "" {
		return fmt.Errorf("TRACKER_ADMIN не задан")
	}
	switch c.StoreDriver {
	case StoreMemory:
	case StorePostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD не задан")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.StoreDriver)
	}
	if c.BotEnabled {
		if c.TelegramBotToken == "" {
			return fmt.Errorf("TELEGRAM_BOT_TOKEN не задан")
		}
		if c.OrgChatID == 0 {
			return fmt.Errorf("ORG_CHAT_ID не задан или равен 0")
		}
		if c.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH не задан")
		}
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
	}
	if c.AdminMaxAttempts <= 0 || c.AdminSessionTTL <= 0 {
		return fmt.Errorf("ADMIN_MAX_ATTEMPTS и ADMIN_SESSION_TTL должны быть > 0")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}
	if c.VaultRewardAccount == "" || c.VaultReserveAccount == "" || c.VaultRewardAccount == c.VaultReserveAccount {
		return fmt.Errorf("VAULT_REWARD_ACCOUNT и VAULT_RESERVE_ACCOUNT должны быть заданы и различаться")
	}
	if err := validation.ValidateTrackerSettings(c.TrackerSettings()); err != nil {
		return fmt.Errorf("параметры трекера: %w", err)
	}
	if c.FeatureKeeperEnabled {
		if _, err := cron.ParseStandard(c.KeeperSchedule); err != nil {
			return fmt.Errorf("KEEPER_SCHEDULE: %w", err)
		}
	}
	return nil
}

// Load читает .env и переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	// .env необязателен: в Docker переменные приходят из окружения
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: выбирает хранилище и собирает из сервисов
// бота, хранителя периодов и HTTP API.
package app

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/0xCipherCoder/contribution-tracker/internal/api"
	"github.com/0xCipherCoder/contribution-tracker/internal/bot"
	"github.com/0xCipherCoder/contribution-tracker/internal/bot/filters"
	"github.com/0xCipherCoder/contribution-tracker/internal/bot/middleware"
	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/config"
	"github.com/0xCipherCoder/contribution-tracker/internal/db/postgres"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/admin"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/distribution"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
	"github.com/0xCipherCoder/contribution-tracker/internal/jobs"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage/memory"
)

// Services — доменные сервисы трекера.
type Services struct {
	Periods      *periods.Service
	Ledger       *ledger.Service
	Settlement   *settlement.Service
	Distribution *distribution.Service
}

// App содержит все компоненты приложения. Bot, Keeper и API могут быть nil,
// если выключены в конфиге.
type App struct {
	Services Services
	Bot      *bot.Bot
	Keeper   *jobs.Keeper
	API      *api.Server
	DB       *pgxpool.Pool
	BotAPI   *tgbotapi.BotAPI
	Registry *prometheus.Registry

	limiter middleware.Limiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}

	// === 1. Хранилище ===
	store, sessions, err := a.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// === 2. Метрики ===
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(a.Registry)

	// === 3. Сервисы ===
	clock := domain.SystemClock{}
	vaults := settlement.Vaults{Reward: cfg.VaultRewardAccount, Reserve: cfg.VaultReserveAccount}
	a.Services.Periods = periods.NewService(store, clock, m)
	a.Services.Ledger = ledger.NewService(store, clock, m)
	a.Services.Settlement = settlement.NewService(store, settlement.VaultTransferer{}, vaults, clock, m)
	a.Services.Distribution = distribution.NewService(store, a.Services.Settlement, clock, m)

	// === 4. Telegram ===
	if cfg.BotEnabled {
		if err := a.buildBot(ctx, cfg, sessions); err != nil {
			a.Close()
			return nil, err
		}
	}

	// === 5. Хранитель периодов ===
	if cfg.FeatureKeeperEnabled {
		a.Keeper = jobs.NewKeeper(cfg.KeeperSchedule, cfg.AppTimezone, cfg.TrackerAdmin,
			a.Services.Periods, a.Services.Distribution, m, a.notifyOrg(cfg))
	}

	// === 6. HTTP API ===
	if cfg.FeatureAPIEnabled {
		h := api.NewHandler(a.Services.Periods, a.Services.Ledger, a.Services.Settlement, a.Services.Distribution)
		a.API = api.NewServer(cfg, h, a.Registry)
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context, cfg *config.Config) (storage.Store, admin.SessionRepository, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("STORE_DRIVER=memory: состояние не переживёт перезапуск")
		return memory.NewStore(), admin.NewMemoryRepository(), nil
	default:
		pool, err := postgres.NewPool(ctx, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("ошибка подключения к БД: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ошибка миграций: %w", err)
		}
		a.DB = pool
		return postgres.NewStore(pool), admin.NewRepository(pool), nil
	}
}

func (a *App) buildBot(ctx context.Context, cfg *config.Config, sessions admin.SessionRepository) error {
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)
	a.BotAPI = botAPI

	limiter, err := middleware.NewLimiter(ctx, cfg.RedisURL, cfg.RateLimitRequests, cfg.RateLimitWindow)
	if err != nil {
		return fmt.Errorf("ошибка rate limiter: %w", err)
	}
	a.limiter = limiter

	adminService := admin.NewService(sessions, cfg)
	chatFilter := filters.NewChatFilter(cfg.OrgChatID, adminService.IsOperator, botAPI)

	a.Bot = bot.New(botAPI, cfg, chatFilter, limiter, bot.Handlers{
		Ledger:       ledger.NewHandler(a.Services.Ledger, botAPI),
		Periods:      periods.NewHandler(a.Services.Periods, botAPI),
		Distribution: distribution.NewHandler(a.Services.Distribution, botAPI),
		Settlement:   settlement.NewHandler(a.Services.Settlement, botAPI),
		Admin: admin.NewHandler(adminService, a.Services.Ledger, a.Services.Periods,
			a.Services.Distribution, a.Services.Settlement, cfg, botAPI),
	})
	return nil
}

// notifyOrg пишет сообщения хранителя в чат организации, если бот включён.
func (a *App) notifyOrg(cfg *config.Config) func(string) {
	if a.BotAPI == nil {
		return func(text string) {
			log.WithField("text", text).Info("Хранитель периодов")
		}
	}
	return func(text string) {
		common.SendText(a.BotAPI, cfg.OrgChatID, text)
	}
}

// Run запускает включённые компоненты и блокируется до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.Keeper != nil {
		if err := a.Keeper.Start(ctx); err != nil {
			return err
		}
		defer a.Keeper.Stop()
	}

	var (
		wg     sync.WaitGroup
		apiErr error
	)
	if a.API != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.API.Run(ctx); err != nil {
				apiErr = err
				log.WithError(err).Error("HTTP API остановлен с ошибкой")
				cancel()
			}
		}()
	}
	if a.Bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Bot.Start(ctx)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return apiErr
}

// Close освобождает ресурсы.
func (a *App) Close() {
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// Package main — точка входа трекера вкладов.
// Подкоманды: serve (бот, хранитель периодов и HTTP API), migrate и hash-password.
// serve поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/0xCipherCoder/contribution-tracker/internal/app"
	"github.com/0xCipherCoder/contribution-tracker/internal/config"
	"github.com/0xCipherCoder/contribution-tracker/internal/db/postgres"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/admin"
)

const programName = "tracker"

func main() {
	// Настраиваем логирование
	setupLogging()

	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Трекер вкладов с периодической раздачей токенов",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serveRun,
	}
	rootCmd.AddCommand(serveCommand(), migrateCommand(), hashPasswordCommand())

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("Команда завершилась с ошибкой")
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить бота, хранителя периодов и HTTP API",
		RunE:  serveRun,
	}
}

func serveRun(cmd *cobra.Command, _ []string) error {
	log.Info("=== Трекер запускается ===")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Контекст отменяется по Ctrl+C и docker stop
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("не удалось инициализировать приложение: %w", err)
	}
	defer application.Close()

	log.Info("=== Трекер готов к работе ===")
	if err := application.Run(ctx); err != nil {
		return err
	}

	log.Info("=== Трекер остановлен ===")
	return nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции PostgreSQL и выйти",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("миграции нужны только для STORE_DRIVER=%s", config.StorePostgres)
			}

			ctx := cmd.Context()
			pool, err := postgres.NewPool(ctx, cfg)
			if err != nil {
				return fmt.Errorf("ошибка подключения к БД: %w", err)
			}
			defer pool.Close()

			if err := postgres.Migrate(ctx, pool); err != nil {
				return fmt.Errorf("ошибка миграций: %w", err)
			}
			log.Info("Миграции применены")
			return nil
		},
	}
}

func hashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <пароль>",
		Short: "Сгенерировать Argon2id хеш для ADMIN_PASSWORD_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hash, err := admin.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			fmt.Fprintln(cmd.ErrOrStderr(), "Вставьте в .env:")
			fmt.Fprintf(cmd.ErrOrStderr(), "ADMIN_PASSWORD_HASH=%s\n", hash)
			return nil
		},
	}
}

// loadConfig загружает конфигурацию и применяет уровень логирования.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}
	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}
	return cfg, nil
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}

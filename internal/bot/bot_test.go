package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/0xCipherCoder/contribution-tracker/internal/bot/filters"
	"github.com/0xCipherCoder/contribution-tracker/internal/bot/middleware"
	"github.com/0xCipherCoder/contribution-tracker/internal/config"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/admin"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/distribution"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/ledger"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/periods"
	"github.com/0xCipherCoder/contribution-tracker/internal/features/settlement"
	"github.com/0xCipherCoder/contribution-tracker/internal/metrics"
	"github.com/0xCipherCoder/contribution-tracker/internal/storage/memory"
	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const orgChat = int64(-1001)

type fakeAPI struct {
	mu      sync.Mutex
	texts   []string
	updates chan tgbotapi.Update
	stopped bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.texts = append(f.texts, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) GetChatMember(tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	return tgbotapi.ChatMember{Status: "left"}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func (f *fakeAPI) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type allowAll struct{}

func (allowAll) Allow(context.Context, int64) bool { return true }
func (allowAll) Close()                            {}

type botEnv struct {
	ctx     context.Context
	api     *fakeAPI
	bot     *Bot
	periods *periods.Service
	ledger  *ledger.Service
}

func newBotEnv(t *testing.T, limiter middleware.Limiter) *botEnv {
	t.Helper()
	cfg := &config.Config{
		AdminIDs:                []int64{10},
		OrgChatID:               orgChat,
		AdminSessionTTL:         time.Hour,
		AdminMaxAttempts:        3,
		TrackerAdmin:            "tg:1",
		BotMaxInflight:          4,
		BotUpdateTimeoutSeconds: 1,
	}

	store := memory.NewStore()
	clock := domain.NewManualClock(1_700_000_000)
	m := metrics.New(prometheus.NewRegistry())
	periodService := periods.NewService(store, clock, m)
	ledgerService := ledger.NewService(store, clock, m)
	settlementService := settlement.NewService(store, settlement.VaultTransferer{},
		settlement.Vaults{Reward: "vault:reward", Reserve: "vault:reserve"}, clock, m)
	distributionService := distribution.NewService(store, settlementService, clock, m)

	api := &fakeAPI{updates: make(chan tgbotapi.Update)}
	adminService := admin.NewService(admin.NewMemoryRepository(), cfg)
	b := New(api, cfg, filters.NewChatFilter(orgChat, adminService.IsOperator, api), limiter, Handlers{
		Ledger:       ledger.NewHandler(ledgerService, api),
		Periods:      periods.NewHandler(periodService, api),
		Distribution: distribution.NewHandler(distributionService, api),
		Settlement:   settlement.NewHandler(settlementService, api),
		Admin: admin.NewHandler(adminService, ledgerService, periodService,
			distributionService, settlementService, cfg, api),
	})
	return &botEnv{ctx: context.Background(), api: api, bot: b, periods: periodService, ledger: ledgerService}
}

func update(chatID int64, chatType string, userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			Chat: &tgbotapi.Chat{ID: chatID, Type: chatType},
			From: &tgbotapi.User{ID: userID, UserName: "tester"},
			Text: text,
		},
	}
}

func TestCommandParser(t *testing.T) {
	p := NewCommandParser()
	tests := []struct {
		name  string
		text  string
		cmd   string
		args  []string
		isCmd bool
	}{
		{"bang", "!вклад фикс мелкий опечатка", "вклад", []string{"фикс", "мелкий", "опечатка"}, true},
		{"dot", ".мои", "мои", nil, true},
		{"slash with bot name", "/login@tracker_bot секрет", "login", []string{"секрет"}, true},
		{"upper case", "!ПЕРИОД 2", "период", []string{"2"}, true},
		{"spaces", "   !баланс   ", "баланс", nil, true},
		{"plain text", "привет", "", nil, false},
		{"prefix only", "!", "", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := p.ParseCommand(tt.text)
			assert.Equal(t, tt.isCmd, ok)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.args, args)
		})
	}
}

func TestRoutesMemberCommands(t *testing.T) {
	e := newBotEnv(t, allowAll{})
	_, _, err := e.periods.Bootstrap(e.ctx, "tg:1", validation.TrackerSettings{
		PeriodDuration: 86400, MinimumPointsThreshold: 100, TokensPerPeriod: 1000,
	})
	require.NoError(t, err)

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "!вклад фикс критичный падение при старте"))
	require.Contains(t, e.api.last(), "Вклад принят")

	list, err := e.ledger.ListByContributor(e.ctx, "tg:5")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "падение при старте", list[0].Description)

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "!мои"))
	assert.Contains(t, e.api.last(), "Ваши вклады")

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "!период"))
	assert.Contains(t, e.api.last(), "Период 0")

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "!баланс"))
	assert.Contains(t, e.api.last(), "Баланс")

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "!получить 0"))
	assert.Contains(t, e.api.last(), "❌")

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "!help"))
	assert.Contains(t, e.api.last(), "Трекер вкладов")
}

func TestIgnoresForeignChatsAndPlainText(t *testing.T) {
	e := newBotEnv(t, allowAll{})

	e.bot.handleUpdate(e.ctx, update(-2002, "group", 5, "!мои"))
	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "просто разговор"))
	e.bot.handleUpdate(e.ctx, tgbotapi.Update{UpdateID: 2})
	assert.Zero(t, e.api.count())

	// Чужой в личке без членства в чате организации получает только отказ
	e.bot.handleUpdate(e.ctx, update(77, "private", 77, "!мои"))
	assert.Equal(t, 1, e.api.count())
	assert.Contains(t, e.api.last(), "только для участников")
}

func TestAdminCommandsOnlyInPrivate(t *testing.T) {
	e := newBotEnv(t, allowAll{})

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 10, "/login секрет"))
	assert.Contains(t, e.api.last(), "только в личных сообщениях")

	e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 10, "!запуск"))
	assert.Contains(t, e.api.last(), "личных сообщениях")

	e.bot.handleUpdate(e.ctx, update(10, "private", 10, "!очередь"))
	assert.Contains(t, e.api.last(), "/login")

	e.bot.handleUpdate(e.ctx, update(10, "private", 10, "/login"))
	assert.Contains(t, e.api.last(), "Введите пароль")
}

func TestRateLimitedUpdatesDropped(t *testing.T) {
	limiter := middleware.NewRateLimiter(2, time.Minute)
	defer limiter.Close()
	e := newBotEnv(t, limiter)

	for i := 0; i < 5; i++ {
		e.bot.handleUpdate(e.ctx, update(orgChat, "supergroup", 5, "!help"))
	}
	assert.Equal(t, 2, e.api.count())
}

func TestStartStopsOnCancel(t *testing.T) {
	e := newBotEnv(t, allowAll{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.bot.Start(ctx)
		close(done)
	}()

	e.api.updates <- update(orgChat, "supergroup", 5, "!help")
	assert.Eventually(t, func() bool { return e.api.count() == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("бот не остановился после отмены контекста")
	}
	e.api.mu.Lock()
	assert.True(t, e.api.stopped)
	e.api.mu.Unlock()
}

// Package domain описывает записи трекера вкладов:
// трекер, периоды, участников, вклады и записи о выплатах.
package domain

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
)

// Лимиты, общие для всех модулей.
const (
	MaxContributions     = 100     // Вкладов на одного участника
	MaxDescriptionLength = 100     // Символов в описании
	MinPoints            = 1       // Минимум баллов за вклад
	MaxPoints            = 10      // Максимум баллов за вклад
	MinPeriodDuration    = 86400   // 1 день в секундах
	MaxPeriodDuration    = 2592000 // 30 дней в секундах
	MinPointsThreshold   = 100     // Минимальный порог полной раздачи

	// NeverClaimed — участник ещё ни разу не получал награду.
	NeverClaimed int64 = -1
)

// Tracker — единственная запись с настройками и общими счётчиками.
type Tracker struct {
	Admin                  string `json:"admin"`
	CurrentPeriod          uint64 `json:"current_period"`
	PeriodDuration         int64  `json:"period_duration"`
	TotalPointsAllTime     uint64 `json:"total_points_all_time"`
	MinimumPointsThreshold uint64 `json:"minimum_points_threshold"`
	ReservePoolAmount      uint64 `json:"reserve_pool_amount"`
	TokensPerPeriod        uint64 `json:"tokens_per_period"`
}

// IsAdmin сравнивает идентичность вызывающего с администратором.
func (t *Tracker) IsAdmin(caller string) bool {
	return caller != "" && caller == t.Admin
}

// PeriodState — производное состояние периода.
type PeriodState string

const (
	PeriodOpen      PeriodState = "open"
	PeriodEnded     PeriodState = "ended"
	PeriodFinalized PeriodState = "finalized"
)

// Period — период распределения наград.
type Period struct {
	Number            uint64 `json:"number"`
	StartTime         int64  `json:"start_time"`
	EndTime           int64  `json:"end_time"`
	TotalPoints       uint64 `json:"total_points"`
	TokensAllocated   uint64 `json:"tokens_allocated"`
	TokensDistributed uint64 `json:"tokens_distributed"`
	IsFinalized       bool   `json:"is_finalized"`
	// DistributionProcessed ставится только финализацией с расчётом раздачи.
	// Период, закрытый сменой периода, остаётся с false и полным бюджетом.
	DistributionProcessed bool `json:"distribution_processed"`
}

// State возвращает состояние периода на момент now.
func (p *Period) State(now int64) PeriodState {
	switch {
	case p.IsFinalized:
		return PeriodFinalized
	case now >= p.EndTime:
		return PeriodEnded
	default:
		return PeriodOpen
	}
}

// HasEnded — наступило ли время окончания периода.
func (p *Period) HasEnded(now int64) bool {
	return now >= p.EndTime
}

// Remaining — сколько токенов периода ещё не выплачено.
func (p *Period) Remaining() uint64 {
	return p.TokensAllocated - p.TokensDistributed
}

// Contributor — участник, отправляющий вклады.
type Contributor struct {
	Authority           string      `json:"authority"`
	TotalPointsAllTime  uint64      `json:"total_points_all_time"`
	CurrentPeriodPoints uint64      `json:"current_period_points"`
	LastClaimedPeriod   int64       `json:"last_claimed_period"`
	Contributions       []uuid.UUID `json:"contributions"`
}

// NewContributor создаёт пустую запись участника.
func NewContributor(authority string) *Contributor {
	return &Contributor{
		Authority:         authority,
		LastClaimedPeriod: NeverClaimed,
		Contributions:     []uuid.UUID{},
	}
}

// HasClaimed — получал ли участник награду за период number или позже.
func (c *Contributor) HasClaimed(number uint64) bool {
	return c.LastClaimedPeriod >= 0 && uint64(c.LastClaimedPeriod) >= number
}

// Category — категория вклада.
type Category uint8

const (
	BugFix Category = iota
	FeatureDevelopment
	CodeOptimization
	BugReport
	TestContribution

	categoryCount
)

// Categories перечисляет все категории по порядку.
var Categories = []Category{BugFix, FeatureDevelopment, CodeOptimization, BugReport, TestContribution}

var categoryNames = [categoryCount]string{
	"bug_fix", "feature_development", "code_optimization", "bug_report", "test_contribution",
}

// Valid — определена ли категория.
func (c Category) Valid() bool { return c < categoryCount }

func (c Category) String() string {
	if !c.Valid() {
		return fmt.Sprintf("category(%d)", uint8(c))
	}
	return categoryNames[c]
}

// Severity — серьёзность вклада.
type Severity uint8

const (
	Minor Severity = iota
	Medium
	Major
	Critical

	severityCount
)

// Severities перечисляет все уровни серьёзности по порядку.
var Severities = []Severity{Minor, Medium, Major, Critical}

var severityNames = [severityCount]string{"minor", "medium", "major", "critical"}

// Valid — определён ли уровень.
func (s Severity) Valid() bool { return s < severityCount }

func (s Severity) String() string {
	if !s.Valid() {
		return fmt.Sprintf("severity(%d)", uint8(s))
	}
	return severityNames[s]
}

// Status — статус рассмотрения вклада.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Review возвращает статус после рассмотрения.
// Переход возможен только из Pending и только один раз.
func (s Status) Review(approve bool) (Status, error) {
	switch s {
	case StatusPending:
		if approve {
			return StatusApproved, nil
		}
		return StatusRejected, nil
	case StatusApproved, StatusRejected:
		return s, common.ErrContributionAlreadyProcessed
	default:
		return s, common.ErrInvalidStatusTransition
	}
}

// Contribution — отдельный вклад участника.
type Contribution struct {
	ID          uuid.UUID `json:"id"`
	Contributor string    `json:"contributor"`
	Period      uint64    `json:"period"`
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Points      uint8     `json:"points"`
	Timestamp   int64     `json:"timestamp"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
}

// SettlementKind — тип перевода в журнале выплат.
type SettlementKind string

const (
	SettlementClaim   SettlementKind = "claim"
	SettlementReserve SettlementKind = "reserve"
	SettlementFund    SettlementKind = "fund"
)

// Settlement — запись о переводе, выполненном трекером.
type Settlement struct {
	Kind      SettlementKind `json:"kind"`
	Period    uint64         `json:"period"`
	From      string         `json:"from"`
	To        string         `json:"to"`
	Amount    uint64         `json:"amount"`
	CreatedAt int64          `json:"created_at"`
}

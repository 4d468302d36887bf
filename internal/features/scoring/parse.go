package scoring

import (
	"strings"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
)

var categoryAliases = map[string]domain.Category{
	"bug_fix":             domain.BugFix,
	"bugfix":              domain.BugFix,
	"фикс":                domain.BugFix,
	"исправление":         domain.BugFix,
	"feature_development": domain.FeatureDevelopment,
	"feature":             domain.FeatureDevelopment,
	"фича":                domain.FeatureDevelopment,
	"code_optimization":   domain.CodeOptimization,
	"optimization":        domain.CodeOptimization,
	"оптимизация":         domain.CodeOptimization,
	"bug_report":          domain.BugReport,
	"report":              domain.BugReport,
	"баг":                 domain.BugReport,
	"test_contribution":   domain.TestContribution,
	"test":                domain.TestContribution,
	"тест":                domain.TestContribution,
	"тесты":               domain.TestContribution,
}

var severityAliases = map[string]domain.Severity{
	"minor":     domain.Minor,
	"мелкий":    domain.Minor,
	"medium":    domain.Medium,
	"средний":   domain.Medium,
	"major":     domain.Major,
	"крупный":   domain.Major,
	"critical":  domain.Critical,
	"критичный": domain.Critical,
}

var categoryTitles = map[domain.Category]string{
	domain.BugFix:             "Исправление бага",
	domain.FeatureDevelopment: "Новая функция",
	domain.CodeOptimization:   "Оптимизация",
	domain.BugReport:          "Отчёт о баге",
	domain.TestContribution:   "Тесты",
}

var severityTitles = map[domain.Severity]string{
	domain.Minor:    "мелкий",
	domain.Medium:   "средний",
	domain.Major:    "крупный",
	domain.Critical: "критичный",
}

// ParseCategory разбирает категорию по английскому имени или русскому синониму.
func ParseCategory(s string) (domain.Category, error) {
	c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, common.ErrInvalidContributionType
	}
	return c, nil
}

// ParseSeverity разбирает уровень серьёзности.
func ParseSeverity(s string) (domain.Severity, error) {
	sev, ok := severityAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, common.ErrInvalidSeverityLevel
	}
	return sev, nil
}

// CategoryTitle — название категории для сообщений.
func CategoryTitle(c domain.Category) string {
	if t, ok := categoryTitles[c]; ok {
		return t
	}
	return c.String()
}

// SeverityTitle — название уровня для сообщений.
func SeverityTitle(s domain.Severity) string {
	if t, ok := severityTitles[s]; ok {
		return t
	}
	return s.String()
}

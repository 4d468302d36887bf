// Package scoring — таблица баллов за вклад по категории и серьёзности.
package scoring

import (
	"fmt"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
	"github.com/0xCipherCoder/contribution-tracker/internal/validation"
)

// table[категория][серьёзность] → баллы.
// Порядок строк совпадает с domain.Categories, столбцов с domain.Severities.
var table = [...][4]uint8{
	domain.BugFix:             {2, 4, 7, 10},
	domain.FeatureDevelopment: {3, 5, 8, 10},
	domain.CodeOptimization:   {2, 4, 7, 8},
	domain.BugReport:          {1, 3, 6, 9},
	domain.TestContribution:   {2, 4, 6, 7},
}

func init() {
	if err := verify(); err != nil {
		panic(fmt.Sprintf("таблица баллов: %v", err))
	}
}

// verify проверяет, что для каждой пары задано значение в диапазоне.
func verify() error {
	if len(table) != len(domain.Categories) {
		return fmt.Errorf("в таблице %d категорий, ожидалось %d", len(table), len(domain.Categories))
	}
	for _, c := range domain.Categories {
		for _, s := range domain.Severities {
			if err := validation.ValidatePoints(table[c][s]); err != nil {
				return fmt.Errorf("%s/%s: %w", c, s, err)
			}
		}
	}
	return nil
}

// Points возвращает баллы за вклад.
func Points(c domain.Category, s domain.Severity) (uint8, error) {
	if !c.Valid() {
		return 0, common.ErrInvalidContributionType
	}
	if !s.Valid() {
		return 0, common.ErrInvalidSeverityLevel
	}
	return table[c][s], nil
}

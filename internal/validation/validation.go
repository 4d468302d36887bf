// Package validation проверяет входные данные до любых изменений состояния.
// Проверки построены на тегах go-playground/validator; ошибки поля
// переводятся в общие ошибки из пакета common.
package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/0xCipherCoder/contribution-tracker/internal/common"
	"github.com/0xCipherCoder/contribution-tracker/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// TrackerSettings — параметры запуска трекера.
type TrackerSettings struct {
	PeriodDuration         int64  `validate:"min=86400,max=2592000"`
	MinimumPointsThreshold uint64 `validate:"min=100"`
	TokensPerPeriod        uint64 `validate:"gt=0"`
}

// Submission — данные нового вклада после подсчёта баллов.
type Submission struct {
	Description   string `validate:"max=100"`
	Points        uint8  `validate:"min=1,max=10"`
	Contributions int    `validate:"lt=100"`
}

// fieldErrors сопоставляет поле структуры с ошибкой.
var fieldErrors = map[string]error{
	"PeriodDuration":         common.ErrInvalidPeriodDuration,
	"MinimumPointsThreshold": common.ErrInvalidPointsThreshold,
	"TokensPerPeriod":        common.ErrInvalidTokenAllocation,
	"Description":            common.ErrDescriptionTooLong,
	"Points":                 common.ErrInvalidPointsRange,
	"Contributions":          common.ErrMaxContributionsReached,
}

// ValidateTrackerSettings проверяет параметры трекера.
func ValidateTrackerSettings(s TrackerSettings) error {
	return translate(validate.Struct(s))
}

// ValidateSubmission проверяет вклад: описание, баллы и лимит вкладов.
func ValidateSubmission(s Submission) error {
	return translate(validate.Struct(s))
}

// ValidateDescription: не больше 100 символов (считаются руны).
func ValidateDescription(description string) error {
	return checkVar(description, "max=100", common.ErrDescriptionTooLong)
}

// ValidatePoints: баллы в диапазоне 1..10.
func ValidatePoints(points uint8) error {
	return checkVar(points, "min=1,max=10", common.ErrInvalidPointsRange)
}

// ValidatePeriodDuration: от 1 до 30 дней в секундах.
func ValidatePeriodDuration(seconds int64) error {
	return checkVar(seconds, "min=86400,max=2592000", common.ErrInvalidPeriodDuration)
}

// ValidatePointsThreshold: не меньше 100.
func ValidatePointsThreshold(threshold uint64) error {
	return checkVar(threshold, "min=100", common.ErrInvalidPointsThreshold)
}

// ValidateTokenAllocation: бюджет периода больше нуля.
func ValidateTokenAllocation(tokens uint64) error {
	return checkVar(tokens, "gt=0", common.ErrInvalidTokenAllocation)
}

// ValidateCapacity: у участника меньше 100 вкладов.
func ValidateCapacity(count int) error {
	if count >= domain.MaxContributions {
		return common.ErrMaxContributionsReached
	}
	return nil
}

func checkVar(value any, tag string, sentinel error) error {
	if err := validate.Var(value, tag); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return sentinel
		}
		return fmt.Errorf("ошибка валидации: %w", err)
	}
	return nil
}

// translate возвращает ошибку первого непрошедшего поля.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("ошибка валидации: %w", err)
	}
	for _, fe := range verrs {
		if sentinel, ok := fieldErrors[fe.StructField()]; ok {
			return sentinel
		}
	}
	return fmt.Errorf("ошибка валидации: %w", err)
}

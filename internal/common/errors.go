// Package common — errors.go определяет ошибки трекера вкладов,
// которые используются во всех модулях.
// Обработчики различают ошибки через errors.Is и показывают пользователю
// понятное сообщение, а Classify относит ошибку к одной из категорий.
package common

import "errors"

// Ошибки валидации входных данных
var (
	// ErrInvalidContributionType — неизвестная категория вклада
	ErrInvalidContributionType = errors.New("неизвестная категория вклада")
	// ErrInvalidSeverityLevel — неизвестный уровень серьёзности
	ErrInvalidSeverityLevel = errors.New("неизвестный уровень серьёзности")
	// ErrInvalidPointsRange — баллы вне диапазона 1..10
	ErrInvalidPointsRange = errors.New("баллы должны быть от 1 до 10")
	// ErrDescriptionTooLong — описание длиннее 100 символов
	ErrDescriptionTooLong = errors.New("описание слишком длинное (максимум 100 символов)")
	// ErrInvalidPeriodDuration — длительность периода вне 1..30 дней
	ErrInvalidPeriodDuration = errors.New("длительность периода должна быть от 1 до 30 дней")
	// ErrInvalidPointsThreshold — порог баллов меньше 100
	ErrInvalidPointsThreshold = errors.New("порог баллов должен быть не меньше 100")
	// ErrInvalidTokenAllocation — нулевой бюджет периода
	ErrInvalidTokenAllocation = errors.New("бюджет периода должен быть положительным")
	// ErrMaxContributionsReached — у участника уже 100 вкладов
	ErrMaxContributionsReached = errors.New("достигнут лимит вкладов (100)")
	// ErrInvalidTimestamp — время операции раньше начала периода
	ErrInvalidTimestamp = errors.New("некорректное время операции")
	// ErrInvalidAmount — сумма должна быть положительной
	ErrInvalidAmount = errors.New("сумма должна быть положительной")
)

// Ошибки состояния
var (
	ErrPeriodNotEnded                = errors.New("период ещё не завершён")
	ErrPeriodAlreadyEnded            = errors.New("период уже закончился")
	ErrPeriodAlreadyFinalized        = errors.New("период уже финализирован")
	ErrFuturePeriodClaim             = errors.New("нельзя получить награду за будущий период")
	ErrAlreadyClaimed                = errors.New("награда за этот период уже получена")
	ErrContributionAlreadyProcessed  = errors.New("вклад уже рассмотрен")
	ErrInvalidStatusTransition       = errors.New("недопустимая смена статуса вклада")
	ErrInsufficientPoints            = errors.New("в периоде нет одобренных баллов")
	ErrContributionNotFound          = errors.New("вклад не найден")
	ErrContributorNotInitialized     = errors.New("участник ещё не отправлял вкладов")
	ErrPeriodDoesNotExist            = errors.New("период не существует")
	ErrTrackerNotInitialized         = errors.New("трекер ещё не запущен")
	ErrTrackerAlreadyInitialized     = errors.New("трекер уже запущен")
	ErrUnauthorizedAdmin             = errors.New("у вас нет прав администратора")
	ErrInvalidAuthority              = errors.New("запись принадлежит другому участнику")
)

// Арифметические ошибки
var (
	// ErrArithmeticOverflow — переполнение при сложении или умножении
	ErrArithmeticOverflow = errors.New("арифметическое переполнение")
	// ErrDistributionCalculation — выплаты превысили бюджет периода
	ErrDistributionCalculation = errors.New("ошибка расчёта распределения")
	// ErrReservePool — переполнение резервного пула
	ErrReservePool = errors.New("ошибка резервного пула")
)

// Ошибки внешних зависимостей
var (
	// ErrTokenTransferFailed — перевод токенов не удался
	ErrTokenTransferFailed = errors.New("перевод токенов не удался")
	// ErrInsufficientBalance — в хранилище недостаточно токенов
	ErrInsufficientBalance = errors.New("недостаточно токенов на счёте")
)

// Ошибки админки
var (
	// ErrWrongPassword — неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts — слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired — сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)

// ErrorCategory — категория ошибки.
type ErrorCategory string

const (
	CategoryUnknown    ErrorCategory = "unknown"
	CategoryValidation ErrorCategory = "validation"
	CategoryState      ErrorCategory = "state"
	CategoryArithmetic ErrorCategory = "arithmetic"
	CategoryExternal   ErrorCategory = "external"
)

var categories = map[ErrorCategory][]error{
	CategoryValidation: {
		ErrInvalidContributionType, ErrInvalidSeverityLevel, ErrInvalidPointsRange,
		ErrDescriptionTooLong, ErrInvalidPeriodDuration, ErrInvalidPointsThreshold,
		ErrInvalidTokenAllocation, ErrMaxContributionsReached, ErrInvalidTimestamp,
		ErrInvalidAmount,
	},
	CategoryState: {
		ErrPeriodNotEnded, ErrPeriodAlreadyEnded, ErrPeriodAlreadyFinalized,
		ErrFuturePeriodClaim, ErrAlreadyClaimed, ErrContributionAlreadyProcessed,
		ErrInvalidStatusTransition, ErrInsufficientPoints, ErrContributionNotFound,
		ErrContributorNotInitialized, ErrPeriodDoesNotExist, ErrTrackerNotInitialized,
		ErrTrackerAlreadyInitialized, ErrUnauthorizedAdmin, ErrInvalidAuthority,
		ErrWrongPassword, ErrTooManyAttempts, ErrSessionExpired,
	},
	CategoryArithmetic: {
		ErrArithmeticOverflow, ErrDistributionCalculation, ErrReservePool,
	},
	CategoryExternal: {
		ErrTokenTransferFailed, ErrInsufficientBalance,
	},
}

// Classify возвращает категорию ошибки.
// Ошибки валидации можно повторить с исправленными данными,
// ошибки состояния требуют перечитать состояние,
// арифметические и внешние прерывают операцию целиком.
func Classify(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	for _, cat := range []ErrorCategory{CategoryArithmetic, CategoryExternal, CategoryValidation, CategoryState} {
		for _, target := range categories[cat] {
			if errors.Is(err, target) {
				return cat
			}
		}
	}
	return CategoryUnknown
}

// UserMessage возвращает текст ошибки для ответа в чате.
// Для известных ошибок это текст исходной ошибки без обёрток,
// внутренние подробности наружу не отдаются.
func UserMessage(err error) string {
	for _, cat := range []ErrorCategory{CategoryArithmetic, CategoryExternal, CategoryValidation, CategoryState} {
		for _, target := range categories[cat] {
			if errors.Is(err, target) {
				return target.Error()
			}
		}
	}
	return "внутренняя ошибка, попробуйте позже"
}

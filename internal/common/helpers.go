// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование чисел, работа с временем.
package common

import (
	"fmt"
	"time"
)

// pluralForm выбирает форму слова для числа n по правилам русского языка.
//
// Правила:
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, 23, ...)
//   - Остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralForm(n uint64, one, few, many string) string {
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeTokens возвращает правильную форму слова «токен» для числа n.
//
// Примеры:
//
//	PluralizeTokens(1)  → "токен"
//	PluralizeTokens(3)  → "токена"
//	PluralizeTokens(11) → "токенов"
func PluralizeTokens(n uint64) string {
	return pluralForm(n, "токен", "токена", "токенов")
}

// PluralizePoints возвращает правильную форму слова «балл».
func PluralizePoints(n uint64) string {
	return pluralForm(n, "балл", "балла", "баллов")
}

// PluralizeDays возвращает правильную форму слова «день».
func PluralizeDays(n uint64) string {
	return pluralForm(n, "день", "дня", "дней")
}

// FormatTokens форматирует сумму токенов в читабельную строку.
// Пример: FormatTokens(1500) → "1 500 токенов"
func FormatTokens(amount uint64) string {
	return fmt.Sprintf("%s %s", FormatNumber(amount), PluralizeTokens(amount))
}

// FormatPoints форматирует баллы: FormatPoints(7) → "7 баллов".
func FormatPoints(points uint64) string {
	return fmt.Sprintf("%d %s", points, PluralizePoints(points))
}

// FormatDuration переводит длительность периода в секундах в дни.
// Пример: FormatDuration(604800) → "7 дней"
func FormatDuration(seconds int64) string {
	days := uint64(seconds / 86400)
	return fmt.Sprintf("%d %s", days, PluralizeDays(days))
}

// FormatDateTime форматирует unix-время в "02.01.2006 15:04" по Москве.
func FormatDateTime(unix int64) string {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		loc = time.FixedZone("MSK", 3*60*60)
	}
	return time.Unix(unix, 0).In(loc).Format("02.01.2006 15:04")
}

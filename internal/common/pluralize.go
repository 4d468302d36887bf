// Package common — pluralize.go содержит форматирование чисел
// для сообщений бота.
package common

import "fmt"

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n uint64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// FormatTokensDelta создаёт строку вида "+100 токенов".
func FormatTokensDelta(amount uint64) string {
	return "+" + FormatTokens(amount)
}

package retry

import (
	"context"
	"errors"
	"strings"
)

// Class - классификация ошибки хранилища
type Class int

const (
	// ClassTransient - временная ошибка, unit (страница или батч)
	// повторяется с backoff до исчерпания попыток
	ClassTransient Class = iota

	// ClassDeterministic - детерминированная ошибка, повтор бессмыслен:
	// unit немедленно помечается failed
	ClassDeterministic
)

// Паттерны детерминированных ошибок. Проверяются первыми:
// ошибка, совпавшая и с транзиентным и с детерминированным паттерном,
// считается детерминированной.
var deterministicPatterns = []string{
	"not found",
	"does not exist",
	"permission denied",
	"access denied",
	"required field",
	"missing required",
	"duplicate natural key",
	"duplicate key",
	"invalid value",
	"malformed",
}

// Паттерны транзиентных ошибок
var transientPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"temporarily unavailable",
	"service unavailable",
	"unavailable",
	"operation in progress",
	"connection refused",
	"connection reset",
	"too many requests",
	"try again",
}

// Classify определяет класс ошибки по ее тексту.
//
// Неоднозначные ошибки (не совпавшие ни с одним паттерном) считаются
// транзиентными с ограниченным числом повторов: повтор детерминированной
// ошибки стоит нескольких лишних запросов, а отказ от повтора
// транзиентной - потерянных записей.
func Classify(err error) Class {
	if err == nil {
		return ClassDeterministic
	}

	// Истечение дедлайна операции - транзиентная ошибка: сам запрос
	// может быть повторен с новым дедлайном
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}

	errStr := strings.ToLower(err.Error())

	for _, pattern := range deterministicPatterns {
		if strings.Contains(errStr, pattern) {
			return ClassDeterministic
		}
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return ClassTransient
		}
	}

	// Неизвестная ошибка: transient-with-limited-retry
	return ClassTransient
}

// IsTransient - shortcut для Classify(err) == ClassTransient
func IsTransient(err error) bool {
	return err != nil && Classify(err) == ClassTransient
}

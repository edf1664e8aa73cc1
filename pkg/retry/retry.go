package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryableFunc - функция которую можно повторять
type RetryableFunc func(ctx context.Context) error

// Retryer выполняет retry логику для транзиентных ошибок хранилища
type Retryer struct {
	config Config
}

// NewRetryer создает новый Retryer
func NewRetryer(config Config) (*Retryer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}
	return &Retryer{config: config}, nil
}

// Do выполняет функцию с повторами.
// Повторяются только транзиентные ошибки (см. Classify);
// детерминированная ошибка возвращается немедленно.
func (r *Retryer) Do(ctx context.Context, fn RetryableFunc) error {
	var lastErr error
	attempts := 0

	for {
		attempts++

		err := fn(ctx)
		if err == nil {
			return nil
		}

		lastErr = err

		if Classify(err) == ClassDeterministic {
			return fmt.Errorf("non-retryable error: %w", err)
		}

		if attempts >= r.config.MaxAttempts {
			return fmt.Errorf("max retry attempts (%d) exceeded: %w", r.config.MaxAttempts, lastErr)
		}

		if ctx.Err() != nil {
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		}

		delay := r.calculateDelay(attempts)

		if r.config.OnRetry != nil {
			r.config.OnRetry(attempts, err, delay)
		}

		select {
		case <-time.After(delay):
			// Продолжаем
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}
	}
}

// calculateDelay вычисляет задержку для текущей попытки
func (r *Retryer) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch r.config.BackoffStrategy {
	case BackoffConstant:
		delay = r.config.InitialDelay

	case BackoffLinear:
		// Linear: delay = initial * attempt
		delay = r.config.InitialDelay * time.Duration(attempt)

	case BackoffExponential:
		// Exponential: delay = initial * multiplier^(attempt-1)
		multiplier := math.Pow(r.config.BackoffMultiplier, float64(attempt-1))
		delay = time.Duration(float64(r.config.InitialDelay) * multiplier)

	default:
		delay = r.config.InitialDelay
	}

	// Применяем max delay
	if delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	// Добавляем jitter (случайность)
	if r.config.Jitter > 0 {
		jitter := time.Duration(float64(delay) * r.config.Jitter * (rand.Float64()*2 - 1))
		delay += jitter
		if delay < 0 {
			delay = r.config.InitialDelay
		}
	}

	return delay
}

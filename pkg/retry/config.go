package retry

import (
	"fmt"
	"time"
)

// BackoffStrategy определяет стратегию задержки между повторами
type BackoffStrategy string

const (
	// BackoffConstant - постоянная задержка
	BackoffConstant BackoffStrategy = "constant"
	// BackoffLinear - линейное увеличение задержки
	BackoffLinear BackoffStrategy = "linear"
	// BackoffExponential - экспоненциальное увеличение задержки
	BackoffExponential BackoffStrategy = "exponential"
)

// Config содержит конфигурацию retry механизма
type Config struct {
	// MaxAttempts - максимальное количество попыток (включая первую)
	MaxAttempts int `yaml:"max_attempts"`

	// InitialDelay - начальная задержка перед первым повтором
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay - максимальная задержка между попытками
	MaxDelay time.Duration `yaml:"max_delay"`

	// BackoffStrategy - стратегия увеличения задержки
	BackoffStrategy BackoffStrategy `yaml:"backoff"`

	// BackoffMultiplier - множитель для exponential backoff (обычно 2.0)
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// Jitter - добавлять случайность к задержке (0.0 - 1.0).
	// Помогает избежать "thundering herd" при параллельных батчах.
	Jitter float64 `yaml:"jitter"`

	// OnRetry - callback, вызываемый перед каждым повтором
	OnRetry func(attempt int, err error, delay time.Duration) `yaml:"-"`
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be >= 1, got %d", c.MaxAttempts)
	}

	if c.InitialDelay < 0 {
		return fmt.Errorf("initial_delay must be >= 0")
	}

	if c.MaxDelay < c.InitialDelay {
		return fmt.Errorf("max_delay (%v) must be >= initial_delay (%v)", c.MaxDelay, c.InitialDelay)
	}

	if c.BackoffStrategy != BackoffConstant &&
		c.BackoffStrategy != BackoffLinear &&
		c.BackoffStrategy != BackoffExponential {
		return fmt.Errorf("invalid backoff strategy: %s", c.BackoffStrategy)
	}

	if c.BackoffMultiplier <= 0 {
		c.BackoffMultiplier = 2.0 // Default
	}

	if c.Jitter < 0 || c.Jitter > 1.0 {
		return fmt.Errorf("jitter must be between 0.0 and 1.0, got %f", c.Jitter)
	}

	return nil
}

// DefaultConfig возвращает конфигурацию по умолчанию:
// 3 попытки с постоянной задержкой 2 секунды
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		InitialDelay:      2 * time.Second,
		MaxDelay:          30 * time.Second,
		BackoffStrategy:   BackoffConstant,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}
}

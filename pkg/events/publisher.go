// Package events публикует живые события запуска миграции во внешний
// брокер сообщений (Kafka или RabbitMQ). Внешние системы подписываются
// на поток событий вместо опроса состояния.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruslano69/refsync/pkg/progress"
)

// Event - одно событие запуска миграции
type Event struct {
	// Run - имя плана миграции
	Run string `json:"run"`

	// Phase - текущая фаза
	Phase string `json:"phase"`

	// Entity - сущность (пустое для глобальных фаз)
	Entity string `json:"entity,omitempty"`

	// Timestamp - момент события
	Timestamp time.Time `json:"timestamp"`

	// Progress - снимок прогресса (только для событий прогресса)
	Progress *ProgressPayload `json:"progress,omitempty"`
}

// ProgressPayload - сериализуемый снимок прогресса
type ProgressPayload struct {
	Processed     int64   `json:"processed"`
	Total         int64   `json:"total"`
	Percent       float64 `json:"percent"`
	RatePerSecond float64 `json:"rate_per_second"`
	// ETASeconds - оценка оставшегося времени; -1 = неизвестно
	ETASeconds float64 `json:"eta_seconds"`
}

// FromSnapshot конвертирует снимок прогресса в полезную нагрузку события
func FromSnapshot(s progress.Snapshot) *ProgressPayload {
	p := &ProgressPayload{
		Processed:     s.Processed,
		Total:         s.Total,
		Percent:       s.Percent(),
		RatePerSecond: s.RatePerSecond,
		ETASeconds:    -1,
	}
	if s.RemainingKnown {
		p.ETASeconds = s.Remaining.Seconds()
	}
	return p
}

// Publisher - приемник событий миграции
type Publisher interface {
	// Connect устанавливает соединение с брокером
	Connect(ctx context.Context) error

	// Publish отправляет событие
	Publish(ctx context.Context, ev Event) error

	// Close закрывает соединение
	Close() error
}

// marshalEvent сериализует событие для отправки в брокер
func marshalEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

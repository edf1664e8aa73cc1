package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config - конфигурация публикации результата запуска в Redis
type Config struct {
	Address  string // адрес Redis, например "127.0.0.1:6379"
	Name     string // имя результата (ключ и канал)
	Password string
	DB       int
	TTL      int // TTL ключа состояния в секундах
}

// RunState представляет итог запуска миграции, публикуемый в Redis
// после завершения (успешного или с ошибкой).
//
// Redis-ключи:
//
//	SET  refsync:run:<name>:state  <JSON>  EX <ttl>  - для GET-запросов оркестратора
//	PUB  refsync:run:<name>                          - для event-driven маршрутизации
type RunState struct {
	Plan       string    `json:"plan"`
	ResultName string    `json:"result_name"`
	Status     string    `json:"status"` // "success" | "failed"
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMs int64     `json:"duration_ms"`
	Written    int       `json:"written"` // создано + обновлено
	Failed     int       `json:"failed"`
	Error      *string   `json:"error,omitempty"`
}

// RedisPublisher публикует итог запуска миграции в Redis
type RedisPublisher struct {
	client *redis.Client
	config Config
}

// NewRedisPublisher создает новый Redis publisher на основе конфигурации
func NewRedisPublisher(config Config) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisPublisher{client: client, config: config}
}

// Publish публикует итог запуска:
//   - SET refsync:run:<name>:state <JSON> EX <ttl>  → для опроса (polling)
//   - PUBLISH refsync:run:<name> <JSON>             → для подписки (pub/sub)
//
// Вызывается независимо от итога (success или failed).
// execErr == nil означает успешное выполнение.
func (p *RedisPublisher) Publish(ctx context.Context, state RunState, execErr error) error {
	state.ResultName = p.config.Name
	if execErr != nil {
		state.Status = "failed"
		errStr := execErr.Error()
		state.Error = &errStr
	} else {
		state.Status = "success"
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	stateKey := fmt.Sprintf("refsync:run:%s:state", p.config.Name)
	eventChannel := fmt.Sprintf("refsync:run:%s", p.config.Name)
	ttl := time.Duration(p.config.TTL) * time.Second

	// SET ключ с TTL - оркестратор может GET для получения последнего состояния
	if err := p.client.Set(ctx, stateKey, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}

	// PUBLISH событие - оркестратор может SUBSCRIBE для event-driven маршрутизации
	if err := p.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}

	return nil
}

// Close закрывает соединение с Redis
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

package migrate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/retry"
	"github.com/ruslano69/refsync/pkg/stores"
)

// Plan - полная конфигурация одного запуска миграции.
//
// Порядок сущностей в Entities - это явно объявленный порядок
// зависимостей (родители раньше детей). Фреймворк никогда не выводит
// его автоматически: топологическая сортировка по метаданным ссылок
// потребовала бы интроспекции схемы хранилища, и объявленный список
// проще проверять на код-ревью плана.
type Plan struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// Source и Target - два независимых хранилища
	Source StoreConfig `yaml:"source"`
	Target StoreConfig `yaml:"target"`

	// Entities - сущности в порядке зависимостей
	Entities []record.EntitySpec `yaml:"entities"`

	Performance PerformanceConfig `yaml:"performance"`
	Retry       RetryConfig       `yaml:"retry"`
	Verify      VerifyConfig      `yaml:"verify"`

	// CleanTarget - удалить записи мигрируемых типов из цели перед
	// миграцией (в обратном порядке зависимостей)
	CleanTarget bool `yaml:"clean_target"`

	// DryRun - выполнить все фазы кроме Cleaning и Upserting:
	// предпросмотр объемов и покрытия трансляции ссылок
	DryRun bool `yaml:"dry_run"`

	Snapshot  SnapshotConfig  `yaml:"snapshot"`
	ResultLog ResultLogConfig `yaml:"result_log"`
	Events    EventsConfig    `yaml:"events"`
	Report    ReportConfig    `yaml:"report"`
}

// StoreConfig - подключение к хранилищу записей
type StoreConfig struct {
	Type     string `yaml:"type"`      // memory, sqlite, postgres, mysql, mssql
	DSN      string `yaml:"dsn"`       // строка подключения
	Schema   string `yaml:"schema"`    // схема (postgres/mssql)
	Timeout  int    `yaml:"timeout"`   // таймаут операции в секундах (0 = без таймаута)
	MaxConns int    `yaml:"max_conns"` // размер пула подключений
}

// ToStores конвертирует в конфигурацию пакета stores
func (c StoreConfig) ToStores() stores.Config {
	return stores.Config{
		Type:     c.Type,
		DSN:      c.DSN,
		Schema:   c.Schema,
		Timeout:  time.Duration(c.Timeout) * time.Second,
		MaxConns: c.MaxConns,
	}
}

// PerformanceConfig - параметры производительности
type PerformanceConfig struct {
	// MaxParallel - одновременных batch-вызовов к цели
	MaxParallel int `yaml:"max_parallel"`

	// BatchSize - записей в одном batch-вызове
	BatchSize int `yaml:"batch_size"`

	// PageSize - записей на страницу при извлечении
	PageSize int `yaml:"page_size"`
}

// RetryConfig - параметры повторов транзиентных ошибок.
// Задержки в секундах: YAML-парсер не понимает строки вида "2s".
type RetryConfig struct {
	MaxAttempts  int     `yaml:"max_attempts"`
	InitialDelay int     `yaml:"initial_delay"` // секунды
	MaxDelay     int     `yaml:"max_delay"`     // секунды
	Backoff      string  `yaml:"backoff"`       // constant, linear, exponential
	Jitter       float64 `yaml:"jitter"`
}

// ToRetry конвертирует в конфигурацию пакета retry
func (c RetryConfig) ToRetry() retry.Config {
	return retry.Config{
		MaxAttempts:     c.MaxAttempts,
		InitialDelay:    time.Duration(c.InitialDelay) * time.Second,
		MaxDelay:        time.Duration(c.MaxDelay) * time.Second,
		BackoffStrategy: retry.BackoffStrategy(c.Backoff),
		Jitter:          c.Jitter,
	}
}

// VerifyConfig - параметры верификации
type VerifyConfig struct {
	// Checksum - дополнительно к сравнению количеств сравнивать
	// XXH3-контрольные суммы отсортированных натуральных ключей
	Checksum bool `yaml:"checksum"`
}

// SnapshotConfig - дамп оттранслированных записей (предпросмотр)
type SnapshotConfig struct {
	// Destination - путь к файлу или s3://bucket/key.
	// Пустая строка = дамп отключен.
	Destination string `yaml:"destination"`
}

// ResultLogConfig определяет публикацию результата запуска в Redis.
// Позволяет внешнему оркестратору отслеживать запуски (GET/SUBSCRIBE).
type ResultLogConfig struct {
	Type     string `yaml:"type"`     // redis (пустое = отключено)
	Address  string `yaml:"address"`  // адрес Redis, например "127.0.0.1:6379"
	Name     string `yaml:"name"`     // имя результата (ключ/канал)
	Password string `yaml:"password"` // пароль Redis (опционально)
	DB       int    `yaml:"db"`       // индекс базы Redis
	TTL      int    `yaml:"ttl"`      // TTL ключа в секундах
}

// EventsConfig определяет публикацию живых событий запуска в брокер
type EventsConfig struct {
	Type string `yaml:"type"` // rabbitmq, kafka (пустое = отключено)

	// RabbitMQ
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Queue    string `yaml:"queue"`

	// Kafka
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ReportConfig - итоговый XLSX отчет для оператора
type ReportConfig struct {
	// Destination - путь к выходному .xlsx (пустое = отключено)
	Destination string `yaml:"destination"`
}

// LoadPlan загружает план миграции из YAML файла
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	plan.SetDefaults()

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid plan: %w", err)
	}

	return &plan, nil
}

// Validate проверяет корректность плана
func (p *Plan) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("plan name is required")
	}
	if p.Source.Type == "" {
		return fmt.Errorf("source store type is required")
	}
	if p.Target.Type == "" {
		return fmt.Errorf("target store type is required")
	}
	if len(p.Entities) == 0 {
		return fmt.Errorf("at least one entity is required")
	}

	seen := make(map[string]bool, len(p.Entities))
	for i := range p.Entities {
		spec := &p.Entities[i]
		if err := spec.Validate(); err != nil {
			return err
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate entity: %s", spec.Name)
		}
		seen[spec.Name] = true

		// Ссылки должны указывать на сущности, объявленные РАНЬШЕ:
		// это и есть проверяемая форма порядка зависимостей
		for field, ref := range spec.References {
			if !seen[ref.EntityType] {
				return fmt.Errorf("entity %s: reference field %s points to %s which is not declared earlier in the plan (dependency order)",
					spec.Name, field, ref.EntityType)
			}
			if ref.EntityType == spec.Name {
				return fmt.Errorf("entity %s: self-reference in field %s is not supported", spec.Name, field)
			}
		}
	}

	rc := p.Retry.ToRetry()
	if err := rc.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	return nil
}

// SetDefaults устанавливает значения по умолчанию
func (p *Plan) SetDefaults() {
	if p.Performance.MaxParallel <= 0 {
		p.Performance.MaxParallel = 4
	}
	if p.Performance.BatchSize <= 0 {
		p.Performance.BatchSize = 5000
	}
	if p.Performance.PageSize <= 0 {
		p.Performance.PageSize = 5000
	}
	if p.Retry.MaxAttempts <= 0 {
		p.Retry.MaxAttempts = 3
	}
	if p.Retry.InitialDelay <= 0 {
		p.Retry.InitialDelay = 2
	}
	if p.Retry.MaxDelay < p.Retry.InitialDelay {
		p.Retry.MaxDelay = 30
	}
	if p.Retry.Backoff == "" {
		p.Retry.Backoff = string(retry.BackoffConstant)
	}
	if p.ResultLog.Type == "redis" && p.ResultLog.TTL <= 0 {
		p.ResultLog.TTL = 3600
	}
}

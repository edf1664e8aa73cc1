// Package upsert реализует параллельный batch-исполнитель записи
// в хранилище: детерминированная нарезка на батчи, ограниченный
// пул воркеров, continue-on-error и потокобезопасная агрегация исходов.
package upsert

import (
	"context"
	"sync"
	"time"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/retry"
	"github.com/ruslano69/refsync/pkg/stores"
)

const (
	// DefaultBatchSize - размер батча по умолчанию
	// (не должен превышать документированный лимит хранилища)
	DefaultBatchSize = 5000

	// DefaultMaxParallel - количество одновременных батчей по умолчанию.
	// Подбирается под rate-limiting целевого хранилища.
	DefaultMaxParallel = 4
)

// Options - параметры исполнения
type Options struct {
	// MaxParallel - максимум одновременных batch-вызовов
	MaxParallel int

	// BatchSize - максимальный размер одного батча
	BatchSize int

	// KeyMode - идентификация записей при upsert.
	// KeyModeNatural делает повторные запуски идемпотентными.
	KeyMode stores.KeyMode

	// KeyFields - поля натурального ключа (для KeyModeNatural)
	KeyFields []string

	// OnProgress вызывается после завершения каждого батча
	// с количеством обработанных в нем записей
	OnProgress func(delta int)
}

// normalized возвращает опции с подставленными значениями по умолчанию
func (o Options) normalized() Options {
	if o.MaxParallel <= 0 {
		o.MaxParallel = DefaultMaxParallel
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.KeyMode == "" {
		o.KeyMode = stores.KeyModeNatural
	}
	return o
}

// RecordError - ошибка одной записи с ее позицией во входном наборе
type RecordError struct {
	// Index - позиция записи во входном наборе (не в батче)
	Index int

	// Key - канонический натуральный ключ записи
	Key string

	// Err - текст ошибки хранилища
	Err string
}

// Result - агрегированный результат исполнения
type Result struct {
	Total    int64
	Created  int64
	Updated  int64
	Failed   int64
	Batches  int
	Duration time.Duration

	// Errors - собранные per-record ошибки (с исходными индексами)
	Errors []RecordError
}

// Executor выполняет батчи против одного хранилища
type Executor struct {
	store   stores.Store
	retryer *retry.Retryer
}

// NewExecutor создает исполнитель.
// retryer применяется к ошибкам целого batch-вызова: транзиентные
// повторяются с backoff, детерминированные проваливают батч сразу.
func NewExecutor(store stores.Store, retryer *retry.Retryer) *Executor {
	return &Executor{store: store, retryer: retryer}
}

// batch - одна единица работы воркера
type batch struct {
	start   int // позиция первой записи во входном наборе
	records []*record.Record
}

// Execute записывает records в хранилище батчами с ограниченным
// параллелизмом.
//
// Нарезка на батчи детерминирована (стабильные чанки входной
// последовательности); порядок завершения батчей - нет. Ошибка одной
// записи не прерывает ни батч ни исполнение: все исходы агрегируются.
// Ошибка целого batch-вызова после исчерпания повторов помечает все
// записи батча как failed, остальные батчи продолжаются.
//
// При отмене контекста возвращается частичный результат и ошибка
// контекста; in-flight вызовы получают отмену через ctx.
func (e *Executor) Execute(ctx context.Context, entityType string, records []*record.Record, opts Options) (*Result, error) {
	opts = opts.normalized()
	start := time.Now()

	result := &Result{Total: int64(len(records))}
	if len(records) == 0 {
		result.Duration = time.Since(start)
		return result, nil
	}

	batches := chunk(records, opts.BatchSize)
	result.Batches = len(batches)

	jobs := make(chan batch)
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := opts.MaxParallel
	if workers > len(batches) {
		workers = len(batches)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for b := range jobs {
				e.runBatch(ctx, entityType, b, opts, result, &mu)
			}
		}()
	}

	// Раздаем батчи; при отмене контекста прекращаем раздачу,
	// недоставленные батчи не исполняются
feed:
	for _, b := range batches {
		select {
		case jobs <- b:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	result.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// runBatch исполняет один батч и вливает его исходы в агрегат
func (e *Executor) runBatch(ctx context.Context, entityType string, b batch, opts Options, result *Result, mu *sync.Mutex) {
	var results []stores.UpsertResult

	call := func(ctx context.Context) error {
		var err error
		results, err = e.store.BatchUpsert(ctx, entityType, opts.KeyFields, b.records, opts.KeyMode)
		return err
	}

	var err error
	if e.retryer != nil {
		err = e.retryer.Do(ctx, call)
	} else {
		err = call(ctx)
	}

	mu.Lock()
	if err != nil {
		// Весь вызов провален: ни одна запись батча не применена
		result.Failed += int64(len(b.records))
		for i, rec := range b.records {
			result.Errors = append(result.Errors, RecordError{
				Index: b.start + i,
				Key:   rec.Key.String(),
				Err:   err.Error(),
			})
		}
	} else {
		for _, r := range results {
			switch r.Status {
			case stores.StatusCreated:
				result.Created++
				b.records[r.Index].ID = r.ID
			case stores.StatusUpdated:
				result.Updated++
				b.records[r.Index].ID = r.ID
			case stores.StatusFailed:
				result.Failed++
				result.Errors = append(result.Errors, RecordError{
					Index: b.start + r.Index,
					Key:   b.records[r.Index].Key.String(),
					Err:   r.Err,
				})
			}
		}
	}
	mu.Unlock()

	if opts.OnProgress != nil {
		opts.OnProgress(len(b.records))
	}
}

// chunk нарезает входной набор на стабильные батчи размером <= size
func chunk(records []*record.Record, size int) []batch {
	var out []batch
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		out = append(out, batch{start: start, records: records[start:end]})
	}
	return out
}

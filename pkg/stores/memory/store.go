// Package memory реализует хранилище записей в памяти.
//
// Используется в тестах как инструментированный дублер внешнего
// хранилища (учет одновременных batch-вызовов, инъекция сбоев)
// и в CLI для локального предпросмотра плана миграции.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/stores"
)

// Compile-time check: Store должен реализовывать интерфейс stores.Store
var _ stores.Store = (*Store)(nil)

// Регистрация в глобальной фабрике
func init() {
	stores.Register("memory", func() stores.Store {
		return New()
	})
}

// Store - хранилище записей в памяти
type Store struct {
	mu      sync.Mutex
	records map[string]map[string]*record.Record // entityType -> id -> record
	index   map[string]map[string]string         // entityType -> natural key -> id
	nextID  int

	// CallDelay - искусственная задержка каждого batch-вызова.
	// Позволяет тестам наблюдать перекрытие параллельных вызовов.
	CallDelay time.Duration

	// UpsertHook вызывается для каждой записи перед upsert.
	// Ненулевая ошибка помечает запись как failed (per-record fault).
	UpsertHook func(entityType string, rec *record.Record) error

	// BatchHook вызывается один раз на batch-вызов (op: "upsert", "delete",
	// "query"). Ненулевая ошибка проваливает весь вызов (whole-batch fault).
	BatchHook func(op, entityType string) error

	inFlight    int
	maxInFlight int
}

// New создает новое пустое хранилище
func New() *Store {
	return &Store{
		records: make(map[string]map[string]*record.Record),
		index:   make(map[string]map[string]string),
	}
}

// Connect реализует интерфейс stores.Store (для памяти - no-op)
func (s *Store) Connect(ctx context.Context, cfg stores.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.records == nil {
		s.records = make(map[string]map[string]*record.Record)
		s.index = make(map[string]map[string]string)
	}
	return nil
}

// Close реализует интерфейс stores.Store
func (s *Store) Close(ctx context.Context) error {
	return nil
}

// Ping реализует интерфейс stores.Store
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// StoreType возвращает тип хранилища
func (s *Store) StoreType() string {
	return "memory"
}

// enter/leave учитывают одновременные batch-вызовы
func (s *Store) enter() {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()
}

func (s *Store) leave() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
}

// MaxInFlight возвращает максимум одновременных batch-вызовов за все время
func (s *Store) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

// Query возвращает страницу записей, упорядоченную по суррогатному id.
// Курсор - id последней записи предыдущей страницы.
func (s *Store) Query(ctx context.Context, entityType string, fields []string, pageSize int, cursor string) (*stores.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.BatchHook != nil {
		if err := s.BatchHook("query", entityType); err != nil {
			return nil, err
		}
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.records[entityType]))
	for id := range s.records[entityType] {
		if id > cursor {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := &stores.Page{}
	for _, id := range ids {
		if len(page.Records) >= pageSize {
			break
		}
		page.Records = append(page.Records, project(s.records[entityType][id], fields))
	}

	if len(page.Records) < pageSize || len(ids) == len(page.Records) {
		page.Done = true
	} else {
		page.NextCursor = page.Records[len(page.Records)-1].ID
	}
	return page, nil
}

// CountRecords возвращает количество записей типа
func (s *Store) CountRecords(ctx context.Context, entityType string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records[entityType])), nil
}

// BatchUpsert создает или обновляет записи батча
func (s *Store) BatchUpsert(ctx context.Context, entityType string, keyFields []string, recs []*record.Record, mode stores.KeyMode) ([]stores.UpsertResult, error) {
	s.enter()
	defer s.leave()

	if s.CallDelay > 0 {
		select {
		case <-time.After(s.CallDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.BatchHook != nil {
		if err := s.BatchHook("upsert", entityType); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[entityType] == nil {
		s.records[entityType] = make(map[string]*record.Record)
		s.index[entityType] = make(map[string]string)
	}

	results := make([]stores.UpsertResult, len(recs))
	for i, rec := range recs {
		results[i] = s.upsertOne(entityType, i, rec, mode)
	}
	return results, nil
}

func (s *Store) upsertOne(entityType string, idx int, rec *record.Record, mode stores.KeyMode) stores.UpsertResult {
	res := stores.UpsertResult{Index: idx}

	if s.UpsertHook != nil {
		if err := s.UpsertHook(entityType, rec); err != nil {
			res.Status = stores.StatusFailed
			res.Err = err.Error()
			return res
		}
	}

	switch mode {
	case stores.KeyModeNatural:
		if !rec.Key.IsValid() {
			res.Status = stores.StatusFailed
			res.Err = "record has no valid natural key"
			return res
		}
		key := rec.Key.String()
		if id, ok := s.index[entityType][key]; ok {
			stored := rec.Clone()
			stored.ID = id
			s.records[entityType][id] = stored
			res.ID = id
			res.Status = stores.StatusUpdated
			return res
		}
		s.nextID++
		id := fmt.Sprintf("mem-%06d", s.nextID)
		stored := rec.Clone()
		stored.ID = id
		s.records[entityType][id] = stored
		s.index[entityType][key] = id
		res.ID = id
		res.Status = stores.StatusCreated
		return res

	case stores.KeyModeSurrogate:
		if rec.ID == "" {
			res.Status = stores.StatusFailed
			res.Err = "record has no surrogate id"
			return res
		}
		_, existed := s.records[entityType][rec.ID]
		stored := rec.Clone()
		s.records[entityType][rec.ID] = stored
		if stored.Key.IsValid() {
			s.index[entityType][stored.Key.String()] = stored.ID
		}
		res.ID = rec.ID
		if existed {
			res.Status = stores.StatusUpdated
		} else {
			res.Status = stores.StatusCreated
		}
		return res

	default:
		res.Status = stores.StatusFailed
		res.Err = fmt.Sprintf("unknown key mode: %s", mode)
		return res
	}
}

// BatchDelete удаляет записи по суррогатным идентификаторам
func (s *Store) BatchDelete(ctx context.Context, entityType string, ids []string) ([]stores.DeleteResult, error) {
	s.enter()
	defer s.leave()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.BatchHook != nil {
		if err := s.BatchHook("delete", entityType); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]stores.DeleteResult, len(ids))
	for i, id := range ids {
		results[i] = stores.DeleteResult{Index: i, ID: id}
		rec, ok := s.records[entityType][id]
		if !ok {
			results[i].Err = fmt.Sprintf("record not found: %s", id)
			continue
		}
		delete(s.records[entityType], id)
		if rec.Key.IsValid() {
			delete(s.index[entityType], rec.Key.String())
		}
	}
	return results, nil
}

// Seed загружает записи напрямую, минуя инструментирование.
// Записи без ID получают сгенерированный суррогатный идентификатор.
// Используется в тестах для наполнения исходного хранилища.
func (s *Store) Seed(entityType string, recs ...*record.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.records[entityType] == nil {
		s.records[entityType] = make(map[string]*record.Record)
		s.index[entityType] = make(map[string]string)
	}
	for _, rec := range recs {
		stored := rec.Clone()
		if stored.ID == "" {
			s.nextID++
			stored.ID = fmt.Sprintf("mem-%06d", s.nextID)
		}
		s.records[entityType][stored.ID] = stored
		if stored.Key.IsValid() {
			s.index[entityType][stored.Key.String()] = stored.ID
		}
	}
}

// Get возвращает запись по суррогатному идентификатору (для тестов)
func (s *Store) Get(entityType, id string) (*record.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[entityType][id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// IDByKey возвращает суррогатный идентификатор по натуральному ключу (для тестов)
func (s *Store) IDByKey(entityType, key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.index[entityType][key]
	return id, ok
}

// project возвращает копию записи с проекцией полей
func project(rec *record.Record, fields []string) *record.Record {
	out := record.New(rec.EntityType)
	out.ID = rec.ID
	if rec.Key != nil {
		out.Key = append(record.NaturalKey{}, rec.Key...)
	}
	if len(fields) == 0 {
		return rec.Clone()
	}
	for _, f := range fields {
		if v, ok := rec.Fields[f]; ok {
			out.SetField(f, v)
		}
	}
	return out
}

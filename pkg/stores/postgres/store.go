// Package postgres реализует хранилище записей на PostgreSQL
// поверх нативного pgx с connection pool.
package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/stores"
	"github.com/ruslano69/refsync/pkg/stores/base"
)

// Compile-time check: Store должен реализовывать интерфейс stores.Store
var _ stores.Store = (*Store)(nil)

// Регистрация хранилища в глобальной фабрике
func init() {
	stores.Register("postgres", func() stores.Store {
		return &Store{converter: base.NewTypeConverter()}
	})
}

// Store - хранилище записей на PostgreSQL
type Store struct {
	pool      *pgxpool.Pool
	schema    string
	converter *base.TypeConverter
}

// Connect устанавливает подключение к PostgreSQL
func (s *Store) Connect(ctx context.Context, cfg stores.Config) error {
	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to parse connection string: %w", err)
	}

	if cfg.MaxConns > 0 {
		config.MaxConns = int32(cfg.MaxConns)
	} else {
		config.MaxConns = 10 // default
	}
	if cfg.MinConns > 0 {
		config.MinConns = int32(cfg.MinConns)
	} else {
		config.MinConns = 2 // default
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.pool = pool
	s.schema = cfg.Schema
	if s.schema == "" {
		s.schema = "public" // default schema
	}
	return nil
}

// Close закрывает connection pool
func (s *Store) Close(ctx context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Ping проверяет доступность БД
func (s *Store) Ping(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("store not connected")
	}
	return s.pool.Ping(ctx)
}

// StoreType возвращает тип хранилища
func (s *Store) StoreType() string {
	return "postgres"
}

// Pool возвращает *pgxpool.Pool для прямого доступа (тесты, миграции схемы)
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func quote(ident string) string {
	return `"` + ident + `"`
}

func (s *Store) table(entityType string) string {
	return quote(s.schema) + "." + quote(entityType)
}

// Query возвращает страницу записей keyset-пагинацией по id
func (s *Store) Query(ctx context.Context, entityType string, fields []string, pageSize int, cursor string) (*stores.Page, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("store not connected")
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	cols := make([]string, 0, len(fields)+1)
	cols = append(cols, quote(base.IDColumn))
	for _, f := range fields {
		cols = append(cols, quote(f))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), s.table(entityType))
	var args []interface{}
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor %q: %w", cursor, err)
		}
		fmt.Fprintf(&sb, " WHERE %s > $1", quote(base.IDColumn))
		args = append(args, n)
	}
	fmt.Fprintf(&sb, " ORDER BY %s LIMIT %d", quote(base.IDColumn), pageSize)

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entityType, err)
	}
	defer rows.Close()

	page := &stores.Page{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s row: %w", entityType, err)
		}

		rec := record.New(entityType)
		rec.ID = idToString(vals[0])
		for i, f := range fields {
			rec.SetField(f, s.converter.FromSQL(vals[i+1]))
		}
		page.Records = append(page.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s rows: %w", entityType, err)
	}

	if len(page.Records) > 0 {
		page.NextCursor = page.Records[len(page.Records)-1].ID
	}
	page.Done = len(page.Records) < pageSize
	return page, nil
}

// CountRecords возвращает количество записей типа
func (s *Store) CountRecords(ctx context.Context, entityType string) (int64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("store not connected")
	}
	var count int64
	query := "SELECT COUNT(*) FROM " + s.table(entityType)
	if err := s.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", entityType, err)
	}
	return count, nil
}

// BatchUpsert создает или обновляет записи батча в одной транзакции.
// Использует INSERT ... ON CONFLICT (натуральный ключ) DO UPDATE
// с RETURNING id, (xmax = 0): один round-trip на запись и точная
// классификация created/updated без предварительного SELECT.
//
// Требует уникального индекса по ключевым колонкам таблицы.
func (s *Store) BatchUpsert(ctx context.Context, entityType string, keyFields []string, records []*record.Record, mode stores.KeyMode) ([]stores.UpsertResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("store not connected")
	}
	if mode == stores.KeyModeNatural && len(keyFields) == 0 {
		return nil, fmt.Errorf("natural key mode requires key fields")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	results := make([]stores.UpsertResult, len(records))
	for i, rec := range records {
		res := stores.UpsertResult{Index: i}
		id, status, err := s.upsertOne(ctx, tx, entityType, keyFields, rec, mode)
		if err != nil {
			res.Status = stores.StatusFailed
			res.Err = err.Error()
		} else {
			res.ID = id
			res.Status = status
		}
		results[i] = res
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return results, nil
}

// upsertOne применяет одну запись внутри транзакции.
// Ошибка записи откатывается до savepoint, не трогая соседей по батчу.
func (s *Store) upsertOne(ctx context.Context, tx pgx.Tx, entityType string, keyFields []string, rec *record.Record, mode stores.KeyMode) (string, stores.Status, error) {
	inner, err := tx.Begin(ctx) // pgx реализует вложенный Begin как savepoint
	if err != nil {
		return "", "", fmt.Errorf("failed to create savepoint: %w", err)
	}

	id, status, err := s.execUpsert(ctx, inner, entityType, keyFields, rec, mode)
	if err != nil {
		inner.Rollback(ctx)
		return "", "", err
	}
	if err := inner.Commit(ctx); err != nil {
		return "", "", fmt.Errorf("failed to release savepoint: %w", err)
	}
	return id, status, nil
}

func (s *Store) execUpsert(ctx context.Context, tx pgx.Tx, entityType string, keyFields []string, rec *record.Record, mode stores.KeyMode) (string, stores.Status, error) {
	fields := rec.FieldNames()
	cols := make([]string, len(fields))
	phs := make([]string, len(fields))
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		cols[i] = quote(f)
		phs[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s.converter.ToSQL(rec.Field(f))
	}

	if mode == stores.KeyModeSurrogate {
		if rec.ID == "" {
			return "", "", fmt.Errorf("surrogate key mode requires record id")
		}
		sets := make([]string, len(fields))
		for i := range fields {
			sets[i] = fmt.Sprintf("%s = %s", cols[i], phs[i])
		}
		idArg, err := strconv.ParseInt(rec.ID, 10, 64)
		if err != nil {
			return "", "", fmt.Errorf("invalid record id %q: %w", rec.ID, err)
		}
		query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d",
			s.table(entityType), strings.Join(sets, ", "), quote(base.IDColumn), len(fields)+1)
		if _, err := tx.Exec(ctx, query, append(args, idArg)...); err != nil {
			return "", "", fmt.Errorf("failed to update %s id=%s: %w", entityType, rec.ID, err)
		}
		return rec.ID, stores.StatusUpdated, nil
	}

	keyCols := make([]string, len(keyFields))
	for i, f := range keyFields {
		keyCols[i] = quote(f)
	}
	updates := make([]string, 0, len(fields))
	for i, f := range fields {
		if isKeyField(f, keyFields) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = %s", cols[i], phs[i]))
	}
	conflictAction := "DO NOTHING"
	if len(updates) > 0 {
		conflictAction = "DO UPDATE SET " + strings.Join(updates, ", ")
	}

	// xmax = 0 только у строк, вставленных текущей транзакцией
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) %s RETURNING %s, (xmax = 0) AS inserted",
		s.table(entityType), strings.Join(cols, ", "), strings.Join(phs, ", "),
		strings.Join(keyCols, ", "), conflictAction, quote(base.IDColumn))

	var rawID interface{}
	var inserted bool
	if err := tx.QueryRow(ctx, query, args...).Scan(&rawID, &inserted); err != nil {
		return "", "", fmt.Errorf("failed to upsert %s key=%s: %w", entityType, rec.Key.String(), err)
	}

	id := idToString(rawID)
	rec.ID = id
	if inserted {
		return id, stores.StatusCreated, nil
	}
	return id, stores.StatusUpdated, nil
}

// BatchDelete удаляет записи по id в одной транзакции
func (s *Store) BatchDelete(ctx context.Context, entityType string, ids []string) ([]stores.DeleteResult, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("store not connected")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", s.table(entityType), quote(base.IDColumn))
	results := make([]stores.DeleteResult, len(ids))
	for i, id := range ids {
		res := stores.DeleteResult{Index: i, ID: id}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			res.Err = fmt.Sprintf("invalid id %q", id)
			results[i] = res
			continue
		}
		if err := s.deleteOne(ctx, tx, query, n); err != nil {
			res.Err = err.Error()
		}
		results[i] = res
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit delete batch: %w", err)
	}
	return results, nil
}

// deleteOne удаляет одну запись под savepoint: ошибка откатывается
// до savepoint и не обрывает транзакцию для остальных записей батча
// (после ошибочного Exec PostgreSQL отвергает любые последующие
// стейтменты транзакции, SQLSTATE 25P02).
func (s *Store) deleteOne(ctx context.Context, tx pgx.Tx, query string, id int64) error {
	inner, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to create savepoint: %w", err)
	}
	if _, err := inner.Exec(ctx, query, id); err != nil {
		inner.Rollback(ctx)
		return err
	}
	if err := inner.Commit(ctx); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

func isKeyField(name string, keyFields []string) bool {
	for _, k := range keyFields {
		if k == name {
			return true
		}
	}
	return false
}

// idToString нормализует значение колонки id к строке
func idToString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

package base

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/stores"
)

// SQLStore - реализация stores.Store поверх database/sql.
// Конкретное хранилище создает ее через NewSQLStore, передав
// драйвер и диалект; само оно добавляет только специфичные
// настройки подключения (PRAGMA, параметры пула).
type SQLStore struct {
	db        *sql.DB
	dialect   Dialect
	driver    string
	storeType string
	schema    string
	converter *TypeConverter
}

// NewSQLStore создает хранилище для драйвера и диалекта
func NewSQLStore(storeType, driver string, dialect Dialect) *SQLStore {
	return &SQLStore{
		storeType: storeType,
		driver:    driver,
		dialect:   dialect,
		converter: NewTypeConverter(),
	}
}

// Connect открывает подключение и проверяет его
func (s *SQLStore) Connect(ctx context.Context, cfg stores.Config) error {
	db, err := sql.Open(s.driver, cfg.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	s.db = db
	s.schema = cfg.Schema
	return nil
}

// Close закрывает соединение с БД
func (s *SQLStore) Close(ctx context.Context) error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping проверяет доступность БД
func (s *SQLStore) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("store not connected")
	}
	return s.db.PingContext(ctx)
}

// StoreType возвращает тип хранилища
func (s *SQLStore) StoreType() string {
	return s.storeType
}

// DB возвращает *sql.DB для прямого доступа (тесты, миграции схемы)
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

// table возвращает имя таблицы с учетом схемы
func (s *SQLStore) table(entityType string) string {
	if s.schema != "" {
		return s.dialect.Quote(s.schema) + "." + s.dialect.Quote(entityType)
	}
	return s.dialect.Quote(entityType)
}

// cursorArg конвертирует курсор в аргумент сравнения с id.
// Автоинкрементные id целочисленные; строгим СУБД нельзя
// передавать строку в целочисленное сравнение.
func cursorArg(cursor string) interface{} {
	if n, err := strconv.ParseInt(cursor, 10, 64); err == nil {
		return n
	}
	return cursor
}

// Query возвращает страницу записей keyset-пагинацией по id.
// Курсор - id последней записи предыдущей страницы: страницы
// стабильны при параллельных вставках, в отличие от OFFSET.
func (s *SQLStore) Query(ctx context.Context, entityType string, fields []string, pageSize int, cursor string) (*stores.Page, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not connected")
	}
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}

	query := s.dialect.PageSQL(s.table(entityType), fields, cursor != "", pageSize)
	var args []interface{}
	if cursor != "" {
		args = append(args, cursorArg(cursor))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entityType, err)
	}
	defer rows.Close()

	page := &stores.Page{}
	scan := make([]interface{}, len(fields)+1)
	vals := make([]interface{}, len(fields)+1)
	for i := range scan {
		scan[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(scan...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", entityType, err)
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
func (s *SQLStore) CountRecords(ctx context.Context, entityType string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("store not connected")
	}
	var count int64
	query := "SELECT COUNT(*) FROM " + s.table(entityType)
	if err := s.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", entityType, err)
	}
	return count, nil
}

// BatchUpsert создает или обновляет записи батча в одной транзакции.
// Ошибка отдельной записи фиксируется в ее исходе и не откатывает
// остальные; ошибка начала/коммита транзакции проваливает весь батч.
func (s *SQLStore) BatchUpsert(ctx context.Context, entityType string, keyFields []string, records []*record.Record, mode stores.KeyMode) ([]stores.UpsertResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not connected")
	}
	if mode == stores.KeyModeNatural && len(keyFields) == 0 {
		return nil, fmt.Errorf("natural key mode requires key fields")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

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

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit batch: %w", err)
	}
	return results, nil
}

// upsertOne применяет одну запись внутри транзакции.
// Существование проверяется по натуральному ключу до записи -
// это дает точную классификацию created/updated на любой СУБД
// без диалектных RETURNING-трюков.
func (s *SQLStore) upsertOne(ctx context.Context, tx *sql.Tx, entityType string, keyFields []string, rec *record.Record, mode stores.KeyMode) (string, stores.Status, error) {
	if mode == stores.KeyModeSurrogate {
		if rec.ID == "" {
			return "", "", fmt.Errorf("surrogate key mode requires record id")
		}
		if err := s.updateByID(ctx, tx, entityType, rec); err != nil {
			return "", "", err
		}
		return rec.ID, stores.StatusUpdated, nil
	}

	keyArgs := make([]interface{}, len(keyFields))
	for i, f := range keyFields {
		v := rec.Field(f)
		keyArgs[i] = s.converter.ToSQL(v)
	}

	existingID, err := s.findByKey(ctx, tx, entityType, keyFields, keyArgs)
	if err != nil {
		return "", "", err
	}

	if existingID != "" {
		rec.ID = existingID
		if err := s.updateByID(ctx, tx, entityType, rec); err != nil {
			return "", "", err
		}
		return existingID, stores.StatusUpdated, nil
	}

	if err := s.insert(ctx, tx, entityType, rec); err != nil {
		return "", "", err
	}
	// id назначила СУБД; перечитываем его по ключу
	newID, err := s.findByKey(ctx, tx, entityType, keyFields, keyArgs)
	if err != nil {
		return "", "", err
	}
	if newID == "" {
		return "", "", fmt.Errorf("inserted record not found by key %s", rec.Key.String())
	}
	rec.ID = newID
	return newID, stores.StatusCreated, nil
}

// findByKey возвращает id записи по натуральному ключу ("" если нет)
func (s *SQLStore) findByKey(ctx context.Context, tx *sql.Tx, entityType string, keyFields []string, keyArgs []interface{}) (string, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		s.dialect.Quote(IDColumn), s.table(entityType), buildWhereKey(s.dialect, keyFields, 1))

	var raw interface{}
	err := tx.QueryRowContext(ctx, query, keyArgs...).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up %s by key: %w", entityType, err)
	}
	return idToString(raw), nil
}

// insert вставляет запись (без колонки id)
func (s *SQLStore) insert(ctx context.Context, tx *sql.Tx, entityType string, rec *record.Record) error {
	fields := rec.FieldNames()
	cols := make([]string, len(fields))
	phs := make([]string, len(fields))
	args := make([]interface{}, len(fields))
	for i, f := range fields {
		v := rec.Field(f)
		cols[i] = s.dialect.Quote(f)
		phs[i] = s.dialect.Placeholder(i + 1)
		args[i] = s.converter.ToSQL(v)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table(entityType), strings.Join(cols, ", "), strings.Join(phs, ", "))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", entityType, err)
	}
	return nil
}

// updateByID обновляет все поля записи по ее id
func (s *SQLStore) updateByID(ctx context.Context, tx *sql.Tx, entityType string, rec *record.Record) error {
	fields := rec.FieldNames()
	sets := make([]string, len(fields))
	args := make([]interface{}, 0, len(fields)+1)
	for i, f := range fields {
		v := rec.Field(f)
		sets[i] = fmt.Sprintf("%s = %s", s.dialect.Quote(f), s.dialect.Placeholder(i+1))
		args = append(args, s.converter.ToSQL(v))
	}
	args = append(args, cursorArg(rec.ID))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.table(entityType), strings.Join(sets, ", "),
		s.dialect.Quote(IDColumn), s.dialect.Placeholder(len(fields)+1))
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update %s id=%s: %w", entityType, rec.ID, err)
	}
	return nil
}

// BatchDelete удаляет записи по id в одной транзакции
func (s *SQLStore) BatchDelete(ctx context.Context, entityType string, ids []string) ([]stores.DeleteResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("store not connected")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		s.table(entityType), s.dialect.Quote(IDColumn), s.dialect.Placeholder(1))

	results := make([]stores.DeleteResult, len(ids))
	for i, id := range ids {
		res := stores.DeleteResult{Index: i, ID: id}
		if _, err := tx.ExecContext(ctx, query, cursorArg(id)); err != nil {
			res.Err = err.Error()
		}
		results[i] = res
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete batch: %w", err)
	}
	return results, nil
}

// idToString нормализует значение колонки id к строке
func idToString(val interface{}) string {
	switch v := val.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case []byte:
		return string(v)
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

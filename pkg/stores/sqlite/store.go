// Package sqlite реализует хранилище записей на SQLite (modernc.org/sqlite,
// чистый Go без cgo). Используется для локальных запусков и тестов.
package sqlite

import (
	"context"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/ruslano69/refsync/pkg/stores"
	"github.com/ruslano69/refsync/pkg/stores/base"
)

const driverSqlite = "sqlite"

// Compile-time check: Store должен реализовывать интерфейс stores.Store
var _ stores.Store = (*Store)(nil)

// Регистрация хранилища в глобальной фабрике
func init() {
	stores.Register("sqlite", func() stores.Store {
		return &Store{SQLStore: base.NewSQLStore("sqlite", driverSqlite, base.NewStandardDialect("sqlite", `"`, `"`))}
	})
}

// Store - хранилище записей на SQLite
type Store struct {
	*base.SQLStore
}

// Connect устанавливает подключение и применяет PRAGMA оптимизации
// для быстрой массовой записи
func (s *Store) Connect(ctx context.Context, cfg stores.Config) error {
	if err := s.SQLStore.Connect(ctx, cfg); err != nil {
		return err
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := s.DB().ExecContext(ctx, pragma); err != nil {
			s.Close(ctx)
			return fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}
	return nil
}

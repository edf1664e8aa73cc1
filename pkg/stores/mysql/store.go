// Package mysql реализует хранилище записей на MySQL/MariaDB.
package mysql

import (
	"context"

	_ "github.com/go-sql-driver/mysql"

	"github.com/ruslano69/refsync/pkg/stores"
	"github.com/ruslano69/refsync/pkg/stores/base"
)

const driverMysql = "mysql"

// Compile-time check: Store должен реализовывать интерфейс stores.Store
var _ stores.Store = (*Store)(nil)

// Регистрация хранилища в глобальной фабрике
func init() {
	stores.Register("mysql", func() stores.Store {
		return &Store{SQLStore: base.NewSQLStore("mysql", driverMysql, base.NewStandardDialect("mysql", "`", "`"))}
	})
}

// Store - хранилище записей на MySQL
type Store struct {
	*base.SQLStore
}

// Connect устанавливает подключение.
// DSN должен включать parseTime=true, иначе DATETIME-колонки
// приходят строками и теряют тип.
func (s *Store) Connect(ctx context.Context, cfg stores.Config) error {
	return s.SQLStore.Connect(ctx, cfg)
}

// Package mssql реализует хранилище записей на Microsoft SQL Server.
package mssql

import (
	_ "github.com/denisenkom/go-mssqldb"

	"github.com/ruslano69/refsync/pkg/stores"
	"github.com/ruslano69/refsync/pkg/stores/base"
)

const driverMssql = "sqlserver"

// Compile-time check: Store должен реализовывать интерфейс stores.Store
var _ stores.Store = (*Store)(nil)

// Регистрация хранилища в глобальной фабрике
func init() {
	stores.Register("mssql", func() stores.Store {
		return &Store{SQLStore: base.NewSQLStore("mssql", driverMssql, &base.MSSQLDialect{})}
	})
}

// Store - хранилище записей на MS SQL Server.
// Вся логика в base.SQLStore; диалект дает квадратные скобки,
// @pN плейсхолдеры и TOP вместо LIMIT.
type Store struct {
	*base.SQLStore
}

// Package base содержит общую реализацию хранилища поверх database/sql.
// Конкретные хранилища (sqlite, mysql, mssql) поставляют диалект
// и строку драйвера; вся логика пагинации, upsert и конвертации
// типов живет здесь и не дублируется.
package base

import (
	"fmt"
	"strings"
)

// IDColumn - имя колонки суррогатного идентификатора.
// Движок предполагает автоинкрементный первичный ключ с этим именем
// в каждой таблице-сущности обоих хранилищ.
const IDColumn = "id"

// Dialect абстрагирует синтаксические различия СУБД
type Dialect interface {
	// Name возвращает имя диалекта
	Name() string

	// Quote экранирует идентификатор
	Quote(ident string) string

	// Placeholder возвращает плейсхолдер для позиции n (с единицы)
	Placeholder(n int) string

	// PageSQL строит запрос страницы с keyset-пагинацией по IDColumn.
	// При withCursor добавляется условие id > ? (последний плейсхолдер).
	PageSQL(table string, columns []string, withCursor bool, limit int) string
}

// StandardDialect - общий диалект для СУБД с синтаксисом LIMIT
// (sqlite, mysql). Плейсхолдер всегда "?".
type StandardDialect struct {
	name       string
	quoteOpen  string
	quoteClose string
}

// NewStandardDialect создает диалект с заданным символом экранирования
func NewStandardDialect(name, quoteOpen, quoteClose string) *StandardDialect {
	return &StandardDialect{name: name, quoteOpen: quoteOpen, quoteClose: quoteClose}
}

func (d *StandardDialect) Name() string { return d.name }

func (d *StandardDialect) Quote(ident string) string {
	return d.quoteOpen + ident + d.quoteClose
}

func (d *StandardDialect) Placeholder(n int) string { return "?" }

func (d *StandardDialect) PageSQL(table string, columns []string, withCursor bool, limit int) string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(d.Quote(IDColumn))
	for _, c := range columns {
		sb.WriteString(", ")
		sb.WriteString(d.Quote(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if withCursor {
		sb.WriteString(" WHERE ")
		sb.WriteString(d.Quote(IDColumn))
		sb.WriteString(" > ?")
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(d.Quote(IDColumn))
	sb.WriteString(fmt.Sprintf(" LIMIT %d", limit))
	return sb.String()
}

// MSSQLDialect - диалект SQL Server: квадратные скобки, @pN
// плейсхолдеры и OFFSET/FETCH вместо LIMIT
type MSSQLDialect struct{}

func (d *MSSQLDialect) Name() string { return "mssql" }

func (d *MSSQLDialect) Quote(ident string) string { return "[" + ident + "]" }

func (d *MSSQLDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (d *MSSQLDialect) PageSQL(table string, columns []string, withCursor bool, limit int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("SELECT TOP (%d) ", limit))
	sb.WriteString(d.Quote(IDColumn))
	for _, c := range columns {
		sb.WriteString(", ")
		sb.WriteString(d.Quote(c))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(table)
	if withCursor {
		sb.WriteString(" WHERE ")
		sb.WriteString(d.Quote(IDColumn))
		sb.WriteString(" > @p1")
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(d.Quote(IDColumn))
	return sb.String()
}

// buildWhereKey строит условие по натуральному ключу:
// "k1 = ? AND k2 = ?" начиная с плейсхолдера startN
func buildWhereKey(d Dialect, keyColumns []string, startN int) string {
	parts := make([]string, 0, len(keyColumns))
	for i, c := range keyColumns {
		parts = append(parts, fmt.Sprintf("%s = %s", d.Quote(c), d.Placeholder(startN+i)))
	}
	return strings.Join(parts, " AND ")
}

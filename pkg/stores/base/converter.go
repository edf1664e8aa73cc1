package base

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ruslano69/refsync/pkg/core/record"
)

// TypeConverter конвертирует значения между record.Value и типами,
// которые возвращают/принимают драйверы database/sql.
// Без состояния, безопасен для параллельного использования.
type TypeConverter struct{}

// NewTypeConverter создает конвертер
func NewTypeConverter() *TypeConverter {
	return &TypeConverter{}
}

// FromSQL конвертирует значение, прочитанное из Scan, в record.Value.
// Драйверы отдают ограниченный набор типов: int64, float64, bool,
// []byte, string, time.Time и nil.
func (c *TypeConverter) FromSQL(val interface{}) record.Value {
	switch v := val.(type) {
	case nil:
		return record.Null()
	case int64:
		return record.Number(float64(v))
	case int32:
		return record.Number(float64(v))
	case int16:
		return record.Number(float64(v))
	case int:
		return record.Number(float64(v))
	case float64:
		return record.Number(v)
	case float32:
		return record.Number(float64(v))
	case bool:
		return record.Bool(v)
	case time.Time:
		return record.Timestamp(v)
	case []byte:
		return c.fromString(string(v))
	case string:
		return c.fromString(v)
	default:
		return record.String(fmt.Sprintf("%v", val))
	}
}

// fromString распознает временные метки в строковых колонках.
// SQLite хранит datetime как TEXT; без распознавания значение
// осталось бы строкой и каноническая форма отличалась бы между СУБД.
func (c *TypeConverter) fromString(s string) record.Value {
	trimmed := strings.TrimSpace(s)
	if len(trimmed) >= 19 && (trimmed[4] == '-' && trimmed[7] == '-') {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, trimmed); err == nil {
				return record.Timestamp(t)
			}
		}
	}
	return record.String(s)
}

// ToSQL конвертирует record.Value в аргумент запроса.
// Ссылка передается как ее идентификатор: в реляционном хранилище
// ссылочная колонка содержит FK на суррогатный ключ родителя.
func (c *TypeConverter) ToSQL(v record.Value) interface{} {
	switch v.Kind {
	case record.KindString:
		return v.Str
	case record.KindNumber:
		// целые передаем как int64, иначе FK-колонки получали бы "1.0"
		if v.Num == float64(int64(v.Num)) {
			return int64(v.Num)
		}
		return v.Num
	case record.KindBool:
		return v.Bool
	case record.KindTimestamp:
		return v.Time.UTC()
	case record.KindReference:
		if v.Ref == nil {
			return nil
		}
		// FK-колонки обычно целочисленные
		if n, err := strconv.ParseInt(v.Ref.ID, 10, 64); err == nil {
			return n
		}
		return v.Ref.ID
	default:
		return nil
	}
}

// Package extract реализует постраничное извлечение записей из хранилища.
//
// Экстрактор выкачивает все записи одного типа через курсорную пагинацию,
// нормализует ключевые поля и дедуплицирует результат по натуральному
// ключу. Сырые источники (объединения страниц, выгрузки из плоских файлов)
// могут содержать пустые и повторяющиеся ключи, которые при upsert
// падали бы с малоинформативными ошибками хранилища.
package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/stores"
)

// DefaultPageSize - размер страницы по умолчанию.
// Выбран чтобы амортизировать round-trip, не превышая лимиты хранилищ.
const DefaultPageSize = 5000

// Extractor извлекает полный набор записей одного типа из хранилища
type Extractor struct {
	store    stores.Store
	pageSize int
}

// NewExtractor создает экстрактор для хранилища.
// pageSize <= 0 означает DefaultPageSize.
func NewExtractor(store stores.Store, pageSize int) *Extractor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Extractor{store: store, pageSize: pageSize}
}

// Result - результат извлечения одного типа сущности
type Result struct {
	// Records - дедуплицированный набор записей
	Records []*record.Record

	// Pages - количество запрошенных страниц
	Pages int

	// Fetched - записей получено от хранилища до нормализации
	Fetched int

	// Dropped - записей отброшено из-за пустого ключа
	Dropped int

	// Duplicates - записей удалено как дубликаты ключа
	Duplicates int
}

// Extract извлекает все записи типа spec.Name.
//
// Ошибка любой страницы прерывает извлечение целиком (частичный набор
// не возвращается): неполный набор дал бы неполную карту натуральных
// ключей и тихую порчу данных ниже по конвейеру. Повтор - политика
// вызывающего (retry-обертка вокруг Extract).
func (e *Extractor) Extract(ctx context.Context, spec record.EntitySpec) (*Result, error) {
	projection := spec.FullProjection()

	var raw []*record.Record
	pages := 0
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := e.store.Query(ctx, spec.Name, projection, e.pageSize, cursor)
		if err != nil {
			return nil, fmt.Errorf("failed to query page %d of %s: %w", pages+1, spec.Name, err)
		}
		pages++

		for _, rec := range page.Records {
			raw = append(raw, retype(rec, spec))
		}

		if page.Done {
			break
		}
		if page.NextCursor == "" {
			return nil, fmt.Errorf("store returned no cursor for unfinished query of %s", spec.Name)
		}
		cursor = page.NextCursor
	}

	result := &Result{Pages: pages, Fetched: len(raw)}
	result.Records = dedupe(raw, spec, result)
	return result, nil
}

// retype превращает строковые значения объявленных полей-ссылок в Reference.
// Хранилища возвращают ссылочные колонки как суррогатные идентификаторы;
// типизацию задает EntitySpec, а не хранилище.
func retype(rec *record.Record, spec record.EntitySpec) *record.Record {
	for field, refSpec := range spec.References {
		v := rec.Field(field)
		switch v.Kind {
		case record.KindReference, record.KindNull:
			// уже ссылка или пусто
		case record.KindString:
			id := strings.TrimSpace(v.Str)
			if id == "" {
				rec.SetField(field, record.Null())
			} else {
				rec.SetField(field, record.Ref(refSpec.EntityType, id))
			}
		default:
			rec.SetField(field, record.Ref(refSpec.EntityType, v.Canonical()))
		}
	}
	return rec
}

// dedupe нормализует ключевые поля и удаляет дубликаты.
// Первая запись с данным ключом побеждает; порядок сохраняется.
func dedupe(raw []*record.Record, spec record.EntitySpec, result *Result) []*record.Record {
	seen := make(map[string]bool, len(raw))
	out := make([]*record.Record, 0, len(raw))

	for _, rec := range raw {
		key, ok := rawKey(rec, spec)
		if !ok {
			result.Dropped++
			continue
		}
		if seen[key] {
			result.Duplicates++
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

// rawKey строит локальный ключ дедупликации из ключевых полей.
// Поле-ссылка дает суррогатный идентификатор родителя - внутри одного
// хранилища этого достаточно для уникальности; межхранилищный составной
// ключ строит резолвер. Строковые ключевые поля нормализуются
// (trim) прямо в записи, чтобы дальше по конвейеру данные были чистыми.
func rawKey(rec *record.Record, spec record.EntitySpec) (string, bool) {
	parts := make([]string, 0, len(spec.KeyFields))
	for _, field := range spec.KeyFields {
		v := rec.Field(field)
		if v.Kind == record.KindString {
			trimmed := strings.TrimSpace(v.Str)
			if trimmed != v.Str {
				rec.SetField(field, record.String(trimmed))
				v = rec.Field(field)
			}
		}
		part := strings.TrimSpace(v.Canonical())
		if part == "" {
			return "", false
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, record.KeySeparator), true
}

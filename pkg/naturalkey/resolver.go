package naturalkey

import (
	"fmt"
	"strings"

	"github.com/ruslano69/refsync/pkg/core/record"
)

// BuildKey строит натуральный ключ записи по описанию сущности.
//
// Компонент-ссылка в ключе дает составной ключ: компонентом становится
// натуральный ключ родительской записи из parents. Поэтому резолвер
// зависим от порядка обхода дерева: карты родительских типов должны
// быть построены раньше дочерних.
func BuildKey(rec *record.Record, spec record.EntitySpec, parents MapSet) (record.NaturalKey, error) {
	key := make(record.NaturalKey, 0, len(spec.KeyFields))

	for _, field := range spec.KeyFields {
		v := rec.Field(field)

		if refSpec, isRef := spec.IsReference(field); isRef {
			if v.Kind != record.KindReference || v.Ref == nil {
				return nil, fmt.Errorf("entity %s: key field %s is not a reference value", spec.Name, field)
			}
			parentMap, ok := parents.Get(refSpec.EntityType)
			if !ok {
				return nil, fmt.Errorf("entity %s: key field %s: map for parent type %s is not built (check dependency order)",
					spec.Name, field, refSpec.EntityType)
			}
			parentKey, ok := parentMap.KeyByID(v.Ref.ID)
			if !ok {
				return nil, fmt.Errorf("entity %s: key field %s: parent %s record %s not found in map",
					spec.Name, field, refSpec.EntityType, v.Ref.ID)
			}
			key = append(key, parentKey)
			continue
		}

		part := strings.TrimSpace(v.Canonical())
		if part == "" {
			return nil, fmt.Errorf("entity %s: key field %s is empty", spec.Name, field)
		}
		key = append(key, part)
	}

	return key, nil
}

// Build строит карту натуральных ключей из полного извлечения
// и назначает каждой записи ее ключ (rec.Key).
//
// Дубликат натурального ключа внутри одного хранилища - жесткая ошибка:
// идентичность записи неоднозначна, и last-write-wins молча выбрал бы
// произвольную из двух. Корректность upsert полностью зависит от
// однозначности этой карты.
func Build(spec record.EntitySpec, records []*record.Record, parents MapSet) (*Map, error) {
	m := NewMap(spec.Name)

	for _, rec := range records {
		key, err := BuildKey(rec, spec, parents)
		if err != nil {
			return nil, fmt.Errorf("failed to build key for record %s: %w", rec.ID, err)
		}

		canonical := key.String()
		if existing, ok := m.byKey[canonical]; ok {
			return nil, fmt.Errorf("duplicate natural key %q in entity %s: records %s and %s (ambiguous identity)",
				canonical, spec.Name, existing, rec.ID)
		}

		rec.Key = key
		m.byKey[canonical] = rec.ID
		m.byID[rec.ID] = canonical
	}

	return m, nil
}

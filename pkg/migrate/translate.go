package migrate

import (
	"fmt"
	"sort"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/naturalkey"
)

// translateResult - итог трансляции ссылок одной сущности
type translateResult struct {
	// ready - записи, готовые к записи в цель (ссылки переписаны
	// на целевые суррогатные ID, собственный ID источника сброшен)
	ready []*record.Record

	// skipped - записи, пропущенные из-за нетранслируемой
	// обязательной ссылки
	skipped []skippedRecord
}

type skippedRecord struct {
	key    string
	reason error
}

// translateEntity переписывает ссылочные поля записей из пространства
// ID источника в пространство ID цели. Запись с нетранслируемой
// обязательной ссылкой пропускается целиком, необязательная ссылка
// обнуляется. Записи модифицируются на месте.
//
// Родительские карты цели должны уже содержать записи, созданные
// на предыдущих шагах текущего запуска: сущности обрабатываются
// строго в порядке зависимостей.
func translateEntity(spec record.EntitySpec, records []*record.Record,
	srcMaps, tgtMaps naturalkey.MapSet) translateResult {

	// детерминированный порядок обхода ссылочных полей
	refFields := make([]string, 0, len(spec.References))
	for f := range spec.References {
		refFields = append(refFields, f)
	}
	sort.Strings(refFields)

	var res translateResult
	for _, rec := range records {
		skip := false
		for _, field := range refFields {
			ref := spec.References[field]
			v := rec.Field(field)
			if v.IsNull() {
				if ref.Required {
					res.skipped = append(res.skipped, skippedRecord{
						key:    rec.Key.String(),
						reason: fmt.Errorf("required reference %s is empty", field),
					})
					skip = true
					break
				}
				continue
			}

			srcID := v.Canonical()
			tgtID, found := naturalkey.Translate(srcID, srcMaps[ref.EntityType], tgtMaps[ref.EntityType])
			if !found {
				if ref.Required {
					res.skipped = append(res.skipped, skippedRecord{
						key:    rec.Key.String(),
						reason: fmt.Errorf("unresolved required reference %s -> %s id=%s", field, ref.EntityType, srcID),
					})
					skip = true
					break
				}
				// необязательная болтающаяся ссылка обнуляется
				rec.SetField(field, record.Null())
				continue
			}

			rec.SetField(field, record.Ref(ref.EntityType, tgtID))
		}
		if skip {
			continue
		}

		// суррогатный ID источника в цели бессмысленен,
		// цель назначает собственный
		rec.ID = ""
		res.ready = append(res.ready, rec)
	}
	return res
}

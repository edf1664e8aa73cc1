package migrate

import (
	"context"
	"fmt"

	"github.com/zeebo/xxh3"

	"github.com/ruslano69/refsync/pkg/naturalkey"
	"github.com/ruslano69/refsync/pkg/stores"
)

// verifyEntity сравнивает количество записей в цели с ожидаемым.
// Ожидание: извлечено из источника минус пропущенные минус сбойные.
// Несовпадение - предупреждение, а не фатальная ошибка: цель могла
// содержать записи, не пришедшие из источника.
func verifyEntity(ctx context.Context, target stores.Store, er *EntityResult) error {
	count, err := target.CountRecords(ctx, er.Entity)
	if err != nil {
		return fmt.Errorf("failed to count %s in target: %w", er.Entity, err)
	}
	er.TargetCount = int(count)
	er.SourceCount = er.Extracted
	er.CountMatch = er.TargetCount >= er.Extracted-er.Skipped-er.Failed
	return nil
}

// keysChecksum считает XXH3 от отсортированного списка натуральных
// ключей карты. Одинаковое множество ключей дает одинаковую сумму
// независимо от порядка вставки.
func keysChecksum(m *naturalkey.Map) uint64 {
	h := xxh3.New()
	for _, key := range m.Keys() {
		h.WriteString(key)
		h.Write([]byte{0})
	}
	return h.Sum64()
}

// verifyChecksums сравнивает контрольные суммы множеств натуральных
// ключей источника и цели для одной сущности. Ключи, пропущенные
// при миграции, исключаются из суммы источника.
func verifyChecksums(srcMap, tgtMap *naturalkey.Map, skippedKeys map[string]bool, failedKeys map[string]bool) bool {
	src := xxh3.New()
	for _, key := range srcMap.Keys() {
		if skippedKeys[key] || failedKeys[key] {
			continue
		}
		src.WriteString(key)
		src.Write([]byte{0})
	}
	return src.Sum64() == keysChecksum(tgtMap)
}

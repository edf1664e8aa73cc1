package migrate

import (
	"context"
	"fmt"

	"github.com/ruslano69/refsync/pkg/stores"
)

// cleanEntity удаляет из цели все записи одного типа.
// Читает страницы ID и удаляет их пачками; курсор не продвигается,
// потому что каждая удаленная страница открывает следующую.
func cleanEntity(ctx context.Context, store stores.Store, spec cleanSpec, pageSize int) (int, error) {
	deleted := 0
	for {
		page, err := store.Query(ctx, spec.entity, spec.idFields, pageSize, "")
		if err != nil {
			return deleted, fmt.Errorf("failed to query %s for cleaning: %w", spec.entity, err)
		}
		if len(page.Records) == 0 {
			return deleted, nil
		}

		ids := make([]string, 0, len(page.Records))
		for _, rec := range page.Records {
			ids = append(ids, rec.ID)
		}

		results, err := store.BatchDelete(ctx, spec.entity, ids)
		if err != nil {
			return deleted, fmt.Errorf("failed to delete %s records: %w", spec.entity, err)
		}
		for _, dr := range results {
			if dr.Err != "" {
				return deleted, fmt.Errorf("failed to delete %s id=%s: %s", spec.entity, dr.ID, dr.Err)
			}
			deleted++
		}

		if page.Done {
			return deleted, nil
		}
	}
}

// cleanSpec - минимум информации для очистки одного типа
type cleanSpec struct {
	entity   string
	idFields []string
}

package migrate

import (
	"context"
	"fmt"

	"github.com/ruslano69/refsync/pkg/core/record"
	"github.com/ruslano69/refsync/pkg/extract"
	"github.com/ruslano69/refsync/pkg/naturalkey"
	"github.com/ruslano69/refsync/pkg/progress"
	"github.com/ruslano69/refsync/pkg/retry"
	"github.com/ruslano69/refsync/pkg/stores"
	"github.com/ruslano69/refsync/pkg/upsert"
)

// SnapshotWriter принимает оттранслированные записи для дампа.
// Реализуется пакетом snapshot; nil = дамп отключен.
type SnapshotWriter interface {
	WriteRecords(entity string, records []*record.Record) error
}

// Callbacks - уведомления о ходе миграции.
// Все поля опциональны; вызываются из горутины Run.
type Callbacks struct {
	// OnPhase вызывается при входе в фазу (entity пустое для глобальных фаз)
	OnPhase func(phase Phase, entity string)

	// OnProgress вызывается не чаще раза в интервал отчета
	OnProgress func(entity string, phase Phase, snap progress.Snapshot)
}

func (c Callbacks) phase(phase Phase, entity string) {
	if c.OnPhase != nil {
		c.OnPhase(phase, entity)
	}
}

func (c Callbacks) progress(entity string, phase Phase, snap *progress.Snapshot) {
	if c.OnProgress != nil && snap != nil {
		c.OnProgress(entity, phase, *snap)
	}
}

func (c Callbacks) progressFinal(entity string, phase Phase, snap progress.Snapshot) {
	if c.OnProgress != nil {
		c.OnProgress(entity, phase, snap)
	}
}

// Migrator выполняет план миграции между двумя хранилищами.
//
// Фазы выполняются строго последовательно; внутри фазы Upserting
// пачки одной сущности пишутся параллельно. Сущности проходят
// трансляцию и запись в порядке плана: родитель материализуется
// в цели до того, как дети транслируют ссылки на него.
type Migrator struct {
	plan      *Plan
	source    stores.Store
	target    stores.Store
	callbacks Callbacks
	snapshot  SnapshotWriter
	retryer   *retry.Retryer

	srcMaps naturalkey.MapSet
	tgtMaps naturalkey.MapSet
	// srcRecords - извлеченные и дедуплицированные записи источника
	srcRecords map[string][]*record.Record
}

// New создает мигратор для подключенных хранилищ
func New(plan *Plan, source, target stores.Store) *Migrator {
	return &Migrator{
		plan:       plan,
		source:     source,
		target:     target,
		srcMaps:    make(naturalkey.MapSet),
		tgtMaps:    make(naturalkey.MapSet),
		srcRecords: make(map[string][]*record.Record),
	}
}

// SetCallbacks устанавливает уведомления о ходе миграции
func (m *Migrator) SetCallbacks(cb Callbacks) { m.callbacks = cb }

// SetSnapshotWriter устанавливает приемник дампа оттранслированных записей
func (m *Migrator) SetSnapshotWriter(w SnapshotWriter) { m.snapshot = w }

// Run выполняет миграцию. Возвращаемый результат заполнен и при
// фатальной ошибке - в нем видно, на какой фазе оборвался запуск.
func (m *Migrator) Run(ctx context.Context) (*RunResult, error) {
	result := NewRunResult(m.plan)

	retryer, err := retry.NewRetryer(m.plan.Retry.ToRetry())
	if err != nil {
		err = fmt.Errorf("invalid retry config: %w", err)
		result.Fail(err)
		return result, err
	}
	m.retryer = retryer

	steps := []func(context.Context, *RunResult) error{
		m.extractSource,
		m.resolveSource,
		m.clean,
		m.extractTarget,
		m.migrate,
		m.verify,
	}
	for _, step := range steps {
		if err := step(ctx, result); err != nil {
			result.Fail(err)
			return result, err
		}
	}

	result.Complete()
	return result, nil
}

// extractEntity выполняет одно извлечение под retry-оберткой:
// транзиентная ошибка страницы повторяет извлечение с backoff,
// фатальной она становится только после исчерпания попыток
func (m *Migrator) extractEntity(ctx context.Context, extractor *extract.Extractor, spec record.EntitySpec) (*extract.Result, error) {
	var res *extract.Result
	err := m.retryer.Do(ctx, func(ctx context.Context) error {
		var err error
		res, err = extractor.Extract(ctx, spec)
		return err
	})
	return res, err
}

// extractSource извлекает все сущности из источника
func (m *Migrator) extractSource(ctx context.Context, result *RunResult) error {
	result.Phase = PhaseExtractingSource
	extractor := extract.NewExtractor(m.source, m.plan.Performance.PageSize)

	for i := range m.plan.Entities {
		spec := m.plan.Entities[i]
		m.callbacks.phase(PhaseExtractingSource, spec.Name)

		res, err := m.extractEntity(ctx, extractor, spec)
		if err != nil {
			return fmt.Errorf("extract %s from source: %w", spec.Name, err)
		}

		er := result.Entity(spec.Name)
		er.Extracted = len(res.Records)
		er.Duplicates = res.Duplicates
		m.srcRecords[spec.Name] = res.Records
	}
	return nil
}

// resolveSource строит карты натуральных ключей источника.
// Порядок плана гарантирует, что родительские карты готовы
// к моменту разрешения составных ключей детей.
func (m *Migrator) resolveSource(ctx context.Context, result *RunResult) error {
	result.Phase = PhaseResolvingSource

	for i := range m.plan.Entities {
		spec := m.plan.Entities[i]
		m.callbacks.phase(PhaseResolvingSource, spec.Name)

		nm, err := naturalkey.Build(spec, m.srcRecords[spec.Name], m.srcMaps)
		if err != nil {
			return fmt.Errorf("resolve %s keys in source: %w", spec.Name, err)
		}
		m.srcMaps[spec.Name] = nm
	}
	return nil
}

// clean удаляет записи мигрируемых типов из цели в обратном порядке
// зависимостей (дети раньше родителей, чтобы не нарушать ссылочную
// целостность цели)
func (m *Migrator) clean(ctx context.Context, result *RunResult) error {
	if !m.plan.CleanTarget || m.plan.DryRun {
		return nil
	}
	result.Phase = PhaseCleaning
	result.Deleted = make(map[string]int)

	for i := len(m.plan.Entities) - 1; i >= 0; i-- {
		spec := &m.plan.Entities[i]
		m.callbacks.phase(PhaseCleaning, spec.Name)

		deleted, err := cleanEntity(ctx, m.target, cleanSpec{
			entity:   spec.Name,
			idFields: spec.KeyFields,
		}, m.plan.Performance.PageSize)
		result.Deleted[spec.Name] = deleted
		if err != nil {
			return fmt.Errorf("clean %s in target: %w", spec.Name, err)
		}
	}
	return nil
}

// extractTarget извлекает текущее содержимое цели и строит карты
// ее натуральных ключей. После Cleaning цель пуста и карты пустые -
// это нормально.
func (m *Migrator) extractTarget(ctx context.Context, result *RunResult) error {
	result.Phase = PhaseExtractingTarget
	extractor := extract.NewExtractor(m.target, m.plan.Performance.PageSize)

	tgtRecords := make(map[string][]*record.Record, len(m.plan.Entities))
	for i := range m.plan.Entities {
		spec := m.plan.Entities[i]
		m.callbacks.phase(PhaseExtractingTarget, spec.Name)

		res, err := m.extractEntity(ctx, extractor, spec)
		if err != nil {
			return fmt.Errorf("extract %s from target: %w", spec.Name, err)
		}
		tgtRecords[spec.Name] = res.Records
	}

	result.Phase = PhaseResolvingTarget
	for i := range m.plan.Entities {
		spec := m.plan.Entities[i]
		m.callbacks.phase(PhaseResolvingTarget, spec.Name)

		nm, err := naturalkey.Build(spec, tgtRecords[spec.Name], m.tgtMaps)
		if err != nil {
			return fmt.Errorf("resolve %s keys in target: %w", spec.Name, err)
		}
		m.tgtMaps[spec.Name] = nm
	}
	return nil
}

// migrate транслирует и записывает сущности в порядке плана.
// После записи каждой сущности ее целевая карта пополняется
// назначенными ID - дети транслируют ссылки уже на них.
func (m *Migrator) migrate(ctx context.Context, result *RunResult) error {
	for i := range m.plan.Entities {
		spec := m.plan.Entities[i]
		er := result.Entity(spec.Name)

		// Трансляция ссылок
		result.Phase = PhaseTranslating
		m.callbacks.phase(PhaseTranslating, spec.Name)

		tr := translateEntity(spec, m.srcRecords[spec.Name], m.srcMaps, m.tgtMaps)
		er.Skipped = len(tr.skipped)
		for _, sk := range tr.skipped {
			er.markSkipped(sk.key)
			er.AddError(PhaseTranslating, sk.key, sk.reason.Error())
		}

		if m.snapshot != nil {
			if err := m.snapshot.WriteRecords(spec.Name, tr.ready); err != nil {
				return fmt.Errorf("snapshot %s: %w", spec.Name, err)
			}
		}

		if m.plan.DryRun {
			continue
		}

		// Запись
		result.Phase = PhaseUpserting
		m.callbacks.phase(PhaseUpserting, spec.Name)

		reporter := progress.NewReporter(int64(len(tr.ready)))
		executor := upsert.NewExecutor(m.target, m.retryer)
		ures, uerr := executor.Execute(ctx, spec.Name, tr.ready, upsert.Options{
			MaxParallel: m.plan.Performance.MaxParallel,
			BatchSize:   m.plan.Performance.BatchSize,
			KeyMode:     stores.KeyModeNatural,
			KeyFields:   spec.KeyFields,
			OnProgress: func(delta int) {
				m.callbacks.progress(spec.Name, PhaseUpserting, reporter.Observe(int64(delta)))
			},
		})
		if ures != nil {
			er.Created = int(ures.Created)
			er.Updated = int(ures.Updated)
			er.Failed = int(ures.Failed)
			er.Duration = ures.Duration
			for _, re := range ures.Errors {
				er.markFailed(re.Key)
				er.AddError(PhaseUpserting, re.Key, re.Err)
			}
		}
		if uerr != nil {
			return fmt.Errorf("upsert %s: %w", spec.Name, uerr)
		}
		m.callbacks.progressFinal(spec.Name, PhaseUpserting, reporter.Final())

		// Пополняем целевую карту назначенными ID
		tgtMap := m.tgtMaps[spec.Name]
		for _, rec := range tr.ready {
			if rec.ID != "" {
				tgtMap.Add(rec.Key.String(), rec.ID)
			}
		}
	}
	return nil
}

// verify сравнивает содержимое цели с ожидаемым.
// Несовпадения - предупреждения в результате, а не ошибки запуска.
func (m *Migrator) verify(ctx context.Context, result *RunResult) error {
	if m.plan.DryRun {
		return nil
	}
	result.Phase = PhaseVerifying

	for i := range m.plan.Entities {
		spec := m.plan.Entities[i]
		m.callbacks.phase(PhaseVerifying, spec.Name)
		er := result.Entity(spec.Name)

		if err := verifyEntity(ctx, m.target, er); err != nil {
			return err
		}

		if !m.plan.Verify.Checksum {
			continue
		}

		// Контрольная сумма сверяется по свежему содержимому цели,
		// а не по нашим картам: проверяем хранилище, не бухгалтерию
		extractor := extract.NewExtractor(m.target, m.plan.Performance.PageSize)
		res, err := m.extractEntity(ctx, extractor, spec)
		if err != nil {
			return fmt.Errorf("re-extract %s from target for checksum: %w", spec.Name, err)
		}
		tgtMap, err := naturalkey.Build(spec, res.Records, m.tgtMaps)
		if err != nil {
			return fmt.Errorf("resolve %s keys for checksum: %w", spec.Name, err)
		}

		match := verifyChecksums(m.srcMaps[spec.Name], tgtMap, er.skippedKeys, er.failedKeys)
		er.ChecksumMatch = &match
	}
	return nil
}

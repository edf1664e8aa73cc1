package migrate

import (
	"time"
)

// Phase - фаза выполнения миграции
type Phase string

const (
	PhasePending          Phase = "pending"
	PhaseExtractingSource Phase = "extracting_source"
	PhaseResolvingSource  Phase = "resolving_source"
	PhaseCleaning         Phase = "cleaning"
	PhaseExtractingTarget Phase = "extracting_target"
	PhaseResolvingTarget  Phase = "resolving_target"
	PhaseTranslating      Phase = "translating"
	PhaseUpserting        Phase = "upserting"
	PhaseVerifying        Phase = "verifying"
	PhaseCompleted        Phase = "completed"
	PhaseFailed           Phase = "failed"
)

// MaxErrorSamples - сколько примеров ошибок хранится на сущность и фазу.
// Полный список ошибок при миллионных объемах раздувал бы результат.
const MaxErrorSamples = 5

// ErrorSample - пример ошибки для диагностики
type ErrorSample struct {
	Phase Phase  `json:"phase"`
	Key   string `json:"key,omitempty"`
	Error string `json:"error"`
}

// EntityResult - результат миграции одной сущности
type EntityResult struct {
	Entity string `json:"entity"`

	// Extracted - извлечено из источника (после дедупликации)
	Extracted int `json:"extracted"`
	// Duplicates - отброшено дубликатов натуральных ключей при извлечении
	Duplicates int `json:"duplicates"`
	// Skipped - пропущено из-за нетранслируемых обязательных ссылок
	Skipped int `json:"skipped"`

	Created int `json:"created"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`

	// SourceCount и TargetCount - количества при верификации
	SourceCount int `json:"source_count"`
	TargetCount int `json:"target_count"`
	// CountMatch - совпали ли количества (с учетом Skipped и Failed)
	CountMatch bool `json:"count_match"`
	// ChecksumMatch - совпали ли контрольные суммы ключей (nil = не считали)
	ChecksumMatch *bool `json:"checksum_match,omitempty"`

	Duration time.Duration `json:"duration"`

	// Errors - до MaxErrorSamples примеров ошибок
	Errors []ErrorSample `json:"errors,omitempty"`

	// Полные множества ключей пропущенных и сбойных записей.
	// Нужны верификации по контрольным суммам; наружу не сериализуются.
	skippedKeys map[string]bool
	failedKeys  map[string]bool
}

func (r *EntityResult) markSkipped(key string) {
	if r.skippedKeys == nil {
		r.skippedKeys = make(map[string]bool)
	}
	r.skippedKeys[key] = true
}

func (r *EntityResult) markFailed(key string) {
	if r.failedKeys == nil {
		r.failedKeys = make(map[string]bool)
	}
	r.failedKeys[key] = true
}

// AddError добавляет пример ошибки с учетом лимита
func (r *EntityResult) AddError(phase Phase, key, msg string) {
	if len(r.Errors) >= MaxErrorSamples {
		return
	}
	r.Errors = append(r.Errors, ErrorSample{Phase: phase, Key: key, Error: msg})
}

// RunResult - итоговый результат запуска миграции
type RunResult struct {
	Plan      string    `json:"plan"`
	DryRun    bool      `json:"dry_run"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	Phase Phase `json:"phase"`

	// Success - true если миграция дошла до конца без фатальной ошибки.
	// Отдельные сбойные записи не делают запуск неуспешным.
	Success bool `json:"success"`

	// Error - фатальная ошибка, оборвавшая запуск
	Error string `json:"error,omitempty"`

	// Deleted - удалено записей на фазе Cleaning (по сущностям)
	Deleted map[string]int `json:"deleted,omitempty"`

	// Entities - результаты в порядке плана
	Entities []*EntityResult `json:"entities"`
}

// NewRunResult создает результат для начинающегося запуска
func NewRunResult(plan *Plan) *RunResult {
	return &RunResult{
		Plan:      plan.Name,
		DryRun:    plan.DryRun,
		StartedAt: time.Now(),
		Phase:     PhasePending,
	}
}

// Entity возвращает (создавая при необходимости) результат сущности
func (r *RunResult) Entity(name string) *EntityResult {
	for _, er := range r.Entities {
		if er.Entity == name {
			return er
		}
	}
	er := &EntityResult{Entity: name}
	r.Entities = append(r.Entities, er)
	return er
}

// Fail помечает запуск как фатально завершившийся
func (r *RunResult) Fail(err error) {
	r.Phase = PhaseFailed
	r.Success = false
	r.Error = err.Error()
	r.EndedAt = time.Now()
}

// Complete помечает запуск как успешно завершившийся
func (r *RunResult) Complete() {
	r.Phase = PhaseCompleted
	r.Success = true
	r.EndedAt = time.Now()
}

// Duration - общая длительность запуска
func (r *RunResult) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// TotalFailed - суммарное количество сбойных записей по всем сущностям
func (r *RunResult) TotalFailed() int {
	total := 0
	for _, er := range r.Entities {
		total += er.Failed
	}
	return total
}

// TotalWritten - суммарно создано+обновлено
func (r *RunResult) TotalWritten() int {
	total := 0
	for _, er := range r.Entities {
		total += er.Created + er.Updated
	}
	return total
}

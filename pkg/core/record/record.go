package record

import (
	"sort"
	"strings"
)

// KeySeparator разделяет компоненты натурального ключа в канонической форме.
// Символ не должен встречаться в значениях ключевых полей.
const KeySeparator = "|"

// Reference - ссылка на запись другого типа внутри одного хранилища.
// Инвариант: суррогатный идентификатор имеет смысл только в том хранилище,
// которое его выдало. Перед записью в другое хранилище ссылка должна быть
// перетранслирована через натуральный ключ целевой записи.
type Reference struct {
	EntityType string `json:"entity_type"`
	ID         string `json:"id"`
}

// NaturalKey - упорядоченный набор значений, уникально и стабильно
// идентифицирующий запись между независимыми хранилищами
// (в отличие от суррогатного идентификатора, выдаваемого хранилищем).
type NaturalKey []string

// String возвращает каноническую строковую форму ключа
func (k NaturalKey) String() string {
	return strings.Join(k, KeySeparator)
}

// Normalize возвращает ключ с обрезанными пробелами в каждом компоненте
func (k NaturalKey) Normalize() NaturalKey {
	out := make(NaturalKey, len(k))
	for i, part := range k {
		out[i] = strings.TrimSpace(part)
	}
	return out
}

// IsValid проверяет что ключ не пустой и не содержит пустых компонентов
func (k NaturalKey) IsValid() bool {
	if len(k) == 0 {
		return false
	}
	for _, part := range k {
		if strings.TrimSpace(part) == "" {
			return false
		}
	}
	return true
}

// Record - типизированный экземпляр сущности.
// Создается экстрактором, модифицируется построителем сущностей
// (трансляция ссылок, назначение натурального ключа) и потребляется
// batch-исполнителем. Запись не переживает один запуск миграции.
type Record struct {
	// EntityType - тип сущности (имя таблицы/объекта в хранилище)
	EntityType string `json:"entity_type"`

	// ID - суррогатный идентификатор, выданный хранилищем при создании.
	// Пустой для записей, которые еще не материализованы в целевом хранилище.
	ID string `json:"id,omitempty"`

	// Key - натуральный ключ записи. Назначается резолвером.
	Key NaturalKey `json:"key,omitempty"`

	// Fields - значения полей записи
	Fields map[string]Value `json:"fields"`
}

// New создает пустую запись указанного типа
func New(entityType string) *Record {
	return &Record{
		EntityType: entityType,
		Fields:     make(map[string]Value),
	}
}

// Field возвращает значение поля (Null если поле отсутствует)
func (r *Record) Field(name string) Value {
	if v, ok := r.Fields[name]; ok {
		return v
	}
	return Null()
}

// SetField устанавливает значение поля
func (r *Record) SetField(name string, v Value) *Record {
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.Fields[name] = v
	return r
}

// FieldNames возвращает отсортированный список имен полей.
// Порядок детерминирован: генерируемые по записи SQL-выражения
// стабильны между вызовами.
func (r *Record) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone возвращает глубокую копию записи.
// Построитель сущностей мутирует записи (трансляция ссылок),
// поэтому при повторном использовании извлеченного набора нужна копия.
func (r *Record) Clone() *Record {
	out := &Record{
		EntityType: r.EntityType,
		ID:         r.ID,
		Fields:     make(map[string]Value, len(r.Fields)),
	}
	if r.Key != nil {
		out.Key = append(NaturalKey{}, r.Key...)
	}
	for name, v := range r.Fields {
		if v.Kind == KindReference && v.Ref != nil {
			ref := *v.Ref
			v.Ref = &ref
		}
		out.Fields[name] = v
	}
	return out
}

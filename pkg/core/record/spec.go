package record

import (
	"fmt"
	"sort"
)

// RefSpec описывает поле-ссылку сущности
type RefSpec struct {
	// EntityType - тип сущности, на которую указывает ссылка
	EntityType string `yaml:"entity_type"`

	// Required - обязательна ли ссылка.
	// Запись с нетранслируемой обязательной ссылкой пропускается,
	// с необязательной - поле обнуляется.
	Required bool `yaml:"required"`
}

// EntitySpec описывает одну сущность в плане миграции:
// какие поля извлекать, из чего состоит натуральный ключ
// и какие поля являются ссылками на другие сущности.
//
// Порядок сущностей в плане задается явно оператором (родители раньше
// детей); фреймворк никогда не выводит порядок зависимостей автоматически.
type EntitySpec struct {
	// Name - тип сущности (имя таблицы/объекта в обоих хранилищах)
	Name string `yaml:"name"`

	// KeyFields - упорядоченный список полей, образующих натуральный ключ.
	// Поле-ссылка в ключе дает составной ключ: компонентом становится
	// натуральный ключ родительской записи.
	KeyFields []string `yaml:"key_fields"`

	// Projection - поля для извлечения. Ключевые поля и поля-ссылки
	// добавляются автоматически, если не перечислены.
	Projection []string `yaml:"projection"`

	// References - поля-ссылки: имя поля -> описание ссылки
	References map[string]RefSpec `yaml:"references"`
}

// Validate проверяет корректность описания сущности
func (s *EntitySpec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if len(s.KeyFields) == 0 {
		return fmt.Errorf("entity %s: key_fields is required", s.Name)
	}
	seen := make(map[string]bool, len(s.KeyFields))
	for _, f := range s.KeyFields {
		if f == "" {
			return fmt.Errorf("entity %s: empty key field name", s.Name)
		}
		if seen[f] {
			return fmt.Errorf("entity %s: duplicate key field: %s", s.Name, f)
		}
		seen[f] = true
	}
	for field, ref := range s.References {
		if ref.EntityType == "" {
			return fmt.Errorf("entity %s: reference field %s: entity_type is required", s.Name, field)
		}
	}
	return nil
}

// FullProjection возвращает полный список извлекаемых полей:
// Projection плюс ключевые поля и поля-ссылки (без дубликатов,
// порядок детерминированный).
func (s *EntitySpec) FullProjection() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	for _, f := range s.Projection {
		add(f)
	}
	for _, f := range s.KeyFields {
		add(f)
	}
	// References - map, порядок итерации недетерминирован;
	// сортируем для стабильной проекции
	refFields := make([]string, 0, len(s.References))
	for f := range s.References {
		refFields = append(refFields, f)
	}
	sort.Strings(refFields)
	for _, f := range refFields {
		add(f)
	}
	return out
}

// IsReference проверяет является ли поле ссылкой
func (s *EntitySpec) IsReference(field string) (RefSpec, bool) {
	ref, ok := s.References[field]
	return ref, ok
}

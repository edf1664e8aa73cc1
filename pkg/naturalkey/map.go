// Package naturalkey реализует трансляцию идентификаторов между
// независимыми хранилищами через натуральные (бизнес) ключи.
//
// Суррогатный идентификатор имеет смысл только в выдавшем его хранилище.
// Резолвер строит двунаправленные карты ключ <-> идентификатор для каждого
// хранилища и транслирует ссылки: id источника -> натуральный ключ ->
// id цели.
package naturalkey

import (
	"sort"
)

// Map - двунаправленная карта натуральный ключ <-> суррогатный
// идентификатор для одного типа сущности в одном хранилище.
// Строится из полного извлечения; после записи новых записей
// пополняется назначенными хранилищем идентификаторами через Add.
type Map struct {
	entityType string
	byKey      map[string]string // канонический ключ -> id
	byID       map[string]string // id -> канонический ключ
}

// NewMap создает пустую карту для типа сущности
func NewMap(entityType string) *Map {
	return &Map{
		entityType: entityType,
		byKey:      make(map[string]string),
		byID:       make(map[string]string),
	}
}

// EntityType возвращает тип сущности карты
func (m *Map) EntityType() string {
	return m.entityType
}

// Add регистрирует соответствие ключ <-> идентификатор.
// Существующее соответствие для ключа перезаписывается.
func (m *Map) Add(key, id string) {
	if old, ok := m.byKey[key]; ok {
		delete(m.byID, old)
	}
	m.byKey[key] = id
	m.byID[id] = key
}

// IDByKey возвращает суррогатный идентификатор по каноническому ключу
func (m *Map) IDByKey(key string) (string, bool) {
	id, ok := m.byKey[key]
	return id, ok
}

// KeyByID возвращает канонический ключ по суррогатному идентификатору
func (m *Map) KeyByID(id string) (string, bool) {
	key, ok := m.byID[id]
	return key, ok
}

// Len возвращает количество записей в карте
func (m *Map) Len() int {
	return len(m.byKey)
}

// Keys возвращает отсортированный список канонических ключей.
// Используется для контрольных сумм верификации.
func (m *Map) Keys() []string {
	keys := make([]string, 0, len(m.byKey))
	for k := range m.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MapSet - карты одного хранилища, по типам сущностей
type MapSet map[string]*Map

// Get возвращает карту для типа сущности
func (s MapSet) Get(entityType string) (*Map, bool) {
	m, ok := s[entityType]
	return m, ok
}

// Translate транслирует ссылку из пространства идентификаторов источника
// в пространство цели через общий натуральный ключ.
//
// Чистая функция: ничего не создает. Отсутствие записи в целевой карте
// (запись-родитель еще не материализована в цели) - это unresolved
// reference; что с ним делать решает вызывающий: пропустить запись
// (обязательная ссылка) или обнулить поле (необязательная).
func Translate(sourceID string, source, target *Map) (string, bool) {
	if source == nil || target == nil {
		return "", false
	}
	key, ok := source.KeyByID(sourceID)
	if !ok {
		return "", false
	}
	return target.IDByKey(key)
}

package record

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Kind определяет тип значения поля записи
type Kind string

const (
	KindNull      Kind = "null"
	KindString    Kind = "string"
	KindNumber    Kind = "number"
	KindBool      Kind = "bool"
	KindTimestamp Kind = "timestamp"
	KindReference Kind = "reference"
)

// Value - закрытый вариантный тип значения поля записи.
// Вместо reflection-based динамической типизации используется
// небольшое фиксированное множество типов: string, number, bool,
// timestamp и reference (ссылка на другую запись).
type Value struct {
	Kind Kind
	Str  string
	Num  float64
	Bool bool
	Time time.Time
	Ref  *Reference
}

// Null создает пустое значение
func Null() Value {
	return Value{Kind: KindNull}
}

// String создает строковое значение
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number создает числовое значение
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// Bool создает логическое значение
func Bool(b bool) Value {
	return Value{Kind: KindBool, Bool: b}
}

// Timestamp создает значение-метку времени
func Timestamp(t time.Time) Value {
	return Value{Kind: KindTimestamp, Time: t}
}

// Ref создает значение-ссылку на запись другого типа
func Ref(entityType, id string) Value {
	return Value{Kind: KindReference, Ref: &Reference{EntityType: entityType, ID: id}}
}

// IsNull проверяет является ли значение пустым
func (v Value) IsNull() bool {
	return v.Kind == KindNull || v.Kind == ""
}

// Canonical возвращает каноническое строковое представление значения.
// Используется для построения натуральных ключей и контрольных сумм,
// поэтому формат должен быть стабильным между запусками и хранилищами.
func (v Value) Canonical() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindTimestamp:
		return v.Time.UTC().Format(time.RFC3339Nano)
	case KindReference:
		if v.Ref != nil {
			return v.Ref.ID
		}
		return ""
	default:
		return ""
	}
}

// valueJSON - промежуточное представление для JSON сериализации
type valueJSON struct {
	Kind Kind       `json:"kind"`
	Str  *string    `json:"str,omitempty"`
	Num  *float64   `json:"num,omitempty"`
	Bool *bool      `json:"bool,omitempty"`
	Time *time.Time `json:"time,omitempty"`
	Ref  *Reference `json:"ref,omitempty"`
}

// MarshalJSON сериализует значение в компактный JSON (только активное поле варианта)
func (v Value) MarshalJSON() ([]byte, error) {
	out := valueJSON{Kind: v.Kind}
	if out.Kind == "" {
		out.Kind = KindNull
	}
	switch v.Kind {
	case KindString:
		out.Str = &v.Str
	case KindNumber:
		out.Num = &v.Num
	case KindBool:
		out.Bool = &v.Bool
	case KindTimestamp:
		t := v.Time
		out.Time = &t
	case KindReference:
		out.Ref = v.Ref
	}
	return json.Marshal(out)
}

// UnmarshalJSON восстанавливает значение из JSON
func (v *Value) UnmarshalJSON(data []byte) error {
	var in valueJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Kind {
	case KindNull, "":
		*v = Null()
	case KindString:
		if in.Str == nil {
			return fmt.Errorf("string value without 'str' field")
		}
		*v = String(*in.Str)
	case KindNumber:
		if in.Num == nil {
			return fmt.Errorf("number value without 'num' field")
		}
		*v = Number(*in.Num)
	case KindBool:
		if in.Bool == nil {
			return fmt.Errorf("bool value without 'bool' field")
		}
		*v = Bool(*in.Bool)
	case KindTimestamp:
		if in.Time == nil {
			return fmt.Errorf("timestamp value without 'time' field")
		}
		*v = Timestamp(*in.Time)
	case KindReference:
		if in.Ref == nil {
			return fmt.Errorf("reference value without 'ref' field")
		}
		*v = Value{Kind: KindReference, Ref: in.Ref}
	default:
		return fmt.Errorf("unknown value kind: %s", in.Kind)
	}
	return nil
}

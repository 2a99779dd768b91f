package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Kind enumerates the primitive type constructors.
type Kind uint8

const (
	KindBool Kind = iota + 1
	KindInt
	KindFloat
	KindU32
	KindString
	KindChar
	KindOption
	KindList
	KindEmptyTuple
)

var kindNames = map[Kind]string{
	KindBool:       "Bool",
	KindInt:        "Int",
	KindFloat:      "Float",
	KindU32:        "U32",
	KindString:     "String",
	KindChar:       "Char",
	KindOption:     "Option",
	KindList:       "List",
	KindEmptyTuple: "EmptyTuple",
}

// String returns the constructor name.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// PrimitiveType is the type of a field value. Option and List carry an
// element type; every other kind is a leaf.
type PrimitiveType struct {
	Kind Kind
	Elem *PrimitiveType
}

// Leaf primitive types.
var (
	TypeBool       = PrimitiveType{Kind: KindBool}
	TypeInt        = PrimitiveType{Kind: KindInt}
	TypeFloat      = PrimitiveType{Kind: KindFloat}
	TypeU32        = PrimitiveType{Kind: KindU32}
	TypeString     = PrimitiveType{Kind: KindString}
	TypeChar       = PrimitiveType{Kind: KindChar}
	TypeEmptyTuple = PrimitiveType{Kind: KindEmptyTuple}
)

// OptionOf returns Option<elem>.
func OptionOf(elem PrimitiveType) PrimitiveType {
	e := elem
	return PrimitiveType{Kind: KindOption, Elem: &e}
}

// ListOf returns List<elem>.
func ListOf(elem PrimitiveType) PrimitiveType {
	e := elem
	return PrimitiveType{Kind: KindList, Elem: &e}
}

// IsZero reports whether t is the unset type.
func (t PrimitiveType) IsZero() bool {
	return t.Kind == 0
}

// Equal reports structural type equality.
func (t PrimitiveType) Equal(o PrimitiveType) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind != KindOption && t.Kind != KindList {
		return true
	}
	if t.Elem == nil || o.Elem == nil {
		return t.Elem == o.Elem
	}
	return t.Elem.Equal(*o.Elem)
}

// String renders the type as "Int", "Option<Int>", "List<Option<String>>".
func (t PrimitiveType) String() string {
	switch t.Kind {
	case KindOption, KindList:
		elem := "?"
		if t.Elem != nil {
			elem = t.Elem.String()
		}
		return t.Kind.String() + "<" + elem + ">"
	default:
		return t.Kind.String()
	}
}

// ParsePrimitiveType parses the String form.
func ParsePrimitiveType(s string) (PrimitiveType, error) {
	s = strings.TrimSpace(s)
	if open := strings.IndexByte(s, '<'); open >= 0 {
		if !strings.HasSuffix(s, ">") {
			return PrimitiveType{}, fmt.Errorf("parse type %q: missing closing '>'", s)
		}
		elem, err := ParsePrimitiveType(s[open+1 : len(s)-1])
		if err != nil {
			return PrimitiveType{}, err
		}
		switch s[:open] {
		case "Option":
			return OptionOf(elem), nil
		case "List":
			return ListOf(elem), nil
		default:
			return PrimitiveType{}, fmt.Errorf("parse type %q: %q takes no type argument", s, s[:open])
		}
	}
	for k, name := range kindNames {
		if name == s && k != KindOption && k != KindList {
			return PrimitiveType{Kind: k}, nil
		}
	}
	return PrimitiveType{}, fmt.Errorf("parse type %q: unknown primitive type", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t PrimitiveType) MarshalText() ([]byte, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("marshal type: unset primitive type")
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *PrimitiveType) UnmarshalText(data []byte) error {
	parsed, err := ParsePrimitiveType(string(data))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value is a sealed interface over primitive values.
// Only Bool, Int, Float, U32, String, Char, Option, List and EmptyTuple implement it.
type Value interface {
	primitiveValue()
	Type() PrimitiveType
}

// Bool is a boolean value.
type Bool bool

// Int is a signed 64-bit integer value.
type Int int64

// Float is a 64-bit float value.
type Float float64

// U32 is an unsigned 32-bit integer value.
type U32 uint32

// String is a text value.
type String string

// Char is a single code point.
type Char rune

// Option is Some(value) or None; Elem is the element type either way.
type Option struct {
	Elem PrimitiveType
	Some Value // nil means None
}

// List is a homogeneous list.
type List struct {
	Elem  PrimitiveType
	Items []Value
}

// EmptyTuple is the unit value.
type EmptyTuple struct{}

func (Bool) primitiveValue()       {}
func (Int) primitiveValue()        {}
func (Float) primitiveValue()      {}
func (U32) primitiveValue()        {}
func (String) primitiveValue()     {}
func (Char) primitiveValue()       {}
func (Option) primitiveValue()     {}
func (List) primitiveValue()       {}
func (EmptyTuple) primitiveValue() {}

func (Bool) Type() PrimitiveType       { return TypeBool }
func (Int) Type() PrimitiveType        { return TypeInt }
func (Float) Type() PrimitiveType      { return TypeFloat }
func (U32) Type() PrimitiveType        { return TypeU32 }
func (String) Type() PrimitiveType     { return TypeString }
func (Char) Type() PrimitiveType       { return TypeChar }
func (o Option) Type() PrimitiveType   { return OptionOf(o.Elem) }
func (l List) Type() PrimitiveType     { return ListOf(l.Elem) }
func (EmptyTuple) Type() PrimitiveType { return TypeEmptyTuple }

// Some wraps v as a present option.
func Some(v Value) Option {
	return Option{Elem: v.Type(), Some: v}
}

// None returns an absent option of the given element type.
func None(elem PrimitiveType) Option {
	return Option{Elem: elem}
}

// IsNone reports whether the option is absent.
func (o Option) IsNone() bool {
	return o.Some == nil
}

// NewList builds a list value of the given element type.
func NewList(elem PrimitiveType, items ...Value) List {
	return List{Elem: elem, Items: items}
}

// TypeOf returns the type carried by v.
func TypeOf(v Value) PrimitiveType {
	if v == nil {
		return PrimitiveType{}
	}
	return v.Type()
}

// Equal reports value equality. Values of different types are never equal.
func Equal(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if !a.Type().Equal(b.Type()) {
		return false
	}
	switch av := a.(type) {
	case Float:
		bv := b.(Float)
		if math.IsNaN(float64(av)) && math.IsNaN(float64(bv)) {
			return true
		}
		return av == bv
	case Option:
		bv := b.(Option)
		return Equal(av.Some, bv.Some)
	case List:
		bv := b.(List)
		if len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

// ZeroValue returns the default value of a type: false, 0, "", None, empty list.
func ZeroValue(t PrimitiveType) (Value, error) {
	switch t.Kind {
	case KindBool:
		return Bool(false), nil
	case KindInt:
		return Int(0), nil
	case KindFloat:
		return Float(0), nil
	case KindU32:
		return U32(0), nil
	case KindString:
		return String(""), nil
	case KindChar:
		return Char(0), nil
	case KindEmptyTuple:
		return EmptyTuple{}, nil
	case KindOption:
		if t.Elem == nil {
			return nil, fmt.Errorf("zero value: option without element type")
		}
		return None(*t.Elem), nil
	case KindList:
		if t.Elem == nil {
			return nil, fmt.Errorf("zero value: list without element type")
		}
		return NewList(*t.Elem), nil
	default:
		return nil, fmt.Errorf("zero value: unknown type %s", t)
	}
}

// ParseValue converts user text into a value of type t.
// Options accept "none" (or empty) for None; lists accept "[a, b]".
func ParseValue(t PrimitiveType, s string) (Value, error) {
	switch t.Kind {
	case KindBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		return Bool(b), nil
	case KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		return Int(n), nil
	case KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		return Float(f), nil
	case KindU32:
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", t, err)
		}
		return U32(n), nil
	case KindString:
		return String(s), nil
	case KindChar:
		if utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("parse %s: want exactly one character, got %q", t, s)
		}
		r, _ := utf8.DecodeRuneInString(s)
		return Char(r), nil
	case KindEmptyTuple:
		if strings.TrimSpace(s) != "()" {
			return nil, fmt.Errorf("parse %s: want \"()\", got %q", t, s)
		}
		return EmptyTuple{}, nil
	case KindOption:
		if t.Elem == nil {
			return nil, fmt.Errorf("parse %s: missing element type", t)
		}
		trimmed := strings.TrimSpace(s)
		if trimmed == "" || trimmed == "none" {
			return None(*t.Elem), nil
		}
		inner, err := ParseValue(*t.Elem, s)
		if err != nil {
			return nil, err
		}
		return Option{Elem: *t.Elem, Some: inner}, nil
	case KindList:
		if t.Elem == nil {
			return nil, fmt.Errorf("parse %s: missing element type", t)
		}
		trimmed := strings.TrimSpace(s)
		if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
			return nil, fmt.Errorf("parse %s: want [a, b, ...], got %q", t, s)
		}
		body := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
		list := NewList(*t.Elem)
		if body == "" {
			return list, nil
		}
		for _, part := range strings.Split(body, ",") {
			item, err := ParseValue(*t.Elem, strings.TrimSpace(part))
			if err != nil {
				return nil, err
			}
			list.Items = append(list.Items, item)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("parse value: unknown type %s", t)
	}
}

// FormatValue renders v in the form ParseValue accepts.
func FormatValue(v Value) string {
	switch val := v.(type) {
	case Bool:
		return strconv.FormatBool(bool(val))
	case Int:
		return strconv.FormatInt(int64(val), 10)
	case Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case U32:
		return strconv.FormatUint(uint64(val), 10)
	case String:
		return string(val)
	case Char:
		return string(rune(val))
	case EmptyTuple:
		return "()"
	case Option:
		if val.IsNone() {
			return "none"
		}
		return FormatValue(val.Some)
	case List:
		parts := make([]string, len(val.Items))
		for i, item := range val.Items {
			parts[i] = FormatValue(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// rawValue converts v to plain Go data for JSON encoding. The type is not
// embedded; callers that need it wrap the result with the type string.
func rawValue(v Value) (any, error) {
	switch val := v.(type) {
	case Bool:
		return bool(val), nil
	case Int:
		return int64(val), nil
	case Float:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("float %v has no JSON form", f)
		}
		return f, nil
	case U32:
		return int64(val), nil
	case String:
		return string(val), nil
	case Char:
		return string(rune(val)), nil
	case EmptyTuple:
		return []any{}, nil
	case Option:
		if val.IsNone() {
			return nil, nil
		}
		return rawValue(val.Some)
	case List:
		items := make([]any, len(val.Items))
		for i, item := range val.Items {
			raw, err := rawValue(item)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			items[i] = raw
		}
		return items, nil
	default:
		return nil, fmt.Errorf("unknown value type: %T", v)
	}
}

// decodeRaw converts decoded JSON data (with json.Number) back into a value of type t.
func decodeRaw(t PrimitiveType, raw any) (Value, error) {
	switch t.Kind {
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, fmt.Errorf("want bool for %s, got %T", t, raw)
		}
		return Bool(b), nil
	case KindInt:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want number for %s, got %T", t, raw)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, fmt.Errorf("want integer for %s: %w", t, err)
		}
		return Int(i), nil
	case KindFloat:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want number for %s, got %T", t, raw)
		}
		f, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("want float for %s: %w", t, err)
		}
		return Float(f), nil
	case KindU32:
		n, ok := raw.(json.Number)
		if !ok {
			return nil, fmt.Errorf("want number for %s, got %T", t, raw)
		}
		u, err := strconv.ParseUint(n.String(), 10, 32)
		if err != nil {
			return nil, fmt.Errorf("want u32 for %s: %w", t, err)
		}
		return U32(u), nil
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("want string for %s, got %T", t, raw)
		}
		return String(s), nil
	case KindChar:
		s, ok := raw.(string)
		if !ok || utf8.RuneCountInString(s) != 1 {
			return nil, fmt.Errorf("want single-character string for %s, got %v", t, raw)
		}
		r, _ := utf8.DecodeRuneInString(s)
		return Char(r), nil
	case KindEmptyTuple:
		arr, ok := raw.([]any)
		if !ok || len(arr) != 0 {
			return nil, fmt.Errorf("want [] for %s, got %v", t, raw)
		}
		return EmptyTuple{}, nil
	case KindOption:
		if t.Elem == nil {
			return nil, fmt.Errorf("option without element type")
		}
		if raw == nil {
			return None(*t.Elem), nil
		}
		inner, err := decodeRaw(*t.Elem, raw)
		if err != nil {
			return nil, err
		}
		return Option{Elem: *t.Elem, Some: inner}, nil
	case KindList:
		if t.Elem == nil {
			return nil, fmt.Errorf("list without element type")
		}
		arr, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("want array for %s, got %T", t, raw)
		}
		list := NewList(*t.Elem)
		for i, elem := range arr {
			item, err := decodeRaw(*t.Elem, elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			list.Items = append(list.Items, item)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unknown type %s", t)
	}
}

// TypedValue wraps a Value so it round-trips through JSON as
// {"type": "Int", "value": 5}.
type TypedValue struct {
	Value Value
}

type typedValueJSON struct {
	Type  PrimitiveType   `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON implements json.Marshaler.
func (tv TypedValue) MarshalJSON() ([]byte, error) {
	return MarshalValue(tv.Value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (tv *TypedValue) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	tv.Value = v
	return nil
}

// MarshalValue encodes v with its type.
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return nil, fmt.Errorf("marshal value: nil value")
	}
	raw, err := rawValue(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	payload, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return json.Marshal(typedValueJSON{Type: v.Type(), Value: payload})
}

// UnmarshalValue decodes the output of MarshalValue.
func UnmarshalValue(data []byte) (Value, error) {
	var env typedValueJSON
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal value: %w", err)
	}
	if env.Type.IsZero() {
		return nil, fmt.Errorf("unmarshal value: missing type")
	}
	return DecodeValue(env.Type, env.Value)
}

// DecodeValue decodes an untyped JSON payload as a value of type t.
func DecodeValue(t PrimitiveType, payload []byte) (Value, error) {
	if len(payload) == 0 {
		payload = []byte("null")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	v, err := decodeRaw(t, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	return v, nil
}

// FromGo converts loosely typed data (as produced by YAML or CUE decoding)
// into a value of type t. Integers arrive as int, int64, uint64 or float64.
func FromGo(t PrimitiveType, raw any) (Value, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("convert %T to %s: %w", raw, t, err)
	}
	return DecodeValue(t, data)
}

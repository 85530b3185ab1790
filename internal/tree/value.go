// Package tree implements the small JSON-like document model used on the
// telemetry wire: a closed set of value types, a streaming parser and a
// serializer.
//
// The dialect is deliberately narrower than RFC 8259. Strings accept only the
// \n \r \t \" \\ escapes, separators inside objects are not checked, and
// integers are kept distinct from floats.
package tree

import (
	"errors"
	"fmt"
	"sort"
)

// Kind identifies the active variant of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindArray
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is one node of a parsed document. The set of implementations is
// closed: Null, Bool, Int, Float, String, Array and Object.
type Value interface {
	Kind() Kind
	value()
}

type (
	Null   struct{}
	Bool   bool
	Int    int64
	Float  float64
	String string
	Array  []Value
	Object map[string]Value
)

func (Null) Kind() Kind   { return KindNull }
func (Bool) Kind() Kind   { return KindBool }
func (Int) Kind() Kind    { return KindInt }
func (Float) Kind() Kind  { return KindFloat }
func (String) Kind() Kind { return KindString }
func (Array) Kind() Kind  { return KindArray }
func (Object) Kind() Kind { return KindObject }

func (Null) value()   {}
func (Bool) value()   {}
func (Int) value()    {}
func (Float) value()  {}
func (String) value() {}
func (Array) value()  {}
func (Object) value() {}

// ErrWrongKind is matched by every KindError.
var ErrWrongKind = errors.New("tree: wrong value kind")

// KindError reports an accessor applied to a value of another variant.
// It is a programming error on the caller side, never a parse failure.
type KindError struct {
	Want Kind
	Got  Kind
}

func (e *KindError) Error() string {
	return fmt.Sprintf("tree: value is %s, not %s", e.Got, e.Want)
}

func (e *KindError) Is(target error) bool { return target == ErrWrongKind }

func kindOf(v Value) Kind {
	if v == nil {
		return KindNull
	}
	return v.Kind()
}

func IsNull(v Value) bool { return kindOf(v) == KindNull }

func AsBool(v Value) (bool, error) {
	b, ok := v.(Bool)
	if !ok {
		return false, &KindError{Want: KindBool, Got: kindOf(v)}
	}
	return bool(b), nil
}

// AsInt never narrows: a Float yields a KindError even when it is integral.
func AsInt(v Value) (int64, error) {
	i, ok := v.(Int)
	if !ok {
		return 0, &KindError{Want: KindInt, Got: kindOf(v)}
	}
	return int64(i), nil
}

// AsFloat accepts both Float and Int; integers are widened.
func AsFloat(v Value) (float64, error) {
	switch n := v.(type) {
	case Float:
		return float64(n), nil
	case Int:
		return float64(n), nil
	default:
		return 0, &KindError{Want: KindFloat, Got: kindOf(v)}
	}
}

func AsString(v Value) (string, error) {
	s, ok := v.(String)
	if !ok {
		return "", &KindError{Want: KindString, Got: kindOf(v)}
	}
	return string(s), nil
}

func AsArray(v Value) (Array, error) {
	a, ok := v.(Array)
	if !ok {
		return nil, &KindError{Want: KindArray, Got: kindOf(v)}
	}
	return a, nil
}

func AsObject(v Value) (Object, error) {
	o, ok := v.(Object)
	if !ok {
		return nil, &KindError{Want: KindObject, Got: kindOf(v)}
	}
	return o, nil
}

// Get returns the member stored under key.
func (o Object) Get(key string) (Value, bool) {
	v, ok := o[key]
	return v, ok
}

// Keys returns the member names in serialization order.
func (o Object) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

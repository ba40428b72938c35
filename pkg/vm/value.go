package vm

import (
	"fmt"
	"math"

	"github.com/dot42/dot42-sub006/pkg/types"
)

// Value is the content of one register. Integers, longs and the bit
// patterns of floats and doubles live in I; references live in Ref, where
// nil is the null reference.
type Value struct {
	I   int64
	Ref interface{}
}

// Null is the null reference.
var Null = Value{}

// Int returns an int value.
func Int(v int32) Value { return Value{I: int64(v)} }

// Long returns a long value.
func Long(v int64) Value { return Value{I: v} }

// Float returns a float value.
func Float(v float32) Value { return Value{I: int64(math.Float32bits(v))} }

// Double returns a double value.
func Double(v float64) Value { return Value{I: int64(math.Float64bits(v))} }

// Bool returns 1 or 0.
func Bool(b bool) Value {
	if b {
		return Int(1)
	}
	return Int(0)
}

// String returns a string reference.
func String(s string) Value { return Value{Ref: s} }

// Ref returns a reference value.
func Ref(r interface{}) Value { return Value{Ref: r} }

func (v Value) AsInt() int32      { return int32(v.I) }
func (v Value) AsLong() int64     { return v.I }
func (v Value) AsFloat() float32  { return math.Float32frombits(uint32(v.I)) }
func (v Value) AsDouble() float64 { return math.Float64frombits(uint64(v.I)) }
func (v Value) IsNull() bool      { return v.Ref == nil }

// AsObject returns the referenced object, or nil.
func (v Value) AsObject() *Object {
	o, _ := v.Ref.(*Object)
	return o
}

// AsArray returns the referenced array, or nil.
func (v Value) AsArray() *Array {
	a, _ := v.Ref.(*Array)
	return a
}

func (v Value) String() string {
	switch r := v.Ref.(type) {
	case nil:
		return fmt.Sprintf("%d", v.I)
	case string:
		return fmt.Sprintf("%q", r)
	case *Object:
		return r.String()
	case *Array:
		return fmt.Sprintf("%s[%d]", r.Elem, len(r.Data))
	case *types.TypeRef:
		return "class " + r.String()
	}
	return fmt.Sprintf("%v", v.Ref)
}

// Object is an instance of a class. Boxed primitives keep their payload in
// the "value" field.
type Object struct {
	Class  *types.TypeRef
	Fields map[string]Value
}

// NewObject allocates an instance of class.
func NewObject(class *types.TypeRef) *Object {
	return &Object{Class: class, Fields: make(map[string]Value)}
}

func (o *Object) String() string {
	if v, ok := o.Fields["message"]; ok {
		return fmt.Sprintf("%s(%v)", o.Class, v)
	}
	return o.Class.String()
}

// Array is a typed array.
type Array struct {
	Elem *types.TypeRef
	Data []Value
}

// typeOf returns the runtime type of a reference.
func typeOf(ref interface{}) *types.TypeRef {
	switch r := ref.(type) {
	case *Object:
		return r.Class
	case *Array:
		return types.ArrayOf(r.Elem)
	case string:
		return types.StringType
	case *types.TypeRef:
		return types.ClassType
	}
	return types.ObjectType
}

// instanceOf reports whether the reference v is a non-null instance of t.
func instanceOf(v Value, t *types.TypeRef) bool {
	if v.IsNull() {
		return false
	}
	rt := typeOf(v.Ref)
	if t.Kind == types.GenericParam {
		return true
	}
	if rt.Kind == types.Array && t.Kind == types.Array {
		return rt.Elem.Equal(t.Elem) || (t.Elem.IsReference() && rt.Elem.IsReference() && rt.Elem.AssignableTo(t.Elem))
	}
	return rt.AssignableTo(t)
}

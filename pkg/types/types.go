// Package types holds the resolved type, field and method references the
// lowering pass consumes. Resolution and interning happen upstream; these
// values are read-only to the compiler.
package types

import (
	"fmt"
	"strings"
)

// Kind classifies a TypeRef.
type Kind uint8

const (
	Void Kind = iota
	Bool
	Byte  // signed 8-bit
	UByte // unsigned 8-bit; stored like Byte
	Char
	Short
	UShort
	Int
	UInt
	Long
	ULong
	Float
	Double
	Class        // reference to a class or interface
	Array        // reference to an array; Elem is set
	GenericParam // a type parameter; always a reference at runtime
)

var kindNames = [...]string{
	Void:         "void",
	Bool:         "bool",
	Byte:         "sbyte",
	UByte:        "byte",
	Char:         "char",
	Short:        "short",
	UShort:       "ushort",
	Int:          "int",
	UInt:         "uint",
	Long:         "long",
	ULong:        "ulong",
	Float:        "float",
	Double:       "double",
	Class:        "class",
	Array:        "array",
	GenericParam: "generic",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// TypeRef is a resolved type.
type TypeRef struct {
	Kind      Kind
	Name      string   // fully qualified class name for Class
	Elem      *TypeRef // element type for Array
	Index     int      // parameter index for GenericParam
	Interface bool     // Class is an interface
	Super     *TypeRef // base class, used by assignability checks in tests
}

// Predeclared primitive and well-known types.
var (
	VoidType   = &TypeRef{Kind: Void}
	BoolType   = &TypeRef{Kind: Bool}
	SByteType  = &TypeRef{Kind: Byte}
	ByteType   = &TypeRef{Kind: UByte}
	CharType   = &TypeRef{Kind: Char}
	ShortType  = &TypeRef{Kind: Short}
	UShortType = &TypeRef{Kind: UShort}
	IntType    = &TypeRef{Kind: Int}
	UIntType   = &TypeRef{Kind: UInt}
	LongType   = &TypeRef{Kind: Long}
	ULongType  = &TypeRef{Kind: ULong}
	FloatType  = &TypeRef{Kind: Float}
	DoubleType = &TypeRef{Kind: Double}

	ObjectType    = &TypeRef{Kind: Class, Name: "java.lang.Object"}
	StringType    = &TypeRef{Kind: Class, Name: "java.lang.String", Super: ObjectType}
	ClassType     = &TypeRef{Kind: Class, Name: "java.lang.Class", Super: ObjectType}
	ThrowableType = &TypeRef{Kind: Class, Name: "java.lang.Throwable", Super: ObjectType}
)

// NewClass returns a class reference.
func NewClass(name string) *TypeRef {
	return &TypeRef{Kind: Class, Name: name, Super: ObjectType}
}

// NewInterface returns an interface reference.
func NewInterface(name string) *TypeRef {
	return &TypeRef{Kind: Class, Name: name, Interface: true, Super: ObjectType}
}

// ArrayOf returns an array reference with the given element type.
func ArrayOf(elem *TypeRef) *TypeRef {
	return &TypeRef{Kind: Array, Elem: elem}
}

// GenericParamAt returns a reference to type parameter i.
func GenericParamAt(i int) *TypeRef {
	return &TypeRef{Kind: GenericParam, Index: i}
}

// IsWide reports whether values of t occupy a register pair.
func (t *TypeRef) IsWide() bool {
	switch t.Kind {
	case Long, ULong, Double:
		return true
	}
	return false
}

// IsVoid reports whether t is void.
func (t *TypeRef) IsVoid() bool { return t == nil || t.Kind == Void }

// IsReference reports whether values of t are object references.
func (t *TypeRef) IsReference() bool {
	switch t.Kind {
	case Class, Array, GenericParam:
		return true
	}
	return false
}

// IsPrimitive reports whether t is a non-void primitive.
func (t *TypeRef) IsPrimitive() bool {
	return t != nil && t.Kind != Void && !t.IsReference()
}

// IsUnsigned reports whether t is an unsigned integral type.
func (t *TypeRef) IsUnsigned() bool {
	switch t.Kind {
	case UByte, UShort, UInt, ULong, Char:
		return true
	}
	return false
}

// IsFloating reports whether t is float or double.
func (t *TypeRef) IsFloating() bool {
	return t.Kind == Float || t.Kind == Double
}

// IsGenericArray reports whether t is an array whose element is a type parameter.
func (t *TypeRef) IsGenericArray() bool {
	return t.Kind == Array && t.Elem != nil && t.Elem.Kind == GenericParam
}

// Slots returns the number of registers a value of t occupies.
func (t *TypeRef) Slots() int {
	switch {
	case t.IsVoid():
		return 0
	case t.IsWide():
		return 2
	}
	return 1
}

// Equal reports structural equality.
func (t *TypeRef) Equal(o *TypeRef) bool {
	if t == o {
		return true
	}
	if t == nil || o == nil || t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case Class:
		return t.Name == o.Name
	case Array:
		return t.Elem.Equal(o.Elem)
	case GenericParam:
		return t.Index == o.Index
	}
	return true
}

// AssignableTo reports whether a value of t can be stored in a location of
// type o by walking the Super chain. Interfaces are only matched by name.
func (t *TypeRef) AssignableTo(o *TypeRef) bool {
	if o.Kind == Class && o.Name == ObjectType.Name && t.IsReference() {
		return true
	}
	for c := t; c != nil; c = c.Super {
		if c.Equal(o) {
			return true
		}
	}
	return false
}

func (t *TypeRef) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case Class:
		return t.Name
	case Array:
		return t.Elem.String() + "[]"
	case GenericParam:
		return fmt.Sprintf("!%d", t.Index)
	}
	return t.Kind.String()
}

// Boxed returns the reference type used to box primitive t.
func Boxed(t *TypeRef) *TypeRef {
	name, ok := boxedNames[t.Kind]
	if !ok {
		return t
	}
	return NewClass(name)
}

var boxedNames = map[Kind]string{
	Bool:   "java.lang.Boolean",
	Byte:   "java.lang.Byte",
	UByte:  "java.lang.Byte",
	Char:   "java.lang.Character",
	Short:  "java.lang.Short",
	UShort: "java.lang.Short",
	Int:    "java.lang.Integer",
	UInt:   "java.lang.Integer",
	Long:   "java.lang.Long",
	ULong:  "java.lang.Long",
	Float:  "java.lang.Float",
	Double: "java.lang.Double",
}

// FieldRef is a resolved field.
type FieldRef struct {
	Owner  *TypeRef
	Name   string
	Type   *TypeRef
	Static bool
}

func (f *FieldRef) String() string {
	return fmt.Sprintf("%s.%s:%s", f.Owner, f.Name, f.Type)
}

// Param is one declared method parameter.
type Param struct {
	Type  *TypeRef
	ByRef bool // ref/out parameter, passed as a one-element array
}

// MethodRef is a resolved method.
type MethodRef struct {
	Owner       *TypeRef
	Name        string
	Params      []Param
	Return      *TypeRef
	Static      bool
	Virtual     bool
	Constructor bool
}

// NewMethod builds a MethodRef from plain parameter types.
func NewMethod(owner *TypeRef, name string, ret *TypeRef, static bool, params ...*TypeRef) *MethodRef {
	m := &MethodRef{Owner: owner, Name: name, Return: ret, Static: static}
	for _, p := range params {
		m.Params = append(m.Params, Param{Type: p})
	}
	return m
}

// IsInterface reports whether the method is declared on an interface.
func (m *MethodRef) IsInterface() bool {
	return m.Owner != nil && m.Owner.Interface
}

// ParamType returns the register type of parameter i: by-ref parameters
// travel as arrays of their element type.
func (m *MethodRef) ParamType(i int) *TypeRef {
	p := m.Params[i]
	if p.ByRef {
		return ArrayOf(p.Type)
	}
	return p.Type
}

// ArgumentSlots returns the number of registers the declared signature needs,
// including this and the hidden generic-arguments array.
func (m *MethodRef) ArgumentSlots(genericArgs bool) int {
	n := 0
	if !m.Static {
		n++
	}
	for i := range m.Params {
		n += m.ParamType(i).Slots()
	}
	if genericArgs {
		n++
	}
	return n
}

func (m *MethodRef) String() string {
	var b strings.Builder
	b.WriteString(m.Owner.String())
	b.WriteString("::")
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, p := range m.Params {
		if i > 0 {
			b.WriteByte(',')
		}
		if p.ByRef {
			b.WriteString("ref ")
		}
		b.WriteString(p.Type.String())
	}
	b.WriteByte(')')
	b.WriteString(m.Return.String())
	return b.String()
}

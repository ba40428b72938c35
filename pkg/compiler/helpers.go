package compiler

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// runtimeHelpers hands out the method references of runtime support calls.
// References are interned per method so that equal helpers compare equal.
type runtimeHelpers struct {
	checked *types.TypeRef
	cache   map[string]*types.MethodRef
}

func newRuntimeHelpers(owner string) *runtimeHelpers {
	return &runtimeHelpers{checked: types.NewClass(owner), cache: make(map[string]*types.MethodRef)}
}

func (h *runtimeHelpers) method(owner *types.TypeRef, name string, ret *types.TypeRef, static bool, params ...*types.TypeRef) *types.MethodRef {
	key := fmt.Sprintf("%s::%s/%v", owner, name, static)
	for _, p := range params {
		key += "," + p.String()
	}
	if m, ok := h.cache[key]; ok {
		return m
	}
	m := types.NewMethod(owner, name, ret, static, params...)
	m.Virtual = !static
	h.cache[key] = m
	return m
}

var checkedNames = map[ast.Code]string{
	ast.AddOvf:   "Add",
	ast.AddOvfUn: "AddUnsigned",
	ast.SubOvf:   "Subtract",
	ast.SubOvfUn: "SubtractUnsigned",
	ast.MulOvf:   "Multiply",
	ast.MulOvfUn: "MultiplyUnsigned",
}

// checkedArith returns the helper performing code on operands of type t.
func (h *runtimeHelpers) checkedArith(code ast.Code, t *types.TypeRef) *types.MethodRef {
	rt := stackType(t)
	return h.method(h.checked, checkedNames[code], rt, true, rt, rt)
}

// checkedConv returns the helper converting a value of type from to type to,
// throwing on overflow.
func (h *runtimeHelpers) checkedConv(from, to *types.TypeRef) *types.MethodRef {
	name := "To" + cases.Title(language.English).String(to.Kind.String())
	return h.method(h.checked, name, stackType(to), true, stackType(from))
}

// unsignedLong returns java.lang.Long's unsigned divide or remainder.
func (h *runtimeHelpers) unsignedLong(code ast.Code) *types.MethodRef {
	name := "divideUnsigned"
	if code == ast.RemUn {
		name = "remainderUnsigned"
	}
	return h.method(types.NewClass("java.lang.Long"), name, types.LongType, true, types.LongType, types.LongType)
}

// valueOf returns the boxing factory for primitive t.
func (h *runtimeHelpers) valueOf(t *types.TypeRef) *types.MethodRef {
	boxed := types.Boxed(t)
	return h.method(boxed, "valueOf", boxed, true, stackType(t))
}

// unboxer returns the xxxValue accessor reading primitive t from its box.
func (h *runtimeHelpers) unboxer(t *types.TypeRef) *types.MethodRef {
	boxed := types.Boxed(t)
	return h.method(boxed, primitiveName(t)+"Value", stackType(t), false)
}

func primitiveName(t *types.TypeRef) string {
	switch t.Kind {
	case types.Bool:
		return "boolean"
	case types.Byte, types.UByte:
		return "byte"
	case types.Short, types.UShort:
		return "short"
	case types.UInt:
		return "int"
	case types.ULong:
		return "long"
	}
	return t.Kind.String()
}

// stackType maps t to the type its register holds: unsigned integers share
// the representation of their signed counterparts.
func stackType(t *types.TypeRef) *types.TypeRef {
	switch t.Kind {
	case types.UInt:
		return types.IntType
	case types.ULong:
		return types.LongType
	}
	return t
}


package vm

import (
	"fmt"
	"math"
	"math/bits"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/types"
)

var boxedKinds = []*types.TypeRef{
	types.BoolType, types.SByteType, types.ByteType, types.CharType, types.ShortType,
	types.UShortType, types.IntType, types.LongType, types.FloatType, types.DoubleType,
}

// installRuntime binds the support methods lowered code calls into: boxing,
// overflow-checked arithmetic and unsigned long division.
func installRuntime(vm *VM) {
	for _, t := range boxedKinds {
		t := t
		boxed := types.Boxed(t)
		vm.DefineNative(types.NewMethod(boxed, "valueOf", boxed, true, t), func(_ *VM, args []Value) (Value, error) {
			o := NewObject(boxed)
			o.Fields["value"] = args[0]
			return Ref(o), nil
		})
		unbox := types.NewMethod(boxed, primitiveName(t)+"Value", t, false)
		vm.DefineNative(unbox, func(_ *VM, args []Value) (Value, error) {
			return args[0].AsObject().Fields["value"], nil
		})
	}

	owner := types.NewClass(compiler.DefaultRuntimeOwner)
	checked := map[string]func(a, b int64, wide bool) (int64, bool){
		"Add":              addChecked,
		"Subtract":         subChecked,
		"Multiply":         mulChecked,
		"AddUnsigned":      addUnsigned,
		"SubtractUnsigned": subUnsigned,
		"MultiplyUnsigned": mulUnsigned,
	}
	for name, fn := range checked {
		fn := fn
		for _, t := range []*types.TypeRef{types.IntType, types.LongType} {
			wide := t.IsWide()
			vm.DefineNative(types.NewMethod(owner, name, t, true, t, t), func(_ *VM, args []Value) (Value, error) {
				r, ok := fn(args[0].I, args[1].I, wide)
				if !ok {
					return Null, Throw(OverflowException, "arithmetic overflow")
				}
				if wide {
					return Long(r), nil
				}
				return Int(int32(r)), nil
			})
		}
	}

	for _, to := range []*types.TypeRef{types.SByteType, types.ByteType, types.ShortType, types.UShortType, types.CharType, types.IntType, types.UIntType, types.LongType, types.ULongType} {
		to := to
		lo, hi := rangeOf(to)
		for _, from := range []*types.TypeRef{types.IntType, types.LongType, types.FloatType, types.DoubleType} {
			from := from
			name := "To" + cases.Title(language.English).String(to.Kind.String())
			m := types.NewMethod(owner, name, stackTypeOf(to), true, from)
			vm.DefineNative(m, func(_ *VM, args []Value) (Value, error) {
				var x float64
				switch from.Kind {
				case types.Int:
					x = float64(args[0].AsInt())
				case types.Long:
					x = float64(args[0].AsLong())
				case types.Float:
					x = float64(args[0].AsFloat())
				default:
					x = args[0].AsDouble()
				}
				if math.IsNaN(x) || x < lo || x > hi {
					return Null, Throw(OverflowException, fmt.Sprintf("%v does not fit %s", x, to))
				}
				if to.IsWide() {
					return Long(int64(x)), nil
				}
				return Int(int32(int64(x))), nil
			})
		}
	}

	long := types.NewClass("java.lang.Long")
	vm.DefineNative(types.NewMethod(long, "divideUnsigned", types.LongType, true, types.LongType, types.LongType), func(_ *VM, args []Value) (Value, error) {
		if args[1].I == 0 {
			return Null, Throw(ArithmeticException, "divide by zero")
		}
		return Long(int64(uint64(args[0].I) / uint64(args[1].I))), nil
	})
	vm.DefineNative(types.NewMethod(long, "remainderUnsigned", types.LongType, true, types.LongType, types.LongType), func(_ *VM, args []Value) (Value, error) {
		if args[1].I == 0 {
			return Null, Throw(ArithmeticException, "divide by zero")
		}
		return Long(int64(uint64(args[0].I) % uint64(args[1].I))), nil
	})
}

func primitiveName(t *types.TypeRef) string {
	switch t.Kind {
	case types.Bool:
		return "boolean"
	case types.Byte, types.UByte:
		return "byte"
	case types.Short, types.UShort:
		return "short"
	}
	return t.Kind.String()
}

func stackTypeOf(t *types.TypeRef) *types.TypeRef {
	switch t.Kind {
	case types.UInt:
		return types.IntType
	case types.ULong:
		return types.LongType
	}
	return t
}

func rangeOf(t *types.TypeRef) (float64, float64) {
	switch t.Kind {
	case types.Byte:
		return math.MinInt8, math.MaxInt8
	case types.UByte:
		return 0, math.MaxUint8
	case types.Short:
		return math.MinInt16, math.MaxInt16
	case types.UShort, types.Char:
		return 0, math.MaxUint16
	case types.Int:
		return math.MinInt32, math.MaxInt32
	case types.UInt:
		return 0, math.MaxUint32
	case types.ULong:
		return 0, math.MaxUint64
	}
	return math.MinInt64, math.MaxInt64
}

func addChecked(a, b int64, wide bool) (int64, bool) {
	if !wide {
		r := int64(int32(a)) + int64(int32(b))
		return r, r >= math.MinInt32 && r <= math.MaxInt32
	}
	r := a + b
	return r, (a >= 0) != (b >= 0) || (r >= 0) == (a >= 0)
}

func subChecked(a, b int64, wide bool) (int64, bool) {
	if !wide {
		r := int64(int32(a)) - int64(int32(b))
		return r, r >= math.MinInt32 && r <= math.MaxInt32
	}
	r := a - b
	return r, (a >= 0) == (b >= 0) || (r >= 0) == (a >= 0)
}

func mulChecked(a, b int64, wide bool) (int64, bool) {
	if !wide {
		r := int64(int32(a)) * int64(int32(b))
		return r, r >= math.MinInt32 && r <= math.MaxInt32
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	r := a * b
	return r, r/b == a && !(a == -1 && b == math.MinInt64) && !(b == -1 && a == math.MinInt64)
}

func addUnsigned(a, b int64, wide bool) (int64, bool) {
	if !wide {
		r := uint64(uint32(a)) + uint64(uint32(b))
		return int64(r), r <= math.MaxUint32
	}
	r, carry := bits.Add64(uint64(a), uint64(b), 0)
	return int64(r), carry == 0
}

func subUnsigned(a, b int64, wide bool) (int64, bool) {
	if !wide {
		return int64(uint32(a) - uint32(b)), uint32(a) >= uint32(b)
	}
	r, borrow := bits.Sub64(uint64(a), uint64(b), 0)
	return int64(r), borrow == 0
}

func mulUnsigned(a, b int64, wide bool) (int64, bool) {
	if !wide {
		r := uint64(uint32(a)) * uint64(uint32(b))
		return int64(r), r <= math.MaxUint32
	}
	hi, lo := bits.Mul64(uint64(a), uint64(b))
	return int64(lo), hi == 0
}

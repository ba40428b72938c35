package rl

import (
	"fmt"

	"github.com/dot42/dot42-sub006/pkg/types"
)

// OpCode defines the type for register-level instructions.
type OpCode uint8

// Enum for Opcodes (Register Machine)
//
// Format notes use the instruction's register list (vA, vB, ...) and its
// Operand. Branch operands hold a Handle before flattening and an
// *Instruction after.
const (
	Nop OpCode = iota

	Move             // vA vB: vA = vB
	MoveWide         // vA vB: wide pair copy
	MoveObject       // vA vB: reference copy
	MoveResult       // vA: result of the preceding invoke
	MoveResultWide   // vA
	MoveResultObject // vA
	MoveException    // vA: the caught exception (first instruction of a handler)

	ReturnVoid
	Return       // vA
	ReturnWide   // vA
	ReturnObject // vA

	Const       // vA, Operand int32 (float32 bits for floats)
	ConstWide   // vA, Operand int64 (float64 bits for doubles)
	ConstString // vA, Operand string
	ConstClass  // vA, Operand *types.TypeRef

	MonitorEnter // vA
	MonitorExit  // vA

	CheckCast   // vA, Operand *types.TypeRef: in-place cast
	InstanceOf  // vA vB, Operand *types.TypeRef: vA = vB is type
	ArrayLength // vA vB
	NewInstance // vA, Operand *types.TypeRef
	NewArray    // vA vB, Operand *types.TypeRef (array type): vA = new [vB]

	Throw        // vA
	Goto         // Operand target
	PackedSwitch // vA, Operand []target (case i jumps to target i)

	CmplFloat  // vA vB vC
	CmpgFloat  // vA vB vC
	CmplDouble // vA vB vC
	CmpgDouble // vA vB vC
	CmpLong    // vA vB vC

	IfEq // vA vB, Operand target
	IfNe
	IfLt
	IfGe
	IfGt
	IfLe
	IfEqz // vA, Operand target
	IfNez
	IfLtz
	IfGez
	IfGtz
	IfLez

	// Typed access families. Each has seven variants in Variant order.
	Aget // vA vB vC: vA = vB[vC]
	AgetWide
	AgetObject
	AgetBoolean
	AgetByte
	AgetChar
	AgetShort
	Aput // vA vB vC: vB[vC] = vA
	AputWide
	AputObject
	AputBoolean
	AputByte
	AputChar
	AputShort
	Iget // vA vB, Operand *types.FieldRef: vA = vB.field
	IgetWide
	IgetObject
	IgetBoolean
	IgetByte
	IgetChar
	IgetShort
	Iput // vA vB, Operand *types.FieldRef: vB.field = vA
	IputWide
	IputObject
	IputBoolean
	IputByte
	IputChar
	IputShort
	Sget // vA, Operand *types.FieldRef
	SgetWide
	SgetObject
	SgetBoolean
	SgetByte
	SgetChar
	SgetShort
	Sput // vA, Operand *types.FieldRef
	SputWide
	SputObject
	SputBoolean
	SputByte
	SputChar
	SputShort

	InvokeVirtual // registers..., Operand *types.MethodRef
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface

	NegInt // vA vB
	NotInt
	NegLong
	NotLong
	NegFloat
	NegDouble

	IntToLong // vA vB
	IntToFloat
	IntToDouble
	LongToInt
	LongToFloat
	LongToDouble
	FloatToInt
	FloatToLong
	FloatToDouble
	DoubleToInt
	DoubleToLong
	DoubleToFloat
	IntToByte
	IntToChar
	IntToShort

	// Three-address binary ops: vA = vB op vC
	AddInt
	SubInt
	MulInt
	DivInt
	RemInt
	AndInt
	OrInt
	XorInt
	ShlInt
	ShrInt
	UshrInt
	AddLong
	SubLong
	MulLong
	DivLong
	RemLong
	AndLong
	OrLong
	XorLong
	ShlLong
	ShrLong
	UshrLong
	AddFloat
	SubFloat
	MulFloat
	DivFloat
	RemFloat
	AddDouble
	SubDouble
	MulDouble
	DivDouble
	RemDouble

	// In-place binary ops: vA = vA op vB
	AddInt2Addr
	SubInt2Addr
	MulInt2Addr
	DivInt2Addr
	RemInt2Addr
	AndInt2Addr
	OrInt2Addr
	XorInt2Addr
	ShlInt2Addr
	ShrInt2Addr
	UshrInt2Addr
	AddLong2Addr
	SubLong2Addr
	MulLong2Addr
	DivLong2Addr
	RemLong2Addr
	AndLong2Addr
	OrLong2Addr
	XorLong2Addr
	ShlLong2Addr
	ShrLong2Addr
	UshrLong2Addr
	AddFloat2Addr
	SubFloat2Addr
	MulFloat2Addr
	DivFloat2Addr
	RemFloat2Addr
	AddDouble2Addr
	SubDouble2Addr
	MulDouble2Addr
	DivDouble2Addr
	RemDouble2Addr

	numOpCodes
)

var opNames = [numOpCodes]string{
	Nop:              "nop",
	Move:             "move",
	MoveWide:         "move-wide",
	MoveObject:       "move-object",
	MoveResult:       "move-result",
	MoveResultWide:   "move-result-wide",
	MoveResultObject: "move-result-object",
	MoveException:    "move-exception",
	ReturnVoid:       "return-void",
	Return:           "return",
	ReturnWide:       "return-wide",
	ReturnObject:     "return-object",
	Const:            "const",
	ConstWide:        "const-wide",
	ConstString:      "const-string",
	ConstClass:       "const-class",
	MonitorEnter:     "monitor-enter",
	MonitorExit:      "monitor-exit",
	CheckCast:        "check-cast",
	InstanceOf:       "instance-of",
	ArrayLength:      "array-length",
	NewInstance:      "new-instance",
	NewArray:         "new-array",
	Throw:            "throw",
	Goto:             "goto",
	PackedSwitch:     "packed-switch",
	CmplFloat:        "cmpl-float",
	CmpgFloat:        "cmpg-float",
	CmplDouble:       "cmpl-double",
	CmpgDouble:       "cmpg-double",
	CmpLong:          "cmp-long",
	IfEq:             "if-eq",
	IfNe:             "if-ne",
	IfLt:             "if-lt",
	IfGe:             "if-ge",
	IfGt:             "if-gt",
	IfLe:             "if-le",
	IfEqz:            "if-eqz",
	IfNez:            "if-nez",
	IfLtz:            "if-ltz",
	IfGez:            "if-gez",
	IfGtz:            "if-gtz",
	IfLez:            "if-lez",
	InvokeVirtual:    "invoke-virtual",
	InvokeSuper:      "invoke-super",
	InvokeDirect:     "invoke-direct",
	InvokeStatic:     "invoke-static",
	InvokeInterface:  "invoke-interface",
	NegInt:           "neg-int",
	NotInt:           "not-int",
	NegLong:          "neg-long",
	NotLong:          "not-long",
	NegFloat:         "neg-float",
	NegDouble:        "neg-double",
	IntToLong:        "int-to-long",
	IntToFloat:       "int-to-float",
	IntToDouble:      "int-to-double",
	LongToInt:        "long-to-int",
	LongToFloat:      "long-to-float",
	LongToDouble:     "long-to-double",
	FloatToInt:       "float-to-int",
	FloatToLong:      "float-to-long",
	FloatToDouble:    "float-to-double",
	DoubleToInt:      "double-to-int",
	DoubleToLong:     "double-to-long",
	DoubleToFloat:    "double-to-float",
	IntToByte:        "int-to-byte",
	IntToChar:        "int-to-char",
	IntToShort:       "int-to-short",
}

var (
	variantSuffix = [...]string{"", "-wide", "-object", "-boolean", "-byte", "-char", "-short"}
	binaryNames   = [...]string{"add", "sub", "mul", "div", "rem", "and", "or", "xor", "shl", "shr", "ushr"}
	numKindNames  = [...]string{"int", "long", "float", "double"}
)

func init() {
	for base, name := range map[OpCode]string{Aget: "aget", Aput: "aput", Iget: "iget", Iput: "iput", Sget: "sget", Sput: "sput"} {
		for v, suffix := range variantSuffix {
			opNames[base+OpCode(v)] = name + suffix
		}
	}
	for op := AddInt; op < numOpCodes; op++ {
		bin, kind, inPlace := op.binaryParts()
		name := binaryNames[bin] + "-" + numKindNames[kind]
		if inPlace {
			name += "/2addr"
		}
		opNames[op] = name
	}
}

func (op OpCode) String() string {
	if op < numOpCodes && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("UnknownOpcode(%d)", op)
}

// IsBranch reports whether op carries a branch-target operand.
func (op OpCode) IsBranch() bool {
	return op == Goto || op == PackedSwitch || (op >= IfEq && op <= IfLez)
}

// IsUnconditionalExit reports whether control never falls through op.
func (op OpCode) IsUnconditionalExit() bool {
	switch op {
	case Goto, Throw, ReturnVoid, Return, ReturnWide, ReturnObject:
		return true
	}
	return false
}

// IsInvoke reports whether op is one of the invoke family.
func (op OpCode) IsInvoke() bool {
	return op >= InvokeVirtual && op <= InvokeInterface
}

// --- Typed families ---

// Variant selects the member of a typed access family.
type Variant uint8

const (
	VariantPlain Variant = iota // int, float
	VariantWide
	VariantObject
	VariantBoolean
	VariantByte
	VariantChar
	VariantShort
)

// VariantOf returns the access variant for values of t.
func VariantOf(t *types.TypeRef) Variant {
	switch t.Kind {
	case types.Long, types.ULong, types.Double:
		return VariantWide
	case types.Class, types.Array, types.GenericParam:
		return VariantObject
	case types.Bool:
		return VariantBoolean
	case types.Byte, types.UByte:
		return VariantByte
	case types.Char:
		return VariantChar
	case types.Short, types.UShort:
		return VariantShort
	}
	return VariantPlain
}

// Typed returns the member of family base (Aget, Aput, Iget, Iput, Sget,
// Sput) matching t.
func Typed(base OpCode, t *types.TypeRef) OpCode {
	return base + OpCode(VariantOf(t))
}

// MoveFor returns the move opcode for values of t.
func MoveFor(t *types.TypeRef) OpCode {
	return [...]OpCode{Move, MoveWide, MoveObject}[moveClass(t)]
}

// MoveResultFor returns the move-result opcode for values of t.
func MoveResultFor(t *types.TypeRef) OpCode {
	return [...]OpCode{MoveResult, MoveResultWide, MoveResultObject}[moveClass(t)]
}

// ReturnFor returns the return opcode for values of t.
func ReturnFor(t *types.TypeRef) OpCode {
	if t.IsVoid() {
		return ReturnVoid
	}
	return [...]OpCode{Return, ReturnWide, ReturnObject}[moveClass(t)]
}

func moveClass(t *types.TypeRef) int {
	switch {
	case t.IsWide():
		return 1
	case t.IsReference():
		return 2
	}
	return 0
}

// --- Numeric families ---

// NumKind is the arithmetic class of a primitive type.
type NumKind uint8

const (
	KindInt NumKind = iota
	KindLong
	KindFloat
	KindDouble
)

// NumKindOf returns the arithmetic class of t.
func NumKindOf(t *types.TypeRef) NumKind {
	switch t.Kind {
	case types.Long, types.ULong:
		return KindLong
	case types.Float:
		return KindFloat
	case types.Double:
		return KindDouble
	}
	return KindInt
}

func (k NumKind) String() string { return numKindNames[k] }

// BinOp is a two-operand arithmetic or bitwise operation.
type BinOp uint8

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpRem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpUshr
)

const (
	intOps   = 11
	floatOps = 5
	binBlock = 2*intOps + 2*floatOps
)

// Binary returns the opcode for op on operands of kind k. It reports false
// when the combination does not exist (bitwise ops on floating point).
func Binary(op BinOp, k NumKind, inPlace bool) (OpCode, bool) {
	var off int
	switch k {
	case KindInt:
		off = int(op)
	case KindLong:
		off = intOps + int(op)
	case KindFloat, KindDouble:
		if op > OpRem {
			return Nop, false
		}
		off = 2*intOps + int(op)
		if k == KindDouble {
			off += floatOps
		}
	}
	if inPlace {
		off += binBlock
	}
	return AddInt + OpCode(off), true
}

// InPlace returns the /2addr form of a three-address binary opcode.
func (op OpCode) InPlace() OpCode {
	if op >= AddInt && op < AddInt2Addr {
		return op + binBlock
	}
	return op
}

// binaryParts decodes a binary opcode.
func (op OpCode) binaryParts() (BinOp, NumKind, bool) {
	off := int(op - AddInt)
	inPlace := off >= binBlock
	off %= binBlock
	switch {
	case off < intOps:
		return BinOp(off), KindInt, inPlace
	case off < 2*intOps:
		return BinOp(off - intOps), KindLong, inPlace
	case off < 2*intOps+floatOps:
		return BinOp(off - 2*intOps), KindFloat, inPlace
	}
	return BinOp(off - 2*intOps - floatOps), KindDouble, inPlace
}

// IsBinary reports whether op is a binary arithmetic opcode.
func (op OpCode) IsBinary() bool {
	return op >= AddInt && op < numOpCodes
}

// BinaryParts decodes a binary opcode into its operation, kind and form.
func (op OpCode) BinaryParts() (BinOp, NumKind, bool) {
	return op.binaryParts()
}

// --- Conditions ---

// Cond is the test of an if-* instruction.
type Cond uint8

const (
	CondEq Cond = iota
	CondNe
	CondLt
	CondGe
	CondGt
	CondLe
)

// Reverse returns the negated test.
func (c Cond) Reverse() Cond {
	return [...]Cond{CondNe, CondEq, CondGe, CondLt, CondLe, CondGt}[c]
}

// Swap returns the test with its operands exchanged.
func (c Cond) Swap() Cond {
	return [...]Cond{CondEq, CondNe, CondGt, CondLe, CondLt, CondGe}[c]
}

// If returns the if-test opcode for c; zero selects the compare-with-zero form.
func If(c Cond, zero bool) OpCode {
	if zero {
		return IfEqz + OpCode(c)
	}
	return IfEq + OpCode(c)
}

// CondOf decodes an if-* opcode.
func (op OpCode) CondOf() (Cond, bool) {
	switch {
	case op >= IfEq && op <= IfLe:
		return Cond(op - IfEq), false
	case op >= IfEqz && op <= IfLez:
		return Cond(op - IfEqz), true
	}
	panic(fmt.Sprintf("rl: %s is not an if-test", op))
}

package ast

import "fmt"

// Code is the operation kind of an Expression. The set is closed; lowering
// dispatches over it with a single switch.
type Code uint8

// Operand conventions are noted per code. Args are listed in evaluation order.
const (
	Nop Code = iota

	// Constants
	Ldnull  // Operand: -
	LdcI4   // Operand: int32
	LdcI8   // Operand: int64
	LdcR4   // Operand: float32
	LdcR8   // Operand: float64
	Ldstr   // Operand: string
	Ldtoken // Operand: *types.TypeRef
	Default // Operand: *types.TypeRef

	// Variables and arguments
	Ldloc     // Operand: *Variable
	Stloc     // Operand: *Variable; Args: value
	Ldarg     // Operand: *Parameter
	Starg     // Operand: *Parameter; Args: value
	Ldthis    // Operand: -
	AddressOf // Operand: *Variable or *Parameter; only valid as a by-ref call argument

	// Fields
	Ldfld  // Operand: *types.FieldRef; Args: instance
	Stfld  // Operand: *types.FieldRef; Args: instance, value
	Ldsfld // Operand: *types.FieldRef
	Stsfld // Operand: *types.FieldRef; Args: value

	// Arithmetic and bitwise; Args: left, right (unary: operand)
	Add
	Sub
	Mul
	Div
	DivUn
	Rem
	RemUn
	And
	Or
	Xor
	Shl
	Shr
	ShrUn
	Neg
	Not

	// Checked arithmetic
	AddOvf
	AddOvfUn
	SubOvf
	SubOvfUn
	MulOvf
	MulOvfUn
	ConvOvf // Operand: *types.TypeRef (target); Args: value

	// Compound assignment; Operand: Code (binary op); Args: target load, value.
	// The target load is one of Ldloc, Ldarg, Ldfld, Ldsfld, Ldelem.
	Compound

	// Comparisons; Args: left, right. Result is bool.
	Ceq
	Cne
	Clt
	CltUn
	Cgt
	CgtUn
	Cle
	Cge

	// Logic
	LogAnd      // Args: left, right (short-circuit)
	LogOr       // Args: left, right (short-circuit)
	LogNot      // Args: operand
	Conditional // Args: cond, then, else
	Coalesce    // Args: value, fallback

	// Conversions; Args: value
	ConvI1
	ConvU1
	ConvI2
	ConvU2
	ConvI4
	ConvI8
	ConvR4
	ConvR8

	// Arrays
	Newarr    // Operand: *types.TypeRef (element); Args: length
	Ldlen     // Args: array
	Ldelem    // Args: array, index
	Stelem    // Args: array, index, value
	InitArray // Operand: *types.TypeRef (element); Args: element values

	// Objects and calls
	Newobj      // Operand: *types.MethodRef (constructor); Args: arguments
	Call        // Operand: *types.MethodRef; Args: [instance,] arguments
	Callvirt    // Operand: *types.MethodRef; Args: instance, arguments
	CallBase    // Operand: *types.MethodRef; Args: instance, arguments (non-virtual call to a base implementation)
	Castclass   // Operand: *types.TypeRef; Args: value
	Isinst      // Operand: *types.TypeRef; Args: value; result is the value or null
	Box         // Operand: *types.TypeRef (primitive); Args: value
	Unbox       // Operand: *types.TypeRef; Args: value
	NewDelegate // Operand: *DelegateRef; Args: target instance (ldnull for static methods)

	// Generics
	LdGenericArg      // Operand: int (method type parameter index)
	LdClassGenericArg // Operand: int (class type parameter index)

	// Control flow
	Br      // Operand: string (label)
	Brtrue  // Operand: string (label); Args: cond
	Brfalse // Operand: string (label); Args: cond
	Beq     // Operand: string (label); Args: left, right
	Bne
	Blt
	Bge
	Bgt
	Ble
	Switch  // Operand: []string (labels, indexed by value); Args: value
	Ret     // Args: [value]
	Leave   // Operand: string (label outside the current try/catch)
	Throw   // Args: exception
	Rethrow // only valid inside a catch body
	Pop     // Args: value (evaluated for side effects)

	// Monitors; Args: lock value
	MonitorEnter
	MonitorExit

	numCodes
)

var codeNames = [...]string{
	Nop:               "nop",
	Ldnull:            "ldnull",
	LdcI4:             "ldc.i4",
	LdcI8:             "ldc.i8",
	LdcR4:             "ldc.r4",
	LdcR8:             "ldc.r8",
	Ldstr:             "ldstr",
	Ldtoken:           "ldtoken",
	Default:           "default",
	Ldloc:             "ldloc",
	Stloc:             "stloc",
	Ldarg:             "ldarg",
	Starg:             "starg",
	Ldthis:            "ldthis",
	AddressOf:         "addressof",
	Ldfld:             "ldfld",
	Stfld:             "stfld",
	Ldsfld:            "ldsfld",
	Stsfld:            "stsfld",
	Add:               "add",
	Sub:               "sub",
	Mul:               "mul",
	Div:               "div",
	DivUn:             "div.un",
	Rem:               "rem",
	RemUn:             "rem.un",
	And:               "and",
	Or:                "or",
	Xor:               "xor",
	Shl:               "shl",
	Shr:               "shr",
	ShrUn:             "shr.un",
	Neg:               "neg",
	Not:               "not",
	AddOvf:            "add.ovf",
	AddOvfUn:          "add.ovf.un",
	SubOvf:            "sub.ovf",
	SubOvfUn:          "sub.ovf.un",
	MulOvf:            "mul.ovf",
	MulOvfUn:          "mul.ovf.un",
	ConvOvf:           "conv.ovf",
	Compound:          "compound",
	Ceq:               "ceq",
	Cne:               "cne",
	Clt:               "clt",
	CltUn:             "clt.un",
	Cgt:               "cgt",
	CgtUn:             "cgt.un",
	Cle:               "cle",
	Cge:               "cge",
	LogAnd:            "logand",
	LogOr:             "logor",
	LogNot:            "lognot",
	Conditional:       "conditional",
	Coalesce:          "coalesce",
	ConvI1:            "conv.i1",
	ConvU1:            "conv.u1",
	ConvI2:            "conv.i2",
	ConvU2:            "conv.u2",
	ConvI4:            "conv.i4",
	ConvI8:            "conv.i8",
	ConvR4:            "conv.r4",
	ConvR8:            "conv.r8",
	Newarr:            "newarr",
	Ldlen:             "ldlen",
	Ldelem:            "ldelem",
	Stelem:            "stelem",
	InitArray:         "initarray",
	Newobj:            "newobj",
	Call:              "call",
	Callvirt:          "callvirt",
	CallBase:          "callbase",
	Castclass:         "castclass",
	Isinst:            "isinst",
	Box:               "box",
	Unbox:             "unbox",
	NewDelegate:       "newdelegate",
	LdGenericArg:      "ldgenericarg",
	LdClassGenericArg: "ldclassgenericarg",
	Br:                "br",
	Brtrue:            "brtrue",
	Brfalse:           "brfalse",
	Beq:               "beq",
	Bne:               "bne",
	Blt:               "blt",
	Bge:               "bge",
	Bgt:               "bgt",
	Ble:               "ble",
	Switch:            "switch",
	Ret:               "ret",
	Leave:             "leave",
	Throw:             "throw",
	Rethrow:           "rethrow",
	Pop:               "pop",
	MonitorEnter:      "monitorenter",
	MonitorExit:       "monitorexit",
}

func (c Code) String() string {
	if c < numCodes {
		return codeNames[c]
	}
	return fmt.Sprintf("Code(%d)", c)
}

var codesByName = func() map[string]Code {
	m := make(map[string]Code, numCodes)
	for c := Code(0); c < numCodes; c++ {
		m[codeNames[c]] = c
	}
	return m
}()

// CodeByName looks up a code by its textual name.
func CodeByName(name string) (Code, bool) {
	c, ok := codesByName[name]
	return c, ok
}

// IsBinary reports whether c is a two-operand arithmetic or bitwise code.
func (c Code) IsBinary() bool {
	return c >= Add && c <= ShrUn
}

// IsChecked reports whether c is an overflow-checked arithmetic code.
func (c Code) IsChecked() bool {
	return c >= AddOvf && c <= MulOvfUn
}

// IsComparison reports whether c yields a bool from two operands.
func (c Code) IsComparison() bool {
	return c >= Ceq && c <= Cge
}

// IsConditionalBranch reports whether c is a two-operand compare-and-branch.
func (c Code) IsConditionalBranch() bool {
	return c >= Beq && c <= Ble
}

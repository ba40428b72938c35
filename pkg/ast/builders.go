package ast

import "github.com/dot42/dot42-sub006/pkg/types"

// Builders for hand-written trees. They leave Position unset.

// New returns an expression.
func New(code Code, operand interface{}, typ *types.TypeRef, args ...*Expression) *Expression {
	return &Expression{Code: code, Operand: operand, Type: typ, Args: args}
}

// I4 returns an int constant.
func I4(v int32) *Expression { return New(LdcI4, v, types.IntType) }

// I8 returns a long constant.
func I8(v int64) *Expression { return New(LdcI8, v, types.LongType) }

// R8 returns a double constant.
func R8(v float64) *Expression { return New(LdcR8, v, types.DoubleType) }

// Str returns a string constant.
func Str(v string) *Expression { return New(Ldstr, v, types.StringType) }

// Null returns a null reference.
func Null() *Expression { return New(Ldnull, nil, types.ObjectType) }

// Load reads a local variable.
func Load(v *Variable) *Expression { return New(Ldloc, v, v.Type) }

// Store writes a local variable.
func Store(v *Variable, value *Expression) *Expression { return New(Stloc, v, nil, value) }

// Arg reads a parameter.
func Arg(p *Parameter) *Expression { return New(Ldarg, p, p.Type) }

// This reads the receiver.
func This(t *types.TypeRef) *Expression { return New(Ldthis, nil, t) }

// Binary applies a two-operand code; the result has the left operand's type
// unless code is a comparison.
func Binary(code Code, l, r *Expression) *Expression {
	t := l.Type
	if code.IsComparison() {
		t = types.BoolType
	}
	return New(code, nil, t, l, r)
}

// CallStatic calls a static method.
func CallStatic(m *types.MethodRef, args ...*Expression) *Expression {
	return New(Call, m, m.Return, args...)
}

// CallVirt calls an instance method virtually.
func CallVirt(m *types.MethodRef, args ...*Expression) *Expression {
	return New(Callvirt, m, m.Return, args...)
}

// LoadStatic reads a static field.
func LoadStatic(f *types.FieldRef) *Expression { return New(Ldsfld, f, f.Type) }

// LoadField reads an instance field.
func LoadField(f *types.FieldRef, instance *Expression) *Expression {
	return New(Ldfld, f, f.Type, instance)
}

// Return returns from the method, optionally with a value.
func Return(value ...*Expression) *Expression { return New(Ret, nil, nil, value...) }

// LeaveTo exits a protected region towards label.
func LeaveTo(label string) *Expression { return New(Leave, label, nil) }

// Goto branches to label.
func Goto(label string) *Expression { return New(Br, label, nil) }

// If branches to label when cond is true.
func If(cond *Expression, label string) *Expression { return New(Brtrue, label, nil, cond) }

// ThrowValue throws an exception.
func ThrowValue(e *Expression) *Expression { return New(Throw, nil, nil, e) }

// NewObject constructs an instance.
func NewObject(ctor *types.MethodRef, args ...*Expression) *Expression {
	return New(Newobj, ctor, ctor.Owner, args...)
}

// Stmts builds a block.
func Stmts(nodes ...Node) *Block { return &Block{Body: nodes} }

// Scoped builds a block whose labels are private to scope.
func Scoped(scope string, nodes ...Node) *Block { return &Block{Body: nodes, Scope: scope} }

// Mark builds a label node.
func Mark(name string) *Label { return &Label{Name: name} }

// Try builds a try/finally.
func Try(body *Block, finally *Block, catches ...*CatchClause) *TryBlock {
	return &TryBlock{Body: body, Catches: catches, Finally: finally}
}

// Catch builds a catch clause; typ nil catches everything.
func Catch(typ *types.TypeRef, v *Variable, body *Block) *CatchClause {
	return &CatchClause{ExceptionType: typ, Variable: v, Body: body}
}

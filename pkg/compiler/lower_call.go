package compiler

import (
	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// byRefArg is a local passed by reference through a one-element array.
type byRefArg struct {
	array *rl.Register
	local *rl.Register
	elem  *types.TypeRef
}

// lowerCall lowers Call, Callvirt, CallBase and Newobj in three phases:
// argument preparation, the invoke, and writing back by-reference arguments
// and unboxing generic results.
func (c *methodCompiler) lowerCall(e *ast.Expression) *rl.Register {
	m := c.methodOperand(e)
	hasThis := !m.Static && e.Code != ast.Newobj
	want := len(m.Params)
	if hasThis {
		want++
	}
	if len(e.Args) != want {
		c.unsupported(e.Position, "%s of %s with %d arguments, expected %d", e.Code, m, len(e.Args), want)
	}

	var regs []*rl.Register
	var obj *rl.Register
	if e.Code == ast.Newobj {
		if !m.Constructor {
			c.unsupported(e.Position, "newobj of non-constructor %s", m)
		}
		obj = c.frame.AllocateTemp(m.Owner)
		c.emit(rl.NewInstance, m.Owner, obj)
		regs = append(regs, obj)
	}

	var refs []byRefArg
	for i, a := range e.Args {
		if hasThis && i == 0 {
			regs = append(regs, c.lowerValue(a))
			continue
		}
		pi := i
		if hasThis {
			pi--
		}
		p := m.Params[pi]
		if p.ByRef {
			ref := c.passByRef(a, p.Type)
			refs = append(refs, ref)
			regs = append(regs, ref.array)
			continue
		}
		regs = append(regs, c.prepareArgument(c.lowerValue(a), p.Type))
	}

	res := c.emitInvoke(c.invokeOp(e, m), m, regs...)

	for _, ref := range refs {
		zero := c.emitConstOf(types.IntType, int32(0))
		c.emit(rl.Typed(rl.Aget, ref.elem), nil, ref.local, ref.array, zero)
	}
	if obj != nil {
		return obj
	}
	if res != nil && e.Type != nil && m.Return.Kind == types.GenericParam {
		return c.unbox(res, e.Type)
	}
	return res
}

func (c *methodCompiler) invokeOp(e *ast.Expression, m *types.MethodRef) rl.OpCode {
	switch {
	case e.Code == ast.Newobj:
		return rl.InvokeDirect
	case e.Code == ast.CallBase:
		return rl.InvokeSuper
	case m.Static:
		return rl.InvokeStatic
	case e.Code == ast.Call && (m.Constructor || !m.Virtual):
		return rl.InvokeDirect
	case m.IsInterface():
		return rl.InvokeInterface
	}
	return rl.InvokeVirtual
}

// passByRef boxes the addressed local into a one-element array.
func (c *methodCompiler) passByRef(a *ast.Expression, elem *types.TypeRef) byRefArg {
	if a.Code != ast.AddressOf {
		c.unsupported(a.Position, "by-reference argument must take an address, got %s", a.Code)
	}
	var local *rl.Register
	switch op := a.Operand.(type) {
	case *ast.Variable:
		local = c.variable(op)
	case *ast.Parameter:
		r, ok := c.frame.Argument(op)
		if !ok {
			c.internal(a.Position, "parameter %s is not declared by the method", op.Name)
		}
		local = r
	default:
		c.unsupported(a.Position, "address of %T", a.Operand)
	}

	at := types.ArrayOf(elem)
	one := c.emitConstOf(types.IntType, int32(1))
	arr := c.frame.AllocateTemp(at)
	c.emit(rl.NewArray, at, arr, one)
	zero := c.emitConstOf(types.IntType, int32(0))
	c.emit(rl.Typed(rl.Aput, elem), nil, local, arr, zero)
	return byRefArg{array: arr, local: local, elem: elem}
}

// prepareArgument adapts v to a parameter of type p: primitives passed to
// generic or object slots are boxed, ints passed to narrow slots are
// truncated and references of a wider static type are cast.
func (c *methodCompiler) prepareArgument(v *rl.Register, p *types.TypeRef) *rl.Register {
	switch {
	case p.IsReference() && v.Type.IsPrimitive():
		return c.box(v, v.Type)
	case p.IsPrimitive() && v.Type.IsPrimitive():
		return c.truncate(v, p)
	case p.IsReference() && p.Kind != types.GenericParam && !v.Type.AssignableTo(p):
		return c.checkCast(v, p)
	}
	return v
}

// coerce adapts a value stored to a location of type t.
func (c *methodCompiler) coerce(v *rl.Register, t *types.TypeRef) *rl.Register {
	if t.IsReference() && v.Type.IsPrimitive() {
		return c.box(v, v.Type)
	}
	return v
}

// truncate narrows an int register to a byte, short or char parameter.
func (c *methodCompiler) truncate(v *rl.Register, p *types.TypeRef) *rl.Register {
	if v.Type.Kind == p.Kind || rl.NumKindOf(v.Type) != rl.KindInt || v.Type.Kind == types.Bool {
		return v
	}
	var op rl.OpCode
	switch p.Kind {
	case types.Byte:
		op = rl.IntToByte
	case types.Short:
		op = rl.IntToShort
	case types.Char, types.UShort:
		op = rl.IntToChar
	case types.UByte:
		mask := c.emitConstOf(types.IntType, int32(0xFF))
		r := c.frame.AllocateTemp(p)
		c.emit(rl.AndInt, nil, r, v, mask)
		return r
	default:
		return v
	}
	if narrowerOrEqual(v.Type, p) {
		return v
	}
	r := c.frame.AllocateTemp(p)
	c.emit(op, nil, r, v)
	return r
}

// narrowerOrEqual reports whether every value of t fits in p.
func narrowerOrEqual(t, p *types.TypeRef) bool {
	switch p.Kind {
	case types.Short:
		return t.Kind == types.Byte || t.Kind == types.UByte
	case types.Char, types.UShort:
		return t.Kind == types.UByte || t.Kind == types.Char || t.Kind == types.UShort
	}
	return false
}

// checkCast copies v into a temporary and casts it, leaving the source
// register's static type untouched.
func (c *methodCompiler) checkCast(v *rl.Register, t *types.TypeRef) *rl.Register {
	r := v
	if !v.IsTemp() {
		r = c.frame.AllocateTemp(t)
		c.emit(rl.MoveObject, nil, r, v)
	}
	r.Type = t
	c.emit(rl.CheckCast, t, r)
	return r
}

// --- Objects ---

func (c *methodCompiler) box(v *rl.Register, t *types.TypeRef) *rl.Register {
	if !t.IsPrimitive() {
		return v
	}
	return c.emitInvoke(rl.InvokeStatic, c.helpers.valueOf(t), v)
}

func (c *methodCompiler) unbox(v *rl.Register, t *types.TypeRef) *rl.Register {
	if !t.IsPrimitive() {
		if t.Kind == types.GenericParam || v.Type.AssignableTo(t) {
			return v
		}
		return c.checkCast(v, t)
	}
	boxed := c.checkCast(v, types.Boxed(t))
	r := c.emitInvoke(rl.InvokeVirtual, c.helpers.unboxer(t), boxed)
	if t.Kind != r.Type.Kind {
		r.Type = t
	}
	return r
}

func (c *methodCompiler) lowerCastclass(e *ast.Expression, v *rl.Register) *rl.Register {
	t := c.typeOperand(e)
	if t.IsPrimitive() {
		c.unsupported(e.Position, "castclass to primitive %s", t)
	}
	return c.checkCast(v, t)
}

// lowerIsinst yields the value when it is an instance of the type, else null.
func (c *methodCompiler) lowerIsinst(e *ast.Expression, v *rl.Register) *rl.Register {
	t := c.typeOperand(e)
	if t.IsPrimitive() {
		c.unsupported(e.Position, "isinst of primitive %s", t)
	}
	end := c.labels.Fresh("isinst")
	r := c.frame.AllocateTemp(t)
	c.emit(rl.MoveObject, nil, r, v)
	ok := c.frame.AllocateTemp(types.BoolType)
	c.emit(rl.InstanceOf, t, ok, v)
	c.emitBranch(rl.IfNez, end, ok)
	c.emitConst(r, 0)
	c.placeLabel(end)
	c.emit(rl.CheckCast, t, r)
	return r
}

// lowerNewDelegate instantiates the class implementing the delegate and
// binds it to its target instance.
func (c *methodCompiler) lowerNewDelegate(e *ast.Expression, target *rl.Register) *rl.Register {
	d, ok := e.Operand.(*ast.DelegateRef)
	if !ok || d == nil || d.Instance == nil || d.Method == nil {
		c.unsupported(e.Position, "newdelegate operand %T", e.Operand)
	}
	r := c.frame.AllocateTemp(typeOr(d.Delegate, d.Instance))
	c.emit(rl.NewInstance, d.Instance, r)
	var ctor *types.MethodRef
	if d.Method.Static {
		ctor = c.helpers.method(d.Instance, "<init>", types.VoidType, false)
		c.emit(rl.InvokeDirect, ctor, r)
	} else {
		ctor = c.helpers.method(d.Instance, "<init>", types.VoidType, false, d.Method.Owner)
		c.emit(rl.InvokeDirect, ctor, r, target)
	}
	ctor.Constructor = true
	ctor.Virtual = false
	return r
}

// --- Generics ---

func (c *methodCompiler) lowerGenericArg(e *ast.Expression) *rl.Register {
	g := c.frame.GenericArguments()
	if g == nil {
		c.unsupported(e.Position, "method type argument in a method without type parameters")
	}
	i := c.int32Operand(e)
	if int(i) >= c.method.GenericArgCount || i < 0 {
		c.unsupported(e.Position, "method type argument %d out of range", i)
	}
	return c.loadTypeArgument(g, i)
}

func (c *methodCompiler) lowerClassGenericArg(e *ast.Expression) *rl.Register {
	this := c.frame.This()
	if this == nil {
		c.unsupported(e.Position, "class type argument in a static method")
	}
	arrType := types.ArrayOf(types.ClassType)
	f := &types.FieldRef{Owner: c.method.Ref.Owner, Name: ClassGenericsField, Type: arrType}
	arr := c.frame.AllocateTemp(arrType)
	c.emit(rl.IgetObject, f, arr, this)
	return c.loadTypeArgument(arr, c.int32Operand(e))
}

func (c *methodCompiler) loadTypeArgument(arr *rl.Register, i int32) *rl.Register {
	idx := c.emitConstOf(types.IntType, i)
	r := c.frame.AllocateTemp(types.ClassType)
	c.emit(rl.AgetObject, nil, r, arr, idx)
	return r
}

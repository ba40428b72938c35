package compiler

import (
	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// Range is the span of instructions emitted for one node and the register
// holding its value. First and Last are NoHandle when nothing was emitted;
// Result is nil for statements and void expressions.
type Range struct {
	First, Last rl.Handle
	Result      *rl.Register
}

// Empty reports whether no instruction was emitted.
func (r Range) Empty() bool { return r.First == rl.NoHandle }

// rangeSince returns the instructions appended after mark.
func (c *methodCompiler) rangeSince(mark rl.Handle, result *rl.Register) Range {
	first := c.list.First()
	if mark != rl.NoHandle {
		first = c.list.Next(mark)
	}
	if first == rl.NoHandle {
		return Range{First: rl.NoHandle, Last: rl.NoHandle, Result: result}
	}
	return Range{First: first, Last: c.list.Last(), Result: result}
}

// --- Statements ---

func (c *methodCompiler) lowerBlock(b *ast.Block) {
	if b == nil {
		return
	}
	if b.Scope != "" {
		defer c.labels.PushContext(b.Scope)()
	}
	for _, n := range b.Body {
		c.lowerNode(n)
	}
}

func (c *methodCompiler) lowerNode(n ast.Node) {
	switch n := n.(type) {
	case *ast.Block:
		c.lowerBlock(n)
	case *ast.Label:
		c.pendingLabels = append(c.pendingLabels, c.labels.ID(n.Name))
		// User labels may be targets of backward branches not seen yet.
		c.reachable = true
	case *ast.TryBlock:
		c.lowerTryBlock(n)
	case *ast.Expression:
		c.lowerExpr(n)
	case nil:
		c.internal(c.pos, "nil statement")
	default:
		c.unsupported(n.Pos(), "unexpected statement %T", n)
	}
}

// --- Expressions ---

// lowerExpr lowers e and returns the instructions it produced.
func (c *methodCompiler) lowerExpr(e *ast.Expression) Range {
	if e == nil {
		c.internal(c.pos, "nil expression")
	}
	mark := c.list.Last()
	saved := c.pos
	if e.Position.IsKnown() {
		c.pos = e.Position
	}
	result := c.lowerExpression(e)
	c.pos = saved
	return c.rangeSince(mark, result)
}

// lowerValue lowers e and returns its value register.
func (c *methodCompiler) lowerValue(e *ast.Expression) *rl.Register {
	r := c.lowerExpr(e).Result
	if r == nil {
		c.unsupported(e.Position, "%s produces no value", e.Code)
	}
	return r
}

// lowerExpression handles codes that control the evaluation of their own
// arguments, then lowers the remaining codes argument-first.
func (c *methodCompiler) lowerExpression(e *ast.Expression) *rl.Register {
	switch e.Code {
	case ast.LogAnd, ast.LogOr:
		return c.lowerBoolValue(e)
	case ast.Conditional:
		return c.lowerConditional(e)
	case ast.Coalesce:
		return c.lowerCoalesce(e)
	case ast.Brtrue, ast.Brfalse:
		c.expectArgs(e, 1)
		c.branchOn(e.Args[0], e.Code == ast.Brtrue, c.labelOperand(e))
		return nil
	case ast.Beq, ast.Bne, ast.Blt, ast.Bge, ast.Bgt, ast.Ble:
		c.expectArgs(e, 2)
		c.compareBranch(branchCompare[e.Code], e.Args[0], e.Args[1], true, c.labelOperand(e))
		return nil
	case ast.Compound:
		return c.lowerCompound(e)
	case ast.Call, ast.Callvirt, ast.CallBase, ast.Newobj:
		return c.lowerCall(e)
	case ast.AddressOf:
		c.unsupported(e.Position, "address of a local outside a by-reference argument")
	}
	if e.Code.IsComparison() {
		return c.lowerBoolValue(e)
	}

	args := make([]Range, len(e.Args))
	for i, a := range e.Args {
		args[i] = c.lowerExpr(a)
		if args[i].Result == nil {
			c.unsupported(a.Position, "argument %d of %s produces no value", i, e.Code)
		}
	}
	return c.lower(e, args)
}

// lower emits the instructions of e given its already lowered arguments.
func (c *methodCompiler) lower(e *ast.Expression, args []Range) *rl.Register {
	switch e.Code {
	case ast.Nop:
		return nil

	// Constants
	case ast.Ldnull:
		return c.emitConstOf(typeOr(e.Type, types.ObjectType), nil)
	case ast.LdcI4:
		return c.emitConstOf(typeOr(e.Type, types.IntType), c.int32Operand(e))
	case ast.LdcI8:
		return c.emitConstOf(typeOr(e.Type, types.LongType), c.int64Operand(e))
	case ast.LdcR4:
		return c.emitConstOf(types.FloatType, float32(c.float64Operand(e)))
	case ast.LdcR8:
		return c.emitConstOf(types.DoubleType, c.float64Operand(e))
	case ast.Ldstr:
		s, ok := e.Operand.(string)
		if !ok {
			c.unsupported(e.Position, "ldstr operand %T", e.Operand)
		}
		return c.emitConstOf(types.StringType, s)
	case ast.Ldtoken:
		r := c.frame.AllocateTemp(types.ClassType)
		c.emit(rl.ConstClass, c.typeOperand(e), r)
		return r
	case ast.Default:
		return c.lowerDefault(c.typeOperand(e))

	// Variables and arguments
	case ast.Ldloc:
		return c.variable(c.variableOperand(e))
	case ast.Stloc:
		c.expectArgs(e, 1)
		dst := c.variable(c.variableOperand(e))
		c.emitMove(dst, args[0].Result)
		return nil
	case ast.Ldarg:
		return c.argumentRegister(e)
	case ast.Starg:
		c.expectArgs(e, 1)
		c.emitMove(c.argumentRegister(e), args[0].Result)
		return nil
	case ast.Ldthis:
		return c.thisRegister(e)

	// Fields
	case ast.Ldfld:
		c.expectArgs(e, 1)
		f := c.fieldOperand(e)
		r := c.frame.AllocateTemp(f.Type)
		c.emit(rl.Typed(rl.Iget, f.Type), f, r, args[0].Result)
		return r
	case ast.Stfld:
		c.expectArgs(e, 2)
		f := c.fieldOperand(e)
		c.emit(rl.Typed(rl.Iput, f.Type), f, c.coerce(args[1].Result, f.Type), args[0].Result)
		return nil
	case ast.Ldsfld:
		f := c.fieldOperand(e)
		r := c.frame.AllocateTemp(f.Type)
		c.emit(rl.Typed(rl.Sget, f.Type), f, r)
		return r
	case ast.Stsfld:
		c.expectArgs(e, 1)
		f := c.fieldOperand(e)
		c.emit(rl.Typed(rl.Sput, f.Type), f, c.coerce(args[0].Result, f.Type))
		return nil

	// Arithmetic
	case ast.Add, ast.Sub, ast.Mul, ast.Div, ast.DivUn, ast.Rem, ast.RemUn,
		ast.And, ast.Or, ast.Xor, ast.Shl, ast.Shr, ast.ShrUn:
		c.expectArgs(e, 2)
		return c.arith(e.Code, args[0].Result, args[1].Result, operandType(e, args[0].Result))
	case ast.Neg, ast.Not:
		c.expectArgs(e, 1)
		return c.lowerUnary(e, args[0].Result)
	case ast.AddOvf, ast.AddOvfUn, ast.SubOvf, ast.SubOvfUn, ast.MulOvf, ast.MulOvfUn:
		c.expectArgs(e, 2)
		return c.lowerChecked(e, args[0].Result, args[1].Result)
	case ast.ConvOvf:
		c.expectArgs(e, 1)
		return c.lowerConvOvf(e, args[0].Result)
	case ast.LogNot:
		c.expectArgs(e, 1)
		one := c.emitConstOf(types.IntType, int32(1))
		r := c.frame.AllocateTemp(types.BoolType)
		c.emit(rl.XorInt, nil, r, args[0].Result, one)
		return r

	// Conversions
	case ast.ConvI1, ast.ConvU1, ast.ConvI2, ast.ConvU2, ast.ConvI4, ast.ConvI8, ast.ConvR4, ast.ConvR8:
		c.expectArgs(e, 1)
		return c.lowerConv(e.Code, args[0].Result)

	// Arrays
	case ast.Newarr:
		c.expectArgs(e, 1)
		at := types.ArrayOf(c.typeOperand(e))
		r := c.frame.AllocateTemp(at)
		c.emit(rl.NewArray, at, r, args[0].Result)
		return r
	case ast.Ldlen:
		c.expectArgs(e, 1)
		r := c.frame.AllocateTemp(types.IntType)
		c.emit(rl.ArrayLength, nil, r, args[0].Result)
		return r
	case ast.Ldelem:
		c.expectArgs(e, 2)
		et := elementType(args[0].Result, e.Type)
		r := c.frame.AllocateTemp(et)
		c.emit(rl.Typed(rl.Aget, et), nil, r, args[0].Result, args[1].Result)
		return r
	case ast.Stelem:
		c.expectArgs(e, 3)
		et := elementType(args[0].Result, args[2].Result.Type)
		c.emit(rl.Typed(rl.Aput, et), nil, c.coerce(args[2].Result, et), args[0].Result, args[1].Result)
		return nil
	case ast.InitArray:
		return c.lowerInitArray(e, args)

	// Objects
	case ast.Castclass:
		c.expectArgs(e, 1)
		return c.lowerCastclass(e, args[0].Result)
	case ast.Isinst:
		c.expectArgs(e, 1)
		return c.lowerIsinst(e, args[0].Result)
	case ast.Box:
		c.expectArgs(e, 1)
		return c.box(args[0].Result, c.typeOperand(e))
	case ast.Unbox:
		c.expectArgs(e, 1)
		return c.unbox(args[0].Result, c.typeOperand(e))
	case ast.NewDelegate:
		c.expectArgs(e, 1)
		return c.lowerNewDelegate(e, args[0].Result)
	case ast.LdGenericArg:
		return c.lowerGenericArg(e)
	case ast.LdClassGenericArg:
		return c.lowerClassGenericArg(e)

	// Control flow
	case ast.Br:
		c.emitGoto(c.labelOperand(e))
		return nil
	case ast.Switch:
		c.expectArgs(e, 1)
		c.lowerSwitch(e, args[0].Result)
		return nil
	case ast.Ret:
		c.lowerReturn(e, args)
		return nil
	case ast.Leave:
		id := c.labelOperand(e)
		if c.router.active() {
			c.routeExit(exitLeave, id)
		} else {
			c.emitGoto(id)
		}
		return nil
	case ast.Throw:
		c.expectArgs(e, 1)
		c.emit(rl.Throw, nil, args[0].Result)
		return nil
	case ast.Rethrow:
		if len(c.catchRegs) == 0 {
			c.internal(e.Position, "rethrow outside a catch body")
		}
		c.emit(rl.Throw, nil, c.catchRegs[len(c.catchRegs)-1])
		return nil
	case ast.Pop:
		return nil

	case ast.MonitorEnter, ast.MonitorExit:
		c.expectArgs(e, 1)
		return c.lowerMonitor(e, args)
	}
	c.unsupported(e.Position, "no lowering for %s", e.Code)
	return nil
}

// --- Control flow ---

func (c *methodCompiler) lowerReturn(e *ast.Expression, args []Range) {
	ret := c.method.Ref.Return
	var v *rl.Register
	switch {
	case len(args) == 0 && !ret.IsVoid():
		c.unsupported(e.Position, "return without a value from a method returning %s", ret)
	case len(args) > 0 && ret.IsVoid():
		c.unsupported(e.Position, "return with a value from a void method")
	case len(args) > 0:
		v = c.coerce(args[0].Result, ret)
	}

	if !c.router.active() {
		c.emitReturn(v)
		return
	}
	if v != nil {
		if c.returnReg == nil {
			c.returnReg = c.frame.AllocatePinned(ret, "$ret")
		}
		c.emitMove(c.returnReg, v)
	}
	c.routeExit(exitReturn, "")
}

func (c *methodCompiler) lowerSwitch(e *ast.Expression, v *rl.Register) {
	names, ok := e.Operand.([]string)
	if !ok {
		c.unsupported(e.Position, "switch operand %T", e.Operand)
	}
	targets := make([]rl.Handle, len(names))
	for i := range targets {
		targets[i] = rl.NoHandle
	}
	h := c.emit(rl.PackedSwitch, targets, v)
	for i, name := range names {
		c.labels.AddResolveAction(c.labels.ID(name), h, i)
	}
}

// --- Operand access ---

func (c *methodCompiler) expectArgs(e *ast.Expression, n int) {
	if len(e.Args) != n {
		c.unsupported(e.Position, "%s expects %d arguments, got %d", e.Code, n, len(e.Args))
	}
}

func (c *methodCompiler) labelOperand(e *ast.Expression) LabelID {
	name, ok := e.Operand.(string)
	if !ok || name == "" {
		c.unsupported(e.Position, "%s without a label", e.Code)
	}
	return c.labels.ID(name)
}

func (c *methodCompiler) typeOperand(e *ast.Expression) *types.TypeRef {
	t, ok := e.Operand.(*types.TypeRef)
	if !ok || t == nil {
		c.unsupported(e.Position, "%s operand is %T, not a type", e.Code, e.Operand)
	}
	return t
}

func (c *methodCompiler) fieldOperand(e *ast.Expression) *types.FieldRef {
	f, ok := e.Operand.(*types.FieldRef)
	if !ok || f == nil {
		c.unsupported(e.Position, "%s operand is %T, not a field", e.Code, e.Operand)
	}
	return f
}

func (c *methodCompiler) methodOperand(e *ast.Expression) *types.MethodRef {
	m, ok := e.Operand.(*types.MethodRef)
	if !ok || m == nil {
		c.unsupported(e.Position, "%s operand is %T, not a method", e.Code, e.Operand)
	}
	return m
}

func (c *methodCompiler) variableOperand(e *ast.Expression) *ast.Variable {
	v, ok := e.Operand.(*ast.Variable)
	if !ok || v == nil {
		c.unsupported(e.Position, "%s operand is %T, not a variable", e.Code, e.Operand)
	}
	return v
}

// variable returns the register of v, allocating it on first use.
func (c *methodCompiler) variable(v *ast.Variable) *rl.Register {
	if v.Type == nil {
		c.unsupported(c.pos, "variable %s has no type", v.Name)
	}
	return c.frame.AllocateVariable(v)
}

func (c *methodCompiler) argumentRegister(e *ast.Expression) *rl.Register {
	p, ok := e.Operand.(*ast.Parameter)
	if !ok || p == nil {
		c.unsupported(e.Position, "%s operand is %T, not a parameter", e.Code, e.Operand)
	}
	r, ok := c.frame.Argument(p)
	if !ok {
		c.internal(e.Position, "parameter %s is not declared by the method", p.Name)
	}
	return r
}

func (c *methodCompiler) thisRegister(e *ast.Expression) *rl.Register {
	r := c.frame.This()
	if r == nil {
		c.unsupported(e.Position, "this in a static method")
	}
	return r
}

func (c *methodCompiler) int32Operand(e *ast.Expression) int32 {
	switch v := e.Operand.(type) {
	case int32:
		return v
	case int:
		return int32(v)
	case int64:
		return int32(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	c.unsupported(e.Position, "%s operand %T", e.Code, e.Operand)
	return 0
}

func (c *methodCompiler) int64Operand(e *ast.Expression) int64 {
	switch v := e.Operand.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	}
	c.unsupported(e.Position, "%s operand %T", e.Code, e.Operand)
	return 0
}

func (c *methodCompiler) float64Operand(e *ast.Expression) float64 {
	switch v := e.Operand.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	c.unsupported(e.Position, "%s operand %T", e.Code, e.Operand)
	return 0
}

func (c *methodCompiler) lowerDefault(t *types.TypeRef) *rl.Register {
	if t.IsWide() {
		return c.emitConstOf(t, int64(0))
	}
	return c.emitConstOf(t, nil)
}

func (c *methodCompiler) lowerInitArray(e *ast.Expression, args []Range) *rl.Register {
	et := c.typeOperand(e)
	at := types.ArrayOf(et)
	n := c.emitConstOf(types.IntType, int32(len(args)))
	arr := c.frame.AllocateTemp(at)
	c.emit(rl.NewArray, at, arr, n)
	for i, a := range args {
		idx := c.emitConstOf(types.IntType, int32(i))
		c.emit(rl.Typed(rl.Aput, et), nil, c.coerce(a.Result, et), arr, idx)
	}
	return arr
}

func typeOr(t, def *types.TypeRef) *types.TypeRef {
	if t == nil {
		return def
	}
	return t
}

// operandType is the arithmetic type of e: its declared type, or the type of
// its left operand when the tree leaves it unset.
func operandType(e *ast.Expression, left *rl.Register) *types.TypeRef {
	if e.Type != nil && e.Type.IsPrimitive() {
		return e.Type
	}
	return left.Type
}

// elementType returns the element type of the array in arr, falling back to
// def for untyped arrays.
func elementType(arr *rl.Register, def *types.TypeRef) *types.TypeRef {
	if arr.Type != nil && arr.Type.Kind == types.Array && arr.Type.Elem != nil {
		return arr.Type.Elem
	}
	return typeOr(def, types.ObjectType)
}

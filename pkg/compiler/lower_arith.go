package compiler

import (
	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

var binOps = map[ast.Code]rl.BinOp{
	ast.Add:   rl.OpAdd,
	ast.Sub:   rl.OpSub,
	ast.Mul:   rl.OpMul,
	ast.Div:   rl.OpDiv,
	ast.DivUn: rl.OpDiv,
	ast.Rem:   rl.OpRem,
	ast.RemUn: rl.OpRem,
	ast.And:   rl.OpAnd,
	ast.Or:    rl.OpOr,
	ast.Xor:   rl.OpXor,
	ast.Shl:   rl.OpShl,
	ast.Shr:   rl.OpShr,
	ast.ShrUn: rl.OpUshr,
}

// arith emits l code r on operands of type t. When l is a temporary the
// result overwrites it with the in-place form.
func (c *methodCompiler) arith(code ast.Code, l, r *rl.Register, t *types.TypeRef) *rl.Register {
	c.mustBeNumeric(code, t, l, r)
	k := rl.NumKindOf(t)
	if (code == ast.DivUn || code == ast.RemUn) && (k == rl.KindInt || k == rl.KindLong) {
		return c.unsignedDivRem(code, l, r, t)
	}
	op, ok := binOps[code]
	if !ok {
		c.internal(c.pos, "%s is not a binary code", code)
	}
	opc, ok := rl.Binary(op, k, false)
	if !ok {
		c.unsupported(c.pos, "%s is not defined on %s", code, t)
	}
	if l.IsTemp() {
		c.emit(opc.InPlace(), nil, l, r)
		return l
	}
	dst := c.frame.AllocateTemp(stackType(t))
	c.emit(opc, nil, dst, l, r)
	return dst
}

// mustBeNumeric rejects arithmetic on operands that are not primitives.
func (c *methodCompiler) mustBeNumeric(code ast.Code, t *types.TypeRef, regs ...*rl.Register) {
	if !t.IsPrimitive() {
		c.unsupported(c.pos, "%s on %s", code, t)
	}
	for _, r := range regs {
		if !r.Type.IsPrimitive() {
			c.unsupported(c.pos, "%s on %s", code, r.Type)
		}
	}
}

// unsignedDivRem divides 32-bit operands as zero-extended longs and 64-bit
// operands through the runtime.
func (c *methodCompiler) unsignedDivRem(code ast.Code, l, r *rl.Register, t *types.TypeRef) *rl.Register {
	if rl.NumKindOf(t) == rl.KindLong {
		return c.emitInvoke(rl.InvokeStatic, c.helpers.unsignedLong(code), l, r)
	}
	lw := c.zeroExtend(l)
	rw := c.zeroExtend(r)
	op := rl.DivLong2Addr
	if code == ast.RemUn {
		op = rl.RemLong2Addr
	}
	c.emit(op, nil, lw, rw)
	res := c.frame.AllocateTemp(types.IntType)
	c.emit(rl.LongToInt, nil, res, lw)
	return res
}

// zeroExtend widens a 32-bit register to a long without sign extension.
func (c *methodCompiler) zeroExtend(r *rl.Register) *rl.Register {
	w := c.frame.AllocateTemp(types.LongType)
	c.emit(rl.IntToLong, nil, w, r)
	mask := c.emitConstOf(types.LongType, int64(0xFFFFFFFF))
	c.emit(rl.AndLong2Addr, nil, w, mask)
	return w
}

func (c *methodCompiler) lowerUnary(e *ast.Expression, v *rl.Register) *rl.Register {
	t := operandType(e, v)
	c.mustBeNumeric(e.Code, t, v)
	var op rl.OpCode
	switch k := rl.NumKindOf(t); {
	case e.Code == ast.Neg:
		op = [...]rl.OpCode{rl.NegInt, rl.NegLong, rl.NegFloat, rl.NegDouble}[k]
	case k == rl.KindInt:
		op = rl.NotInt
	case k == rl.KindLong:
		op = rl.NotLong
	default:
		c.unsupported(e.Position, "%s is not defined on %s", e.Code, t)
	}
	r := c.frame.AllocateTemp(stackType(t))
	c.emit(op, nil, r, v)
	return r
}

// lowerChecked calls the runtime helper for overflow-checked integer
// arithmetic. Floating point never overflows and uses the plain operation.
func (c *methodCompiler) lowerChecked(e *ast.Expression, l, r *rl.Register) *rl.Register {
	t := operandType(e, l)
	c.mustBeNumeric(e.Code, t, l, r)
	if t.IsFloating() {
		plain := map[ast.Code]ast.Code{
			ast.AddOvf: ast.Add, ast.AddOvfUn: ast.Add,
			ast.SubOvf: ast.Sub, ast.SubOvfUn: ast.Sub,
			ast.MulOvf: ast.Mul, ast.MulOvfUn: ast.Mul,
		}[e.Code]
		return c.arith(plain, l, r, t)
	}
	return c.emitInvoke(rl.InvokeStatic, c.helpers.checkedArith(e.Code, t), l, r)
}

func (c *methodCompiler) lowerConvOvf(e *ast.Expression, v *rl.Register) *rl.Register {
	to := c.typeOperand(e)
	if !to.IsPrimitive() {
		c.unsupported(e.Position, "checked conversion to %s", to)
	}
	return c.emitInvoke(rl.InvokeStatic, c.helpers.checkedConv(v.Type, to), v)
}

// --- Conversions ---

var kindConv = [4][4]rl.OpCode{
	rl.KindInt:    {rl.Nop, rl.IntToLong, rl.IntToFloat, rl.IntToDouble},
	rl.KindLong:   {rl.LongToInt, rl.Nop, rl.LongToFloat, rl.LongToDouble},
	rl.KindFloat:  {rl.FloatToInt, rl.FloatToLong, rl.Nop, rl.FloatToDouble},
	rl.KindDouble: {rl.DoubleToInt, rl.DoubleToLong, rl.DoubleToFloat, rl.Nop},
}

var kindTypes = [4]*types.TypeRef{types.IntType, types.LongType, types.FloatType, types.DoubleType}

// convertKind converts v to arithmetic kind k, returning v when no
// conversion is needed.
func (c *methodCompiler) convertKind(v *rl.Register, k rl.NumKind) *rl.Register {
	from := rl.NumKindOf(v.Type)
	if !v.Type.IsPrimitive() {
		c.unsupported(c.pos, "numeric conversion of %s", v.Type)
	}
	if from == k {
		return v
	}
	if from == rl.KindInt && k == rl.KindLong && v.Type.Kind == types.UInt {
		return c.zeroExtend(v)
	}
	r := c.frame.AllocateTemp(kindTypes[k])
	c.emit(kindConv[from][k], nil, r, v)
	return r
}

func (c *methodCompiler) lowerConv(code ast.Code, v *rl.Register) *rl.Register {
	switch code {
	case ast.ConvI8:
		return c.convertKind(v, rl.KindLong)
	case ast.ConvR4:
		return c.convertKind(v, rl.KindFloat)
	case ast.ConvR8:
		return c.convertKind(v, rl.KindDouble)
	case ast.ConvI4:
		return c.convertKind(v, rl.KindInt)
	}

	i := c.convertKind(v, rl.KindInt)
	switch code {
	case ast.ConvU1:
		mask := c.emitConstOf(types.IntType, int32(0xFF))
		r := c.frame.AllocateTemp(types.ByteType)
		c.emit(rl.AndInt, nil, r, i, mask)
		return r
	case ast.ConvI1:
		r := c.frame.AllocateTemp(types.SByteType)
		c.emit(rl.IntToByte, nil, r, i)
		return r
	case ast.ConvI2:
		r := c.frame.AllocateTemp(types.ShortType)
		c.emit(rl.IntToShort, nil, r, i)
		return r
	case ast.ConvU2:
		r := c.frame.AllocateTemp(types.CharType)
		c.emit(rl.IntToChar, nil, r, i)
		return r
	}
	c.internal(c.pos, "%s is not a conversion", code)
	return nil
}

// --- Comparisons and conditions ---

var branchCompare = map[ast.Code]ast.Code{
	ast.Beq: ast.Ceq,
	ast.Bne: ast.Cne,
	ast.Blt: ast.Clt,
	ast.Bge: ast.Cge,
	ast.Bgt: ast.Cgt,
	ast.Ble: ast.Cle,
}

var compareConds = map[ast.Code]rl.Cond{
	ast.Ceq:   rl.CondEq,
	ast.Cne:   rl.CondNe,
	ast.Clt:   rl.CondLt,
	ast.CltUn: rl.CondLt,
	ast.Cgt:   rl.CondGt,
	ast.CgtUn: rl.CondGt,
	ast.Cle:   rl.CondLe,
	ast.Cge:   rl.CondGe,
}

// lowerBoolValue materializes a condition as 0 or 1.
func (c *methodCompiler) lowerBoolValue(e *ast.Expression) *rl.Register {
	r := c.frame.AllocateTemp(types.BoolType)
	done := c.labels.Fresh("bool")
	c.emitConst(r, 0)
	c.branchOn(e, false, done)
	c.emitConst(r, 1)
	c.placeLabel(done)
	return r
}

// branchOn jumps to target when e evaluates to sense and falls through
// otherwise.
func (c *methodCompiler) branchOn(e *ast.Expression, sense bool, target LabelID) {
	switch {
	case e.Code.IsComparison():
		c.expectArgs(e, 2)
		c.compareBranch(e.Code, e.Args[0], e.Args[1], sense, target)
	case e.Code == ast.LogNot:
		c.expectArgs(e, 1)
		c.branchOn(e.Args[0], !sense, target)
	case e.Code == ast.LogAnd || e.Code == ast.LogOr:
		c.expectArgs(e, 2)
		// a && b jumps on true only when both hold; on false when either fails.
		shortCircuit := e.Code == ast.LogOr
		if sense == shortCircuit {
			c.branchOn(e.Args[0], sense, target)
			c.branchOn(e.Args[1], sense, target)
			return
		}
		skip := c.labels.Fresh("skip")
		c.branchOn(e.Args[0], !sense, skip)
		c.branchOn(e.Args[1], sense, target)
		c.placeLabel(skip)
	default:
		v := c.lowerValue(e)
		op := rl.IfNez
		if !sense {
			op = rl.IfEqz
		}
		c.emitBranch(op, target, v)
	}
}

// compareBranch jumps to target when (l code r) == sense.
func (c *methodCompiler) compareBranch(code ast.Code, le, re *ast.Expression, sense bool, target LabelID) {
	cond := compareConds[code]
	unsigned := code == ast.CltUn || code == ast.CgtUn
	if !unsigned && isZeroLiteral(le) && !isZeroLiteral(re) {
		// 0 < x tests as x > 0 so the zero form applies.
		le, re, cond = re, le, cond.Swap()
	}

	l := c.lowerValue(le)
	if l.Type.IsReference() {
		// cgt.un against null is the inequality test on references.
		if code == ast.CgtUn {
			cond = rl.CondNe
		}
		if cond != rl.CondEq && cond != rl.CondNe {
			c.unsupported(le.Position, "%s on references", code)
		}
		c.compareZeroOrRegister(cond, sense, l, re, target)
		return
	}

	switch k := rl.NumKindOf(l.Type); k {
	case rl.KindInt:
		if unsigned {
			l = c.flipSign(l, k)
			r := c.flipSign(c.lowerValue(re), k)
			c.emitIf(cond, sense, target, l, r)
			return
		}
		c.compareZeroOrRegister(cond, sense, l, re, target)
	case rl.KindLong:
		r := c.lowerValue(re)
		if unsigned {
			l, r = c.flipSign(l, k), c.flipSign(r, k)
		}
		t := c.frame.AllocateTemp(types.IntType)
		c.emit(rl.CmpLong, nil, t, l, r)
		c.emitIf(cond, sense, target, t)
	default:
		r := c.lowerValue(re)
		t := c.frame.AllocateTemp(types.IntType)
		c.emit(floatCompare(code, k), nil, t, l, r)
		c.emitIf(cond, sense, target, t)
	}
}

// compareZeroOrRegister uses the compare-with-zero form when the right
// operand is a literal zero or null.
func (c *methodCompiler) compareZeroOrRegister(cond rl.Cond, sense bool, l *rl.Register, re *ast.Expression, target LabelID) {
	if isZeroLiteral(re) {
		c.emitIf(cond, sense, target, l)
		return
	}
	c.emitIf(cond, sense, target, l, c.lowerValue(re))
}

// emitIf emits the if-test for cond, reversed when sense is false. One
// register selects the compare-with-zero form.
func (c *methodCompiler) emitIf(cond rl.Cond, sense bool, target LabelID, regs ...*rl.Register) {
	if !sense {
		cond = cond.Reverse()
	}
	c.emitBranch(rl.If(cond, len(regs) == 1), target, regs...)
}

// flipSign toggles the sign bit so that signed comparison orders unsigned
// values correctly.
func (c *methodCompiler) flipSign(v *rl.Register, k rl.NumKind) *rl.Register {
	if k == rl.KindLong {
		bit := c.emitConstOf(types.LongType, int64(-1<<63))
		r := c.frame.AllocateTemp(types.LongType)
		c.emit(rl.XorLong, nil, r, v, bit)
		return r
	}
	bit := c.emitConstOf(types.IntType, int32(-1<<31))
	r := c.frame.AllocateTemp(types.IntType)
	c.emit(rl.XorInt, nil, r, v, bit)
	return r
}

// floatCompare picks the cmp variant whose NaN result makes the test false
// for ordered comparisons and true for unordered ones.
func floatCompare(code ast.Code, k rl.NumKind) rl.OpCode {
	// cmpg yields 1 on NaN, cmpl yields -1.
	greater := code == ast.Clt || code == ast.Cle || code == ast.CgtUn
	switch {
	case k == rl.KindFloat && greater:
		return rl.CmpgFloat
	case k == rl.KindFloat:
		return rl.CmplFloat
	case greater:
		return rl.CmpgDouble
	}
	return rl.CmplDouble
}

func isZeroLiteral(e *ast.Expression) bool {
	switch e.Code {
	case ast.Ldnull:
		return true
	case ast.LdcI4:
		switch v := e.Operand.(type) {
		case int32:
			return v == 0
		case int:
			return v == 0
		}
	}
	return false
}

// --- Value-producing control flow ---

func (c *methodCompiler) lowerConditional(e *ast.Expression) *rl.Register {
	c.expectArgs(e, 3)
	elseL := c.labels.Fresh("else")
	end := c.labels.Fresh("endif")

	c.branchOn(e.Args[0], false, elseL)
	then := c.lowerValue(e.Args[1])
	r := c.frame.AllocateTemp(typeOr(e.Type, then.Type))
	c.emitMove(r, then)
	c.emitGoto(end)
	c.placeLabel(elseL)
	c.emitMove(r, c.lowerValue(e.Args[2]))
	c.placeLabel(end)
	return r
}

func (c *methodCompiler) lowerCoalesce(e *ast.Expression) *rl.Register {
	c.expectArgs(e, 2)
	end := c.labels.Fresh("coalesce")

	v := c.lowerValue(e.Args[0])
	r := c.frame.AllocateTemp(typeOr(e.Type, v.Type))
	c.emitMove(r, v)
	c.emitBranch(rl.IfNez, end, r)
	c.emitMove(r, c.lowerValue(e.Args[1]))
	c.placeLabel(end)
	return r
}

// --- Compound assignment ---

// lowerCompound evaluates the target location once, applies the operator and
// stores the result back. The value of the expression is the stored value.
func (c *methodCompiler) lowerCompound(e *ast.Expression) *rl.Register {
	c.expectArgs(e, 2)
	code, ok := e.Operand.(ast.Code)
	if !ok || !code.IsBinary() {
		c.unsupported(e.Position, "compound operator %v", e.Operand)
	}
	target := e.Args[0]

	switch target.Code {
	case ast.Ldloc, ast.Ldarg:
		var loc *rl.Register
		if target.Code == ast.Ldloc {
			loc = c.variable(c.variableOperand(target))
		} else {
			loc = c.argumentRegister(target)
		}
		v := c.lowerValue(e.Args[1])
		c.mustBeNumeric(code, loc.Type, v)
		if opc, ok := rl.Binary(binOps[code], rl.NumKindOf(loc.Type), true); ok && code != ast.DivUn && code != ast.RemUn {
			c.emit(opc, nil, loc, v)
			return loc
		}
		c.emitMove(loc, c.arith(code, loc, v, loc.Type))
		return loc

	case ast.Ldfld:
		c.expectArgs(target, 1)
		f := c.fieldOperand(target)
		obj := c.lowerValue(target.Args[0])
		cur := c.frame.AllocateTemp(f.Type)
		c.emit(rl.Typed(rl.Iget, f.Type), f, cur, obj)
		res := c.arith(code, cur, c.lowerValue(e.Args[1]), f.Type)
		c.emit(rl.Typed(rl.Iput, f.Type), f, res, obj)
		return res

	case ast.Ldsfld:
		f := c.fieldOperand(target)
		cur := c.frame.AllocateTemp(f.Type)
		c.emit(rl.Typed(rl.Sget, f.Type), f, cur)
		res := c.arith(code, cur, c.lowerValue(e.Args[1]), f.Type)
		c.emit(rl.Typed(rl.Sput, f.Type), f, res)
		return res

	case ast.Ldelem:
		c.expectArgs(target, 2)
		arr := c.lowerValue(target.Args[0])
		idx := c.lowerValue(target.Args[1])
		et := elementType(arr, target.Type)
		cur := c.frame.AllocateTemp(et)
		c.emit(rl.Typed(rl.Aget, et), nil, cur, arr, idx)
		res := c.arith(code, cur, c.lowerValue(e.Args[1]), et)
		c.emit(rl.Typed(rl.Aput, et), nil, res, arr, idx)
		return res
	}
	c.unsupported(target.Position, "compound assignment to %s", target.Code)
	return nil
}

package compiler

import (
	"math"

	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// --- Instruction Emission Helpers ---

// emit appends one instruction, resolves pending labels to it and tracks
// reachability of the instruction that follows.
func (c *methodCompiler) emit(op rl.OpCode, operand interface{}, regs ...*rl.Register) rl.Handle {
	h := c.list.Append(&rl.Instruction{Code: op, Operand: operand, Registers: regs, Position: c.pos})
	for _, id := range c.pendingLabels {
		if err := c.labels.SetTarget(id, h); err != nil {
			c.internal(c.pos, "%v", err)
		}
	}
	c.pendingLabels = c.pendingLabels[:0]
	c.reachable = !op.IsUnconditionalExit()
	if c.log.Trace().Enabled() {
		c.log.Trace().Int("handle", int(h)).Str("op", op.String()).Msg("emit")
	}
	return h
}

// placeLabel resolves id to the next emitted instruction.
func (c *methodCompiler) placeLabel(id LabelID) {
	c.pendingLabels = append(c.pendingLabels, id)
	if c.labels.Referenced(id) {
		c.reachable = true
	}
}

// emitBranch emits a branch whose target is resolved through the label manager.
func (c *methodCompiler) emitBranch(op rl.OpCode, id LabelID, regs ...*rl.Register) rl.Handle {
	h := c.emit(op, rl.NoHandle, regs...)
	c.labels.AddResolveAction(id, h, -1)
	return h
}

func (c *methodCompiler) emitGoto(id LabelID) rl.Handle {
	return c.emitBranch(rl.Goto, id)
}

// emitMove copies src into dst with the move variant of dst's type.
func (c *methodCompiler) emitMove(dst, src *rl.Register) rl.Handle {
	return c.emit(rl.MoveFor(dst.Type), nil, dst, src)
}

// emitConst loads an int constant into dst.
func (c *methodCompiler) emitConst(dst *rl.Register, v int32) rl.Handle {
	return c.emit(rl.Const, v, dst)
}

// emitConstOf loads the zero-extended or bit-cast constant v into a new
// temporary of type t.
func (c *methodCompiler) emitConstOf(t *types.TypeRef, v interface{}) *rl.Register {
	r := c.frame.AllocateTemp(t)
	switch x := v.(type) {
	case int32:
		if t.IsWide() {
			c.emit(rl.ConstWide, int64(x), r)
		} else {
			c.emit(rl.Const, x, r)
		}
	case int64:
		c.emit(rl.ConstWide, x, r)
	case float32:
		c.emit(rl.Const, int32(math.Float32bits(x)), r)
	case float64:
		c.emit(rl.ConstWide, int64(math.Float64bits(x)), r)
	case string:
		c.emit(rl.ConstString, x, r)
	case nil:
		c.emit(rl.Const, int32(0), r)
	default:
		c.internal(c.pos, "unexpected constant %T", v)
	}
	return r
}

// emitInvoke emits the invoke and the move-result for non-void methods.
func (c *methodCompiler) emitInvoke(op rl.OpCode, m *types.MethodRef, args ...*rl.Register) *rl.Register {
	c.emit(op, m, args...)
	if m.Return.IsVoid() {
		return nil
	}
	r := c.frame.AllocateTemp(m.Return)
	c.emit(rl.MoveResultFor(m.Return), nil, r)
	return r
}

// emitReturn returns src from the method, or nothing when src is nil.
func (c *methodCompiler) emitReturn(src *rl.Register) rl.Handle {
	if src == nil {
		return c.emit(rl.ReturnVoid, nil)
	}
	return c.emit(rl.ReturnFor(c.method.Ref.Return), nil, src)
}

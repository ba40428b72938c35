package compiler

import (
	"sort"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// --- Finally routing ---
//
// A try/finally is laid out once:
//
//	const      ex, 0            ; no exception pending
//	<try body>                  ; each exit: set selector, goto finally
//	<catch bodies>              ; same
//	catchAll:  move-exception ex
//	finally:   <finally body>
//	           if-eqz ex, dispatch
//	           throw ex
//	dispatch:  nop              ; exit dispatch is inserted here at the end
//	end:
//
// Exits are recorded as targets while lowering. Once the whole method has
// been lowered, every branch target is known and each finally block gets a
// dispatch sequence that sends control to the exit that entered it.

type exitKind uint8

// Ordered by dispatch preference when groups are equally frequent.
const (
	exitFallOut exitKind = iota // normal completion of a try or catch body
	exitLeave                   // explicit leave to a label
	exitReturn
)

func (k exitKind) String() string {
	return [...]string{"fallout", "leave", "return"}[k]
}

// finallyTarget is one exit path routed through a finally block.
type finallyTarget struct {
	kind     exitKind
	dest     LabelID   // unset for returns
	selector rl.Handle // placeholder that becomes "const selector, group"
	jump     rl.Handle // goto to the finally entry
}

// finallyState tracks one try/finally while it is lowered and dispatched.
type finallyState struct {
	depth    int
	parent   *finallyState // nearest enclosing try/finally, if any
	entry    LabelID       // first instruction of the finally body
	exReg    *rl.Register  // pending exception, null on normal exits
	selector *rl.Register  // allocated only when two or more exit groups exist
	first    rl.Handle     // first instruction of the try body
	anchor   rl.Handle     // last instruction of the construct; dispatch goes after it
	targets  []*finallyTarget
}

func (st *finallyState) hasFallOut() bool {
	for _, t := range st.targets {
		if t.kind == exitFallOut {
			return true
		}
	}
	return false
}

// router keeps the stack of try/finally blocks whose try or catch bodies are
// being lowered, and the completed ones in the order they were popped.
type router struct {
	stack    []*finallyState
	finished []*finallyState
}

func (r *router) active() bool { return len(r.stack) > 0 }

func (r *router) top() *finallyState {
	if len(r.stack) == 0 {
		return nil
	}
	return r.stack[len(r.stack)-1]
}

func (r *router) push(st *finallyState) { r.stack = append(r.stack, st) }

func (r *router) pop() *finallyState {
	st := r.stack[len(r.stack)-1]
	r.stack = r.stack[:len(r.stack)-1]
	return st
}

// routeExit sends control leaving the current protected region through the
// innermost finally block.
func (c *methodCompiler) routeExit(kind exitKind, dest LabelID) {
	st := c.router.top()
	sel := c.emit(rl.Nop, nil)
	jump := c.emitGoto(st.entry)
	st.targets = append(st.targets, &finallyTarget{kind: kind, dest: dest, selector: sel, jump: jump})
	c.log.Trace().Int("depth", st.depth).Stringer("kind", kind).Str("dest", string(dest)).Msg("routed exit")
}

// exitProtected ends a try or catch body that can complete normally.
func (c *methodCompiler) exitProtected(st *finallyState, end LabelID) {
	if !c.reachable {
		return
	}
	if st != nil {
		c.routeExit(exitFallOut, end)
		return
	}
	c.emitGoto(end)
}

func (c *methodCompiler) lowerTryBlock(t *ast.TryBlock) {
	switch {
	case t.Body == nil:
		c.unsupported(t.Position, "try without a body")
	case t.Finally != nil && t.Fault != nil:
		c.unsupported(t.Position, "try with both finally and fault")
	case len(t.Catches) == 0 && t.Handler() == nil:
		c.unsupported(t.Position, "try without catch, finally or fault")
	}
	saved := c.pos
	if t.Position.IsKnown() {
		c.pos = t.Position
	}
	defer func() { c.pos = saved }()

	end := c.labels.Fresh("try.end")
	var st *finallyState
	if t.Finally != nil {
		st = &finallyState{
			depth:  len(c.router.stack) + 1,
			parent: c.router.top(),
			entry:  c.labels.Fresh("finally"),
			exReg:  c.frame.AllocatePinned(types.ThrowableType, "$ex"),
		}
		c.emitConst(st.exReg, 0)
		c.router.push(st)
		c.log.Debug().Int("depth", st.depth).Msg("enter try/finally")
	}

	mark := c.list.Last()
	c.lowerBlock(t.Body)
	c.exitProtected(st, end)
	try := c.nonEmptySince(mark)

	h := &pendingHandler{tryStart: try.First, tryEnd: try.Last, catchAll: rl.NoHandle}
	catchMark := c.list.Last()
	for i, cc := range t.Catches {
		if cc.ExceptionType == nil && i != len(t.Catches)-1 {
			c.unsupported(cc.Position, "catch-all clause must be the last clause")
		}
		entry := c.lowerCatch(cc, st, end)
		if cc.ExceptionType == nil {
			h.catchAll = entry
		} else {
			h.catches = append(h.catches, pendingCatch{typ: cc.ExceptionType, handler: entry})
		}
	}
	catches := c.rangeSince(catchMark, nil)

	switch {
	case t.Finally != nil:
		c.router.pop()
		c.reachable = false
		all := c.emit(rl.MoveException, nil, st.exReg)
		if h.catchAll == rl.NoHandle {
			h.catchAll = all
		}
		c.addHandler(h)
		if !catches.Empty() {
			c.addHandler(&pendingHandler{tryStart: catches.First, tryEnd: catches.Last, catchAll: all})
		}

		c.placeLabel(st.entry)
		c.reachable = true
		c.lowerBlock(t.Finally)
		if c.reachable {
			check := c.emit(rl.IfEqz, rl.NoHandle, st.exReg)
			c.emit(rl.Throw, nil, st.exReg)
			st.anchor = c.emit(rl.Nop, nil)
			c.list.SetTarget(check, st.anchor)
		} else {
			st.anchor = c.emit(rl.Nop, nil)
		}
		st.first = try.First
		c.router.finished = append(c.router.finished, st)
		c.reachable = st.hasFallOut()
		c.log.Debug().Int("depth", st.depth).Int("exits", len(st.targets)).Msg("leave try/finally")

	case t.Fault != nil:
		c.reachable = false
		ex := c.frame.AllocatePinned(types.ThrowableType, "$ex")
		all := c.emit(rl.MoveException, nil, ex)
		if h.catchAll == rl.NoHandle {
			h.catchAll = all
		}
		c.addHandler(h)
		if !catches.Empty() {
			c.addHandler(&pendingHandler{tryStart: catches.First, tryEnd: catches.Last, catchAll: all})
		}
		c.lowerBlock(t.Fault)
		if c.reachable {
			c.emit(rl.Throw, nil, ex)
		}
		c.reachable = false

	default:
		c.addHandler(h)
		c.reachable = false
	}
	c.placeLabel(end)
}

// nonEmptySince returns the instructions after mark, emitting a nop when
// there are none so that the range can be guarded.
func (c *methodCompiler) nonEmptySince(mark rl.Handle) Range {
	r := c.rangeSince(mark, nil)
	if r.Empty() {
		reachable := c.reachable
		c.emit(rl.Nop, nil)
		c.reachable = reachable
		r = c.rangeSince(mark, nil)
	}
	return r
}

// lowerCatch lowers one catch clause and returns its handler entry.
func (c *methodCompiler) lowerCatch(cc *ast.CatchClause, st *finallyState, end LabelID) rl.Handle {
	saved := c.pos
	if cc.Position.IsKnown() {
		c.pos = cc.Position
	}
	var ex *rl.Register
	if cc.Variable != nil {
		ex = c.variable(cc.Variable)
	} else {
		ex = c.frame.AllocateTemp(typeOr(cc.ExceptionType, types.ThrowableType))
	}
	c.reachable = false
	entry := c.emit(rl.MoveException, nil, ex)
	c.pos = saved

	c.catchRegs = append(c.catchRegs, ex)
	c.lowerBlock(cc.Body)
	c.catchRegs = c.catchRegs[:len(c.catchRegs)-1]
	c.exitProtected(st, end)
	return entry
}

// --- Dispatch ---

// exitGroup collects targets that leave to the same place.
type exitGroup struct {
	kind    exitKind
	dest    LabelID
	targets []*finallyTarget
}

// groupTargets merges equal exits and orders the groups by how often they
// occur, most frequent first.
func groupTargets(targets []*finallyTarget) []*exitGroup {
	var groups []*exitGroup
	for _, t := range targets {
		var g *exitGroup
		for _, x := range groups {
			if x.kind == t.kind && x.dest == t.dest {
				g = x
				break
			}
		}
		if g == nil {
			g = &exitGroup{kind: t.kind, dest: t.dest}
			groups = append(groups, g)
		}
		g.targets = append(g.targets, t)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].targets) != len(groups[j].targets) {
			return len(groups[i].targets) > len(groups[j].targets)
		}
		return groups[i].kind < groups[j].kind
	})
	return groups
}

// finishFinallyBlocks inserts the exit dispatch of every try/finally,
// innermost first, so that exits handed to an enclosing block are known
// before that block is dispatched.
func (c *methodCompiler) finishFinallyBlocks() {
	if len(c.router.finished) == 0 {
		return
	}
	d := &dispatcher{c: c, pos: c.list.Positions()}
	for _, st := range c.router.finished {
		d.dispatch(st)
	}
}

type dispatcher struct {
	c   *methodCompiler
	pos []int // program order of instructions emitted while lowering
	at  rl.Handle
}

func (d *dispatcher) insert(op rl.OpCode, operand interface{}, regs ...*rl.Register) rl.Handle {
	anchor := d.c.list.At(d.at)
	d.at = d.c.list.InsertAfter(d.at, &rl.Instruction{Code: op, Operand: operand, Registers: regs, Position: anchor.Position})
	return d.at
}

// inRange reports whether h lies within the try body, catches or finally
// body of st.
func (d *dispatcher) inRange(st *finallyState, h rl.Handle) bool {
	p := d.pos[h]
	return p >= d.pos[st.first] && p <= d.pos[st.anchor]
}

func (d *dispatcher) destination(t *finallyTarget) rl.Handle {
	h, ok := d.c.labels.Target(t.dest)
	if !ok {
		d.c.unsupported(d.c.list.At(t.jump).Position, "leave to undefined label %s", t.dest)
	}
	return h
}

func (d *dispatcher) dispatch(st *finallyState) {
	c := d.c
	var live []*finallyTarget
	for _, t := range st.targets {
		if t.kind == exitLeave {
			// A leave that stays inside the construct needs no routing.
			if dest := d.destination(t); d.inRange(st, dest) {
				c.list.SetTarget(t.jump, dest)
				continue
			}
		}
		live = append(live, t)
	}

	groups := groupTargets(live)
	if len(groups) > 1 {
		st.selector = c.frame.AllocatePinned(types.IntType, "$sel")
		for i, g := range groups {
			for _, t := range g.targets {
				inst := c.list.At(t.selector)
				inst.Code = rl.Const
				inst.Operand = int32(i)
				inst.Registers = []*rl.Register{st.selector}
			}
		}
	}
	c.log.Debug().
		Int("depth", st.depth).
		Int("exits", len(live)).
		Int("groups", len(groups)).
		Msg("finally dispatch")

	d.at = st.anchor
	switch len(groups) {
	case 0:
	case 1:
		d.action(st, groups[0])
	case 2:
		test := d.insert(rl.IfNez, rl.NoHandle, st.selector)
		d.action(st, groups[0])
		c.list.SetTarget(test, d.action(st, groups[1]))
	default:
		cases := make([]rl.Handle, len(groups))
		for i := range cases {
			cases[i] = rl.NoHandle
		}
		sw := d.insert(rl.PackedSwitch, cases, st.selector)
		for i, g := range groups {
			c.list.SetCaseTarget(sw, i, d.action(st, g))
		}
	}
}

// action inserts the code completing the exits of g and returns its first
// instruction.
func (d *dispatcher) action(st *finallyState, g *exitGroup) rl.Handle {
	c := d.c
	if g.kind == exitReturn {
		if st.parent != nil {
			return d.handOff(st.parent, g)
		}
		if c.returnReg == nil {
			return d.insert(rl.ReturnVoid, nil)
		}
		return d.insert(rl.ReturnFor(c.method.Ref.Return), nil, c.returnReg)
	}
	dest := d.destination(g.targets[0])
	if st.parent != nil && !d.inRange(st.parent, dest) {
		return d.handOff(st.parent, g)
	}
	return d.insert(rl.Goto, dest)
}

// handOff continues an exit through the enclosing finally block.
func (d *dispatcher) handOff(parent *finallyState, g *exitGroup) rl.Handle {
	sel := d.insert(rl.Nop, nil)
	jump := d.insert(rl.Goto, rl.NoHandle)
	d.c.labels.AddResolveAction(parent.entry, jump, -1)
	parent.targets = append(parent.targets, &finallyTarget{kind: g.kind, dest: g.dest, selector: sel, jump: jump})
	return sel
}

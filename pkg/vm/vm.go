// Package vm interprets lowered methods. It executes the register
// instructions and exception tables produced by the compiler directly, which
// makes it an oracle for the behavior of the lowered code in tests and in the
// rlc run command.
package vm

import (
	"fmt"
	"math"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

const (
	MaxFrames       = 64      // Max call depth
	DefaultMaxSteps = 1 << 20 // Instructions per Invoke before giving up
)

// Native implements a method in Go. Returning a *Thrown raises the
// exception in the calling method.
type Native func(vm *VM, args []Value) (Value, error)

// VM executes lowered methods.
type VM struct {
	methods  map[string]*compiler.Result
	natives  map[string]Native
	statics  map[string]Value
	monitors map[interface{}]int

	// MaxSteps bounds the instructions executed by one Invoke.
	MaxSteps int
	steps    int
	depth    int
	log      zerolog.Logger
}

// New creates a VM with the runtime support methods installed.
func New() *VM {
	vm := &VM{
		methods:  make(map[string]*compiler.Result),
		natives:  make(map[string]Native),
		statics:  make(map[string]Value),
		monitors: make(map[interface{}]int),
		MaxSteps: DefaultMaxSteps,
		log:      zerolog.Nop(),
	}
	installRuntime(vm)
	return vm
}

// SetLogger enables instruction tracing at trace level.
func (vm *VM) SetLogger(log zerolog.Logger) { vm.log = log }

// Define makes a lowered method callable by other methods.
func (vm *VM) Define(res *compiler.Result) {
	vm.methods[res.Method.String()] = res
}

// DefineNative binds a Go implementation to m.
func (vm *VM) DefineNative(m *types.MethodRef, fn Native) {
	vm.natives[m.String()] = fn
}

// Static returns the value of a static field.
func (vm *VM) Static(f *types.FieldRef) Value { return vm.statics[f.String()] }

// SetStatic sets the value of a static field.
func (vm *VM) SetStatic(f *types.FieldRef, v Value) { vm.statics[f.String()] = v }

// HeldMonitors returns the number of monitors entered and not yet exited.
func (vm *VM) HeldMonitors() int {
	n := 0
	for _, c := range vm.monitors {
		n += c
	}
	return n
}

// Thrown is an exception that left the invoked method.
type Thrown struct {
	Value Value
}

func (t *Thrown) Error() string { return "uncaught exception " + t.Value.String() }

// Throw builds a Thrown carrying a new instance of class with message msg.
func Throw(class *types.TypeRef, msg string) *Thrown {
	o := NewObject(class)
	o.Fields["message"] = String(msg)
	return &Thrown{Value: Ref(o)}
}

// Invoke runs res with the given arguments: the receiver first for
// instance methods, then one value per declared parameter.
func (vm *VM) Invoke(res *compiler.Result, args ...Value) (Value, error) {
	vm.steps = 0
	return vm.call(res, args)
}

func (vm *VM) call(res *compiler.Result, args []Value) (Value, error) {
	if vm.depth >= MaxFrames {
		return Null, pkgerrors.Errorf("call depth exceeded invoking %s", res.Method)
	}
	vm.depth++
	defer func() { vm.depth-- }()

	regs := make([]Value, res.RegisterCount+1)
	if err := placeArguments(res, regs, args); err != nil {
		return Null, err
	}
	f := &frame{vm: vm, res: res, regs: regs}
	return f.run()
}

// placeArguments stores args in the highest registers, skipping the second
// slot of wide values.
func placeArguments(res *compiler.Result, regs []Value, args []Value) error {
	m := res.Method
	var widths []int
	if !m.Static {
		widths = append(widths, 1)
	}
	for i := range m.Params {
		widths = append(widths, m.ParamType(i).Slots())
	}
	if len(args) < len(widths) {
		return pkgerrors.Errorf("%s takes %d arguments, got %d", m, len(widths), len(args))
	}
	slot := res.RegisterCount - res.ArgumentCount
	for i, w := range widths {
		regs[slot] = args[i]
		slot += w
	}
	// A trailing generic-arguments array, when present, follows the parameters.
	if len(args) > len(widths) && slot < res.RegisterCount {
		regs[slot] = args[len(widths)]
	}
	return nil
}

type frame struct {
	vm        *VM
	res       *compiler.Result
	regs      []Value
	pc        int
	result    Value // last invoke result
	exception Value // exception delivered to the current handler
}

func (f *frame) get(r *rl.Register) Value    { return f.regs[r.Index] }
func (f *frame) set(r *rl.Register, v Value) { f.regs[r.Index] = v }

func (f *frame) reg(inst *rl.Instruction, i int) Value { return f.regs[inst.Registers[i].Index] }

func (f *frame) jump(target *rl.Instruction) { f.pc = target.Offset }

func (f *frame) run() (Value, error) {
	insts := f.res.Instructions
	for {
		if f.pc < 0 || f.pc >= len(insts) {
			return Null, pkgerrors.Errorf("%s: execution ran off the end at %d", f.res.Method, f.pc)
		}
		f.vm.steps++
		if f.vm.steps > f.vm.MaxSteps {
			return Null, pkgerrors.Errorf("%s: step limit %d exceeded", f.res.Method, f.vm.MaxSteps)
		}
		inst := insts[f.pc]
		if e := f.vm.log.Trace(); e.Enabled() {
			e.Str("method", f.res.Method.Name).Int("pc", f.pc).Msg(rl.FormatInstruction(inst, rl.Style{}))
		}
		f.pc++

		ret, done, thrown, err := f.step(inst)
		if err != nil {
			return Null, pkgerrors.Wrapf(err, "%s at %04d", f.res.Method, inst.Offset)
		}
		if thrown != nil {
			if !f.deliver(inst.Offset, thrown.Value) {
				return Null, thrown
			}
			continue
		}
		if done {
			return ret, nil
		}
	}
}

// step executes one instruction. It reports a return value with done set,
// or an exception raised by the instruction.
func (f *frame) step(inst *rl.Instruction) (ret Value, done bool, thrown *Thrown, err error) {
	switch op := inst.Code; {
	case op == rl.Nop:

	case op == rl.Move || op == rl.MoveWide || op == rl.MoveObject:
		f.set(inst.Registers[0], f.reg(inst, 1))
	case op == rl.MoveResult || op == rl.MoveResultWide || op == rl.MoveResultObject:
		f.set(inst.Registers[0], f.result)
	case op == rl.MoveException:
		f.set(inst.Registers[0], f.exception)

	case op == rl.ReturnVoid:
		return Null, true, nil, nil
	case op == rl.Return || op == rl.ReturnWide || op == rl.ReturnObject:
		return f.reg(inst, 0), true, nil, nil

	case op == rl.Const:
		f.set(inst.Registers[0], Int(inst.Operand.(int32)))
	case op == rl.ConstWide:
		f.set(inst.Registers[0], Long(inst.Operand.(int64)))
	case op == rl.ConstString:
		f.set(inst.Registers[0], String(inst.Operand.(string)))
	case op == rl.ConstClass:
		f.set(inst.Registers[0], Ref(inst.Operand.(*types.TypeRef)))

	case op == rl.MonitorEnter || op == rl.MonitorExit:
		return Null, false, f.monitor(op, f.reg(inst, 0)), nil

	case op == rl.CheckCast:
		v := f.reg(inst, 0)
		t := inst.Operand.(*types.TypeRef)
		if !v.IsNull() && !instanceOf(v, t) {
			return Null, false, Throw(ClassCastException, fmt.Sprintf("%s is not %s", typeOf(v.Ref), t)), nil
		}
	case op == rl.InstanceOf:
		f.set(inst.Registers[0], Bool(instanceOf(f.reg(inst, 1), inst.Operand.(*types.TypeRef))))
	case op == rl.ArrayLength:
		a := f.reg(inst, 1).AsArray()
		if a == nil {
			return Null, false, nullPointer("array-length"), nil
		}
		f.set(inst.Registers[0], Int(int32(len(a.Data))))
	case op == rl.NewInstance:
		f.set(inst.Registers[0], Ref(NewObject(inst.Operand.(*types.TypeRef))))
	case op == rl.NewArray:
		n := f.reg(inst, 1).AsInt()
		if n < 0 {
			return Null, false, Throw(NegativeArraySizeException, fmt.Sprint(n)), nil
		}
		at := inst.Operand.(*types.TypeRef)
		f.set(inst.Registers[0], Ref(&Array{Elem: at.Elem, Data: make([]Value, n)}))

	case op == rl.Throw:
		v := f.reg(inst, 0)
		if v.IsNull() {
			return Null, false, nullPointer("throw"), nil
		}
		return Null, false, &Thrown{Value: v}, nil
	case op == rl.Goto:
		f.jump(inst.Target())
	case op == rl.PackedSwitch:
		i := int(f.reg(inst, 0).AsInt())
		if targets := inst.Targets(); i >= 0 && i < len(targets) {
			f.jump(targets[i])
		}

	case op >= rl.CmplFloat && op <= rl.CmpLong:
		f.set(inst.Registers[0], Int(compare(op, f.reg(inst, 1), f.reg(inst, 2))))

	case op >= rl.IfEq && op <= rl.IfLez:
		cond, zero := op.CondOf()
		a := f.reg(inst, 0)
		b := Null
		if !zero {
			b = f.reg(inst, 1)
		}
		if test(cond, a, b) {
			f.jump(inst.Target())
		}

	case op >= rl.Aget && op <= rl.AputShort:
		return Null, false, f.arrayAccess(inst), nil
	case op >= rl.Iget && op <= rl.IputShort:
		return Null, false, f.fieldAccess(inst), nil
	case op >= rl.Sget && op <= rl.SgetShort:
		f.set(inst.Registers[0], f.vm.statics[inst.Operand.(*types.FieldRef).String()])
	case op >= rl.Sput && op <= rl.SputShort:
		f.vm.statics[inst.Operand.(*types.FieldRef).String()] = f.reg(inst, 0)

	case op.IsInvoke():
		return f.invoke(inst)

	case op >= rl.NegInt && op <= rl.NegDouble:
		f.set(inst.Registers[0], unary(op, f.reg(inst, 1)))
	case op >= rl.IntToLong && op <= rl.IntToShort:
		f.set(inst.Registers[0], convert(op, f.reg(inst, 1)))

	case op.IsBinary():
		bin, kind, inPlace := op.BinaryParts()
		dst, a, b := inst.Registers[0], inst.Registers[0], inst.Registers[1]
		if !inPlace {
			a, b = inst.Registers[1], inst.Registers[2]
		}
		v, ex := binary(bin, kind, f.get(a), f.get(b))
		if ex != nil {
			return Null, false, ex, nil
		}
		f.set(dst, v)

	default:
		return Null, false, nil, fmt.Errorf("cannot execute %s", op)
	}
	return Null, false, nil, nil
}

func (f *frame) monitor(op rl.OpCode, v Value) *Thrown {
	if v.IsNull() {
		return nullPointer(op.String())
	}
	if op == rl.MonitorEnter {
		f.vm.monitors[v.Ref]++
		return nil
	}
	if f.vm.monitors[v.Ref] == 0 {
		return Throw(IllegalMonitorStateException, "monitor not held")
	}
	f.vm.monitors[v.Ref]--
	if f.vm.monitors[v.Ref] == 0 {
		delete(f.vm.monitors, v.Ref)
	}
	return nil
}

func (f *frame) arrayAccess(inst *rl.Instruction) *Thrown {
	a := f.reg(inst, 1).AsArray()
	if a == nil {
		return nullPointer(inst.Code.String())
	}
	i := int(f.reg(inst, 2).AsInt())
	if i < 0 || i >= len(a.Data) {
		return Throw(ArrayIndexOutOfBoundsException, fmt.Sprint(i))
	}
	if inst.Code >= rl.Aput {
		a.Data[i] = f.reg(inst, 0)
		return nil
	}
	f.set(inst.Registers[0], a.Data[i])
	return nil
}

func (f *frame) fieldAccess(inst *rl.Instruction) *Thrown {
	o := f.reg(inst, 1).AsObject()
	if o == nil {
		return nullPointer(inst.Code.String())
	}
	name := inst.Operand.(*types.FieldRef).Name
	if inst.Code >= rl.Iput {
		o.Fields[name] = f.reg(inst, 0)
		return nil
	}
	f.set(inst.Registers[0], o.Fields[name])
	return nil
}

func (f *frame) invoke(inst *rl.Instruction) (Value, bool, *Thrown, error) {
	m := inst.Operand.(*types.MethodRef)
	args := make([]Value, len(inst.Registers))
	for i, r := range inst.Registers {
		args[i] = f.get(r)
	}
	if !m.Static && (len(args) == 0 || args[0].IsNull()) {
		return Null, false, nullPointer("invoke " + m.Name), nil
	}

	var v Value
	var err error
	key := m.String()
	switch {
	case f.vm.methods[key] != nil:
		v, err = f.vm.call(f.vm.methods[key], args)
	case f.vm.natives[key] != nil:
		v, err = f.vm.natives[key](f.vm, args)
	case m.Constructor:
		// Constructors without a body only allocate.
	default:
		return Null, false, nil, fmt.Errorf("no implementation for %s", m)
	}
	if t, ok := err.(*Thrown); ok {
		return Null, false, t, nil
	}
	if err != nil {
		return Null, false, nil, err
	}
	f.result = v
	return Null, false, nil, nil
}

// --- Arithmetic ---

func compare(op rl.OpCode, a, b Value) int32 {
	var x, y float64
	switch op {
	case rl.CmpLong:
		switch {
		case a.AsLong() < b.AsLong():
			return -1
		case a.AsLong() > b.AsLong():
			return 1
		}
		return 0
	case rl.CmplFloat, rl.CmpgFloat:
		x, y = float64(a.AsFloat()), float64(b.AsFloat())
	default:
		x, y = a.AsDouble(), b.AsDouble()
	}
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		if op == rl.CmpgFloat || op == rl.CmpgDouble {
			return 1
		}
		return -1
	case x < y:
		return -1
	case x > y:
		return 1
	}
	return 0
}

func test(c rl.Cond, a, b Value) bool {
	if a.Ref != nil || b.Ref != nil {
		switch c {
		case rl.CondEq:
			return a.Ref == b.Ref
		case rl.CondNe:
			return a.Ref != b.Ref
		}
		return false
	}
	x, y := a.AsInt(), b.AsInt()
	switch c {
	case rl.CondEq:
		return x == y
	case rl.CondNe:
		return x != y
	case rl.CondLt:
		return x < y
	case rl.CondGe:
		return x >= y
	case rl.CondGt:
		return x > y
	}
	return x <= y
}

func unary(op rl.OpCode, v Value) Value {
	switch op {
	case rl.NegInt:
		return Int(-v.AsInt())
	case rl.NotInt:
		return Int(^v.AsInt())
	case rl.NegLong:
		return Long(-v.AsLong())
	case rl.NotLong:
		return Long(^v.AsLong())
	case rl.NegFloat:
		return Float(-v.AsFloat())
	}
	return Double(-v.AsDouble())
}

func convert(op rl.OpCode, v Value) Value {
	switch op {
	case rl.IntToLong:
		return Long(int64(v.AsInt()))
	case rl.IntToFloat:
		return Float(float32(v.AsInt()))
	case rl.IntToDouble:
		return Double(float64(v.AsInt()))
	case rl.LongToInt:
		return Int(int32(v.AsLong()))
	case rl.LongToFloat:
		return Float(float32(v.AsLong()))
	case rl.LongToDouble:
		return Double(float64(v.AsLong()))
	case rl.FloatToInt:
		return Int(floatToInt32(float64(v.AsFloat())))
	case rl.FloatToLong:
		return Long(floatToInt64(float64(v.AsFloat())))
	case rl.FloatToDouble:
		return Double(float64(v.AsFloat()))
	case rl.DoubleToInt:
		return Int(floatToInt32(v.AsDouble()))
	case rl.DoubleToLong:
		return Long(floatToInt64(v.AsDouble()))
	case rl.DoubleToFloat:
		return Float(float32(v.AsDouble()))
	case rl.IntToByte:
		return Int(int32(int8(v.AsInt())))
	case rl.IntToChar:
		return Int(int32(uint16(v.AsInt())))
	}
	return Int(int32(int16(v.AsInt())))
}

// floatToInt32 saturates like the target machine: NaN becomes zero.
func floatToInt32(x float64) int32 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt32:
		return math.MaxInt32
	case x <= math.MinInt32:
		return math.MinInt32
	}
	return int32(x)
}

func floatToInt64(x float64) int64 {
	switch {
	case math.IsNaN(x):
		return 0
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return math.MinInt64
	}
	return int64(x)
}

func binary(op rl.BinOp, k rl.NumKind, a, b Value) (Value, *Thrown) {
	switch k {
	case rl.KindInt:
		x, y := a.AsInt(), b.AsInt()
		if (op == rl.OpDiv || op == rl.OpRem) && y == 0 {
			return Null, Throw(ArithmeticException, "divide by zero")
		}
		return Int(intOp(op, x, y)), nil
	case rl.KindLong:
		x, y := a.AsLong(), b.AsLong()
		if (op == rl.OpDiv || op == rl.OpRem) && y == 0 {
			return Null, Throw(ArithmeticException, "divide by zero")
		}
		return Long(longOp(op, x, y)), nil
	case rl.KindFloat:
		return Float(float32(floatOp(op, float64(a.AsFloat()), float64(b.AsFloat())))), nil
	}
	return Double(floatOp(op, a.AsDouble(), b.AsDouble())), nil
}

func intOp(op rl.BinOp, x, y int32) int32 {
	switch op {
	case rl.OpAdd:
		return x + y
	case rl.OpSub:
		return x - y
	case rl.OpMul:
		return x * y
	case rl.OpDiv:
		if x == math.MinInt32 && y == -1 {
			return x
		}
		return x / y
	case rl.OpRem:
		if y == -1 {
			return 0
		}
		return x % y
	case rl.OpAnd:
		return x & y
	case rl.OpOr:
		return x | y
	case rl.OpXor:
		return x ^ y
	case rl.OpShl:
		return x << uint(y&31)
	case rl.OpShr:
		return x >> uint(y&31)
	}
	return int32(uint32(x) >> uint(y&31))
}

func longOp(op rl.BinOp, x, y int64) int64 {
	switch op {
	case rl.OpAdd:
		return x + y
	case rl.OpSub:
		return x - y
	case rl.OpMul:
		return x * y
	case rl.OpDiv:
		if x == math.MinInt64 && y == -1 {
			return x
		}
		return x / y
	case rl.OpRem:
		if y == -1 {
			return 0
		}
		return x % y
	case rl.OpAnd:
		return x & y
	case rl.OpOr:
		return x | y
	case rl.OpXor:
		return x ^ y
	case rl.OpShl:
		return x << uint(y&63)
	case rl.OpShr:
		return x >> uint(y&63)
	}
	return int64(uint64(x) >> uint(y&63))
}

func floatOp(op rl.BinOp, x, y float64) float64 {
	switch op {
	case rl.OpAdd:
		return x + y
	case rl.OpSub:
		return x - y
	case rl.OpMul:
		return x * y
	case rl.OpDiv:
		return x / y
	}
	return math.Mod(x, y)
}

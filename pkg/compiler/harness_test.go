package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
	"github.com/dot42/dot42-sub006/pkg/vm"
)

var (
	demo    = types.NewClass("Demo")
	failure = &types.TypeRef{Kind: types.Class, Name: "Demo.Failure", Super: types.ThrowableType}

	// log(int) records its argument in the harness trace.
	logMethod = types.NewMethod(demo, "log", types.VoidType, true, types.IntType)

	// compute(bool) returns 5, or throws Demo.Failure when its argument is true.
	computeMethod = types.NewMethod(demo, "compute", types.IntType, true, types.BoolType)

	// fail() always throws Demo.Failure.
	failMethod = types.NewMethod(demo, "fail", types.VoidType, true)
)

// harness lowers methods and runs them on the interpreter.
type harness struct {
	t     *testing.T
	vm    *vm.VM
	trace []int32
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, vm: vm.New()}
	h.vm.DefineNative(logMethod, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		h.trace = append(h.trace, args[0].AsInt())
		return vm.Null, nil
	})
	h.vm.DefineNative(computeMethod, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		if args[0].AsInt() != 0 {
			return vm.Null, vm.Throw(failure, "compute failed")
		}
		return vm.Int(5), nil
	})
	h.vm.DefineNative(failMethod, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.Null, vm.Throw(failure, "failed")
	})
	return h
}

func (h *harness) compile(m *compiler.Method) *compiler.Result {
	h.t.Helper()
	res, err := compiler.Compile(m)
	require.NoError(h.t, err)
	h.vm.Define(res)
	return res
}

// run invokes res and returns its result and the calls to log it made.
func (h *harness) run(res *compiler.Result, args ...vm.Value) (vm.Value, []int32, error) {
	h.trace = nil
	v, err := h.vm.Invoke(res, args...)
	return v, h.trace, err
}

func static(name string, ret *types.TypeRef, params ...*ast.Parameter) *compiler.Method {
	var pts []*types.TypeRef
	for _, p := range params {
		pts = append(pts, p.Type)
	}
	return &compiler.Method{
		Ref:    types.NewMethod(demo, name, ret, true, pts...),
		Params: params,
	}
}

func param(name string, t *types.TypeRef) *ast.Parameter {
	return &ast.Parameter{Name: name, Type: t}
}

func local(name string, t *types.TypeRef) *ast.Variable {
	return &ast.Variable{Name: name, Type: t}
}

func log(n int32) *ast.Expression { return ast.CallStatic(logMethod, ast.I4(n)) }

// unless emits "if a != b skip; then...; skip:".
func unless(a *ast.Expression, b int32, skip string, then ...ast.Node) []ast.Node {
	out := []ast.Node{ast.New(ast.Bne, skip, nil, a, ast.I4(b))}
	out = append(out, then...)
	return append(out, ast.Mark(skip))
}

func concat(parts ...[]ast.Node) *ast.Block {
	var out []ast.Node
	for _, p := range parts {
		out = append(out, p...)
	}
	return &ast.Block{Body: out}
}

func nodes(n ...ast.Node) []ast.Node { return n }

func count(res *compiler.Result, pred func(*rl.Instruction) bool) int {
	n := 0
	for _, inst := range res.Instructions {
		if pred(inst) {
			n++
		}
	}
	return n
}

func opIs(op rl.OpCode) func(*rl.Instruction) bool {
	return func(inst *rl.Instruction) bool { return inst.Code == op }
}

func usesRegister(name string) func(*rl.Instruction) bool {
	return func(inst *rl.Instruction) bool {
		for _, r := range inst.Registers {
			if r.Name == name {
				return true
			}
		}
		return false
	}
}

func and(preds ...func(*rl.Instruction) bool) func(*rl.Instruction) bool {
	return func(inst *rl.Instruction) bool {
		for _, p := range preds {
			if !p(inst) {
				return false
			}
		}
		return true
	}
}

func opcodes(res *compiler.Result) []rl.OpCode {
	out := make([]rl.OpCode, len(res.Instructions))
	for i, inst := range res.Instructions {
		out[i] = inst.Code
	}
	return out
}

package fixture_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/fixture"
	"github.com/dot42/dot42-sub006/pkg/types"
	"github.com/dot42/dot42-sub006/pkg/vm"
)

func TestLoadAndRun(t *testing.T) {
	f, err := fixture.Load("testdata/clamp.yaml")
	require.NoError(t, err)
	require.Len(t, f.Methods, 2)
	require.Equal(t, "clamp.yaml", f.Source.Name)

	clamp := f.Method("clamp")
	require.NotNil(t, clamp)
	require.Same(t, clamp, f.Method("Demo::clamp(int)int"))
	require.Equal(t, "x", clamp.Params[0].Name)
	require.Nil(t, f.Method("missing"))

	try, ok := clamp.Body.Body[1].(*ast.TryBlock)
	require.True(t, ok)
	require.Len(t, try.Catches, 1)
	require.Equal(t, "e", try.Catches[0].Variable.Name)
	require.NotNil(t, try.Finally)
	require.Equal(t, 12, try.Position.Line)

	failure, err := f.Types.Type("Demo.Failure")
	require.NoError(t, err)
	require.Equal(t, "java.lang.RuntimeException", failure.Super.Name)
	require.Same(t, failure, try.Catches[0].ExceptionType)

	machine := vm.New()
	var trace []int32
	logRef, err := f.Types.Method("static Demo::log(int)void")
	require.NoError(t, err)
	machine.DefineNative(logRef, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		trace = append(trace, args[0].AsInt())
		return vm.Null, nil
	})
	checkRef, err := f.Types.Method("static Demo::check(int)void")
	require.NoError(t, err)
	machine.DefineNative(checkRef, func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		if args[0].AsInt() > 100 {
			return vm.Null, vm.Throw(failure, "too large")
		}
		return vm.Null, nil
	})

	results := map[string]*compiler.Result{}
	for _, m := range f.Methods {
		res, err := compiler.Compile(m)
		require.NoError(t, err, m.Ref.String())
		machine.Define(res)
		results[m.Ref.Name] = res
	}

	tests := []struct {
		fn   string
		arg  int32
		want int32
	}{
		{"clamp", -5, 0},
		{"clamp", 50, 50},
		{"clamp", 500, 100},
		{"twice", 30, 60},
		{"twice", 60, 100},
	}
	for _, tt := range tests {
		trace = nil
		v, err := machine.Invoke(results[tt.fn], vm.Int(tt.arg))
		require.NoError(t, err)
		require.Equal(t, tt.want, v.AsInt(), "%s(%d)", tt.fn, tt.arg)
		require.Equal(t, []int32{tt.want}, trace)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown op", `[{op: frob}]`, `unknown op "frob"`},
		{"undeclared local", `[{op: ldloc, operand: nope}]`, `undeclared local "nope"`},
		{"unknown parameter", `[{op: ldarg, operand: nope}]`, `unknown parameter "nope"`},
		{"missing operand", `[{op: ldc.i4}]`, "missing operand"},
		{"unexpected operand", `[{op: add, operand: 1}]`, "takes no operand"},
		{"bad descriptor", `[{op: call, operand: "Demo.f()"}]`, "malformed method descriptor"},
		{"bad compound", `[{op: compound, operand: ceq}]`, "not a binary op"},
		{"statement kind", `[{foo: bar}]`, "none of label, block, try or op"},
		{"statement shape", `[7]`, "expected a statement mapping"},
		{"body shape", `{op: nop}`, "expected a statement list"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := "methods:\n  - method: static Demo::f()void\n    body: " + tt.body + "\n"
			_, err := fixture.ParseString("bad.yaml", src)
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
			require.Contains(t, err.Error(), "bad.yaml:3:")
			require.Contains(t, err.Error(), "Demo::f()void")
		})
	}

	_, err := fixture.ParseString("broken.yaml", "methods: [")
	require.Error(t, err)
	require.Contains(t, err.Error(), "broken.yaml")

	_, err = fixture.Load("testdata/does-not-exist.yaml")
	require.Error(t, err)
}

func TestParseOperands(t *testing.T) {
	src := `
classes:
  - name: Demo.Shape
    interface: true
methods:
  - method: virtual Demo::f(ref int,long)void
    generics: 1
    locals:
      - {name: lock, type: java.lang.Object, pinned: true}
      - {name: xs, type: "int[]"}
    body:
      - {op: stloc, operand: xs, args: [{op: newarr, operand: int, args: [{op: ldc.i4, operand: 2}]}]}
      - {op: stsfld, operand: "Demo.count:long", args: [{op: ldarg, operand: p1}]}
      - {op: compound, operand: add, args: [{op: ldelem, args: [{op: ldloc, operand: xs}, {op: ldc.i4, operand: 0}]}, {op: ldc.i4, operand: 1}]}
      - {op: switch, operand: [a, b], args: [{op: ldc.i4, operand: 0}]}
      - label: a
      - {op: pop, args: [{op: ldgenericarg, operand: 0}]}
      - label: b
      - {op: pop, args: [{op: isinst, operand: Demo.Shape, args: [{op: ldthis}]}]}
      - {op: ret}
`
	f, err := fixture.ParseString("ops.yaml", src)
	require.NoError(t, err)
	m := f.Methods[0]
	require.True(t, m.Ref.Virtual)
	require.Equal(t, 1, m.GenericArgCount)
	require.True(t, m.Ref.Params[0].ByRef)
	require.Equal(t, "int[]", m.Params[0].Type.String())
	require.Equal(t, []string{"p0", "p1"}, []string{m.Params[0].Name, m.Params[1].Name})

	body := m.Body.Body
	newarr := body[0].(*ast.Expression).Args[0]
	require.Equal(t, "int[]", newarr.Type.String())

	store := body[1].(*ast.Expression)
	field := store.Operand.(*types.FieldRef)
	require.True(t, field.Static)
	require.Equal(t, "Demo.count:long", field.String())

	compound := body[2].(*ast.Expression)
	require.Equal(t, ast.Add, compound.Operand)
	require.Same(t, types.IntType, compound.Type)

	sw := body[3].(*ast.Expression)
	require.Equal(t, []string{"a", "b"}, sw.Operand)

	isinst := body[7].(*ast.Expression).Args[0]
	shape := isinst.Operand.(*types.TypeRef)
	require.True(t, shape.Interface)
	require.Same(t, m.Ref.Owner, isinst.Args[0].Type)
}

func TestParseScopedBlock(t *testing.T) {
	src := `
methods:
  - method: static Demo::abs(int)int
    params: [n]
    body:
      - block:
          - {op: bge, operand: done, args: [{op: ldarg, operand: n}, {op: ldc.i4, operand: 0}]}
          - {op: starg, operand: n, args: [{op: neg, args: [{op: ldarg, operand: n}]}]}
          - label: done
        scope: first
      - block:
          - {op: bge, operand: done, args: [{op: ldarg, operand: n}, {op: ldc.i4, operand: 10}]}
          - {op: ret, args: [{op: ldarg, operand: n}]}
          - label: done
        scope: second
      - {op: ret, args: [{op: ldc.i4, operand: 10}]}
`
	f, err := fixture.ParseString("scoped.yaml", src)
	require.NoError(t, err)
	m := f.Methods[0]
	require.Equal(t, "first", m.Body.Body[0].(*ast.Block).Scope)

	res, err := compiler.Compile(m)
	require.NoError(t, err)
	machine := vm.New()
	machine.Define(res)
	for in, want := range map[int32]int32{-4: 4, 3: 3, -30: 10} {
		v, err := machine.Invoke(res, vm.Int(in))
		require.NoError(t, err)
		require.Equal(t, want, v.AsInt(), "abs(%d)", in)
	}
}

package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/errors"
	"github.com/dot42/dot42-sub006/pkg/source"
	"github.com/dot42/dot42-sub006/pkg/types"
)

func TestCompileUnsupportedCarriesPosition(t *testing.T) {
	file := source.NewSourceFile("Cast.cs", "", "class Demo {\n  void f() {\n    var x = (int)o;\n  }\n}")
	cast := ast.New(ast.Castclass, types.IntType, types.IntType, ast.Null())
	cast.Position = source.At(file, 3, 13)
	m := static("cast", types.VoidType)
	m.Body = ast.Stmts(cast)
	m.Source = file

	res, err := compiler.Compile(m)
	require.Nil(t, res)
	var ue *errors.UnsupportedError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, m.Ref.String(), ue.Method())
	require.Equal(t, 3, ue.Pos().Line)
	require.Same(t, file, ue.Pos().File)
	require.Contains(t, ue.Message(), "castclass")
}

func TestCompileFailures(t *testing.T) {
	tests := []struct {
		name string
		ret  *types.TypeRef
		body *ast.Block
		kind string
		msg  string
	}{
		{
			name: "rethrow outside catch",
			ret:  types.VoidType,
			body: ast.Stmts(ast.New(ast.Rethrow, nil, nil)),
			kind: "Internal",
			msg:  "rethrow",
		},
		{
			name: "branch to undefined label",
			ret:  types.VoidType,
			body: ast.Stmts(ast.Goto("nowhere")),
			kind: "Unsupported",
			msg:  "nowhere",
		},
		{
			name: "label defined twice",
			ret:  types.VoidType,
			body: ast.Stmts(ast.Mark("x"), log(1), ast.Mark("x"), log(2)),
			kind: "Internal",
		},
		{
			name: "leave to undefined label through finally",
			ret:  types.VoidType,
			body: ast.Stmts(ast.Try(ast.Stmts(ast.LeaveTo("gone")), ast.Stmts(log(1)))),
			kind: "Unsupported",
			msg:  "gone",
		},
		{
			name: "try without handler",
			ret:  types.VoidType,
			body: ast.Stmts(&ast.TryBlock{Body: ast.Stmts(log(1))}),
			kind: "Unsupported",
		},
		{
			name: "catch-all before typed catch",
			ret:  types.VoidType,
			body: ast.Stmts(ast.Try(
				ast.Stmts(log(1)),
				nil,
				ast.Catch(nil, nil, ast.Stmts()),
				ast.Catch(failure, nil, ast.Stmts()),
			)),
			kind: "Unsupported",
			msg:  "last",
		},
		{
			name: "missing return value",
			ret:  types.IntType,
			body: ast.Stmts(log(1)),
			kind: "Unsupported",
		},
		{
			name: "return value from void method",
			ret:  types.VoidType,
			body: ast.Stmts(ast.Return(ast.I4(1))),
			kind: "Unsupported",
		},
		{
			name: "arithmetic on a reference",
			ret:  types.IntType,
			body: ast.Stmts(ast.Return(ast.Binary(ast.Add, ast.Str("a"), ast.I4(1)))),
			kind: "Unsupported",
			msg:  "add on java.lang.String",
		},
		{
			name: "arithmetic with a reference operand",
			ret:  types.IntType,
			body: ast.Stmts(ast.Return(ast.New(ast.Mul, nil, types.IntType, ast.I4(2), ast.Null()))),
			kind: "Unsupported",
			msg:  "mul on java.lang.Object",
		},
		{
			name: "negation of a reference",
			ret:  types.IntType,
			body: ast.Stmts(ast.Return(ast.New(ast.Neg, nil, nil, ast.Str("a")))),
			kind: "Unsupported",
			msg:  "neg on",
		},
		{
			name: "checked arithmetic on a reference",
			ret:  types.IntType,
			body: ast.Stmts(ast.Return(ast.Binary(ast.AddOvf, ast.Str("a"), ast.I4(1)))),
			kind: "Unsupported",
			msg:  "on java.lang.String",
		},
		{
			name: "compound assignment to a reference local",
			ret:  types.VoidType,
			body: ast.Stmts(ast.New(ast.Compound, ast.Add, nil, ast.Load(local("o", types.ObjectType)), ast.I4(1))),
			kind: "Unsupported",
			msg:  "add on java.lang.Object",
		},
		{
			name: "variable without a type",
			ret:  types.VoidType,
			body: ast.Stmts(ast.Store(&ast.Variable{Name: "x"}, ast.I4(1))),
			kind: "Unsupported",
			msg:  "variable x has no type",
		},
		{
			name: "nil catch clause",
			ret:  types.VoidType,
			body: ast.Stmts(&ast.TryBlock{Body: ast.Stmts(log(1)), Catches: []*ast.CatchClause{nil}}),
			kind: "Internal",
			msg:  "nil pointer",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := static("bad", tt.ret)
			m.Body = tt.body
			res, err := compiler.Compile(m)
			require.Nil(t, res)
			ce, ok := errors.As(err)
			require.True(t, ok, "got %v", err)
			require.Equal(t, tt.kind, ce.Kind())
			require.Equal(t, m.Ref.String(), ce.Method())
			if tt.msg != "" {
				require.Contains(t, ce.Message(), tt.msg)
			}
		})
	}
}

func TestCompileRejectsMismatchedFrame(t *testing.T) {
	m := &compiler.Method{
		Ref:  types.NewMethod(demo, "f", types.VoidType, true, types.IntType),
		Body: ast.Stmts(),
	}
	_, err := compiler.Compile(m)
	ce, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, "Internal", ce.Kind())

	untyped := &compiler.Method{
		Ref:    types.NewMethod(demo, "g", types.VoidType, true, types.IntType),
		Params: []*ast.Parameter{{Name: "p"}},
		Body:   ast.Stmts(),
	}
	_, err = compiler.Compile(untyped)
	ce, ok = errors.As(err)
	require.True(t, ok)
	require.Equal(t, "Unsupported", ce.Kind())
	require.Equal(t, untyped.Ref.String(), ce.Method())

	_, err = compiler.Compile(nil)
	ce, ok = errors.As(err)
	require.True(t, ok)
	require.Equal(t, "Internal", ce.Kind())
}

func TestCompileFailureLeavesOtherMethodsUsable(t *testing.T) {
	bad := static("bad", types.VoidType)
	bad.Body = ast.Stmts(ast.Goto("nowhere"))
	_, err := compiler.Compile(bad)
	require.Error(t, err)

	h := newHarness(t)
	good := static("good", types.VoidType)
	good.Body = ast.Stmts(log(3))
	_, trace, err := h.run(h.compile(good))
	require.NoError(t, err)
	require.Equal(t, []int32{3}, trace)
}

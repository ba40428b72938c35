package compiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/errors"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

func TestFrameLayout(t *testing.T) {
	owner := types.NewClass("Demo.Frame")
	a := &ast.Parameter{Name: "a", Type: types.IntType}
	b := &ast.Parameter{Name: "b", Type: types.LongType}
	s := &ast.Parameter{Name: "s", Type: types.StringType}
	m := &Method{
		Ref:    types.NewMethod(owner, "f", types.VoidType, false, a.Type, b.Type, s.Type),
		Params: []*ast.Parameter{a, b, s},
		Body:   &ast.Block{},
	}

	f, err := NewFrame(m)
	require.NoError(t, err)
	require.Equal(t, 5, f.ArgumentSlots())
	require.Equal(t, "this", f.This().Name)

	tmp := f.AllocateTemp(types.IntType)
	v := &ast.Variable{Name: "v", Type: types.DoubleType}
	rv := f.AllocateVariable(v)
	require.Same(t, rv, f.AllocateVariable(v))
	require.True(t, rv.Wide)
	require.Equal(t, rl.Variable, rv.Category)
	require.Equal(t, 3, f.LocalSlots())

	require.Equal(t, 8, f.Finish())
	require.Equal(t, 0, tmp.Index)
	require.Equal(t, 1, rv.Index)
	require.Equal(t, 3, f.This().Index)

	ra, ok := f.Argument(a)
	require.True(t, ok)
	require.Equal(t, 4, ra.Index)
	rb, _ := f.Argument(b)
	require.Equal(t, 5, rb.Index)
	require.True(t, rb.Wide)
	rs, _ := f.Argument(s)
	require.Equal(t, 7, rs.Index)

	// Finishing twice does not shift again.
	require.Equal(t, 8, f.Finish())
	require.Equal(t, 7, rs.Index)
	require.Panics(t, func() { f.AllocateTemp(types.IntType) })
}

func TestFrameGenericArguments(t *testing.T) {
	m := &Method{
		Ref:             types.NewMethod(types.NewClass("Demo.Gen"), "g", types.VoidType, true),
		GenericArgCount: 2,
		Body:            &ast.Block{},
	}
	f, err := NewFrame(m)
	require.NoError(t, err)
	require.Nil(t, f.This())
	require.NotNil(t, f.GenericArguments())
	require.Equal(t, "$generics", f.GenericArguments().Name)
	require.Equal(t, 1, f.ArgumentSlots())
	require.Len(t, f.Arguments(), 1)
}

func TestFramePinnedVariable(t *testing.T) {
	m := &Method{Ref: types.NewMethod(types.NewClass("Demo"), "p", types.VoidType, true), Body: &ast.Block{}}
	f, err := NewFrame(m)
	require.NoError(t, err)
	r := f.AllocateVariable(&ast.Variable{Name: "lock", Type: types.ObjectType, Pinned: true})
	require.Equal(t, rl.VariablePinned, r.Category)
	sel := f.AllocatePinned(types.IntType, "$sel")
	require.Equal(t, rl.VariablePinned, sel.Category)
	require.Equal(t, "$sel", sel.Name)
}

func TestFrameSignatureMismatch(t *testing.T) {
	owner := types.NewClass("Demo")
	tests := []struct {
		name   string
		ref    *types.MethodRef
		params []*ast.Parameter
	}{
		{
			name:   "missing parameter",
			ref:    types.NewMethod(owner, "m", types.VoidType, true, types.IntType, types.IntType),
			params: []*ast.Parameter{{Name: "a", Type: types.IntType}},
		},
		{
			name:   "narrow parameter for wide slot",
			ref:    types.NewMethod(owner, "m", types.VoidType, true, types.LongType),
			params: []*ast.Parameter{{Name: "a", Type: types.IntType}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFrame(&Method{Ref: tt.ref, Params: tt.params, Body: &ast.Block{}})
			require.Error(t, err)
			ce, ok := errors.As(err)
			require.True(t, ok)
			require.Equal(t, "Internal", ce.Kind())
			require.Equal(t, tt.ref.String(), ce.Method())
		})
	}
}

func TestFrameRejectsUntypedRegisters(t *testing.T) {
	owner := types.NewClass("Demo")
	ref := types.NewMethod(owner, "m", types.VoidType, true, types.IntType)
	_, err := NewFrame(&Method{Ref: ref, Params: []*ast.Parameter{{Name: "a"}}, Body: &ast.Block{}})
	ce, ok := errors.As(err)
	require.True(t, ok)
	require.Equal(t, "Unsupported", ce.Kind())
	require.Contains(t, ce.Message(), "parameter 0 has no type")

	f, err := NewFrame(&Method{Ref: types.NewMethod(owner, "n", types.VoidType, true), Body: &ast.Block{}})
	require.NoError(t, err)
	recovered := func() (r interface{}) {
		defer func() { r = recover() }()
		f.AllocateVariable(&ast.Variable{Name: "x"})
		return nil
	}()
	ce, ok = recovered.(errors.CompilerError)
	require.True(t, ok, "got %v", recovered)
	require.Equal(t, "Unsupported", ce.Kind())
	require.Equal(t, "variable x has no type", ce.Message())
}

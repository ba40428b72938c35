package driver_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/driver"
	"github.com/dot42/dot42-sub006/pkg/types"
)

var owner = types.NewClass("Demo.Batch")

// methods builds n methods returning their index through a try/finally.
// The methods at the bad indexes branch to a label that does not exist.
func methods(n int, bad ...int) []*compiler.Method {
	isBad := map[int]bool{}
	for _, b := range bad {
		isBad[b] = true
	}
	out := make([]*compiler.Method, n)
	for i := range out {
		k := &ast.Parameter{Name: "k", Type: types.IntType}
		m := &compiler.Method{
			Ref:    types.NewMethod(owner, fmt.Sprintf("m%d", i), types.IntType, true, types.IntType),
			Params: []*ast.Parameter{k},
		}
		body := ast.Stmts(
			ast.Try(
				ast.Stmts(
					ast.New(ast.Beq, "skip", nil, ast.Arg(k), ast.I4(int32(i))),
					ast.Return(ast.Arg(k)),
					ast.Mark("skip"),
				),
				ast.Stmts(ast.New(ast.Pop, nil, nil, ast.Arg(k))),
			),
			ast.Return(ast.I4(int32(i))),
		)
		if isBad[i] {
			body.Body = append([]ast.Node{ast.Goto("nowhere")}, body.Body...)
		}
		m.Body = body
		out[i] = m
	}
	return out
}

func TestCompileAllPreservesOrder(t *testing.T) {
	ms := methods(40)
	d := driver.New(driver.Config{Concurrency: 8})
	batch, err := d.CompileAll(context.Background(), ms)
	require.NoError(t, err)
	require.Zero(t, batch.Failed)
	require.Len(t, batch.Results, len(ms))
	for i, res := range batch.Results {
		require.NotNil(t, res)
		require.Same(t, ms[i].Ref, res.Method)
	}
	require.Len(t, batch.Succeeded(), len(ms))
}

func TestCompileAllMatchesSequential(t *testing.T) {
	seq, err := driver.New(driver.Config{Concurrency: 1}).CompileAll(context.Background(), methods(16))
	require.NoError(t, err)
	par, err := driver.New(driver.Config{Concurrency: 16}).CompileAll(context.Background(), methods(16))
	require.NoError(t, err)
	for i := range seq.Results {
		require.Equal(t, seq.Results[i].Disassemble(), par.Results[i].Disassemble())
	}
}

func TestCompileAllSkipFailed(t *testing.T) {
	d := driver.New(driver.Config{Policy: driver.SkipFailed, Concurrency: 4})
	batch, err := d.CompileAll(context.Background(), methods(10, 3, 7))
	require.Error(t, err)
	require.NotNil(t, batch)
	require.Equal(t, 2, batch.Failed)
	require.Nil(t, batch.Results[3])
	require.Nil(t, batch.Results[7])
	require.Len(t, batch.Succeeded(), 8)

	errs := driver.Errors(err)
	require.Len(t, errs, 2)
	for _, ce := range errs {
		require.Equal(t, "Unsupported", ce.Kind())
		require.Contains(t, ce.Message(), "nowhere")
	}
	require.Len(t, driver.Errors(pkgerrors.Wrap(err, "batch")), 2)
}

func TestCompileAllFailFast(t *testing.T) {
	d := driver.New(driver.Config{Policy: driver.FailFast, Concurrency: 1})
	batch, err := d.CompileAll(context.Background(), methods(10, 0))
	require.Error(t, err)
	require.Nil(t, batch)
	require.NotEmpty(t, driver.Errors(err))
}

func TestCompileAllCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	batch, err := driver.New(driver.Config{}).CompileAll(ctx, methods(5))
	require.ErrorIs(t, err, context.Canceled)
	require.Nil(t, batch)
}

func TestCompileFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.yaml")
	content := `
methods:
  - method: static Demo::one()int
    body:
      - {op: ret, args: [{op: ldc.i4, operand: 1}]}
  - method: static Demo::bad()void
    body:
      - {op: br, operand: nowhere}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	d := driver.New(driver.Config{Policy: driver.SkipFailed, Logger: zerolog.Nop()})
	f, batch, err := d.CompileFile(context.Background(), path)
	require.Error(t, err)
	require.Len(t, f.Methods, 2)
	require.Equal(t, 1, batch.Failed)
	require.NotNil(t, batch.Results[0])

	errs := driver.Errors(err)
	require.Len(t, errs, 1)
	require.Equal(t, 8, errs[0].Pos().Line)

	_, _, err = d.CompileFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	require.Empty(t, driver.Errors(err))
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want driver.Policy
		ok   bool
	}{
		{"", driver.FailFast, true},
		{"fail-fast", driver.FailFast, true},
		{"skip", driver.SkipFailed, true},
		{"skip-failed", driver.SkipFailed, true},
		{"sometimes", driver.FailFast, false},
	}
	for _, tt := range tests {
		got, ok := driver.ParsePolicy(tt.in)
		require.Equal(t, tt.want, got, tt.in)
		require.Equal(t, tt.ok, ok, tt.in)
	}
	require.Equal(t, "skip", driver.SkipFailed.String())
	require.Equal(t, "fail-fast", driver.FailFast.String())
}

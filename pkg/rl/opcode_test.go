package rl

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dot42/dot42-sub006/pkg/types"
)

func TestBinaryOpcodes(t *testing.T) {
	tests := []struct {
		op      BinOp
		kind    NumKind
		inPlace bool
		want    string
	}{
		{OpAdd, KindInt, false, "add-int"},
		{OpMul, KindInt, true, "mul-int/2addr"},
		{OpUshr, KindLong, false, "ushr-long"},
		{OpRem, KindDouble, true, "rem-double/2addr"},
		{OpSub, KindFloat, false, "sub-float"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			op, ok := Binary(tt.op, tt.kind, tt.inPlace)
			require.True(t, ok)
			require.Equal(t, tt.want, op.String())
			require.True(t, op.IsBinary())

			bin, kind, inPlace := op.BinaryParts()
			require.Equal(t, tt.op, bin)
			require.Equal(t, tt.kind, kind)
			require.Equal(t, tt.inPlace, inPlace)
		})
	}

	_, ok := Binary(OpXor, KindFloat, false)
	require.False(t, ok)
	require.Equal(t, AddInt2Addr, AddInt.InPlace())
	require.Equal(t, AddInt2Addr, AddInt2Addr.InPlace())
}

func TestTypedFamilies(t *testing.T) {
	require.Equal(t, Move, MoveFor(types.IntType))
	require.Equal(t, MoveWide, MoveFor(types.DoubleType))
	require.Equal(t, MoveObject, MoveFor(types.StringType))
	require.Equal(t, MoveResultWide, MoveResultFor(types.LongType))
	require.Equal(t, ReturnVoid, ReturnFor(types.VoidType))
	require.Equal(t, ReturnObject, ReturnFor(types.ArrayOf(types.IntType)))

	require.Equal(t, "aget-wide", Typed(Aget, types.ULongType).String())
	require.Equal(t, "iput-boolean", Typed(Iput, types.BoolType).String())
	require.Equal(t, "sget-object", Typed(Sget, types.ObjectType).String())
	require.Equal(t, "aput-byte", Typed(Aput, types.ByteType).String())
}

func TestConditions(t *testing.T) {
	for c := CondEq; c <= CondLe; c++ {
		require.Equal(t, c, c.Reverse().Reverse())
		require.Equal(t, c, c.Swap().Swap())

		op := If(c, true)
		got, zero := op.CondOf()
		require.Equal(t, c, got)
		require.True(t, zero)
		require.True(t, op.IsBranch())

		got, zero = If(c, false).CondOf()
		require.Equal(t, c, got)
		require.False(t, zero)
	}
	require.Equal(t, IfGe, If(CondLt.Reverse(), false))
	require.Equal(t, IfNez, If(CondEq.Reverse(), true))
	require.Panics(t, func() { Goto.CondOf() })

	require.True(t, Throw.IsUnconditionalExit())
	require.False(t, IfEq.IsUnconditionalExit())
	require.True(t, InvokeStatic.IsInvoke())
}

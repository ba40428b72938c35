package rl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dot42/dot42-sub006/pkg/types"
)

func TestListInsertAndFlatten(t *testing.T) {
	l := NewList()
	a := l.Append(&Instruction{Code: Nop})
	jump := l.Append(&Instruction{Code: Goto, Operand: NoHandle})
	c := l.Append(&Instruction{Code: ReturnVoid})
	b := l.InsertAfter(a, &Instruction{Code: Const, Operand: int32(1)})
	l.SetTarget(jump, c)

	require.Equal(t, 4, l.Len())
	require.Equal(t, a, l.First())
	require.Equal(t, c, l.Last())
	require.Equal(t, b, l.Next(a))
	require.Equal(t, []int{0, 2, 3, 1}, l.Positions())

	insts, err := l.Flatten()
	require.NoError(t, err)
	require.Len(t, insts, 4)
	require.Equal(t, Const, insts[1].Code)
	require.Same(t, insts[3], insts[2].Target())
	require.Equal(t, 3, insts[2].Target().Offset)

	require.Panics(t, func() { l.Append(&Instruction{Code: Nop}) })
}

func TestListInsertAtTail(t *testing.T) {
	l := NewList()
	a := l.Append(&Instruction{Code: Nop})
	b := l.InsertAfter(a, &Instruction{Code: ReturnVoid})
	require.Equal(t, b, l.Last())
	require.Equal(t, a, l.Prev(b))
	require.Equal(t, NoHandle, l.Next(b))
}

func TestListUnresolvedTargets(t *testing.T) {
	l := NewList()
	l.Append(&Instruction{Code: IfEqz, Operand: NoHandle})
	_, err := l.Flatten()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unresolved target")

	l = NewList()
	sw := l.Append(&Instruction{Code: PackedSwitch, Operand: []Handle{NoHandle, NoHandle}})
	l.SetCaseTarget(sw, 0, sw)
	_, err = l.Flatten()
	require.Error(t, err)
	require.Contains(t, err.Error(), "case 1")
}

func TestDisassemble(t *testing.T) {
	l := NewList()
	r := &Register{Index: 0, Category: Temp, Type: types.IntType}
	w := &Register{Index: 1, Category: Variable, Type: types.LongType, Wide: true}
	start := l.Append(&Instruction{Code: Const, Operand: int32(7), Registers: []*Register{r}})
	jump := l.Append(&Instruction{Code: Goto, Operand: NoHandle})
	end := l.Append(&Instruction{Code: ReturnWide, Registers: []*Register{w}})
	l.SetTarget(jump, end)
	insts, err := l.Flatten()
	require.NoError(t, err)

	handlers := []*ExceptionHandler{{
		TryStart: l.At(start),
		TryEnd:   l.At(jump),
		Catches:  []Catch{{Type: types.ThrowableType, Handler: l.At(end)}},
	}}
	out := Disassemble("Demo::f()long", insts, handlers)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, "== Demo::f()long ==", lines[0])
	require.Contains(t, lines[1], "const")
	require.Contains(t, lines[1], "v0, #7")
	require.Contains(t, lines[2], "goto")
	require.Contains(t, lines[2], "0002")
	require.Contains(t, lines[3], "v1:v2")
	require.Equal(t, "handlers:", lines[4])
	require.Equal(t, "  [0000..0001] java.lang.Throwable -> 0002", lines[5])

	require.True(t, handlers[0].Covers(1))
	require.False(t, handlers[0].Covers(2))
}

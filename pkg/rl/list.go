package rl

import (
	"fmt"

	"github.com/dot42/dot42-sub006/pkg/source"
)

// Handle addresses an instruction in a List. Handles stay valid for the
// lifetime of the list, across insertions and operand patches.
type Handle int32

// NoHandle is the zero target.
const NoHandle Handle = -1

// Instruction is one emitted operation.
type Instruction struct {
	Code      OpCode
	Operand   interface{}
	Registers []*Register
	Position  source.Position
	// Offset is the instruction's index in the flattened list.
	Offset int
}

// Target returns the branch target of a flattened Goto or If instruction.
func (i *Instruction) Target() *Instruction {
	t, _ := i.Operand.(*Instruction)
	return t
}

// Targets returns the case targets of a flattened PackedSwitch.
func (i *Instruction) Targets() []*Instruction {
	t, _ := i.Operand.([]*Instruction)
	return t
}

// List is the ordered, mutable instruction list of one method. Instructions
// live in an arena indexed by Handle and are linked in program order; nothing
// is ever removed.
type List struct {
	insts      []*Instruction
	next, prev []Handle
	head, tail Handle
	frozen     bool
}

// NewList creates an empty list.
func NewList() *List {
	return &List{head: NoHandle, tail: NoHandle}
}

// Len returns the number of instructions.
func (l *List) Len() int { return len(l.insts) }

// First returns the first instruction in program order.
func (l *List) First() Handle { return l.head }

// Last returns the last instruction in program order.
func (l *List) Last() Handle { return l.tail }

// Next returns the instruction following h, or NoHandle.
func (l *List) Next(h Handle) Handle { return l.next[h] }

// Prev returns the instruction preceding h, or NoHandle.
func (l *List) Prev(h Handle) Handle { return l.prev[h] }

// At returns the instruction addressed by h.
func (l *List) At(h Handle) *Instruction { return l.insts[h] }

func (l *List) add(inst *Instruction) Handle {
	if l.frozen {
		panic("rl: list modified after Flatten")
	}
	h := Handle(len(l.insts))
	l.insts = append(l.insts, inst)
	l.next = append(l.next, NoHandle)
	l.prev = append(l.prev, NoHandle)
	return h
}

// Append adds inst at the end of the list.
func (l *List) Append(inst *Instruction) Handle {
	h := l.add(inst)
	if l.tail == NoHandle {
		l.head = h
	} else {
		l.next[l.tail] = h
		l.prev[h] = l.tail
	}
	l.tail = h
	return h
}

// InsertAfter links inst directly after at.
func (l *List) InsertAfter(at Handle, inst *Instruction) Handle {
	h := l.add(inst)
	n := l.next[at]
	l.next[at] = h
	l.prev[h] = at
	l.next[h] = n
	if n == NoHandle {
		l.tail = h
	} else {
		l.prev[n] = h
	}
	return h
}

// SetTarget patches the branch target of h.
func (l *List) SetTarget(h, target Handle) {
	if l.frozen {
		panic("rl: list patched after Flatten")
	}
	l.insts[h].Operand = target
}

// SetCaseTarget patches case i of the packed-switch at h.
func (l *List) SetCaseTarget(h Handle, i int, target Handle) {
	if l.frozen {
		panic("rl: list patched after Flatten")
	}
	l.insts[h].Operand.([]Handle)[i] = target
}

// Positions returns the program-order index of every instruction.
func (l *List) Positions() []int {
	pos := make([]int, len(l.insts))
	i := 0
	for h := l.head; h != NoHandle; h = l.next[h] {
		pos[h] = i
		i++
	}
	return pos
}

// Flatten returns the instructions in program order with branch operands
// rewritten from handles to instruction pointers. The list is frozen
// afterwards.
func (l *List) Flatten() ([]*Instruction, error) {
	out := make([]*Instruction, 0, len(l.insts))
	for h := l.head; h != NoHandle; h = l.next[h] {
		inst := l.insts[h]
		inst.Offset = len(out)
		out = append(out, inst)
	}
	for _, inst := range out {
		switch op := inst.Operand.(type) {
		case Handle:
			if !inst.Code.IsBranch() {
				continue
			}
			if op == NoHandle {
				return nil, fmt.Errorf("%s at %d has an unresolved target", inst.Code, inst.Offset)
			}
			inst.Operand = l.insts[op]
		case []Handle:
			targets := make([]*Instruction, len(op))
			for i, t := range op {
				if t == NoHandle {
					return nil, fmt.Errorf("%s at %d has an unresolved case %d", inst.Code, inst.Offset, i)
				}
				targets[i] = l.insts[t]
			}
			inst.Operand = targets
		}
	}
	l.frozen = true
	return out, nil
}

package rl

import (
	"fmt"
	"io"
	"strings"
)

// Style decorates disassembly tokens. Nil fields print tokens unchanged.
type Style struct {
	Op     func(a ...interface{}) string
	Reg    func(a ...interface{}) string
	Target func(a ...interface{}) string
	Note   func(a ...interface{}) string
}

func apply(f func(a ...interface{}) string, s string) string {
	if f == nil {
		return s
	}
	return f(s)
}

// Disassemble renders flattened instructions and their handler table.
func Disassemble(name string, insts []*Instruction, handlers []*ExceptionHandler) string {
	var b strings.Builder
	DisassembleTo(&b, name, insts, handlers, Style{})
	return b.String()
}

// DisassembleTo writes the disassembly of insts to w.
func DisassembleTo(w io.Writer, name string, insts []*Instruction, handlers []*ExceptionHandler, style Style) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for _, inst := range insts {
		line := "   "
		if inst.Position.IsKnown() {
			line = fmt.Sprintf("%3d", inst.Position.Line)
		}
		fmt.Fprintf(w, "%04d %s  %s\n", inst.Offset, apply(style.Note, line), FormatInstruction(inst, style))
	}
	if len(handlers) == 0 {
		return
	}
	fmt.Fprintln(w, "handlers:")
	for _, h := range handlers {
		var clauses []string
		for _, c := range h.Catches {
			clauses = append(clauses, fmt.Sprintf("%s -> %s", c.Type, apply(style.Target, label(c.Handler))))
		}
		if h.CatchAll != nil {
			clauses = append(clauses, fmt.Sprintf("* -> %s", apply(style.Target, label(h.CatchAll))))
		}
		fmt.Fprintf(w, "  [%04d..%04d] %s\n", h.TryStart.Offset, h.TryEnd.Offset, strings.Join(clauses, ", "))
	}
}

func label(i *Instruction) string {
	return fmt.Sprintf("%04d", i.Offset)
}

// FormatInstruction renders one flattened instruction.
func FormatInstruction(inst *Instruction, style Style) string {
	var parts []string
	for _, r := range inst.Registers {
		parts = append(parts, apply(style.Reg, r.String()))
	}
	switch op := inst.Operand.(type) {
	case nil:
	case *Instruction:
		parts = append(parts, apply(style.Target, label(op)))
	case []*Instruction:
		targets := make([]string, len(op))
		for i, t := range op {
			targets[i] = label(t)
		}
		parts = append(parts, apply(style.Target, "["+strings.Join(targets, " ")+"]"))
	case string:
		parts = append(parts, fmt.Sprintf("%q", op))
	case int32, int64:
		parts = append(parts, fmt.Sprintf("#%d", op))
	default:
		parts = append(parts, fmt.Sprintf("%v", op))
	}
	return fmt.Sprintf("%-22s %s", apply(style.Op, inst.Code.String()), strings.Join(parts, ", "))
}

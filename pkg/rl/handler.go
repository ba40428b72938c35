package rl

import "github.com/dot42/dot42-sub006/pkg/types"

// Catch is one typed clause of an ExceptionHandler.
type Catch struct {
	Type    *types.TypeRef
	Handler *Instruction
}

// ExceptionHandler represents an entry in the exception table. The guarded
// range runs from TryStart to TryEnd inclusive, in list order. Handlers are
// ordered innermost first.
type ExceptionHandler struct {
	TryStart *Instruction
	TryEnd   *Instruction
	Catches  []Catch
	CatchAll *Instruction // nil when exceptions not matching Catches propagate
}

// Covers reports whether the instruction at offset lies in the guarded range.
// Offsets are only meaningful after the list has been flattened.
func (h *ExceptionHandler) Covers(offset int) bool {
	return offset >= h.TryStart.Offset && offset <= h.TryEnd.Offset
}

package vm

import (
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// Runtime exception classes raised by the interpreter itself.
var (
	RuntimeException               = &types.TypeRef{Kind: types.Class, Name: "java.lang.RuntimeException", Super: exceptionType}
	ArithmeticException            = &types.TypeRef{Kind: types.Class, Name: "java.lang.ArithmeticException", Super: RuntimeException}
	ClassCastException             = &types.TypeRef{Kind: types.Class, Name: "java.lang.ClassCastException", Super: RuntimeException}
	NullPointerException           = &types.TypeRef{Kind: types.Class, Name: "java.lang.NullPointerException", Super: RuntimeException}
	NegativeArraySizeException     = &types.TypeRef{Kind: types.Class, Name: "java.lang.NegativeArraySizeException", Super: RuntimeException}
	ArrayIndexOutOfBoundsException = &types.TypeRef{Kind: types.Class, Name: "java.lang.ArrayIndexOutOfBoundsException", Super: RuntimeException}
	IllegalMonitorStateException   = &types.TypeRef{Kind: types.Class, Name: "java.lang.IllegalMonitorStateException", Super: RuntimeException}
	OverflowException              = &types.TypeRef{Kind: types.Class, Name: "System.OverflowException", Super: ArithmeticException}

	exceptionType = &types.TypeRef{Kind: types.Class, Name: "java.lang.Exception", Super: types.ThrowableType}
)

func nullPointer(what string) *Thrown {
	return Throw(NullPointerException, what+" on null")
}

// findHandler returns the entry of the first handler, innermost first, whose
// range covers offset and which accepts ex.
func findHandler(handlers []*rl.ExceptionHandler, offset int, ex Value) *rl.Instruction {
	for _, h := range handlers {
		if !h.Covers(offset) {
			continue
		}
		for _, c := range h.Catches {
			if instanceOf(ex, c.Type) {
				return c.Handler
			}
		}
		if h.CatchAll != nil {
			return h.CatchAll
		}
	}
	return nil
}

// deliver transfers control to the handler for an exception raised at
// offset. It reports false when the exception leaves the method.
func (f *frame) deliver(offset int, ex Value) bool {
	entry := findHandler(f.res.Handlers, offset, ex)
	if entry == nil {
		return false
	}
	f.vm.log.Trace().Int("at", offset).Int("handler", entry.Offset).Str("exception", ex.String()).Msg("exception caught")
	f.exception = ex
	f.jump(entry)
	return true
}

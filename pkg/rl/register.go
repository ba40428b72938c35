package rl

import (
	"fmt"

	"github.com/dot42/dot42-sub006/pkg/types"
)

// Category classifies a virtual register.
type Category uint8

const (
	Argument Category = iota
	Variable
	VariablePinned
	Temp
)

func (c Category) String() string {
	return [...]string{"arg", "var", "pinned", "temp"}[c]
}

// Register is a virtual register. Registers are shared by pointer; Index is
// assigned by the frame and rewritten when the frame is finished.
type Register struct {
	Index    int
	Category Category
	Type     *types.TypeRef
	Wide     bool   // occupies Index and Index+1
	Name     string // variable or parameter name, if any
}

// Slots returns the number of register slots r occupies.
func (r *Register) Slots() int {
	if r.Wide {
		return 2
	}
	return 1
}

// IsTemp reports whether r is a temporary.
func (r *Register) IsTemp() bool { return r.Category == Temp }

func (r *Register) String() string {
	if r.Wide {
		return fmt.Sprintf("v%d:v%d", r.Index, r.Index+1)
	}
	return fmt.Sprintf("v%d", r.Index)
}

package compiler

import (
	"fmt"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/errors"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/source"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// Frame allocates and classifies the virtual registers of one method.
//
// Arguments are allocated once, in signature order, with "this" first.
// Named variables are allocated on first use and reused by identity.
// Temporaries are always fresh; nothing is recycled within a method.
//
// Until Finish is called, argument registers are numbered from zero in
// their own space. Finish moves them above the locals, so the final layout
// is [variables and temporaries][this][parameters][generic arguments].
type Frame struct {
	method   *types.MethodRef
	locals   []*rl.Register
	args     []*rl.Register
	this     *rl.Register
	generic  *rl.Register
	params   map[*ast.Parameter]*rl.Register
	vars     map[*ast.Variable]*rl.Register
	nextSlot int // next free local slot
	argSlots int // slots consumed by arguments so far
	finished bool
}

// NewFrame allocates the argument registers of m and checks them against its
// declared signature. A mismatch means the front-end and the resolved
// metadata disagree; it is reported as an InternalError.
func NewFrame(m *Method) (*Frame, error) {
	f := &Frame{
		method: m.Ref,
		params: make(map[*ast.Parameter]*rl.Register),
		vars:   make(map[*ast.Variable]*rl.Register),
	}
	if !m.Ref.Static {
		f.this = f.AllocateArgument(m.Ref.Owner, nil)
		f.this.Name = "this"
	}
	for i, p := range m.Params {
		if p == nil || p.Type == nil {
			return nil, errors.Unsupportedf(m.Ref.String(), m.Body.Position, "parameter %d has no type", i)
		}
		f.AllocateArgument(p.Type, p)
	}
	if m.GenericArgCount > 0 {
		f.generic = f.AllocateArgument(types.ArrayOf(types.ClassType), nil)
		f.generic.Name = "$generics"
	}

	want := m.Ref.ArgumentSlots(m.GenericArgCount > 0)
	if len(m.Params) != len(m.Ref.Params) || f.argSlots != want {
		return nil, errors.Internalf(m.Ref.String(), m.Body.Position,
			"frame allocated %d argument registers for %d parameters, signature requires %d for %d",
			f.argSlots, len(m.Params), want, len(m.Ref.Params))
	}
	return f, nil
}

// AllocateArgument allocates the register(s) for one incoming argument.
func (f *Frame) AllocateArgument(t *types.TypeRef, p *ast.Parameter) *rl.Register {
	f.mustBeOpen()
	f.mustHaveType(t, "argument")
	r := &rl.Register{Index: f.argSlots, Category: rl.Argument, Type: t, Wide: t.IsWide()}
	f.argSlots += r.Slots()
	f.args = append(f.args, r)
	if p != nil {
		r.Name = p.Name
		f.params[p] = r
	}
	return r
}

// AllocateVariable returns the register of v, allocating it on first use.
func (f *Frame) AllocateVariable(v *ast.Variable) *rl.Register {
	if r, ok := f.vars[v]; ok {
		return r
	}
	cat := rl.Variable
	if v.Pinned {
		cat = rl.VariablePinned
	}
	f.mustHaveType(v.Type, "variable "+v.Name)
	r := f.allocLocal(v.Type, cat)
	r.Name = v.Name
	f.vars[v] = r
	return r
}

// AllocatePinned allocates an unnamed register that keeps its value for the
// whole method (exception, selector and return-value registers).
func (f *Frame) AllocatePinned(t *types.TypeRef, name string) *rl.Register {
	r := f.allocLocal(t, rl.VariablePinned)
	r.Name = name
	return r
}

// AllocateTemp allocates a fresh temporary.
func (f *Frame) AllocateTemp(t *types.TypeRef) *rl.Register {
	return f.allocLocal(t, rl.Temp)
}

func (f *Frame) allocLocal(t *types.TypeRef, cat rl.Category) *rl.Register {
	f.mustBeOpen()
	f.mustHaveType(t, "register")
	r := &rl.Register{Index: f.nextSlot, Category: cat, Type: t, Wide: t.IsWide()}
	f.nextSlot += r.Slots()
	f.locals = append(f.locals, r)
	return r
}

func (f *Frame) mustBeOpen() {
	if f.finished {
		panic(fmt.Sprintf("compiler: register allocated in finished frame of %s", f.method))
	}
}

// mustHaveType rejects registers whose type the tree left unset.
func (f *Frame) mustHaveType(t *types.TypeRef, what string) {
	if t == nil {
		panic(errors.Unsupportedf(f.method.String(), source.Position{}, "%s has no type", what))
	}
}

// This returns the receiver register, or nil for static methods.
func (f *Frame) This() *rl.Register { return f.this }

// Argument returns the register of parameter p.
func (f *Frame) Argument(p *ast.Parameter) (*rl.Register, bool) {
	r, ok := f.params[p]
	return r, ok
}

// GenericArguments returns the hidden generic-arguments register, or nil.
func (f *Frame) GenericArguments() *rl.Register { return f.generic }

// Arguments returns the argument registers in signature order.
func (f *Frame) Arguments() []*rl.Register { return f.args }

// LocalSlots returns the number of slots used by variables and temporaries.
func (f *Frame) LocalSlots() int { return f.nextSlot }

// ArgumentSlots returns the number of slots used by arguments.
func (f *Frame) ArgumentSlots() int { return f.argSlots }

// Finish assigns final register numbers and returns the register count.
func (f *Frame) Finish() int {
	if !f.finished {
		for _, r := range f.args {
			r.Index += f.nextSlot
		}
		f.finished = true
	}
	return f.nextSlot + f.argSlots
}

// Package ast defines the tree-shaped method body the compiler lowers. Trees
// are built by an upstream front-end (or pkg/fixture) and are read-only to the
// compiler.
package ast

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/dot42/dot42-sub006/pkg/source"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// Node is implemented by every tree node.
type Node interface {
	Pos() source.Position
	String() string
	node()
}

// Variable is a method-local variable. Identity is by pointer.
type Variable struct {
	Name   string
	Type   *types.TypeRef
	Pinned bool // the register must keep this variable for its whole lifetime
}

func (v *Variable) String() string { return v.Name }

// Parameter is a declared method parameter. Identity is by pointer.
type Parameter struct {
	Name string
	Type *types.TypeRef
}

func (p *Parameter) String() string { return p.Name }

// DelegateRef is the operand of NewDelegate.
type DelegateRef struct {
	Delegate *types.TypeRef   // the delegate type the expression produces
	Instance *types.TypeRef   // the concrete class implementing it for Method
	Method   *types.MethodRef // the bound method
}

// Expression is one operation with its operand and child expressions.
type Expression struct {
	Code     Code
	Operand  interface{}
	Args     []*Expression
	Type     *types.TypeRef // static type of the result; nil for void
	Position source.Position
}

func (e *Expression) Pos() source.Position { return e.Position }
func (e *Expression) node()                {}

func (e *Expression) String() string {
	var out bytes.Buffer
	out.WriteString(e.Code.String())
	if e.Operand != nil {
		fmt.Fprintf(&out, " %v", e.Operand)
	}
	if len(e.Args) > 0 {
		args := make([]string, len(e.Args))
		for i, a := range e.Args {
			args[i] = a.String()
		}
		out.WriteString("(" + strings.Join(args, ", ") + ")")
	}
	return out.String()
}

// Block is a statement list.
type Block struct {
	Body []Node
	// Scope, when set, makes the labels of the block private to it, so a
	// repeated region such as inlined code may reuse label names. Branches
	// inside the block cannot reach labels outside it.
	Scope    string
	Position source.Position
}

func (b *Block) Pos() source.Position { return b.Position }
func (b *Block) node()                {}

func (b *Block) String() string {
	var out bytes.Buffer
	out.WriteString("{ ")
	for _, n := range b.Body {
		out.WriteString(n.String())
		out.WriteString("; ")
	}
	out.WriteString("}")
	return out.String()
}

// Label marks the position of the next statement as a branch target.
type Label struct {
	Name     string
	Position source.Position
}

func (l *Label) Pos() source.Position { return l.Position }
func (l *Label) node()                {}
func (l *Label) String() string       { return l.Name + ":" }

// CatchClause is one handler of a TryBlock.
type CatchClause struct {
	ExceptionType *types.TypeRef // nil catches everything
	Variable      *Variable      // optional; receives the exception
	Body          *Block
	Position      source.Position
}

func (c *CatchClause) Pos() source.Position { return c.Position }
func (c *CatchClause) node()                {}

func (c *CatchClause) String() string {
	t := "*"
	if c.ExceptionType != nil {
		t = c.ExceptionType.String()
	}
	return fmt.Sprintf("catch(%s) %s", t, c.Body)
}

// TryBlock is a structured try with optional catch, finally and fault parts.
// Finally and Fault are mutually exclusive.
type TryBlock struct {
	Body     *Block
	Catches  []*CatchClause
	Finally  *Block
	Fault    *Block // runs only when the body exits with an exception
	Position source.Position
}

func (t *TryBlock) Pos() source.Position { return t.Position }
func (t *TryBlock) node()                {}

func (t *TryBlock) String() string {
	var out bytes.Buffer
	out.WriteString("try ")
	out.WriteString(t.Body.String())
	for _, c := range t.Catches {
		out.WriteString(" ")
		out.WriteString(c.String())
	}
	if t.Finally != nil {
		out.WriteString(" finally ")
		out.WriteString(t.Finally.String())
	}
	if t.Fault != nil {
		out.WriteString(" fault ")
		out.WriteString(t.Fault.String())
	}
	return out.String()
}

// Handler returns the body guarding the exit paths: Finally or Fault.
func (t *TryBlock) Handler() *Block {
	if t.Finally != nil {
		return t.Finally
	}
	return t.Fault
}

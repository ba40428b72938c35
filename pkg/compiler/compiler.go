// Package compiler lowers a method's expression tree into a flat list of
// register instructions plus an exception handler table.
//
// Lowering is single-threaded per method and the compiler holds no state
// between methods, so callers may compile different methods concurrently.
// Every failure is fatal for the method being compiled: Compile returns a
// CompilerError and no partial output.
package compiler

import (
	"github.com/rs/zerolog"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/errors"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/source"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// DefaultRuntimeOwner is the class holding the checked arithmetic helpers.
const DefaultRuntimeOwner = "dot42.Internal.Checked"

// ClassGenericsField is the instance field holding a generic class's type
// arguments.
const ClassGenericsField = "$g"

// Method is one method body ready for lowering.
type Method struct {
	Ref    *types.MethodRef
	Params []*ast.Parameter // declared parameters, typed as Ref.ParamType
	// GenericArgCount is the number of method type parameters. A non-zero
	// count adds a hidden trailing argument holding their runtime types.
	GenericArgCount int
	Body            *ast.Block
	Source          *source.SourceFile // optional, for diagnostics
}

// Result is the output of lowering one method.
type Result struct {
	Method        *types.MethodRef
	Instructions  []*rl.Instruction
	RegisterCount int // total slots, arguments included
	ArgumentCount int // argument slots; arguments occupy the highest registers
	Handlers      []*rl.ExceptionHandler
}

// Disassemble renders the result for debugging and golden tests.
func (r *Result) Disassemble() string {
	return rl.Disassemble(r.Method.String(), r.Instructions, r.Handlers)
}

// Option configures Compile.
type Option func(*options)

type options struct {
	log          zerolog.Logger
	runtimeOwner string
}

// WithLogger routes lowering diagnostics to log. The default discards them.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRuntimeOwner overrides the class holding the checked arithmetic helpers.
func WithRuntimeOwner(name string) Option {
	return func(o *options) { o.runtimeOwner = name }
}

// methodCompiler holds the per-method lowering state.
type methodCompiler struct {
	method *Method
	name   string
	opts   options
	log    zerolog.Logger

	list     *rl.List
	frame    *Frame
	labels   *Labels
	monitors *Monitors
	router   *router
	helpers  *runtimeHelpers

	pos           source.Position // position stamped on emitted instructions
	pendingLabels []LabelID       // labels resolving to the next emitted instruction
	reachable     bool            // whether the next emitted instruction can be reached
	catchRegs     []*rl.Register  // exception registers of the enclosing catch bodies
	handlers      []*pendingHandler
	returnReg     *rl.Register // shared return-value register for routed returns
}

// Compile lowers one method. Unsupported input shapes produce an
// *errors.UnsupportedError, broken invariants an *errors.InternalError.
func Compile(m *Method, opts ...Option) (res *Result, err error) {
	o := options{log: zerolog.Nop(), runtimeOwner: DefaultRuntimeOwner}
	for _, opt := range opts {
		opt(&o)
	}
	if m == nil || m.Ref == nil || m.Body == nil {
		return nil, errors.Internalf("<unknown>", source.Position{}, "method without reference or body")
	}

	c := &methodCompiler{
		method: m,
		name:   m.Ref.String(),
		opts:   o,
		log:    o.log.With().Str("method", m.Ref.String()).Logger(),
		list:   rl.NewList(),
		router: &router{},
	}
	c.labels = NewLabels(c.list)
	c.monitors = newMonitors()
	c.helpers = newRuntimeHelpers(o.runtimeOwner)

	defer func() {
		if r := recover(); r != nil {
			ce, ok := r.(errors.CompilerError)
			if !ok {
				ce = errors.Internalf(c.name, c.positionOr(c.pos), "%v", r)
			}
			c.log.Debug().Str("kind", ce.Kind()).Msg(ce.Message())
			res, err = nil, ce
		}
	}()

	frame, ferr := NewFrame(m)
	if ferr != nil {
		return nil, ferr
	}
	c.frame = frame
	return c.compile()
}

func (c *methodCompiler) compile() (*Result, error) {
	m := c.method
	c.log.Debug().Int("args", c.frame.ArgumentSlots()).Msg("lowering method")

	c.reachable = true
	c.lowerBlock(m.Body)

	if c.reachable {
		if !m.Ref.Return.IsVoid() {
			c.unsupported(m.Body.Position, "control reaches the end of a method returning %s", m.Ref.Return)
		}
		c.emitReturn(nil)
	} else if len(c.pendingLabels) > 0 {
		c.emit(rl.Nop, nil)
	}
	if missing := c.labels.Unresolved(); len(missing) > 0 {
		c.unsupported(m.Body.Position, "branch to undefined label %s", missing[0])
	}

	c.finishFinallyBlocks()

	count := c.frame.Finish()
	insts, err := c.list.Flatten()
	if err != nil {
		c.internal(m.Body.Position, "%v", err)
	}
	res := &Result{
		Method:        m.Ref,
		Instructions:  insts,
		RegisterCount: count,
		ArgumentCount: c.frame.ArgumentSlots(),
		Handlers:      c.flattenHandlers(),
	}
	c.log.Debug().
		Int("instructions", len(insts)).
		Int("registers", count).
		Int("handlers", len(res.Handlers)).
		Msg("lowered method")
	return res, nil
}

// --- Fatal errors ---

func (c *methodCompiler) unsupported(pos source.Position, format string, args ...interface{}) {
	panic(errors.Unsupportedf(c.name, c.positionOr(pos), format, args...))
}

func (c *methodCompiler) internal(pos source.Position, format string, args ...interface{}) {
	panic(errors.Internalf(c.name, c.positionOr(pos), format, args...))
}

func (c *methodCompiler) positionOr(pos source.Position) source.Position {
	if !pos.IsKnown() {
		pos = c.pos
	}
	if pos.File == nil {
		pos.File = c.method.Source
	}
	return pos
}

// --- Handler table ---

type pendingCatch struct {
	typ     *types.TypeRef
	handler rl.Handle
}

// pendingHandler is an exception table entry addressed by handles.
type pendingHandler struct {
	tryStart, tryEnd rl.Handle
	catches          []pendingCatch
	catchAll         rl.Handle
}

func (c *methodCompiler) addHandler(h *pendingHandler) {
	c.log.Trace().
		Int("start", int(h.tryStart)).
		Int("end", int(h.tryEnd)).
		Int("catches", len(h.catches)).
		Bool("catchAll", h.catchAll != rl.NoHandle).
		Msg("exception handler")
	c.handlers = append(c.handlers, h)
}

func (c *methodCompiler) flattenHandlers() []*rl.ExceptionHandler {
	out := make([]*rl.ExceptionHandler, 0, len(c.handlers))
	for _, h := range c.handlers {
		eh := &rl.ExceptionHandler{
			TryStart: c.list.At(h.tryStart),
			TryEnd:   c.list.At(h.tryEnd),
		}
		for _, ct := range h.catches {
			eh.Catches = append(eh.Catches, rl.Catch{Type: ct.typ, Handler: c.list.At(ct.handler)})
		}
		if h.catchAll != rl.NoHandle {
			eh.CatchAll = c.list.At(h.catchAll)
		}
		out = append(out, eh)
	}
	return out
}

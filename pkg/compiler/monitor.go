package compiler

import (
	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/rl"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// Monitors caches one register per lock field so that the enter and exit of
// the same lock use the same register, even when the field is loaded twice.
type Monitors struct {
	byField map[string]*rl.Register
}

func newMonitors() *Monitors {
	return &Monitors{byField: make(map[string]*rl.Register)}
}

// register returns the cached register for f, allocating it via alloc.
func (m *Monitors) register(f *types.FieldRef, alloc func() *rl.Register) *rl.Register {
	key := f.String()
	if f.Static {
		key = "static " + key
	}
	r, ok := m.byField[key]
	if !ok {
		r = alloc()
		m.byField[key] = r
	}
	return r
}

// lowerMonitor lowers MonitorEnter and MonitorExit. When the lock value is a
// field load, it is first moved into the field's cached register.
func (c *methodCompiler) lowerMonitor(e *ast.Expression, args []Range) *rl.Register {
	op := rl.MonitorEnter
	if e.Code == ast.MonitorExit {
		op = rl.MonitorExit
	}
	lock := args[0].Result
	if f, ok := lockField(e.Args[0]); ok {
		cached := c.monitors.register(f, func() *rl.Register {
			return c.frame.AllocatePinned(f.Type, "$lock."+f.Name)
		})
		c.emit(rl.MoveObject, nil, cached, lock)
		lock = cached
	}
	c.emit(op, nil, lock)
	return nil
}

func lockField(e *ast.Expression) (*types.FieldRef, bool) {
	if e.Code != ast.Ldfld && e.Code != ast.Ldsfld {
		return nil, false
	}
	f, ok := e.Operand.(*types.FieldRef)
	return f, ok
}

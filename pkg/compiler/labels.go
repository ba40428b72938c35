package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dot42/dot42-sub006/pkg/rl"
)

// LabelID is a label name qualified by the context it was created in.
type LabelID string

// labelPatch is an instruction operand waiting for a label to resolve.
// caseIndex is -1 for a plain branch target.
type labelPatch struct {
	inst      rl.Handle
	caseIndex int
}

type labelState struct {
	target   rl.Handle
	resolved bool
	pending  []labelPatch
	refs     int
}

// Labels binds symbolic labels to instructions and patches the branches that
// reference them. Forward references are queued and applied when the label
// resolves; backward references are patched immediately.
type Labels struct {
	list     *rl.List
	labels   map[LabelID]*labelState
	contexts []string
	fresh    int
}

// NewLabels creates a label manager patching instructions of list.
func NewLabels(list *rl.List) *Labels {
	return &Labels{list: list, labels: make(map[LabelID]*labelState)}
}

// PushContext opens a nested label scope; names created inside it do not
// collide with the same names outside. Call the returned func to close it.
func (lm *Labels) PushContext(name string) (pop func()) {
	lm.contexts = append(lm.contexts, name)
	depth := len(lm.contexts)
	return func() {
		if len(lm.contexts) != depth {
			panic(fmt.Sprintf("compiler: label context %q closed out of order", name))
		}
		lm.contexts = lm.contexts[:depth-1]
	}
}

// ID qualifies name with the current context.
func (lm *Labels) ID(name string) LabelID {
	if len(lm.contexts) == 0 {
		return LabelID(name)
	}
	return LabelID(strings.Join(lm.contexts, "/") + "/" + name)
}

// Fresh returns a label that is unique within the method.
func (lm *Labels) Fresh(prefix string) LabelID {
	lm.fresh++
	return LabelID(fmt.Sprintf("$%s.%d", prefix, lm.fresh))
}

func (lm *Labels) state(id LabelID) *labelState {
	s, ok := lm.labels[id]
	if !ok {
		s = &labelState{target: rl.NoHandle}
		lm.labels[id] = s
	}
	return s
}

// SetTarget resolves id to inst and applies every queued patch. Resolving a
// label twice to different instructions is an error.
func (lm *Labels) SetTarget(id LabelID, inst rl.Handle) error {
	s := lm.state(id)
	if s.resolved {
		if s.target != inst {
			return fmt.Errorf("label %s resolved twice", id)
		}
		return nil
	}
	s.target = inst
	s.resolved = true
	for _, p := range s.pending {
		lm.apply(p, inst)
	}
	s.pending = nil
	return nil
}

// AddResolveAction makes the operand of inst point at id once id resolves.
// caseIndex selects a packed-switch case; use -1 for a plain branch.
func (lm *Labels) AddResolveAction(id LabelID, inst rl.Handle, caseIndex int) {
	s := lm.state(id)
	s.refs++
	p := labelPatch{inst: inst, caseIndex: caseIndex}
	if s.resolved {
		lm.apply(p, s.target)
		return
	}
	s.pending = append(s.pending, p)
}

func (lm *Labels) apply(p labelPatch, target rl.Handle) {
	if p.caseIndex < 0 {
		lm.list.SetTarget(p.inst, target)
		return
	}
	lm.list.SetCaseTarget(p.inst, p.caseIndex, target)
}

// Target returns the instruction id resolved to.
func (lm *Labels) Target(id LabelID) (rl.Handle, bool) {
	s, ok := lm.labels[id]
	if !ok || !s.resolved {
		return rl.NoHandle, false
	}
	return s.target, true
}

// Referenced reports whether any branch refers to id.
func (lm *Labels) Referenced(id LabelID) bool {
	s, ok := lm.labels[id]
	return ok && s.refs > 0
}

// Unresolved lists labels that are referenced but were never resolved.
func (lm *Labels) Unresolved() []LabelID {
	var out []LabelID
	for id, s := range lm.labels {
		if !s.resolved && len(s.pending) > 0 {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

package fixture

import (
	"strings"

	"github.com/dlclark/regexp2"
	"github.com/pkg/errors"

	"github.com/dot42/dot42-sub006/pkg/types"
)

var (
	methodPattern = regexp2.MustCompile(
		`^\s*(?:(?<mod>static|virtual)\s+)?(?<owner>[^\s:]+)::(?<name>[^\s(]+)\((?<params>[^)]*)\)\s*(?<ret>\S+)\s*$`,
		regexp2.None)
	fieldPattern = regexp2.MustCompile(
		`^\s*(?<owner>[^\s:]+)\.(?<name>[^\s.:]+)\s*:\s*(?<type>\S+)\s*$`,
		regexp2.None)
)

// Registry interns type references by name so that every mention of a class
// in a fixture yields the same *types.TypeRef.
type Registry struct {
	classes map[string]*types.TypeRef
	builtin map[string]bool
}

var primitives = map[string]*types.TypeRef{
	"void":   types.VoidType,
	"bool":   types.BoolType,
	"sbyte":  types.SByteType,
	"byte":   types.ByteType,
	"char":   types.CharType,
	"short":  types.ShortType,
	"ushort": types.UShortType,
	"int":    types.IntType,
	"uint":   types.UIntType,
	"long":   types.LongType,
	"ulong":  types.ULongType,
	"float":  types.FloatType,
	"double": types.DoubleType,
}

// NewRegistry returns a registry knowing the well-known runtime classes.
func NewRegistry() *Registry {
	r := &Registry{classes: make(map[string]*types.TypeRef), builtin: make(map[string]bool)}
	for _, t := range []*types.TypeRef{types.ObjectType, types.StringType, types.ClassType, types.ThrowableType} {
		r.classes[t.Name] = t
		r.builtin[t.Name] = true
	}
	exception := r.Declare("java.lang.Exception", types.ThrowableType, false)
	r.Declare("java.lang.RuntimeException", exception, false)
	return r
}

// Declare registers a class. A later declaration of the same name updates
// the existing reference in place. The predeclared classes of package types
// are never modified.
func (r *Registry) Declare(name string, super *types.TypeRef, iface bool) *types.TypeRef {
	if r.builtin[name] {
		return r.classes[name]
	}
	if super == nil {
		super = types.ObjectType
	}
	t, ok := r.classes[name]
	if !ok {
		t = &types.TypeRef{Kind: types.Class, Name: name}
		r.classes[name] = t
	}
	t.Super = super
	t.Interface = iface
	return t
}

// Type resolves a type name: a primitive keyword, "T[]", "!N" for a type
// parameter, or a class name. Unknown classes are declared on first use.
func (r *Registry) Type(name string) (*types.TypeRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("empty type name")
	}
	if t, ok := primitives[name]; ok {
		return t, nil
	}
	if strings.HasSuffix(name, "[]") {
		elem, err := r.Type(strings.TrimSuffix(name, "[]"))
		if err != nil {
			return nil, err
		}
		return types.ArrayOf(elem), nil
	}
	if strings.HasPrefix(name, "!") {
		var idx int
		for _, ch := range name[1:] {
			if ch < '0' || ch > '9' {
				return nil, errors.Errorf("bad type parameter %q", name)
			}
			idx = idx*10 + int(ch-'0')
		}
		if len(name) == 1 {
			return nil, errors.Errorf("bad type parameter %q", name)
		}
		return types.GenericParamAt(idx), nil
	}
	if t, ok := r.classes[name]; ok {
		return t, nil
	}
	return r.Declare(name, nil, false), nil
}

// Method parses a descriptor of the form
//
//	[static|virtual] Owner::name(p1,ref p2)ret
//
// A method named <init> is a constructor.
func (r *Registry) Method(desc string) (*types.MethodRef, error) {
	m, err := methodPattern.FindStringMatch(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "method descriptor %q", desc)
	}
	if m == nil {
		return nil, errors.Errorf("malformed method descriptor %q", desc)
	}
	owner, err := r.Type(m.GroupByName("owner").String())
	if err != nil {
		return nil, err
	}
	ret, err := r.Type(m.GroupByName("ret").String())
	if err != nil {
		return nil, err
	}
	ref := &types.MethodRef{
		Owner:  owner,
		Name:   m.GroupByName("name").String(),
		Return: ret,
	}
	switch m.GroupByName("mod").String() {
	case "static":
		ref.Static = true
	case "virtual":
		ref.Virtual = true
	}
	ref.Constructor = ref.Name == "<init>"

	if params := strings.TrimSpace(m.GroupByName("params").String()); params != "" {
		for _, p := range strings.Split(params, ",") {
			p = strings.TrimSpace(p)
			byRef := strings.HasPrefix(p, "ref ")
			if byRef {
				p = strings.TrimPrefix(p, "ref ")
			}
			t, err := r.Type(p)
			if err != nil {
				return nil, errors.Wrapf(err, "method descriptor %q", desc)
			}
			ref.Params = append(ref.Params, types.Param{Type: t, ByRef: byRef})
		}
	}
	return ref, nil
}

// Field parses a descriptor of the form Owner.name:type.
func (r *Registry) Field(desc string, static bool) (*types.FieldRef, error) {
	m, err := fieldPattern.FindStringMatch(desc)
	if err != nil {
		return nil, errors.Wrapf(err, "field descriptor %q", desc)
	}
	if m == nil {
		return nil, errors.Errorf("malformed field descriptor %q", desc)
	}
	owner, err := r.Type(m.GroupByName("owner").String())
	if err != nil {
		return nil, err
	}
	t, err := r.Type(m.GroupByName("type").String())
	if err != nil {
		return nil, err
	}
	return &types.FieldRef{Owner: owner, Name: m.GroupByName("name").String(), Type: t, Static: static}, nil
}

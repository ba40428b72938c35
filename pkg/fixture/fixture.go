// Package fixture decodes YAML descriptions of methods into the trees the
// compiler lowers. Fixtures drive the command line tool and the end-to-end
// tests.
//
// A fixture file looks like:
//
//	classes:
//	  - name: Demo.Failure
//	    super: java.lang.RuntimeException
//	methods:
//	  - method: static Demo::clamp(int)int
//	    params: [x]
//	    locals:
//	      - {name: r, type: int}
//	    body:
//	      - try:
//	          body:
//	            - {op: stloc, operand: r, args: [{op: ldarg, operand: x}]}
//	            - {op: leave, operand: done}
//	          finally:
//	            - {op: nop}
//	      - label: done
//	      - {op: ret, args: [{op: ldloc, operand: r}]}
//
// Every statement is a mapping holding exactly one of label, block, try or
// op. A block may carry a scope that keeps its labels private. Expression
// operands are interpreted according to the op.
package fixture

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/source"
	"github.com/dot42/dot42-sub006/pkg/types"
)

// File is a decoded fixture.
type File struct {
	Source  *source.SourceFile
	Types   *Registry
	Methods []*compiler.Method
}

// Method returns the method whose descriptor or bare name is name.
func (f *File) Method(name string) *compiler.Method {
	for _, m := range f.Methods {
		if m.Ref.String() == name || m.Ref.Name == name {
			return m
		}
	}
	return nil
}

type fileSpec struct {
	Classes []classSpec  `yaml:"classes"`
	Methods []methodSpec `yaml:"methods"`
}

type classSpec struct {
	Name      string `yaml:"name"`
	Super     string `yaml:"super"`
	Interface bool   `yaml:"interface"`
}

type methodSpec struct {
	Method   string      `yaml:"method"`
	Generics int         `yaml:"generics"`
	Params   []string    `yaml:"params"`
	Locals   []localSpec `yaml:"locals"`
	Body     yaml.Node   `yaml:"body"`
}

type localSpec struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Pinned bool   `yaml:"pinned"`
}

type trySpec struct {
	Body    yaml.Node   `yaml:"body"`
	Catches []catchSpec `yaml:"catches"`
	Finally yaml.Node   `yaml:"finally"`
	Fault   yaml.Node   `yaml:"fault"`
}

type catchSpec struct {
	Type string    `yaml:"type"` // empty catches everything
	Var  string    `yaml:"var"`
	Body yaml.Node `yaml:"body"`
}

type exprSpec struct {
	Op      string      `yaml:"op"`
	Type    string      `yaml:"type"`
	Operand yaml.Node   `yaml:"operand"`
	Args    []yaml.Node `yaml:"args"`
}

type delegateSpec struct {
	Delegate string `yaml:"delegate"`
	Instance string `yaml:"instance"`
	Method   string `yaml:"method"`
}

// Load reads and decodes a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading fixture")
	}
	return Parse(source.FromFile(path, string(data)))
}

// ParseString decodes a fixture held in memory.
func ParseString(name, content string) (*File, error) {
	return Parse(source.NewSourceFile(name, "", content))
}

// Parse decodes the fixture held in src.
func Parse(src *source.SourceFile) (*File, error) {
	var spec fileSpec
	if err := yaml.Unmarshal([]byte(src.Content), &spec); err != nil {
		return nil, errors.Wrapf(err, "%s", src.DisplayPath())
	}
	f := &File{Source: src, Types: NewRegistry()}

	// Two passes so that classes may name supers declared later.
	for _, c := range spec.Classes {
		f.Types.Declare(c.Name, nil, c.Interface)
	}
	for _, c := range spec.Classes {
		var super *types.TypeRef
		if c.Super != "" {
			t, err := f.Types.Type(c.Super)
			if err != nil {
				return nil, errors.Wrapf(err, "class %s", c.Name)
			}
			super = t
		}
		f.Types.Declare(c.Name, super, c.Interface)
	}

	for i := range spec.Methods {
		m, err := f.method(&spec.Methods[i])
		if err != nil {
			return nil, err
		}
		f.Methods = append(f.Methods, m)
	}
	return f, nil
}

// methodDecoder carries the scopes of one method while its body is decoded.
type methodDecoder struct {
	file   *File
	ref    *types.MethodRef
	locals map[string]*ast.Variable
	params map[string]*ast.Parameter
}

func (f *File) method(spec *methodSpec) (*compiler.Method, error) {
	ref, err := f.Types.Method(spec.Method)
	if err != nil {
		return nil, err
	}
	d := &methodDecoder{
		file:   f,
		ref:    ref,
		locals: make(map[string]*ast.Variable),
		params: make(map[string]*ast.Parameter),
	}
	m := &compiler.Method{Ref: ref, GenericArgCount: spec.Generics, Source: f.Source}

	for i := range ref.Params {
		name := paramName(spec.Params, i)
		param := &ast.Parameter{Name: name, Type: ref.ParamType(i)}
		d.params[name] = param
		m.Params = append(m.Params, param)
	}
	for _, l := range spec.Locals {
		t, err := f.Types.Type(l.Type)
		if err != nil {
			return nil, d.errorf(&spec.Body, "local %s: %v", l.Name, err)
		}
		d.locals[l.Name] = &ast.Variable{Name: l.Name, Type: t, Pinned: l.Pinned}
	}

	body, err := d.block(&spec.Body)
	if err != nil {
		return nil, err
	}
	m.Body = body
	return m, nil
}

func paramName(names []string, i int) string {
	if i < len(names) && names[i] != "" {
		return names[i]
	}
	return "p" + strconv.Itoa(i)
}

func (d *methodDecoder) errorf(n *yaml.Node, format string, args ...interface{}) error {
	return errors.Errorf("%s: %s: %s", d.position(n), d.ref, fmt.Sprintf(format, args...))
}

func (d *methodDecoder) position(n *yaml.Node) source.Position {
	if n == nil {
		return source.Position{File: d.file.Source}
	}
	return source.At(d.file.Source, n.Line, n.Column)
}

// block decodes a statement sequence. An absent node yields an empty block.
func (d *methodDecoder) block(n *yaml.Node) (*ast.Block, error) {
	b := &ast.Block{Position: d.position(n)}
	if n.Kind == 0 {
		return b, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, d.errorf(n, "expected a statement list")
	}
	for _, item := range n.Content {
		s, err := d.statement(item)
		if err != nil {
			return nil, err
		}
		b.Body = append(b.Body, s)
	}
	return b, nil
}

func (d *methodDecoder) statement(n *yaml.Node) (ast.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, d.errorf(n, "expected a statement mapping")
	}
	switch {
	case hasKey(n, "label"):
		var name string
		if err := valueOf(n, "label").Decode(&name); err != nil {
			return nil, d.errorf(n, "label: %v", err)
		}
		return &ast.Label{Name: name, Position: d.position(n)}, nil
	case hasKey(n, "block"):
		b, err := d.block(valueOf(n, "block"))
		if err != nil {
			return nil, err
		}
		if hasKey(n, "scope") {
			if err := valueOf(n, "scope").Decode(&b.Scope); err != nil {
				return nil, d.errorf(n, "scope: %v", err)
			}
		}
		return b, nil
	case hasKey(n, "try"):
		return d.tryBlock(valueOf(n, "try"))
	}
	return d.expression(n)
}

func (d *methodDecoder) tryBlock(n *yaml.Node) (*ast.TryBlock, error) {
	var spec trySpec
	if err := n.Decode(&spec); err != nil {
		return nil, d.errorf(n, "try: %v", err)
	}
	t := &ast.TryBlock{Position: d.position(n)}
	var err error
	if t.Body, err = d.block(&spec.Body); err != nil {
		return nil, err
	}
	for i := range spec.Catches {
		cs := &spec.Catches[i]
		c := &ast.CatchClause{Position: d.position(&cs.Body)}
		if cs.Type != "" {
			if c.ExceptionType, err = d.file.Types.Type(cs.Type); err != nil {
				return nil, d.errorf(n, "catch: %v", err)
			}
		}
		if cs.Var != "" {
			c.Variable = d.catchVariable(cs.Var, c.ExceptionType)
		}
		if c.Body, err = d.block(&cs.Body); err != nil {
			return nil, err
		}
		t.Catches = append(t.Catches, c)
	}
	if spec.Finally.Kind != 0 {
		if t.Finally, err = d.block(&spec.Finally); err != nil {
			return nil, err
		}
	}
	if spec.Fault.Kind != 0 {
		if t.Fault, err = d.block(&spec.Fault); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// catchVariable returns the declared local name, declaring it with the
// caught type when the fixture did not.
func (d *methodDecoder) catchVariable(name string, t *types.TypeRef) *ast.Variable {
	if v, ok := d.locals[name]; ok {
		return v
	}
	if t == nil {
		t = types.ThrowableType
	}
	v := &ast.Variable{Name: name, Type: t}
	d.locals[name] = v
	return v
}

func hasKey(n *yaml.Node, key string) bool {
	return valueOf(n, key) != nil
}

func valueOf(n *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1]
		}
	}
	return nil
}

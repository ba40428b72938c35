package fixture

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/dot42/dot42-sub006/pkg/ast"
	"github.com/dot42/dot42-sub006/pkg/types"
)

func (d *methodDecoder) expression(n *yaml.Node) (*ast.Expression, error) {
	var spec exprSpec
	if err := n.Decode(&spec); err != nil {
		return nil, d.errorf(n, "%v", err)
	}
	if spec.Op == "" {
		return nil, d.errorf(n, "statement has none of label, block, try or op")
	}
	code, ok := ast.CodeByName(spec.Op)
	if !ok {
		return nil, d.errorf(n, "unknown op %q", spec.Op)
	}
	e := &ast.Expression{Code: code, Position: d.position(n)}

	for i := range spec.Args {
		a, err := d.expression(&spec.Args[i])
		if err != nil {
			return nil, err
		}
		e.Args = append(e.Args, a)
	}
	if err := d.operand(e, &spec.Operand); err != nil {
		return nil, d.errorf(n, "%s: %v", spec.Op, err)
	}
	if spec.Type != "" {
		t, err := d.file.Types.Type(spec.Type)
		if err != nil {
			return nil, d.errorf(n, "%v", err)
		}
		e.Type = t
	} else {
		e.Type = d.inferType(e)
	}
	return e, nil
}

// operand decodes the operand node according to the conventions of e.Code.
func (d *methodDecoder) operand(e *ast.Expression, n *yaml.Node) error {
	if n.Kind == 0 {
		if noOperand[e.Code] {
			return nil
		}
		return errors.New("missing operand")
	}
	switch e.Code {
	case ast.LdcI4:
		var v int32
		if err := n.Decode(&v); err != nil {
			return err
		}
		e.Operand = v
	case ast.LdcI8:
		var v int64
		if err := n.Decode(&v); err != nil {
			return err
		}
		e.Operand = v
	case ast.LdcR4:
		var v float32
		if err := n.Decode(&v); err != nil {
			return err
		}
		e.Operand = v
	case ast.LdcR8:
		var v float64
		if err := n.Decode(&v); err != nil {
			return err
		}
		e.Operand = v
	case ast.Ldstr:
		var v string
		if err := n.Decode(&v); err != nil {
			return err
		}
		e.Operand = v

	case ast.Ldtoken, ast.Default, ast.ConvOvf, ast.Newarr, ast.InitArray,
		ast.Castclass, ast.Isinst, ast.Box, ast.Unbox:
		t, err := d.typeNode(n)
		if err != nil {
			return err
		}
		e.Operand = t

	case ast.Ldloc, ast.Stloc:
		name, err := d.name(n)
		if err != nil {
			return err
		}
		v, ok := d.locals[name]
		if !ok {
			return errors.Errorf("undeclared local %q", name)
		}
		e.Operand = v
	case ast.Ldarg, ast.Starg:
		name, err := d.name(n)
		if err != nil {
			return err
		}
		p, ok := d.params[name]
		if !ok {
			return errors.Errorf("unknown parameter %q", name)
		}
		e.Operand = p
	case ast.AddressOf:
		name, err := d.name(n)
		if err != nil {
			return err
		}
		if v, ok := d.locals[name]; ok {
			e.Operand = v
		} else if p, ok := d.params[name]; ok {
			e.Operand = p
		} else {
			return errors.Errorf("unknown variable %q", name)
		}

	case ast.Ldfld, ast.Stfld, ast.Ldsfld, ast.Stsfld:
		desc, err := d.name(n)
		if err != nil {
			return err
		}
		f, err := d.file.Types.Field(desc, e.Code == ast.Ldsfld || e.Code == ast.Stsfld)
		if err != nil {
			return err
		}
		e.Operand = f

	case ast.Newobj, ast.Call, ast.Callvirt, ast.CallBase:
		desc, err := d.name(n)
		if err != nil {
			return err
		}
		m, err := d.file.Types.Method(desc)
		if err != nil {
			return err
		}
		e.Operand = m

	case ast.NewDelegate:
		var spec delegateSpec
		if err := n.Decode(&spec); err != nil {
			return err
		}
		ref := &ast.DelegateRef{}
		var err error
		if ref.Delegate, err = d.file.Types.Type(spec.Delegate); err != nil {
			return err
		}
		if ref.Instance, err = d.file.Types.Type(spec.Instance); err != nil {
			return err
		}
		if ref.Method, err = d.file.Types.Method(spec.Method); err != nil {
			return err
		}
		e.Operand = ref

	case ast.LdGenericArg, ast.LdClassGenericArg:
		var v int
		if err := n.Decode(&v); err != nil {
			return err
		}
		e.Operand = v

	case ast.Compound:
		name, err := d.name(n)
		if err != nil {
			return err
		}
		c, ok := ast.CodeByName(name)
		if !ok || !c.IsBinary() {
			return errors.Errorf("compound operator %q is not a binary op", name)
		}
		e.Operand = c

	case ast.Br, ast.Brtrue, ast.Brfalse, ast.Beq, ast.Bne, ast.Blt, ast.Bge, ast.Bgt, ast.Ble, ast.Leave:
		name, err := d.name(n)
		if err != nil {
			return err
		}
		e.Operand = name
	case ast.Switch:
		var labels []string
		if err := n.Decode(&labels); err != nil {
			return err
		}
		e.Operand = labels

	default:
		return errors.New("takes no operand")
	}
	return nil
}

// noOperand holds the codes whose operand is absent.
var noOperand = func() map[ast.Code]bool {
	m := make(map[ast.Code]bool)
	for _, c := range []ast.Code{
		ast.Nop, ast.Ldnull, ast.Ldthis,
		ast.Add, ast.Sub, ast.Mul, ast.Div, ast.DivUn, ast.Rem, ast.RemUn,
		ast.And, ast.Or, ast.Xor, ast.Shl, ast.Shr, ast.ShrUn, ast.Neg, ast.Not,
		ast.AddOvf, ast.AddOvfUn, ast.SubOvf, ast.SubOvfUn, ast.MulOvf, ast.MulOvfUn,
		ast.Ceq, ast.Cne, ast.Clt, ast.CltUn, ast.Cgt, ast.CgtUn, ast.Cle, ast.Cge,
		ast.LogAnd, ast.LogOr, ast.LogNot, ast.Conditional, ast.Coalesce,
		ast.ConvI1, ast.ConvU1, ast.ConvI2, ast.ConvU2, ast.ConvI4, ast.ConvI8, ast.ConvR4, ast.ConvR8,
		ast.Ldlen, ast.Ldelem, ast.Stelem,
		ast.Ret, ast.Throw, ast.Rethrow, ast.Pop, ast.MonitorEnter, ast.MonitorExit,
	} {
		m[c] = true
	}
	return m
}()

func (d *methodDecoder) name(n *yaml.Node) (string, error) {
	if n.Kind != yaml.ScalarNode {
		return "", errors.Errorf("operand must be a name")
	}
	return n.Value, nil
}

func (d *methodDecoder) typeNode(n *yaml.Node) (*types.TypeRef, error) {
	name, err := d.name(n)
	if err != nil {
		return nil, err
	}
	return d.file.Types.Type(name)
}

// inferType fills in the result type when the fixture leaves it out.
func (d *methodDecoder) inferType(e *ast.Expression) *types.TypeRef {
	switch e.Code {
	case ast.Ldnull:
		return types.ObjectType
	case ast.LdcI4:
		return types.IntType
	case ast.LdcI8:
		return types.LongType
	case ast.LdcR4:
		return types.FloatType
	case ast.LdcR8:
		return types.DoubleType
	case ast.Ldstr:
		return types.StringType
	case ast.Ldtoken:
		return types.ClassType
	case ast.Default, ast.ConvOvf, ast.Castclass, ast.Isinst, ast.Unbox:
		return e.Operand.(*types.TypeRef)
	case ast.Box:
		return types.Boxed(e.Operand.(*types.TypeRef))
	case ast.Newarr, ast.InitArray:
		return types.ArrayOf(e.Operand.(*types.TypeRef))
	case ast.Ldloc:
		return e.Operand.(*ast.Variable).Type
	case ast.Ldarg:
		return e.Operand.(*ast.Parameter).Type
	case ast.Ldthis:
		return d.ref.Owner
	case ast.Ldfld, ast.Ldsfld:
		return e.Operand.(*types.FieldRef).Type
	case ast.Newobj:
		return e.Operand.(*types.MethodRef).Owner
	case ast.Call, ast.Callvirt, ast.CallBase:
		if ret := e.Operand.(*types.MethodRef).Return; !ret.IsVoid() {
			return ret
		}
		return nil
	case ast.NewDelegate:
		return e.Operand.(*ast.DelegateRef).Delegate
	case ast.LdGenericArg, ast.LdClassGenericArg:
		return types.ClassType
	case ast.Ldlen, ast.ConvI4:
		return types.IntType
	case ast.ConvI1:
		return types.SByteType
	case ast.ConvU1:
		return types.ByteType
	case ast.ConvI2:
		return types.ShortType
	case ast.ConvU2:
		return types.CharType
	case ast.ConvI8:
		return types.LongType
	case ast.ConvR4:
		return types.FloatType
	case ast.ConvR8:
		return types.DoubleType
	case ast.LogAnd, ast.LogOr, ast.LogNot:
		return types.BoolType
	case ast.Ldelem:
		if len(e.Args) > 0 && e.Args[0].Type != nil && e.Args[0].Type.Kind == types.Array {
			return e.Args[0].Type.Elem
		}
	case ast.Conditional:
		if len(e.Args) == 3 {
			return e.Args[1].Type
		}
	case ast.Coalesce, ast.Compound:
		if len(e.Args) > 0 {
			return e.Args[0].Type
		}
	}
	if e.Code.IsComparison() {
		return types.BoolType
	}
	if (e.Code.IsBinary() || e.Code.IsChecked() || e.Code == ast.Neg || e.Code == ast.Not) && len(e.Args) > 0 {
		return e.Args[0].Type
	}
	return nil
}

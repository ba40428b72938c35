package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dot42/dot42-sub006/pkg/types"
	"github.com/dot42/dot42-sub006/pkg/vm"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <fixture.yaml> <method> [args...]",
		Short: "Lower a fixture and execute one static method on the reference interpreter",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runHandler,
	}
	cmd.Flags().Int("max-steps", vm.DefaultMaxSteps, "maximum instructions executed before aborting")
	return cmd
}

func runHandler(cmd *cobra.Command, args []string) error {
	f, results, err := loadAndCompile(cmd, args[0])
	if err != nil {
		reportErrors(cmd.ErrOrStderr(), err)
		return fmt.Errorf("%s: lowering failed", args[0])
	}
	m := f.Method(args[1])
	if m == nil {
		return fmt.Errorf("method %q not found in %s", args[1], args[0])
	}
	if !m.Ref.Static {
		return fmt.Errorf("method %s is not static", m.Ref)
	}
	if len(args)-2 != len(m.Ref.Params) {
		return fmt.Errorf("%s takes %d arguments, got %d", m.Ref, len(m.Ref.Params), len(args)-2)
	}

	machine := vm.New()
	machine.SetLogger(newLogger())
	machine.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
	var entry int
	for i, res := range results {
		machine.Define(res)
		if f.Methods[i] == m {
			entry = i
		}
	}

	var values []vm.Value
	for i, a := range args[2:] {
		p := m.Ref.Params[i]
		if p.ByRef {
			return fmt.Errorf("parameter %d of %s is passed by reference", i, m.Ref)
		}
		v, err := parseValue(p.Type, a)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		values = append(values, v)
	}

	ret, err := machine.Invoke(results[entry], values...)
	if err != nil {
		return err
	}
	printValue(cmd.OutOrStdout(), m.Ref.Return, ret)
	if n := machine.HeldMonitors(); n > 0 {
		fmt.Fprintln(cmd.ErrOrStderr(), yellow(fmt.Sprintf("warning: %d monitors still held", n)))
	}
	return nil
}

func parseValue(t *types.TypeRef, s string) (vm.Value, error) {
	switch t.Kind {
	case types.Bool:
		b, err := strconv.ParseBool(s)
		return vm.Bool(b), err
	case types.Byte, types.UByte, types.Char, types.Short, types.UShort, types.Int, types.UInt:
		n, err := strconv.ParseInt(s, 0, 64)
		return vm.Int(int32(n)), err
	case types.Long, types.ULong:
		n, err := strconv.ParseInt(s, 0, 64)
		return vm.Long(n), err
	case types.Float:
		x, err := strconv.ParseFloat(s, 32)
		return vm.Float(float32(x)), err
	case types.Double:
		x, err := strconv.ParseFloat(s, 64)
		return vm.Double(x), err
	}
	if t.Equal(types.StringType) || t.Equal(types.ObjectType) {
		return vm.String(s), nil
	}
	if s == "null" {
		return vm.Null, nil
	}
	return vm.Null, fmt.Errorf("cannot pass %q as %s", s, t)
}

func printValue(w io.Writer, t *types.TypeRef, v vm.Value) {
	switch {
	case t.IsVoid():
		fmt.Fprintln(w, faint("(void)"))
	case t.Kind == types.Bool:
		fmt.Fprintln(w, v.AsInt() != 0)
	case t.Kind == types.Float:
		fmt.Fprintln(w, v.AsFloat())
	case t.Kind == types.Double:
		fmt.Fprintln(w, v.AsDouble())
	case t.Kind == types.UInt:
		fmt.Fprintln(w, uint32(v.AsInt()))
	case t.Kind == types.ULong:
		fmt.Fprintln(w, uint64(v.AsLong()))
	default:
		fmt.Fprintln(w, v.String())
	}
}

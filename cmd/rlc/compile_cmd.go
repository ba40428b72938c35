package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/driver"
	"github.com/dot42/dot42-sub006/pkg/fixture"
	"github.com/dot42/dot42-sub006/pkg/rl"
)

func newCompileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "compile <fixture.yaml>...",
		Aliases: []string{"dis"},
		Short:   "Lower every method of the given fixtures and print the disassembly",
		Args:    cobra.MinimumNArgs(1),
		RunE:    compileHandler,
	}
	cmd.Flags().String("method", "", "only print methods whose name contains this text")
	cmd.Flags().BoolP("quiet", "q", false, "print the summary only")
	return cmd
}

func compileHandler(cmd *cobra.Command, args []string) error {
	cfg, err := driverConfig()
	if err != nil {
		return err
	}
	d := driver.New(cfg)
	filter, _ := cmd.Flags().GetString("method")
	quiet, _ := cmd.Flags().GetBool("quiet")
	out := cmd.OutOrStdout()

	var stats summary
	var failed error
	for _, path := range args {
		_, batch, err := d.CompileFile(cmd.Context(), path)
		if err != nil {
			reportErrors(cmd.ErrOrStderr(), err)
			failed = fmt.Errorf("%s: lowering failed", path)
			if batch == nil {
				stats.failed += len(driver.Errors(err))
				continue
			}
		}
		stats.failed += batch.Failed
		for _, res := range batch.Succeeded() {
			stats.add(res)
			if quiet || (filter != "" && !strings.Contains(res.Method.String(), filter)) {
				continue
			}
			printResult(out, res)
		}
	}
	stats.print(out)
	return failed
}

func printResult(w io.Writer, res *compiler.Result) {
	rl.DisassembleTo(w, res.Method.String(), res.Instructions, res.Handlers, disasmStyle())
	fmt.Fprintf(w, "%s registers=%d arguments=%d\n\n", faint(";"), res.RegisterCount, res.ArgumentCount)
}

type summary struct {
	methods, instructions, handlers, failed int
}

func (s *summary) add(res *compiler.Result) {
	s.methods++
	s.instructions += len(res.Instructions)
	s.handlers += len(res.Handlers)
}

func (s *summary) print(w io.Writer) {
	p := printer()
	line := p.Sprintf("%d methods lowered, %d instructions, %d handlers", s.methods, s.instructions, s.handlers)
	if s.failed > 0 {
		line += red(p.Sprintf(", %d failed", s.failed))
	}
	fmt.Fprintln(w, line)
}

// loadAndCompile lowers every method of one fixture, failing on the first
// error.
func loadAndCompile(cmd *cobra.Command, path string) (*fixture.File, []*compiler.Result, error) {
	cfg, err := driverConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.Policy = driver.FailFast
	f, batch, err := driver.New(cfg).CompileFile(cmd.Context(), path)
	if err != nil {
		return nil, nil, err
	}
	return f, batch.Results, nil
}

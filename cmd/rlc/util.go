package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dot42/dot42-sub006/pkg/compiler"
	"github.com/dot42/dot42-sub006/pkg/driver"
	"github.com/dot42/dot42-sub006/pkg/errors"
	"github.com/dot42/dot42-sub006/pkg/rl"
)

var (
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func fatal(msg interface{}) {
	var s string
	switch msg := msg.(type) {
	case string:
		s = msg
	case error:
		s = msg.Error()
	default:
		s = fmt.Sprintf("%v", msg)
	}
	fmt.Fprintf(os.Stderr, "%s\n", red(s))
	os.Exit(1)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func colorEnabled() bool {
	return !color.NoColor
}

// Reads global flags from Viper and adjusts the environment accordingly.
func processGlobalFlags() {
	if viper.GetBool("no-color") || !isTerminal(os.Stdout) {
		color.NoColor = true
	}
}

func disasmStyle() rl.Style {
	if !colorEnabled() {
		return rl.Style{}
	}
	return rl.Style{Op: cyan, Reg: yellow, Target: green, Note: faint}
}

func driverConfig() (driver.Config, error) {
	policy, ok := driver.ParsePolicy(viper.GetString("policy"))
	if !ok {
		return driver.Config{}, fmt.Errorf("unknown policy %q", viper.GetString("policy"))
	}
	var opts []compiler.Option
	if owner := viper.GetString("runtime-owner"); owner != "" {
		opts = append(opts, compiler.WithRuntimeOwner(owner))
	}
	return driver.Config{
		Logger:      newLogger(),
		Policy:      policy,
		Concurrency: viper.GetInt("jobs"),
		Options:     opts,
	}, nil
}

// reportErrors prints the compiler errors carried by err, or err itself
// when it carries none.
func reportErrors(w io.Writer, err error) {
	errs := driver.Errors(err)
	if len(errs) == 0 {
		fmt.Fprintln(w, red(err.Error()))
		return
	}
	errors.DisplayErrors(w, errs)
}

func printer() *message.Printer {
	tag := language.English
	if lang, _, _ := strings.Cut(os.Getenv("LANG"), "."); lang != "" {
		if t, err := language.Parse(lang); err == nil {
			tag = t
		}
	}
	return message.NewPrinter(tag)
}

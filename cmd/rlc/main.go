// Command rlc lowers method fixtures to register code and prints the result.
package main

import (
	"errors"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rlc",
		Short:         "Lower method trees to register code",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default .rlc.yaml in the working directory)")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("log-level", "warn", "log level: trace, debug, info, warn, error")
	flags.String("policy", "fail-fast", "error policy: fail-fast or skip")
	flags.IntP("jobs", "j", 0, "methods lowered in parallel (0 means one per CPU)")
	flags.String("runtime-owner", "", "class holding the checked arithmetic helpers")

	root.AddCommand(newCompileCmd(), newRunCmd())
	return root
}

// initConfig layers flags over RLC_* environment variables over the config
// file, and applies the global settings.
func initConfig(cmd *cobra.Command) error {
	v := viper.GetViper()
	v.SetEnvPrefix("rlc")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(".rlc")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || v.GetString("config") != "" {
			return err
		}
	}

	processGlobalFlags()
	return nil
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		level = zerolog.WarnLevel
	}
	w := zerolog.ConsoleWriter{Out: os.Stderr, NoColor: !colorEnabled()}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

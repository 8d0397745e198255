// Package main provides the browserforge command line tool: launch a
// configured browser, manage the driver cache, write and validate
// configuration files and check proxy lists.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/entrhq/browserforge/pkg/forgeerr"
	"github.com/entrhq/browserforge/pkg/logging"
)

const version = "0.1.0"

// envPrefix namespaces environment variables: --cache-dir is read from
// BROWSERFORGE_CACHE_DIR.
const envPrefix = "BROWSERFORGE"

// app carries the state shared by every command.
type app struct {
	v      *viper.Viper
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: logging.Nop()}

	root := &cobra.Command{
		Use:           "browserforge",
		Short:         "Configure and launch automated browsers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.logger.Close()
		},
	}

	root.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	root.PersistentFlags().String("cache-dir", "", "Driver cache directory (default: user cache dir)")
	root.PersistentFlags().String("env-file", ".env", "Environment file loaded before reading BROWSERFORGE_* variables")

	root.AddCommand(
		a.launchCmd(),
		a.clearCacheCmd(),
		a.systemInfoCmd(),
		a.initConfigCmd(),
		a.validateCmd(),
		a.checkDriverCmd(),
		a.proxyCmd(),
	)
	return root
}

// init loads the env file, binds flags and environment and sets up logging.
func (a *app) init(cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	level := a.v.GetString("log-level")
	if a.v.GetBool("debug") {
		level = "DEBUG"
	}
	if level != "" {
		if err := logging.SetLevel(level); err != nil {
			return forgeerr.Config(err.Error(), "Valid log levels: DEBUG, INFO, WARNING, ERROR, CRITICAL")
		}
	}

	// On error NewLogger still returns a usable stderr logger
	a.logger, _ = logging.NewLogger("cli")
	a.logger.Debugf("browserforge %s: running %s", version, cmd.CommandPath())
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if s := forgeerr.Suggestion(err); s != "" {
			fmt.Fprintf(os.Stderr, "Suggestion: %s\n", s)
		}
		os.Exit(1)
	}
}

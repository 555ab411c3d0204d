// Package main provides the ucc binary: the supervision ETL for the UCC
// monitoring forms, its run log and the HTTP API behind the dashboard.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

// set with -ldflags at build time
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

const appName = "ucc"

// errStepsFailed a run finished with at least one failed step; the summary was already printed
var errStepsFailed = errors.New("uno o más pasos fallaron")

type rootOptions struct {
	configPath string
	logLevel   string
	logOut     io.Writer // command stdout; the pipeline log shares it with the summary
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errStepsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "ETL de fichas de supervisión UCC",
		Long: `ucc consolida las fichas de supervisión (Anexos 2 a 5) guardadas en
data/raw/<año>/<mes>/<región>/ en un dataset por anexo, con puntajes,
clasificación y hallazgos.

Sin subcomando equivale a "ucc run".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logOut = cmd.OutOrStdout()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAll(cmd, opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "ruta de config.toml (por defecto ./config.toml)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "nivel de log (debug, info, ok, warn, error)")

	cmd.AddCommand(
		runCmd(opts),
		processCmd(opts),
		serveCmd(opts),
		watchCmd(opts),
		formsCmd(opts),
		versionCmd(),
	)
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Muestra la versión",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	}
}

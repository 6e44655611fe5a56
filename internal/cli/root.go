// Package cli wires the runlab commands: run, exec, watch and config.
package cli

import (
	stdcontext "context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/runlab/runlab/internal/config"
)

func NewRootCmd() *cobra.Command {
	root, _ := newRootCommand()
	return root
}

func newRootCommand() (*cobra.Command, *cliContext) {
	var manifestFile string

	root := &cobra.Command{
		Use:   "runlab",
		Short: "Resource-bounded experiment runner",
		Long: "runlab executes batches of benchmark commands under CPU time, " +
			"wall-clock time and memory limits, recording every outcome.",
	}

	root.PersistentFlags().
		StringVarP(&manifestFile, "file", "f", "experiment.yaml", "Path to experiment manifest")

	ctx := &cliContext{manifestFile: &manifestFile}
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newExecCmd())
	root.AddCommand(newWatchCmd(ctx))
	root.AddCommand(newConfigCmd())

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type cliContext struct {
	manifestFile *string
}

func (c *cliContext) loadDocument() (*config.Document, error) {
	return config.Load(*c.manifestFile)
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "unknown"
}

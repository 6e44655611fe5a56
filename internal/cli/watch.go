package cli

import (
	stdcontext "context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runlab/runlab/internal/experiment"
	"github.com/runlab/runlab/internal/props"
	"github.com/runlab/runlab/internal/tui"
)

func newWatchCmd(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Execute the experiment with an interactive status table",
		Long: "watch runs the manifest like run does, while showing run " +
			"states in a terminal table. Quitting the table (q) terminates " +
			"any runs still in flight.",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := ctx.loadDocument()
			if err != nil {
				return err
			}

			specs := experiment.SpecsFromConfig(doc)
			pp, err := props.Load(doc.Experiment.Properties)
			if err != nil {
				return err
			}

			pool := experiment.NewPool(doc.Experiment.Name, doc.Experiment.Parallelism, experiment.NewRegistry())
			pool.Props = pp

			events := make(chan experiment.Event, 256)
			pool.Events = events

			ui := tui.New(specs)

			go func() {
				for evt := range events {
					ui.EventSink() <- evt
				}
				ui.CloseEvents()
			}()

			poolCtx, stopPool := stdcontext.WithCancel(cmd.Context())
			defer stopPool()

			var summary experiment.Summary
			poolDone := make(chan error, 1)
			go func() {
				var runErr error
				summary, runErr = pool.Run(poolCtx, specs)
				close(events)
				poolDone <- runErr
			}()

			uiErr := ui.Run(cmd.Context())

			stopPool()
			runErr := <-poolDone

			fmt.Fprintf(cmd.OutOrStdout(), "runs: %d succeeded: %d failed: %d errored: %d\n",
				summary.Total, summary.Succeeded, summary.Failed, summary.Errored)

			if uiErr != nil {
				return uiErr
			}
			return runErr
		},
	}
	return cmd
}

package cli

import (
	stdcontext "context"
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	httpapi "github.com/runlab/runlab/internal/api/http"
	"github.com/runlab/runlab/internal/experiment"
	"github.com/runlab/runlab/internal/props"
)

func newRunCmd(ctx *cliContext) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute every run in the experiment manifest",
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

			tracker := experiment.NewTracker(doc.Experiment.Name, buildVersion(), specs)
			var consumed sync.WaitGroup
			consumed.Add(1)
			go func() {
				defer consumed.Done()
				tracker.Consume(events)
			}()

			addr := listen
			if addr == "" {
				addr = doc.Experiment.Listen
			}
			srvCtx, stopServer := stdcontext.WithCancel(cmd.Context())
			defer stopServer()
			if addr != "" {
				server, err := httpapi.NewServer(httpapi.Config{Addr: addr, Controller: tracker})
				if err != nil {
					return err
				}
				go func() {
					if err := server.Run(srvCtx); err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), "status server:", err)
					}
				}()
			}

			summary, runErr := pool.Run(cmd.Context(), specs)
			close(events)
			consumed.Wait()

			fmt.Fprintf(cmd.OutOrStdout(), "runs: %d succeeded: %d failed: %d errored: %d\n",
				summary.Total, summary.Succeeded, summary.Failed, summary.Errored)

			if runErr != nil {
				return runErr
			}
			if summary.Errored > 0 {
				return fmt.Errorf("%d run(s) could not be executed", summary.Errored)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Status/metrics listen address (overrides the manifest)")
	return cmd
}

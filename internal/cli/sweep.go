package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/service"
)

func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete requests older than requests.retention once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), rootOpts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			sw := service.NewRequestSweeper(a.requests, service.SweeperConfig{
				Retention: a.cfg.Requests.Retention,
			}, a.clock, a.metrics, a.log.Named("sweeper"))
			n, err := sw.SweepOnce(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d requests\n", n)
			return nil
		},
	}
}

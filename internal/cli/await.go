package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/crf-paris15/crf.tools/internal/lockcrf/poller"
	"github.com/crf-paris15/crf.tools/internal/logging"
)

type awaitOptions struct {
	baseURL  string
	delay    time.Duration
	attempts int
}

// NewAwaitCommand polls a running server until a request settles, the way
// the telephony box does after a phone action.
func NewAwaitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := awaitOptions{}

	cmd := &cobra.Command{
		Use:   "await <request-id>",
		Short: "Wait for a lock request to settle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.Load()
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			p := &poller.Poller{
				BaseURL:   opts.baseURL,
				APISecret: cfg.API.Secret,
				Client:    &http.Client{Timeout: 10 * time.Second},
				Delay:     opts.delay,
				Attempts:  opts.attempts,
				Logger:    logger.Named("poller"),
			}
			s, err := p.Await(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s.Message())
			if !s.Success {
				return fmt.Errorf("request %s failed: %s", s.RequestID, s.ErrorCode)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.baseURL, "base-url", "http://localhost:8080", "lock.crf server URL")
	f.DurationVar(&opts.delay, "delay", poller.DefaultDelay, "wait before each read")
	f.IntVar(&opts.attempts, "attempts", poller.DefaultAttempts, "reads before giving up")
	return cmd
}

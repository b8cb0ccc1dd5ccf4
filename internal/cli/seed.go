package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	dbpkg "github.com/crf-paris15/crf.tools/internal/db"
)

func NewSeedDevCommand(rootOpts *RootOptions) *cobra.Command {
	var opt dbpkg.SeedDevOptions

	cmd := &cobra.Command{
		Use:   "seed-dev",
		Short: "Create a development lock, administrator and authorization",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context(), rootOpts, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.cfg.Env == "prod" {
				return errors.New("seed-dev refuses to run with env=prod")
			}
			if err := dbpkg.SeedDev(cmd.Context(), a.db, opt); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "seeded")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opt.LockName, "lock-name", "", "lock display name")
	f.StringVar(&opt.LockNukiID, "lock-nuki-id", "", "vendor smartlock id")
	f.StringVar(&opt.LockAPIKey, "lock-api-key", "", "per-lock vendor API key")
	f.StringVar(&opt.LockPhoneNumber, "lock-phone", "", "phone number bound to the lock")
	f.StringVar(&opt.AdminPhone, "admin-phone", "", "administrator phone number")
	return cmd
}

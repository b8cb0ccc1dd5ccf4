// Package cli holds the lockcrf-server commands.
package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/crf-paris15/crf.tools/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string

	v *viper.Viper
}

// Load reads the config file (if any) and the environment.
func (o *RootOptions) Load() (config.Config, error) {
	if err := config.ReadFile(o.v, o.ConfigFile); err != nil {
		return config.Config{}, err
	}
	return config.Load(o.v)
}

// NewRootCommand creates the lockcrf-server command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: viper.New()}
	config.SetDefaults(opts.v)

	cmd := &cobra.Command{
		Use:           "lockcrf-server",
		Short:         "lock.crf smart-lock access control",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigFile, "config", "", "config file (default ./lockcrf.yaml or /etc/lockcrf/lockcrf.yaml)")
	cmd.PersistentFlags().String("log-level", "", "override log.level")
	_ = opts.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewSeedDevCommand(opts))
	cmd.AddCommand(NewSweepCommand(opts))
	cmd.AddCommand(NewAwaitCommand(opts))

	return cmd
}

package main

import (
	"github.com/spf13/cobra"

	"buildchat/internal/config"
)

func newConfigCommand(wiring commandWiring, opts *globalOptions) *cobra.Command {
	var defaults bool
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if !defaults {
				loaded, err := opts.loadConfig()
				if err != nil {
					return err
				}
				cfg = loaded
			}
			data, err := cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = wiring.stdout.Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&defaults, "default", false, "print built-in defaults instead of the loaded config")
	return cmd
}

package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"buildchat/internal/app"
)

func newChatCommand(wiring commandWiring, opts *globalOptions) *cobra.Command {
	var fresh bool
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open the chat screen for a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			directory, err := opts.projectDirectory(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			logFile, err := wiring.logOutput()
			if err != nil {
				return err
			}
			defer logFile.Close()

			bridge := app.NewBridge()
			env, err := openChatEnv(cfg, directory, opts.logs(cfg, logFile), bridge)
			if err != nil {
				return err
			}
			defer env.Close()
			if err := env.rememberProject(cmd.Context(), directory); err != nil {
				return err
			}

			return app.Run(cmd.Context(), env.controller, bridge, app.Options{
				Resume: !fresh && directory != "",
				Dark:   lipgloss.HasDarkBackground(),
			})
		},
	}
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new session instead of resuming the last one")
	return cmd
}

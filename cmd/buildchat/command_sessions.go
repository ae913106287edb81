package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"buildchat/internal/sanitizer"
	"buildchat/internal/types"
)

var errNoDirectory = errors.New("no project directory: pass --directory, set chat.directory or run `buildchat projects select`")

func newSessionsCommand(wiring commandWiring, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List the project's sessions, newest first",
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
			if directory == "" {
				return errNoDirectory
			}
			env, err := openChatEnv(cfg, directory, opts.logs(cfg, wiring.stderr), nil)
			if err != nil {
				return err
			}
			defer env.Close()

			sessions, err := env.controller.Sessions(cmd.Context())
			if err != nil {
				return err
			}
			printSessions(wiring.stdout, sessions)
			return nil
		},
	}
}

func printSessions(output io.Writer, sessions []types.Session) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tUPDATED\tMODEL\tTITLE")
	for _, s := range sessions {
		updated := "-"
		stamp := s.Time.Updated
		if stamp == 0 {
			stamp = s.Time.Created
		}
		if stamp > 0 {
			updated = time.UnixMilli(stamp).Local().Format("2006-01-02 15:04")
		}
		model := "-"
		if s.ModelID != "" {
			model = types.ModelRef{ProviderID: s.ProviderID, ModelID: s.ModelID}.String()
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", s.ID, updated, model, sanitizer.Clean(s.Title, sanitizer.SingleLine))
	}
	_ = writer.Flush()
}

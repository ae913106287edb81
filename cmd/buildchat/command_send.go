package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"buildchat/internal/session"
	"buildchat/internal/types"
)

const defaultSendTimeout = 30 * time.Minute

var errAwaitingAnswer = errors.New("the agent is waiting for an answer; continue with `buildchat chat`")

func newSendCommand(wiring commandWiring, opts *globalOptions) *cobra.Command {
	var (
		sessionID string
		fresh     bool
		model     string
		agent     string
		timeout   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the agent's reply",
		Args:  cobra.MinimumNArgs(1),
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
			settled := make(chan struct{}, 1)
			observer := session.ObserverFunc(func(update session.Update) {
				if update.Session.InputMode() == session.InputStreaming {
					return
				}
				select {
				case settled <- struct{}{}:
				default:
				}
			})
			env, err := openChatEnv(cfg, directory, opts.logs(cfg, wiring.stderr), observer)
			if err != nil {
				return err
			}
			defer env.Close()
			if err := env.rememberProject(cmd.Context(), directory); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			ctrl := env.controller
			switch {
			case strings.TrimSpace(sessionID) != "":
				err = ctrl.SwitchSession(ctx, sessionID)
			case !fresh:
				_, err = ctrl.ResumeLast(ctx)
			}
			if err != nil {
				return err
			}
			if model = strings.TrimSpace(model); model != "" {
				if err := ctrl.SetModel(ctx, types.ParseModelRef(model)); err != nil {
					return err
				}
			}
			if agent = strings.TrimSpace(agent); agent != "" {
				if err := ctrl.SetAgent(ctx, agent); err != nil {
					return err
				}
			}

			if err := ctrl.Send(ctx, session.Draft{Text: strings.Join(args, " ")}); err != nil {
				return err
			}
			if err := waitForTurn(ctx, ctrl, settled); err != nil {
				return err
			}
			return printReply(wiring.stdout, ctrl)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session id to continue")
	cmd.Flags().BoolVar(&fresh, "new", false, "start a new session")
	cmd.Flags().StringVar(&model, "model", "", "model as provider/model")
	cmd.Flags().StringVar(&agent, "agent", "", "agent to use")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultSendTimeout, "how long to wait for the reply")
	return cmd
}

// waitForTurn blocks until the controller leaves the streaming state.
func waitForTurn(ctx context.Context, ctrl *session.Controller, settled <-chan struct{}) error {
	for {
		switch ctrl.Snapshot().InputMode() {
		case session.InputReady:
			return nil
		case session.InputQuestion:
			return errAwaitingAnswer
		}
		select {
		case <-settled:
		case <-ctx.Done():
			abortCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ctrl.Abort(abortCtx)
			return ctx.Err()
		}
	}
}

func printReply(out io.Writer, ctrl *session.Controller) error {
	reply := strings.TrimSpace(ctrl.LastReply())
	if reply == "" {
		return errors.New("the agent finished without a text reply")
	}
	_, err := fmt.Fprintln(out, reply)
	return err
}

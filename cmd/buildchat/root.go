package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"buildchat/internal/config"
	"buildchat/internal/store"
)

const version = "dev"

type globalOptions struct {
	configPath string
	directory  string
	logLevel   string
}

type commandWiring struct {
	stdout io.Writer
	stderr io.Writer
	// logOutput opens the destination for structured logs of long-running
	// interactive commands.
	logOutput func() (io.WriteCloser, error)
	version   string
}

func defaultCommandWiring(stdout, stderr io.Writer) commandWiring {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return commandWiring{
		stdout:    stdout,
		stderr:    stderr,
		logOutput: openLogFile,
		version:   buildVersion(),
	}
}

func newRootCommand(wiring commandWiring) *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:           "buildchat",
		Short:         "Chat with a coding agent that builds projects",
		Version:       wiring.version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(wiring.stdout)
	root.SetErr(wiring.stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.toml (default ~/.buildchat/config.toml)")
	root.PersistentFlags().StringVarP(&opts.directory, "directory", "d", "", "project directory the agent works in")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(wiring, opts),
		newChatCommand(wiring, opts),
		newSessionsCommand(wiring, opts),
		newSendCommand(wiring, opts),
		newConfigCommand(wiring, opts),
		newProjectsCommand(wiring, opts),
	)

	reportErrors(root, wiring.stderr)
	return root
}

// reportErrors prints every subcommand's error to stderr once, so they all
// report the same way.
func reportErrors(parent *cobra.Command, stderr io.Writer) {
	for _, cmd := range parent.Commands() {
		reportErrors(cmd, stderr)
		run := cmd.RunE
		if run == nil {
			continue
		}
		name := cmd.Name()
		cmd.RunE = func(c *cobra.Command, args []string) error {
			err := run(c, args)
			if err != nil {
				fmt.Fprintf(stderr, "%s error: %v\n", name, err)
			}
			return err
		}
	}
}

func (o *globalOptions) loadConfig() (config.Config, error) {
	if path := strings.TrimSpace(o.configPath); path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

func (o *globalOptions) logs(cfg config.Config, out io.Writer) logSetup {
	level := cfg.LogLevel()
	if override := strings.TrimSpace(o.logLevel); override != "" {
		level = override
	}
	return logSetup{level: level, pretty: cfg.Logging.Pretty, output: out}
}

// projectDirectory is resolveDirectory falling back to the project selected
// last.
func (o *globalOptions) projectDirectory(ctx context.Context, cfg config.Config) (string, error) {
	dir, err := o.resolveDirectory(cfg)
	if err != nil || dir != "" {
		return dir, err
	}
	prefs, err := openPreferences()
	if err != nil {
		return "", err
	}
	defer prefs.Close()
	loaded, err := prefs.Load(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(loaded.LastProject), nil
}

func openPreferences() (*store.BboltPreferenceStore, error) {
	path, err := config.PreferencesDBPath()
	if err != nil {
		return nil, err
	}
	return store.NewBboltPreferenceStore(path)
}

// resolveDirectory picks the project directory: the flag, then the config.
// Bare names resolve under the projects root; "." style paths resolve
// against the working directory.
func (o *globalOptions) resolveDirectory(cfg config.Config) (string, error) {
	dir := strings.TrimSpace(o.directory)
	if dir == "" {
		dir = cfg.Directory()
	}
	if dir == "" {
		return "", nil
	}
	if strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, dir[2:]), nil
	}
	if filepath.IsAbs(dir) {
		return filepath.Clean(dir), nil
	}
	if dir == "." || dir == ".." || strings.HasPrefix(dir, "./") || strings.HasPrefix(dir, "../") {
		return filepath.Abs(dir)
	}
	root, err := cfg.ProjectsRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, dir), nil
}

func openLogFile() (io.WriteCloser, error) {
	path, err := config.LogPath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision, modified string
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
		case "vcs.modified":
			modified = setting.Value
		}
	}
	if revision == "" {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
		return version
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if modified == "true" {
		revision += "-dirty"
	}
	return version + "+" + revision
}

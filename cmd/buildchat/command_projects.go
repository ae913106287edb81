package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"buildchat/internal/projects"
	"buildchat/internal/store"
)

func newProjectsCommand(wiring commandWiring, opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List, create and select projects under the projects root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProjectsList(cmd.Context(), wiring, opts)
		},
	}
	var selectCreated bool
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Scaffold a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := opts.projectManager()
			if err != nil {
				return err
			}
			project, err := manager.Create(args[0])
			if err != nil {
				return err
			}
			if selectCreated {
				if err := selectProject(cmd.Context(), project.Path); err != nil {
					return err
				}
			}
			fmt.Fprintln(wiring.stdout, project.Path)
			return nil
		},
	}
	create.Flags().BoolVar(&selectCreated, "select", false, "make the new project the current one")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List projects, most recently modified first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runProjectsList(cmd.Context(), wiring, opts)
			},
		},
		create,
		&cobra.Command{
			Use:   "select <name>",
			Short: "Open this project when no directory is given",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				manager, err := opts.projectManager()
				if err != nil {
					return err
				}
				project, err := manager.Get(args[0])
				if err != nil {
					return err
				}
				if err := selectProject(cmd.Context(), project.Path); err != nil {
					return err
				}
				fmt.Fprintln(wiring.stdout, project.Path)
				return nil
			},
		},
		&cobra.Command{
			Use:   "current",
			Short: "Print the selected project directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				current, err := currentProject(cmd.Context())
				if err != nil {
					return err
				}
				if current == "" {
					fmt.Fprintln(wiring.stdout, "no project selected")
					return nil
				}
				fmt.Fprintln(wiring.stdout, current)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a project directory",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				manager, err := opts.projectManager()
				if err != nil {
					return err
				}
				project, err := manager.Get(args[0])
				if err != nil {
					return err
				}
				if err := manager.Delete(project.Name); err != nil {
					return err
				}
				current, err := currentProject(cmd.Context())
				if err != nil {
					return err
				}
				if current == project.Path {
					if err := selectProject(cmd.Context(), ""); err != nil {
						return err
					}
				}
				fmt.Fprintf(wiring.stdout, "deleted %s\n", project.Name)
				return nil
			},
		},
	)
	return cmd
}

func (o *globalOptions) projectManager() (*projects.Manager, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	root, err := cfg.ProjectsRoot()
	if err != nil {
		return nil, err
	}
	return projects.NewManager(root)
}

func runProjectsList(ctx context.Context, wiring commandWiring, opts *globalOptions) error {
	manager, err := opts.projectManager()
	if err != nil {
		return err
	}
	list, err := manager.List()
	if err != nil {
		return err
	}
	current, err := currentProject(ctx)
	if err != nil {
		return err
	}
	printProjects(wiring.stdout, list, current)
	return nil
}

func printProjects(output io.Writer, list []projects.Project, current string) {
	writer := tabwriter.NewWriter(output, 0, 8, 2, ' ', 0)
	fmt.Fprintln(writer, "\tNAME\tMODIFIED\tPATH")
	for _, project := range list {
		marker := ""
		if project.Path == current {
			marker = "*"
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n", marker, project.Name, project.Modified.Local().Format("2006-01-02 15:04"), project.Path)
	}
	_ = writer.Flush()
}

func currentProject(ctx context.Context) (string, error) {
	prefs, err := openPreferences()
	if err != nil {
		return "", err
	}
	defer prefs.Close()
	loaded, err := prefs.Load(ctx)
	if err != nil {
		return "", err
	}
	return loaded.LastProject, nil
}

func selectProject(ctx context.Context, directory string) error {
	prefs, err := openPreferences()
	if err != nil {
		return err
	}
	defer prefs.Close()
	_, err = prefs.Update(ctx, func(p *store.Preferences) error {
		p.LastProject = directory
		return nil
	})
	return err
}

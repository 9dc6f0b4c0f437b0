package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/project"
	"github.com/drdator/ccm/internal/style"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List commands in .claude/commands",
	Args:    cobra.NoArgs,
	RunE:    runList,
}

var (
	listLocal     bool
	listInstalled bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVarP(&listLocal, "local", "l", false, "Only commands written in this project")
	listCmd.Flags().BoolVarP(&listInstalled, "installed", "i", false, "Only commands from installed packages")
}

func runList(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	if listLocal && listInstalled {
		return errors.New("--local and --installed are mutually exclusive")
	}

	commands, err := currentProject().ScanCommands()
	if err != nil {
		return err
	}

	var local, installed []project.LocalCommand
	for _, c := range commands {
		if c.Installed {
			installed = append(installed, c)
		} else {
			local = append(local, c)
		}
	}
	if listInstalled {
		local = nil
	}
	if listLocal {
		installed = nil
	}

	if len(local)+len(installed) == 0 {
		fmt.Fprintf(out, "%s No commands found\n", style.WarningPrefix)
		fmt.Fprintf(out, "  %s\n", style.Dim.Render("Install packages with ccm install <name>, or add .md files to .claude/commands/"))
		return nil
	}

	if len(local) > 0 {
		fmt.Fprintf(out, "%s\n", style.Success.Render("Local Commands:"))
		printCommands(out, local)
	}
	if len(installed) > 0 {
		if len(local) > 0 {
			fmt.Fprintln(out)
		}
		fmt.Fprintf(out, "%s\n", style.Success.Render("Installed Commands:"))
		printCommands(out, installed)
	}

	total := len(local) + len(installed)
	suffix := "s"
	if total == 1 {
		suffix = ""
	}
	fmt.Fprintf(out, "\n%s\n", style.Dim.Render(fmt.Sprintf("Total: %d command%s", total, suffix)))
	return nil
}

func printCommands(out io.Writer, commands []project.LocalCommand) {
	width := 10
	for _, c := range commands {
		width = max(width, len(c.Name))
	}

	for _, c := range commands {
		desc := c.Description
		if desc == "" {
			desc = style.Dim.Render("No description")
		}
		version := ""
		if c.Version != "" {
			version = " " + style.Dim.Render("v"+c.Version)
		}
		fmt.Fprintf(out, "  %-*s %s%s\n", width+2, c.Name, desc, version)
		if len(c.Tags) > 0 {
			fmt.Fprintf(out, "  %-*s %s\n", width+2, "", style.Tags(c.Tags))
		}
	}
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/style"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize .claude in the current directory",
	Long: `Create .claude/commands, .claude/installed, .claude/ccm.json and
.claude/.gitignore. Existing files are left untouched.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initName        string
	initDescription string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVarP(&initName, "name", "n", "", "Project name (default: directory name)")
	initCmd.Flags().StringVarP(&initDescription, "description", "d", "", "Project description")
}

func runInit(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	p := currentProject()

	if p.DescriptorExists() {
		fmt.Fprintf(out, "%s Project already initialized\n", style.WarningPrefix)
	}
	created, err := p.Init(initName, initDescription)
	if err != nil {
		return err
	}
	for _, path := range created {
		fmt.Fprintf(out, "%s Created %s\n", style.SuccessPrefix, path)
	}

	desc, err := p.ReadDescriptor()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nProject: %s\n", style.Info.Render(desc.Name))
	fmt.Fprintf(out, "%s\n", style.Dim.Render("Create commands in .claude/commands/, install packages with: ccm install <name>"))
	return nil
}

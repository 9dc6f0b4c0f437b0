package cmd

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/installer"
	"github.com/drdator/ccm/internal/style"
)

var installCmd = &cobra.Command{
	Use:   "install [name[@version]]",
	Short: "Install a package, or all dependencies from ccm.json",
	Long: `Install a package from the registry into .claude/installed and link it
into .claude/commands. Without arguments every dependency declared in
.claude/ccm.json is reinstalled; exact versions are pinned and ranges
(^1.2.0, ~1.2.0, >=1.0.0) resolve to the most recently published match.

Examples:
  ccm install git-tools
  ccm install git-tools@1.2.0
  ccm install git-tools --force
  ccm install`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <name>",
	Aliases: []string{"remove", "rm"},
	Short:   "Remove an installed package",
	Args:    cobra.ExactArgs(1),
	RunE:    runUninstall,
}

var (
	installVersion string
	installForce   bool
)

func init() {
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)

	installCmd.Flags().StringVarP(&installVersion, "version", "v", "", "Version to install (name@version takes precedence)")
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "Reinstall even if already installed")
}

func newInstaller() (*installer.Installer, error) {
	_, cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return installer.New(currentProject(), newClient(cfg), installer.NewFallbackLinker(), logger), nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	inst, err := newInstaller()
	if err != nil {
		return err
	}

	if len(args) == 0 {
		return installAll(cmd, inst)
	}

	name, version := installer.ParseSpec(args[0], installVersion)
	res, err := inst.Install(cmd.Context(), name, version, installForce)
	if err != nil {
		return explain(err)
	}
	printInstallResult(out, res)
	return nil
}

func installAll(cmd *cobra.Command, inst *installer.Installer) error {
	out := cmd.OutOrStdout()
	desc, err := currentProject().ReadDescriptor()
	if err != nil {
		return err
	}
	total := len(desc.AllDependencies())
	if total == 0 {
		fmt.Fprintf(out, "%s No dependencies found in ccm.json\n", style.WarningPrefix)
		return nil
	}

	fmt.Fprintf(out, "%s Installing %d dependencies\n", style.ArrowPrefix, total)
	res, err := inst.InstallDependencies(cmd.Context())
	if err != nil {
		return err
	}
	for _, r := range res.Installed {
		printInstallResult(out, r)
	}
	for _, f := range res.Failed {
		fmt.Fprintf(out, "%s %s@%s: %v\n", style.ErrorPrefix, f.Name, f.Spec, f.Err)
	}

	if len(res.Failed) > 0 {
		return fmt.Errorf("%d of %d dependencies failed to install", len(res.Failed), total)
	}
	fmt.Fprintf(out, "%s All dependencies installed\n", style.SuccessPrefix)
	return nil
}

func printInstallResult(out io.Writer, res *installer.Result) {
	if res.Skipped {
		fmt.Fprintf(out, "%s %s is already installed %s\n", style.WarningPrefix,
			style.Info.Render(res.Name), style.Dim.Render("(use --force to reinstall)"))
		return
	}

	fmt.Fprintf(out, "%s Installed %s %s\n", style.SuccessPrefix, style.Info.Render(res.Name), style.Dim.Render("v"+res.Version))
	if res.Link.Mode == installer.LinkCopied {
		fmt.Fprintf(out, "  %s symlink failed, files were copied: %v\n", style.WarningPrefix, res.Link.SymlinkErr)
	}
	if res.Description != "" {
		fmt.Fprintf(out, "  %s\n", style.Dim.Render(res.Description))
	}
	if len(res.Tags) > 0 {
		fmt.Fprintf(out, "  %s\n", style.Tags(res.Tags))
	}
	if len(res.Files) > 0 {
		first := res.Files[0]
		use := res.Name + ":" + strings.ReplaceAll(strings.TrimSuffix(first, path.Ext(first)), "/", ":")
		fmt.Fprintf(out, "  %s\n", style.Dim.Render("Use: /"+use))
	}
}

func runUninstall(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	inst, err := newInstaller()
	if err != nil {
		return err
	}

	if err := inst.Uninstall(args[0]); err != nil {
		if errors.Is(err, installer.ErrNotInstalled) {
			return withHint(err, "see installed packages: ccm list --installed")
		}
		return err
	}
	fmt.Fprintf(out, "%s Removed %s\n", style.SuccessPrefix, style.Info.Render(args[0]))
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/api/dto"
	"github.com/drdator/ccm/internal/style"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the registry",
	Long: `Search package names and descriptions. Results are ordered by
downloads, then by publish date.

Examples:
  ccm search git
  ccm search review --tags git,ci --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var infoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show package details",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

var versionsCmd = &cobra.Command{
	Use:   "versions <name>",
	Short: "List published versions of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersions,
}

var (
	searchLimit  int
	searchOffset int
	searchTags   string
	infoVersion  string
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(versionsCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 20, "Number of results")
	searchCmd.Flags().IntVarP(&searchOffset, "offset", "o", 0, "Number of results to skip")
	searchCmd.Flags().StringVarP(&searchTags, "tags", "t", "", "Only show packages with any of these tags (comma-separated)")

	infoCmd.Flags().StringVarP(&infoVersion, "version", "v", "", "Specific version (default: latest)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	query := args[0]
	list, err := newClient(cfg).Search(cmd.Context(), query, searchLimit, searchOffset)
	if err != nil {
		return explain(err)
	}
	commands := filterByTags(list.Commands, searchTags)

	if len(commands) == 0 {
		fmt.Fprintf(out, "%s No commands found for %q\n", style.WarningPrefix, query)
		return nil
	}

	fmt.Fprintf(out, "Found %d command(s):\n\n", len(commands))
	for i, c := range commands {
		fmt.Fprintf(out, "%2d. %s %s\n", list.Pagination.Offset+i+1, style.Bold.Render(c.Name), style.Dim.Render("v"+c.Version))
		printSummary(out, c)
	}

	p := list.Pagination
	if p.Offset+len(list.Commands) < p.Total {
		fmt.Fprintf(out, "%s\n", style.Dim.Render(fmt.Sprintf("Showing %d-%d of %d. Next page: ccm search %q --offset %d",
			p.Offset+1, p.Offset+len(list.Commands), p.Total, query, p.Offset+p.Limit)))
	}
	return nil
}

func printSummary(out io.Writer, c dto.Command) {
	if c.Description != "" {
		fmt.Fprintf(out, "    %s\n", c.Description)
	}
	if c.AuthorUsername != "" {
		fmt.Fprintf(out, "    %s\n", style.Dim.Render("by "+c.AuthorUsername))
	}
	if len(c.Tags) > 0 {
		fmt.Fprintf(out, "    %s\n", style.Tags(c.Tags))
	}
	if c.Downloads > 0 {
		fmt.Fprintf(out, "    %s\n", style.Dim.Render(fmt.Sprintf("↓ %d downloads", c.Downloads)))
	}
	fmt.Fprintln(out)
}

func filterByTags(commands []dto.Command, tags string) []dto.Command {
	var want []string
	for _, t := range strings.Split(tags, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			want = append(want, t)
		}
	}
	if len(want) == 0 {
		return commands
	}

	var out []dto.Command
	for _, c := range commands {
		if slices.ContainsFunc(c.Tags, func(tag string) bool { return slices.Contains(want, tag) }) {
			out = append(out, c)
		}
	}
	return out
}

func runInfo(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	c, err := newClient(cfg).Get(cmd.Context(), args[0], infoVersion)
	if err != nil {
		return explain(err)
	}

	fmt.Fprintf(out, "%s\n", style.Bold.Render(c.Name+" v"+c.Version))
	if c.Description != "" {
		fmt.Fprintf(out, "  %s\n", c.Description)
	}
	fmt.Fprintln(out)
	for _, row := range []struct {
		label string
		value *string
	}{
		{"Category", c.Category},
		{"License", c.License},
		{"Repository", c.Repository},
		{"Homepage", c.Homepage},
	} {
		if row.value != nil && *row.value != "" {
			fmt.Fprintf(out, "  %-11s %s\n", row.label+":", *row.value)
		}
	}
	fmt.Fprintf(out, "  %-11s %s\n", "Author:", c.AuthorUsername)
	fmt.Fprintf(out, "  %-11s %s\n", "Published:", c.PublishedAt.Local().Format("2006-01-02"))
	fmt.Fprintf(out, "  %-11s %d\n", "Downloads:", c.Downloads)
	if len(c.Tags) > 0 {
		fmt.Fprintf(out, "  %-11s %s\n", "Tags:", style.Tags(c.Tags))
	}

	install := c.Name
	if infoVersion != "" {
		install += "@" + c.Version
	}
	fmt.Fprintf(out, "\n%s\n", style.Dim.Render("Install with: ccm install "+install))
	return nil
}

func runVersions(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}

	resp, err := newClient(cfg).Versions(cmd.Context(), args[0])
	if err != nil {
		return explain(err)
	}

	fmt.Fprintf(out, "%s\n", style.Bold.Render(resp.Name))
	for i, v := range resp.Versions {
		marker := ""
		if i == 0 {
			marker = " " + style.Success.Render("latest")
		}
		fmt.Fprintf(out, "  %-12s %s  %s%s\n", v.Version,
			v.PublishedAt.Local().Format("2006-01-02"),
			style.Dim.Render(fmt.Sprintf("↓ %d", v.Downloads)), marker)
	}
	return nil
}

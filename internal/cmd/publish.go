package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drdator/ccm/internal/api/dto"
	"github.com/drdator/ccm/internal/client"
	"github.com/drdator/ccm/internal/project"
	"github.com/drdator/ccm/internal/style"
)

var commonLicenses = []string{
	"MIT", "Apache-2.0", "GPL-3.0", "GPL-2.0", "LGPL-3.0", "LGPL-2.1",
	"BSD-2-Clause", "BSD-3-Clause", "ISC", "MPL-2.0", "CC0-1.0", "Unlicense",
}

var knownCategories = []string{
	"productivity", "development", "system", "utility", "entertainment",
	"education", "networking", "security", "database", "monitoring",
}

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the commands of this project",
	Long: `Publish the markdown files in .claude/commands as a new version of the
package described by .claude/ccm.json. Installed packages are not included.

Examples:
  ccm publish --dry          # Show what would be sent
  ccm publish --tag git      # Publish with an extra tag`,
	Args: cobra.NoArgs,
	RunE: runPublish,
}

var (
	publishDry  bool
	publishTags []string
)

func init() {
	rootCmd.AddCommand(publishCmd)
	publishCmd.Flags().BoolVarP(&publishDry, "dry", "d", false, "Show what would be published without publishing")
	publishCmd.Flags().StringArrayVarP(&publishTags, "tag", "t", nil, "Add a tag (repeatable)")
}

func runPublish(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.Authenticated() && !publishDry {
		return errNotLoggedIn
	}

	p := currentProject()
	if !p.DescriptorExists() {
		return withHint(errors.New("not in a ccm project: .claude/ccm.json not found"), "run ccm init")
	}
	desc, err := p.ReadDescriptor()
	if err != nil {
		return err
	}
	files, err := p.CollectSources()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return withHint(errors.New("no command files found in .claude/commands"), "add .md files to .claude/commands/")
	}

	for _, w := range metadataWarnings(desc) {
		fmt.Fprintf(out, "%s %s\n", style.WarningPrefix, w)
	}

	req := dto.PublishRequest{Metadata: publishMetadata(desc, publishTags)}
	for _, f := range files {
		req.Files = append(req.Files, dto.File{Filename: f.Filename, Content: f.Content})
	}

	if publishDry {
		meta, err := json.MarshalIndent(req.Metadata, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s\n", style.Bold.Render("Dry run, would publish:"))
		fmt.Fprintf(out, "%s\n\nFiles:\n", meta)
		for _, f := range req.Files {
			fmt.Fprintf(out, "  %s %s\n", f.Filename, style.Dim.Render(fmt.Sprintf("(%d bytes)", len(f.Content))))
		}
		return nil
	}

	fmt.Fprintf(out, "%s Publishing %s@%s (%d files)\n", style.ArrowPrefix, desc.Name, desc.Version, len(files))
	resp, err := newClient(cfg).Publish(cmd.Context(), req)
	if err != nil {
		switch client.StatusOf(err) {
		case http.StatusUnauthorized:
			return withHint(err, "your session may have expired, run ccm login")
		case http.StatusConflict:
			return withHint(err, "bump the version in ccm.json")
		}
		return explain(err)
	}

	c := resp.Command
	fmt.Fprintf(out, "%s Published %s %s\n", style.SuccessPrefix, style.Info.Render(c.Name), style.Dim.Render("v"+c.Version))
	if len(c.Tags) > 0 {
		fmt.Fprintf(out, "  %s\n", style.Tags(c.Tags))
	}
	fmt.Fprintf(out, "  %s\n", style.Dim.Render("Install with: ccm install "+c.Name))
	return nil
}

func publishMetadata(desc *project.Descriptor, tags []string) dto.PublishMetadata {
	return dto.PublishMetadata{
		Name:        desc.Name,
		Version:     desc.Version,
		Description: desc.Description,
		Repository:  optional(desc.Repository),
		License:     optional(desc.License),
		Homepage:    optional(desc.Homepage),
		Category:    optional(desc.Category),
		Tags:        tags,
		Keywords:    desc.Keywords,
	}
}

// metadataWarnings — замечания, не мешающие публикации.
func metadataWarnings(desc *project.Descriptor) []string {
	var warnings []string
	for field, v := range map[string]string{"repository": desc.Repository, "homepage": desc.Homepage} {
		if v != "" && !validURL(v) {
			warnings = append(warnings, fmt.Sprintf("invalid %s URL: %s", field, v))
		}
	}
	if desc.License != "" && !slices.Contains(commonLicenses, desc.License) {
		warnings = append(warnings, fmt.Sprintf("uncommon license identifier: %s (common: %s, ...)",
			desc.License, strings.Join(commonLicenses[:6], ", ")))
	}
	if desc.Category != "" && !slices.Contains(knownCategories, desc.Category) {
		warnings = append(warnings, fmt.Sprintf("uncommon category: %s (known: %s, ...)",
			desc.Category, strings.Join(knownCategories[:5], ", ")))
	}
	slices.Sort(warnings)
	return warnings
}

func validURL(s string) bool {
	u, err := url.ParseRequestURI(s)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MY221B/bird-download/internal/registry"
)

func newRegistryCommand(ctx *commandContext) *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the species registry",
	}
	registryCmd.AddCommand(newRegistryListCommand(ctx))
	registryCmd.AddCommand(newRegistryCheckCommand(ctx))
	return registryCmd
}

func newRegistryListCommand(ctx *commandContext) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registry species",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reg, err := registry.Load(cfg.Paths.RegistryFile)
			if err != nil {
				return err
			}
			needle := strings.ToLower(strings.TrimSpace(filter))
			var rows [][]string
			for _, e := range reg.Entries() {
				if needle != "" && !matchesEntry(e, needle) {
					continue
				}
				rows = append(rows, []string{e.Slug, e.Chinese, e.English, e.Scientific})
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No species found")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"Slug", "Chinese", "English", "Scientific"}, rows, nil))
			fmt.Fprintf(out, "%d of %d species\n", len(rows), reg.Len())
			return nil
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "Only show species whose names contain this text")
	return cmd
}

func newRegistryCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report species that have not converged",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			reg, err := registry.Load(cfg.Paths.RegistryFile)
			if err != nil {
				return err
			}
			cov := computeCoverage(reg.Entries(), inspectorFor(cfg))
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, coverageTable(cov))
			if len(cov.Pending) == 0 {
				fmt.Fprintln(out, "All species converged")
				return nil
			}
			rows := make([][]string, 0, len(cov.Pending))
			for _, p := range cov.Pending {
				rows = append(rows, []string{
					p.Entry.Slug,
					p.Entry.DisplayName(),
					p.State.String(),
					fmt.Sprintf("%d", p.Asset.LocalImages),
					fmt.Sprintf("%d", p.Asset.CloudPhotoCount),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Slug", "Name", "Next stage", "Local images", "Cloud photos"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
			))
			return nil
		},
	}
}

func matchesEntry(e registry.Entry, needle string) bool {
	for _, v := range []string{e.Slug, e.Chinese, e.English, e.Scientific} {
		if strings.Contains(strings.ToLower(v), needle) {
			return true
		}
	}
	return false
}

func coverageTable(cov coverage) string {
	rows := [][]string{
		{"Species", fmt.Sprintf("%d", cov.Total)},
		{"Uploaded", fmt.Sprintf("%d", cov.Uploaded)},
		{"With sound", fmt.Sprintf("%d", cov.WithSound)},
		{"Local only", fmt.Sprintf("%d", cov.LocalOnly)},
		{"No images", fmt.Sprintf("%d", cov.Missing)},
	}
	if cov.Unreadable > 0 {
		rows = append(rows, []string{"Unreadable", fmt.Sprintf("%d", cov.Unreadable)})
	}
	return renderTable([]string{"Coverage", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
}

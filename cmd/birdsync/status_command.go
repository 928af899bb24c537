package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MY221B/bird-download/internal/preflight"
	"github.com/MY221B/bird-download/internal/registry"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show readiness checks and catalog coverage",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			emit := func(lines []string) {
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
			}

			emit(renderSectionHeader("Configuration", colorize))
			emit([]string{
				renderStatusLine("Config file", statusInfo, ctx.configPath, colorize),
				renderStatusLine("Project root", statusInfo, cfg.Paths.ProjectRoot, colorize),
				renderStatusLine("Sounds enabled", statusInfo, yesNo(cfg.Sounds.Enabled), colorize),
				renderStatusLine("Notifications", statusInfo, yesNo(cfg.Notifications.NtfyTopic != ""), colorize),
			})
			fmt.Fprintln(out)

			results := preflight.RunAll(cmd.Context(), cfg)
			if online && cfg.Sounds.Enabled {
				results = append(results, preflight.CheckEBird(cmd.Context(), cfg.Sounds.EBirdBaseURL, cfg.Credentials.EBirdToken))
			}
			emit(renderSectionHeader("Preflight", colorize))
			emit(preflightLines(results, colorize))
			fmt.Fprintln(out)

			emit(renderSectionHeader("Registry", colorize))
			reg, err := registry.Load(cfg.Paths.RegistryFile)
			if err != nil {
				emit([]string{renderStatusLine("Registry", statusError, err.Error(), colorize)})
				return nil
			}
			fmt.Fprintln(out, coverageTable(computeCoverage(reg.Entries(), inspectorFor(cfg))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "Also verify the eBird API token")
	return cmd
}

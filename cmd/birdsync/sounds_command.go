package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MY221B/bird-download/internal/refresh"
	"github.com/MY221B/bird-download/internal/registry"
)

func newSoundsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sounds [slug...]",
		Short: "Acquire missing bird sounds",
		Long: `Look up each species on eBird, download the top-rated Macaulay Library
recording, upload it to Cloudinary and record it in the species metadata.
Without arguments every registry species with metadata but no sound is tried.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if !cfg.Sounds.Enabled {
				return errors.New("sound acquisition is disabled (sounds.enabled = false)")
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			slugs := trimmedArgs(args)
			if len(slugs) == 0 {
				reg, err := registry.Load(cfg.Paths.RegistryFile)
				if err != nil {
					return err
				}
				slugs = reg.Slugs()
			}

			stack, err := refresh.Build(cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			summary := stack.Sounds.Run(cmd.Context(), slugs)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Sounds: %d already present, %d added, %d failed\n",
				len(summary.Present), len(summary.Succeeded), len(summary.Failed))
			if len(summary.Failed) == 0 {
				return nil
			}

			reasons := summary.Reasons()
			keys := make([]string, 0, len(reasons))
			for reason := range reasons {
				keys = append(keys, reason)
			}
			sort.Strings(keys)
			rows := make([][]string, 0, len(keys))
			for _, reason := range keys {
				var slugsFor []string
				for _, f := range summary.Failed {
					if f.Reason == reason {
						slugsFor = append(slugsFor, f.Slug)
					}
				}
				rows = append(rows, []string{reason, fmt.Sprintf("%d", reasons[reason]), strings.Join(slugsFor, ", ")})
			}
			fmt.Fprintln(out, renderTable([]string{"Reason", "Count", "Species"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func trimmedArgs(args []string) []string {
	var out []string
	for _, a := range args {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MY221B/bird-download/internal/planner"
	"github.com/MY221B/bird-download/internal/preflight"
	"github.com/MY221B/bird-download/internal/refresh"
	"github.com/MY221B/bird-download/internal/report"
)

var errNothingConverged = errors.New("no location converged")

func newRefreshCommand(ctx *commandContext) *cobra.Command {
	var (
		locationIDs []string
		window      planner.Window
		minSpecies  int
		noGlobal    bool
	)

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh species lists and converge images and sounds",
		Long: `Fetch recent sightings for each configured location, reconcile the species
registry, drive every species through download, upload and sound acquisition,
and publish the location lists. Exits non-zero when no location converged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if blocking := preflight.Blocking(preflight.RunAll(cmd.Context(), cfg)); len(blocking) > 0 {
				for _, r := range blocking {
					fmt.Fprintf(out, "preflight %s: %s\n", r.Name, r.Detail)
				}
				return fmt.Errorf("preflight failed: %d check(s) did not pass", len(blocking))
			}

			set, err := ctx.loadLocations()
			if err != nil {
				return err
			}
			selected, err := set.Filter(locationIDs)
			if err != nil {
				return err
			}

			stack, err := refresh.Build(cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			rep, err := stack.Runner.Run(cmd.Context(), refresh.Options{
				Locations:  selected,
				Window:     window,
				MinSpecies: minSpecies,
				SkipGlobal: noGlobal,
			})
			if err != nil {
				return err
			}
			if err := report.Render(out, rep); err != nil {
				return err
			}
			if !rep.Success() {
				return fmt.Errorf("%w: %s", errNothingConverged, report.Headline(rep))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&locationIDs, "locations", "l", nil, "Location ids or names to refresh (comma separated, default all)")
	cmd.Flags().IntVar(&window.Days, "days", 0, "Look back this many days from the end date")
	cmd.Flags().StringVar(&window.Start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&window.End, "end", "", "End date (YYYY-MM-DD, default today)")
	cmd.Flags().IntVar(&minSpecies, "min-species", 0, "Warn when a location returns fewer species (default from config)")
	cmd.Flags().BoolVar(&noGlobal, "no-global", false, "Skip the global pass over every registry species")
	return cmd
}

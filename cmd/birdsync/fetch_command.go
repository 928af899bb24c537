package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MY221B/bird-download/internal/birdreport"
	"github.com/MY221B/bird-download/internal/locations"
	"github.com/MY221B/bird-download/internal/planner"
	"github.com/MY221B/bird-download/internal/refresh"
	"github.com/MY221B/bird-download/internal/species"
)

func newFetchCommand(ctx *commandContext) *cobra.Command {
	var (
		locationID string
		searchURL  string
		htmlPath   string
		window     planner.Window
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Query species for one location, search URL or saved result page",
		Long: `Print the merged species list without touching the registry.

Exactly one source is required: --location runs the planned queries for a
configured location, --url decodes the search parameter of a birdreport.cn
result page URL, and --html parses a saved result page.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources := 0
			for _, v := range []string{locationID, searchURL, htmlPath} {
				if v != "" {
					sources++
				}
			}
			if sources != 1 {
				return errors.New("specify exactly one of --location, --url or --html")
			}

			var records []species.Record
			var err error
			if htmlPath != "" {
				records, err = parseHTMLFile(htmlPath)
			} else {
				records, err = fetchRemote(cmd.Context(), ctx, locationID, searchURL, window)
			}
			if err != nil {
				return err
			}
			return printRecords(cmd.OutOrStdout(), records)
		},
	}

	cmd.Flags().StringVar(&locationID, "location", "", "Location id or name from the location config")
	cmd.Flags().StringVar(&searchURL, "url", "", "birdreport.cn result page URL carrying a search parameter")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Saved birdreport.cn result page")
	cmd.Flags().IntVar(&window.Days, "days", 0, "Look back this many days from the end date")
	cmd.Flags().StringVar(&window.Start, "start", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&window.End, "end", "", "End date (YYYY-MM-DD, default today)")
	return cmd
}

func parseHTMLFile(path string) ([]species.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	defer f.Close()
	return birdreport.ParseHTML(f)
}

func fetchRemote(ctx context.Context, cmdCtx *commandContext, locationID, searchURL string, window planner.Window) ([]species.Record, error) {
	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := cmdCtx.ensureLogger()
	if err != nil {
		return nil, err
	}
	// Sound components are not needed for a read-only query.
	readOnly := *cfg
	readOnly.Sounds.Enabled = false
	stack, err := refresh.Build(&readOnly, logger)
	if err != nil {
		return nil, err
	}
	defer stack.Close()

	if searchURL != "" {
		payload, err := birdreport.DecodeSearchURL(searchURL)
		if err != nil {
			return nil, err
		}
		return stack.Fetcher.Fetch(ctx, payload)
	}

	set, err := cmdCtx.loadLocations()
	if err != nil {
		return nil, err
	}
	loc, ok := set.Find(locationID)
	if !ok {
		return nil, fmt.Errorf("location %q not found in %s", locationID, cfg.Paths.LocationsFile)
	}
	return fetchLocation(ctx, stack.Fetcher, stack.Runner.Planner, loc, window)
}

func fetchLocation(ctx context.Context, fetcher birdreport.Fetcher, p *planner.Planner, loc locations.Location, window planner.Window) ([]species.Record, error) {
	plan, err := p.Plan(loc, window)
	if err != nil {
		return nil, err
	}
	var merger species.Merger
	var errs []error
	for _, group := range plan.Groups {
		for _, payload := range group.Payloads {
			records, err := fetcher.Fetch(ctx, payload)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", group.Label, err))
				continue
			}
			merger.Add(records)
		}
	}
	if merger.Len() == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return merger.Records(), nil
}

func printRecords(w io.Writer, records []species.Record) error {
	rows := make([][]string, 0, len(records))
	for i, rec := range records {
		slug, err := species.Slug(rec)
		if err != nil {
			slug = "-"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), rec.Chinese, rec.English, rec.Scientific, slug})
	}
	fmt.Fprintln(w, renderTable(
		[]string{"#", "Chinese", "English", "Scientific", "Slug"},
		rows,
		[]columnAlignment{alignRight},
	))
	_, err := fmt.Fprintf(w, "%d species\n", len(records))
	return err
}

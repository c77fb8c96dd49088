package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"flight_tracker/internal/export"
)

func exportCommand(a *app) *cobra.Command {
	var (
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the current flight snapshot as KML or CSV",
		Long: `Write every flight in the store to a file or stdout.

Examples:
  flighttracker export --format kml --output flights.kml
  flighttracker export --format csv > flights.csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			flights, err := store.ListFlights(ctx, 0, 0)
			if err != nil {
				return fmt.Errorf("list flights: %w", err)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create output: %w", err)
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "kml":
				n, err := export.WriteKML(w, flights)
				if err != nil {
					return err
				}
				a.logger.Info().Int("placemarks", n).Int("skipped", len(flights)-n).Msg("KML export written")
			case "csv":
				if err := export.WriteCSV(w, flights); err != nil {
					return err
				}
				a.logger.Info().Int("rows", len(flights)).Msg("CSV export written")
			default:
				return fmt.Errorf("unknown export format %q (want kml or csv)", format)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "kml", "Output format: kml or csv")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

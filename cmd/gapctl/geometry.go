package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
	"github.com/samirrijal/gapfinder/internal/pkg/geospatial"
)

func newOverlapsCmd() *cobra.Command {
	var (
		file     string
		radiusMi float64
	)

	cmd := &cobra.Command{
		Use:   "overlaps",
		Short: "Detect overlapping coverage areas in a JSON list of entities",
		Long: "Reads a JSON array of {id, location: {lat, lng}, radius} objects and prints\n" +
			"every overlapping pair with a summary. Entities without a radius use\n" +
			"--radius-mi, or the default coverage radius when that is unset.",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}

			var entities []domain.CoverageEntity
			if err := json.Unmarshal(data, &entities); err != nil {
				return fmt.Errorf("decode entities: %w", err)
			}
			for i := range entities {
				if !entities[i].Location.Valid() {
					return fmt.Errorf("entity %q: %w", entities[i].ID, domain.ErrInvalidLocation)
				}
				if entities[i].Radius <= 0 && radiusMi > 0 {
					entities[i].Radius = geospatial.MilesToMeters(radiusMi)
				}
			}

			overlaps := usecases.DetectOverlaps(entities)
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"overlaps": overlaps,
				"summary":  usecases.SummarizeOverlaps(overlaps),
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "-", "entities JSON file, - for stdin")
	cmd.Flags().Float64Var(&radiusMi, "radius-mi", 0, "coverage radius in miles for entities without one")
	return cmd
}

func newDistanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "distance [--] <lat1> <lng1> <lat2> <lng2>",
		Short: "Great-circle distance between two points",
		Long:  "Great-circle distance between two points. Put -- before the coordinates\nwhen any of them is negative.",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			vals := make([]float64, 4)
			for i, a := range args {
				v, err := strconv.ParseFloat(a, 64)
				if err != nil {
					return fmt.Errorf("argument %d: %w", i+1, err)
				}
				vals[i] = v
			}

			a := geospatial.Point{Lat: vals[0], Lng: vals[1]}
			b := geospatial.Point{Lat: vals[2], Lng: vals[3]}
			if !a.Valid() || !b.Valid() {
				return domain.ErrInvalidLocation
			}

			d := geospatial.Distance(a, b)
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%.2f m (%.3f mi)\n", d, geospatial.MetersToMiles(d))
			return err
		},
	}
}

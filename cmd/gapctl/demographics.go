package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/samirrijal/gapfinder/internal/adapters/census"
	"github.com/samirrijal/gapfinder/internal/core/domain"
	"github.com/samirrijal/gapfinder/internal/core/usecases"
)

func newDemographicsCmd() *cobra.Command {
	var lat, lng float64

	cmd := &cobra.Command{
		Use:   "demographics",
		Short: "Look up tract demographics for a point",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := domain.GeoPoint{Lat: lat, Lng: lng}
			if !p.Valid() {
				return domain.ErrInvalidLocation
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := census.New(census.Config{
				GeocoderURL: cfg.Census.GeocoderURL,
				StatsURL:    cfg.Census.StatsURL,
				APIKey:      cfg.Census.APIKey,
				Year:        cfg.Census.Year,
				Timeout:     time.Duration(cfg.Census.Timeout) * time.Second,
			})
			svc := usecases.NewDemographicsService(client, client)

			return printJSON(cmd.OutOrStdout(), svc.Fetch(cmd.Context(), p))
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lng")
	return cmd
}

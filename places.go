package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wanderlore/wanderlore-go/internal/api"
	"github.com/wanderlore/wanderlore-go/internal/session"
)

func newNearbyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nearby <lat> <lng>",
		Short: "List points of interest around a location",
		Args:  cobra.ExactArgs(2),
		RunE:  runNearby,
	}
	cmd.Flags().Int("radius", 0, "search radius in meters (default from config)")
	cmd.Flags().Int("max", 0, "maximum results (default from config)")
	cmd.Flags().String("type", "", "place type filter (default from config)")

	return cmd
}

func parseCoordinates(latArg, lngArg string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("invalid latitude %q", latArg)
	}

	lng, err := strconv.ParseFloat(lngArg, 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("invalid longitude %q", lngArg)
	}

	return lat, lng, nil
}

func runNearby(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	lat, lng, err := parseCoordinates(args[0], args[1])
	if err != nil {
		return err
	}

	radius, _ := cmd.Flags().GetInt("radius")
	if radius == 0 {
		radius = a.cfg.Places.RadiusMeters
	}

	maxResults, _ := cmd.Flags().GetInt("max")
	if maxResults == 0 {
		maxResults = a.cfg.Places.MaxResults
	}

	placeType, _ := cmd.Flags().GetString("type")

	ctx := context.Background()

	places, err := a.client.PlacesNearby(ctx, lat, lng, radius, maxResults, placeType)
	if err != nil {
		return nearbyError(err)
	}

	if flagJSON {
		return printJSON(places)
	}

	if len(places) == 0 {
		fmt.Println("No places found.")

		return nil
	}

	printPlaces(places)

	return nil
}

// nearbyError rewrites the common failure modes into actionable messages.
func nearbyError(err error) error {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return errors.New("not signed in — run 'wanderlore login' or browse previews with 'wanderlore browse'")
	case errors.Is(err, session.ErrRefreshRejected), errors.Is(err, api.ErrUnauthorized):
		return errors.New("session expired — run 'wanderlore login' again")
	case errors.Is(err, api.ErrUnreachable):
		return errors.New("service unreachable — check your connection")
	}

	return err
}

func printPlaces(places []api.Place) {
	if !stdoutIsTTY() {
		for _, p := range places {
			fmt.Printf("%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, formatDistance(p.Distance))
		}

		return
	}

	headers := []string{"NAME", "CATEGORY", "DISTANCE", "ID"}
	rows := make([][]string, 0, len(places))

	for _, p := range places {
		rows = append(rows, []string{p.Name, p.Category, formatDistance(p.Distance), p.ID})
	}

	printTable(os.Stdout, headers, rows)
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wanderlore/wanderlore-go/internal/api"
	"github.com/wanderlore/wanderlore-go/internal/config"
	"github.com/wanderlore/wanderlore-go/internal/tourstore"
)

func newTourCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tour <place-id>",
		Short: "Fetch the audio tour for a place",
		Args:  cobra.ExactArgs(1),
		RunE:  runTour,
	}
	cmd.Flags().String("type", "", "tour type (default from config)")
	cmd.Flags().Bool("save", false, "save the tour for offline listening")
	cmd.Flags().Bool("offline", false, "read from the offline library only, no network")

	return cmd
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <place-id>",
		Short: "Generate a tour on demand and stream progress",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	cmd.Flags().String("type", "", "tour type (default from config)")
	cmd.Flags().Bool("save", false, "save the generated tour for offline listening")

	return cmd
}

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <place-id>",
		Short: "Fetch a tour preview without signing in",
		Args:  cobra.ExactArgs(1),
		RunE:  runPreview,
	}
	cmd.Flags().String("type", "", "tour type (default from config)")

	return cmd
}

func tourType(cmd *cobra.Command, cfg *config.Config) string {
	t, _ := cmd.Flags().GetString("type")
	if t == "" {
		t = cfg.Places.TourType
	}

	return t
}

func runTour(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	placeID := args[0]
	typ := tourType(cmd, a.cfg)
	offline, _ := cmd.Flags().GetBool("offline")
	save, _ := cmd.Flags().GetBool("save")

	ctx := context.Background()

	if offline {
		return runTourOffline(ctx, a, placeID, typ)
	}

	tour, err := a.client.TourByPlace(ctx, placeID, typ)
	if err != nil {
		// Fall back to the offline copy when the service is unreachable.
		if errors.Is(err, api.ErrUnreachable) {
			a.logger.Info("service unreachable, trying offline library", "place_id", placeID)

			if offlineErr := runTourOffline(ctx, a, placeID, typ); offlineErr == nil {
				return nil
			}
		}

		return nearbyError(err)
	}

	if save {
		if err := saveTour(ctx, a, tour); err != nil {
			return err
		}
	}

	return printTour(tour)
}

func runTourOffline(ctx context.Context, a *app, placeID, typ string) error {
	store, err := tourstore.Open(ctx, config.OfflineDBPath(), a.logger)
	if err != nil {
		return fmt.Errorf("opening offline library: %w", err)
	}
	defer store.Close()

	saved, err := store.Get(ctx, placeID, typ)
	if err != nil {
		if errors.Is(err, tourstore.ErrNotFound) {
			return fmt.Errorf("no offline copy of %s/%s — fetch it online with 'wanderlore tour %s --save'", placeID, typ, placeID)
		}

		return err
	}

	statusf("Offline copy, saved %s.\n", formatTime(saved.SavedAt))

	return printTour(&saved.Tour)
}

func saveTour(ctx context.Context, a *app, tour *api.Tour) error {
	store, err := tourstore.Open(ctx, config.OfflineDBPath(), a.logger)
	if err != nil {
		return fmt.Errorf("opening offline library: %w", err)
	}
	defer store.Close()

	if err := store.Save(ctx, tour); err != nil {
		return fmt.Errorf("saving tour: %w", err)
	}

	statusf("Saved for offline listening.\n")

	return nil
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	placeID := args[0]
	typ := tourType(cmd, a.cfg)
	save, _ := cmd.Flags().GetBool("save")

	ctx := context.Background()

	tour, err := a.client.GenerateTour(ctx, placeID, typ, func(p api.GenerationProgress) {
		statusf("%3d%% %s", p.Percent, p.Stage)

		if p.Message != "" {
			statusf(": %s", p.Message)
		}

		statusf("\n")
	})
	if err != nil {
		return nearbyError(err)
	}

	if save {
		if err := saveTour(ctx, a, tour); err != nil {
			return err
		}
	}

	return printTour(tour)
}

func runPreview(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	tour, err := a.client.PreviewTour(context.Background(), args[0], tourType(cmd, a.cfg))
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return fmt.Errorf("no preview available for %s", args[0])
		}

		return nearbyError(err)
	}

	return printTour(tour)
}

func printTour(tour *api.Tour) error {
	if flagJSON {
		return printJSON(tour)
	}

	fmt.Printf("Title:    %s\n", tour.Title)
	fmt.Printf("Place:    %s (%s)\n", tour.PlaceID, tour.TourType)
	fmt.Printf("Duration: %s\n", formatDuration(tour.DurationSec))

	if tour.AudioURL != "" {
		fmt.Printf("Audio:    %s\n", tour.AudioURL)
	}

	if tour.Transcript != "" {
		fmt.Printf("\n%s\n", tour.Transcript)
	}

	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/wanderlore/wanderlore-go/internal/config"
	"github.com/wanderlore/wanderlore-go/internal/tourstore"
)

func newOfflineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offline",
		Short: "Manage the offline tour library",
	}

	cmd.AddCommand(newOfflineListCmd())
	cmd.AddCommand(newOfflineRemoveCmd())
	cmd.AddCommand(newOfflinePruneCmd())

	return cmd
}

func newOfflineListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List saved tours",
		RunE:  runOfflineList,
	}
}

func newOfflineRemoveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <place-id>",
		Short: "Remove a saved tour",
		Args:  cobra.ExactArgs(1),
		RunE:  runOfflineRemove,
	}
	cmd.Flags().String("type", "", "tour type (default from config)")

	return cmd
}

func newOfflinePruneCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove saved tours older than a cutoff",
		RunE:  runOfflinePrune,
	}
	cmd.Flags().Duration("older-than", 90*24*time.Hour, "age cutoff, e.g. 720h")

	return cmd
}

// openOfflineStore opens the offline library for a subcommand.
func openOfflineStore(ctx context.Context, a *app) (*tourstore.Store, error) {
	store, err := tourstore.Open(ctx, config.OfflineDBPath(), a.logger)
	if err != nil {
		return nil, fmt.Errorf("opening offline library: %w", err)
	}

	return store, nil
}

func runOfflineList(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx := context.Background()

	store, err := openOfflineStore(ctx, a)
	if err != nil {
		return err
	}
	defer store.Close()

	tours, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("listing saved tours: %w", err)
	}

	if flagJSON {
		return printJSON(tours)
	}

	if len(tours) == 0 {
		fmt.Println("No saved tours.")

		return nil
	}

	headers := []string{"TITLE", "PLACE", "TYPE", "DURATION", "SAVED"}
	rows := make([][]string, 0, len(tours))

	for _, t := range tours {
		rows = append(rows, []string{
			t.Title,
			t.PlaceID,
			t.TourType,
			formatDuration(t.DurationSec),
			formatTime(t.SavedAt),
		})
	}

	printTable(os.Stdout, headers, rows)

	return nil
}

func runOfflineRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	typ := tourType(cmd, a.cfg)
	ctx := context.Background()

	store, err := openOfflineStore(ctx, a)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Remove(ctx, args[0], typ); err != nil {
		return fmt.Errorf("removing tour: %w", err)
	}

	statusf("Removed %s/%s.\n", args[0], typ)

	return nil
}

func runOfflinePrune(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	olderThan, _ := cmd.Flags().GetDuration("older-than")
	ctx := context.Background()

	store, err := openOfflineStore(ctx, a)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Prune(ctx, olderThan)
	if err != nil {
		return fmt.Errorf("pruning saved tours: %w", err)
	}

	statusf("Removed %d saved tour(s).\n", removed)

	return nil
}

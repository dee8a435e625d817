package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wanderlore/wanderlore-go/internal/api"
)

// defaultBrowseCategories is what the guest surface prefetches when no
// category filter is given.
var defaultBrowseCategories = []string{"history", "architecture", "art", "nature"}

func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse <city>",
		Short: "Browse prebuilt place previews without signing in",
		Args:  cobra.ExactArgs(1),
		RunE:  runBrowse,
	}
	cmd.Flags().StringSlice("categories", nil, "categories to browse (default: a curated set)")

	return cmd
}

func runBrowse(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	city := args[0]

	categories, _ := cmd.Flags().GetStringSlice("categories")
	if len(categories) == 0 {
		categories = defaultBrowseCategories
	}

	a.logger.Debug("browse", "city", city, "categories", strings.Join(categories, ","))

	previews, err := a.client.PrefetchPreviews(context.Background(), city, categories)
	if err != nil {
		return nearbyError(err)
	}

	if flagJSON {
		return printJSON(previews)
	}

	printPreviews(previews)

	return nil
}

func printPreviews(previews map[string][]api.PlacePreview) {
	categories := make([]string, 0, len(previews))
	for cat := range previews {
		categories = append(categories, cat)
	}

	sort.Strings(categories)

	total := 0

	for _, cat := range categories {
		entries := previews[cat]
		if len(entries) == 0 {
			continue
		}

		total += len(entries)

		fmt.Printf("%s\n", strings.ToUpper(cat))

		headers := []string{"NAME", "TEASER", "ID"}
		rows := make([][]string, 0, len(entries))

		for _, p := range entries {
			rows = append(rows, []string{p.Name, p.Teaser, p.PlaceID})
		}

		printTable(os.Stdout, headers, rows)
		fmt.Println()
	}

	if total == 0 {
		fmt.Println("No previews available for this city.")
	}
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wanderlore/wanderlore-go/internal/config"
	"github.com/wanderlore/wanderlore-go/internal/tourstore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session, config, and offline library status",
		RunE:  runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	Authenticated bool   `json:"authenticated"`
	Username      string `json:"username,omitempty"`
	SessionState  string `json:"session_state"`
	ConfigPath    string `json:"config_path"`
	Credentials   string `json:"credentials_path"`
	OfflineDB     string `json:"offline_db_path"`
	SavedTours    int    `json:"saved_tours"`
	IdentityURL   string `json:"identity_url"`
	APIURL        string `json:"api_url"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	out := statusOutput{
		Authenticated: a.sessions.IsAuthenticated(),
		Username:      a.sessions.Username(),
		SessionState:  a.sessions.State().String(),
		ConfigPath:    config.DefaultConfigPath(),
		Credentials:   a.store.Path(),
		OfflineDB:     config.OfflineDBPath(),
		IdentityURL:   a.cfg.Service.IdentityURL,
		APIURL:        a.cfg.Service.APIURL,
	}

	if flagConfigPath != "" {
		out.ConfigPath = flagConfigPath
	}

	out.SavedTours = countSavedTours(a)

	if flagJSON {
		return printJSON(out)
	}

	printStatusText(out)

	return nil
}

// countSavedTours returns the offline library size, or 0 when the database
// does not exist or cannot be opened. Status never fails on it.
func countSavedTours(a *app) int {
	dbPath := config.OfflineDBPath()

	if _, err := os.Stat(dbPath); err != nil {
		return 0
	}

	ctx := context.Background()

	store, err := tourstore.Open(ctx, dbPath, a.logger)
	if err != nil {
		a.logger.Warn("opening offline library for status", "error", err)

		return 0
	}
	defer store.Close()

	tours, err := store.List(ctx)
	if err != nil {
		a.logger.Warn("listing offline library for status", "error", err)

		return 0
	}

	return len(tours)
}

func printStatusText(out statusOutput) {
	if out.Authenticated {
		fmt.Printf("Signed in:   yes (%s)\n", out.Username)
	} else {
		fmt.Printf("Signed in:   no\n")
	}

	fmt.Printf("Session:     %s\n", out.SessionState)
	fmt.Printf("Identity:    %s\n", out.IdentityURL)
	fmt.Printf("API:         %s\n", out.APIURL)
	fmt.Printf("Config:      %s\n", out.ConfigPath)
	fmt.Printf("Credentials: %s\n", out.Credentials)
	fmt.Printf("Offline:     %s (%d saved)\n", out.OfflineDB, out.SavedTours)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/wanderlore/wanderlore-go/internal/api"
	"github.com/wanderlore/wanderlore-go/internal/config"
	"github.com/wanderlore/wanderlore-go/internal/credstore"
	"github.com/wanderlore/wanderlore-go/internal/geocache"
	"github.com/wanderlore/wanderlore-go/internal/identity"
	"github.com/wanderlore/wanderlore-go/internal/session"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIURL     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "wanderlore",
		Short:   "Audio tours for the places around you",
		Long:    "Browse nearby points of interest and play AI-generated audio narrations about them.",
		Version: version,
		// Silence Cobra's default error/usage printing — main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "backend API base URL override")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newSignupCmd())
	cmd.AddCommand(newConfirmCmd())
	cmd.AddCommand(newForgotCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newDeleteAccountCmd())
	cmd.AddCommand(newNearbyCmd())
	cmd.AddCommand(newTourCmd())
	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newBrowseCmd())
	cmd.AddCommand(newOfflineCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// app bundles the core wired once per invocation: config, credential store,
// identity client, session manager, dispatcher, and backend client. Explicit
// construction (no package-level singletons) keeps every piece testable.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *credstore.Store
	provider *identity.Client
	sessions *session.Manager
	client   *api.Client

	// stopWatch cancels the credential file watcher.
	stopWatch context.CancelFunc
}

// newApp resolves configuration and constructs the core. Every command that
// talks to the backend or the credential store goes through here.
func newApp() (*app, error) {
	cfg, err := config.Resolve(config.ReadEnvOverrides(), config.CLIOverrides{
		ConfigPath: flagConfigPath,
		APIURL:     flagAPIURL,
	})
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := buildLogger(cfg)

	httpClient := &http.Client{Timeout: cfg.RequestTimeout()}

	configDir := config.DefaultConfigDir()

	installID, err := config.InstallationID(configDir)
	if err != nil {
		// Diagnostics only; never block the user on it.
		logger.Warn("could not resolve installation id", slog.String("error", err.Error()))

		installID = ""
	}

	store := credstore.New(configDir, logger)
	provider := identity.NewClient(cfg.Service.IdentityURL, httpClient, logger)
	sessions := session.NewManager(store, provider, logger)
	dispatcher := api.NewDispatcher(httpClient, sessions, geocache.New(logger), logger)
	client := api.NewClient(cfg.Service.APIURL, cfg.Service.ContentURL, installID, dispatcher, httpClient, logger)

	// Watch for external sign-outs (another process clearing credentials)
	// so long-running commands drop their session instead of refreshing
	// against cleared credentials.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	go func() {
		if err := store.Watch(watchCtx, sessions.ReloadFromStore); err != nil {
			logger.Debug("credential watcher unavailable", slog.String("error", err.Error()))
		}
	}()

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		provider:  provider,
		sessions:  sessions,
		client:    client,
		stopWatch: stopWatch,
	}, nil
}

// close releases background resources: the credential watcher and the
// proactive refresh timer.
func (a *app) close() {
	a.stopWatch()
	a.sessions.Close()
}

// buildLogger creates an slog.Logger from the config log level; --verbose
// and --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

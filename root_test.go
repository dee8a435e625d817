package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanderlore/wanderlore-go/internal/config"
)

// Global flag reset pattern: newRootCmd() binds flags via StringVar/BoolVar,
// which reset the global flag variables to their zero values. Tests set
// globals AFTER newRootCmd() returns, or restore them in t.Cleanup.

func resetFlags(t *testing.T) {
	t.Helper()

	oldVerbose := flagVerbose
	oldQuiet := flagQuiet
	oldJSON := flagJSON

	t.Cleanup(func() {
		flagVerbose = oldVerbose
		flagQuiet = oldQuiet
		flagJSON = oldJSON
	})

	flagVerbose = false
	flagQuiet = false
	flagJSON = false
}

func TestBuildLogger_ConfigLevel(t *testing.T) {
	resetFlags(t)

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "warn"

	logger := buildLogger(cfg)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_VerboseOverridesConfig(t *testing.T) {
	resetFlags(t)
	flagVerbose = true

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"

	logger := buildLogger(cfg)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_QuietOverridesConfig(t *testing.T) {
	resetFlags(t)
	flagQuiet = true

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "debug"

	logger := buildLogger(cfg)

	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := newRootCmd()

	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	for _, want := range []string{
		"login", "signup", "confirm", "forgot", "logout", "whoami",
		"delete-account", "nearby", "tour", "generate", "preview",
		"browse", "offline", "status",
	} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCmd_SilencesCobraOutput(t *testing.T) {
	cmd := newRootCmd()

	require.True(t, cmd.SilenceErrors)
	require.True(t, cmd.SilenceUsage)
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// installIDFileName holds the installation's random identifier, generated
// once on first use and sent with API requests for server-side diagnostics.
// It carries no account information.
const installIDFileName = "install_id"

// InstallationID returns the stable per-installation identifier, creating
// it on first call. dir is normally DefaultConfigDir(); tests pass a temp
// directory.
func InstallationID(dir string) (string, error) {
	path := filepath.Join(dir, installIDFileName)

	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt file: fall through and regenerate.
	}

	id := uuid.NewString()

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("config: creating directory %s: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("config: writing installation id: %w", err)
	}

	return id, nil
}

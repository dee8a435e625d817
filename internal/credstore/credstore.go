// Package credstore persists the user's session (tokens, expiry, refresh
// token, username) in an app-private credentials file. Writes are atomic
// (write-to-temp + rename) so a reader never observes a half-written session.
// Alongside the secure file it maintains a lightweight "authenticated" marker
// that boot-time checks can read without touching the credentials themselves.
package credstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// FilePerms restricts the credentials file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the credentials directory.
const DirPerms = 0o700

// File names inside the store directory.
const (
	credentialsFileName = "credentials.json"
	markerFileName      = "authenticated"
)

// Session is the credential set for one signed-in user. IDToken is only
// meaningful paired with ExpiresAt; a session without a refresh token can
// serve until expiry but cannot be renewed.
type Session struct {
	IDToken      string
	ExpiresAt    time.Time
	RefreshToken string
	Username     string
}

// ValidFor reports whether the session's ID token is still usable at the
// given instant with the given safety buffer before expiry.
func (s *Session) ValidFor(now time.Time, buffer time.Duration) bool {
	return s.IDToken != "" && s.ExpiresAt.After(now.Add(buffer))
}

// sessionJSON is the on-disk form. Expiry is serialized as milliseconds
// since epoch to match the wire contract of the identity provider.
type sessionJSON struct {
	IDToken        string `json:"id_token"`
	ExpiresAtMilli int64  `json:"expires_at_ms"`
	RefreshToken   string `json:"refresh_token,omitempty"`
	Username       string `json:"username,omitempty"`
}

// fileFormat wraps the session so the format can grow metadata later
// without breaking old files.
type fileFormat struct {
	Session *sessionJSON `json:"session"`
}

// Store reads and writes the credentials file for one installation.
type Store struct {
	dir    string
	logger *slog.Logger
}

// New creates a Store rooted at dir. The directory is created lazily on
// first Save.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{dir: dir, logger: logger}
}

// Path returns the full path of the credentials file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, credentialsFileName)
}

func (s *Store) markerPath() string {
	return filepath.Join(s.dir, markerFileName)
}

// Save persists the session atomically with 0600 permissions and sets the
// authenticated marker. Never logs token values.
func (s *Store) Save(sess *Session) error {
	if sess == nil {
		return fmt.Errorf("credstore: nil session")
	}

	ff := fileFormat{Session: &sessionJSON{
		IDToken:        sess.IDToken,
		ExpiresAtMilli: sess.ExpiresAt.UnixMilli(),
		RefreshToken:   sess.RefreshToken,
		Username:       sess.Username,
	}}

	data, err := json.MarshalIndent(ff, "", "  ")
	if err != nil {
		return fmt.Errorf("credstore: encoding: %w", err)
	}

	if mkErr := os.MkdirAll(s.dir, DirPerms); mkErr != nil {
		return fmt.Errorf("credstore: creating directory %s: %w", s.dir, mkErr)
	}

	// Atomic write: temp file in the same directory, then rename.
	// Same directory guarantees same filesystem for rename(2).
	tmp, err := os.CreateTemp(s.dir, ".credentials-*.tmp")
	if err != nil {
		return fmt.Errorf("credstore: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: writing: %w", err)
	}

	// Flush to stable storage before rename so a power loss between close
	// and rename cannot leave an empty or partial credentials file.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("credstore: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("credstore: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("credstore: renaming: %w", err)
	}

	success = true

	// The marker is advisory; a failure here must not fail the save.
	if err := os.WriteFile(s.markerPath(), []byte("1\n"), FilePerms); err != nil {
		s.logger.Warn("failed to write authenticated marker",
			slog.String("path", s.markerPath()),
			slog.String("error", err.Error()),
		)
	}

	s.logger.Debug("session saved",
		slog.String("username", sess.Username),
		slog.Time("expiry", sess.ExpiresAt),
	)

	return nil
}

// Load reads the stored session. Returns (nil, nil) if no credentials file
// exists — "nothing stored" is a normal result, not a failure.
func (s *Store) Load() (*Session, error) {
	data, err := os.ReadFile(s.Path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("credstore: reading %s: %w", s.Path(), err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("credstore: decoding %s: %w", s.Path(), err)
	}

	if ff.Session == nil {
		return nil, fmt.Errorf("credstore: %s missing session field (sign in again)", s.Path())
	}

	return &Session{
		IDToken:      ff.Session.IDToken,
		ExpiresAt:    time.UnixMilli(ff.Session.ExpiresAtMilli),
		RefreshToken: ff.Session.RefreshToken,
		Username:     ff.Session.Username,
	}, nil
}

// Clear removes the credentials file and the authenticated marker. Safe to
// call when nothing is stored.
func (s *Store) Clear() error {
	if err := os.Remove(s.Path()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("credstore: removing %s: %w", s.Path(), err)
	}

	if err := os.Remove(s.markerPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("failed to remove authenticated marker",
			slog.String("path", s.markerPath()),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// IsAuthenticated reports whether the authenticated marker is present.
// This is a fast boot-time check that avoids reading the credentials file;
// the marker can be stale, so callers needing certainty must Load.
func (s *Store) IsAuthenticated() bool {
	_, err := os.Stat(s.markerPath())
	return err == nil
}

// Package tourstore persists downloaded tours in an embedded SQLite
// database so narrations stay listenable without connectivity. Schema
// changes go through embedded goose migrations.
package tourstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".

	"github.com/wanderlore/wanderlore-go/internal/api"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL journal at 16 MiB; the offline library
// is small and bursty, not write-heavy.
const walJournalSizeLimit = 16777216

// ErrNotFound is returned when no saved tour matches.
var ErrNotFound = errors.New("tourstore: tour not saved")

// SavedTour is one offline narration plus its save timestamp.
type SavedTour struct {
	api.Tour

	SavedAt time.Time
}

// Store is the offline tour database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	save, get, list, deleteOld, remove *sql.Stmt
}

// Open opens (creating if needed) the database at dbPath, applies
// migrations, and prepares statements. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("tourstore: open sqlite: %w", err)
	}

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("tourstore: prepare statements: %w", err)
	}

	logger.Debug("offline tour database ready", slog.String("path", dbPath))

	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a tour in the offline library.
func (s *Store) Save(ctx context.Context, tour *api.Tour) error {
	_, err := s.save.ExecContext(ctx,
		tour.PlaceID, tour.TourType, tour.Title, tour.Transcript,
		tour.AudioURL, tour.DurationSec, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("tourstore: saving tour: %w", err)
	}

	s.logger.Debug("tour saved offline",
		slog.String("place_id", tour.PlaceID),
		slog.String("tour_type", tour.TourType),
	)

	return nil
}

// Get returns one saved tour, or ErrNotFound.
func (s *Store) Get(ctx context.Context, placeID, tourType string) (*SavedTour, error) {
	row := s.get.QueryRowContext(ctx, placeID, tourType)

	tour, err := scanTour(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("tourstore: reading tour: %w", err)
	}

	return tour, nil
}

// List returns all saved tours, most recently saved first.
func (s *Store) List(ctx context.Context) ([]SavedTour, error) {
	rows, err := s.list.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("tourstore: listing tours: %w", err)
	}
	defer rows.Close()

	var tours []SavedTour

	for rows.Next() {
		tour, err := scanTour(rows)
		if err != nil {
			return nil, fmt.Errorf("tourstore: reading tour row: %w", err)
		}

		tours = append(tours, *tour)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tourstore: iterating tours: %w", err)
	}

	return tours, nil
}

// Remove deletes one saved tour. Removing a tour that is not saved is not
// an error.
func (s *Store) Remove(ctx context.Context, placeID, tourType string) error {
	if _, err := s.remove.ExecContext(ctx, placeID, tourType); err != nil {
		return fmt.Errorf("tourstore: removing tour: %w", err)
	}

	return nil
}

// Prune deletes tours saved before the cutoff and reports how many were
// removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()

	res, err := s.deleteOld.ExecContext(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("tourstore: pruning tours: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("tourstore: counting pruned tours: %w", err)
	}

	if n > 0 {
		s.logger.Info("pruned offline tours", slog.Int64("removed", n))
	}

	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTour(row rowScanner) (*SavedTour, error) {
	var (
		tour    SavedTour
		savedMs int64
	)

	err := row.Scan(
		&tour.PlaceID, &tour.TourType, &tour.Title, &tour.Transcript,
		&tour.AudioURL, &tour.DurationSec, &savedMs,
	)
	if err != nil {
		return nil, err
	}

	tour.SavedAt = time.UnixMilli(savedMs)

	return &tour, nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	const cols = "place_id, tour_type, title, transcript, audio_url, duration_sec, saved_at_ms"

	stmts := []struct {
		dst **sql.Stmt
		sql string
	}{
		{&s.save, "INSERT OR REPLACE INTO tours (" + cols + ") VALUES (?, ?, ?, ?, ?, ?, ?)"},
		{&s.get, "SELECT " + cols + " FROM tours WHERE place_id = ? AND tour_type = ?"},
		{&s.list, "SELECT " + cols + " FROM tours ORDER BY saved_at_ms DESC"},
		{&s.deleteOld, "DELETE FROM tours WHERE saved_at_ms < ?"},
		{&s.remove, "DELETE FROM tours WHERE place_id = ? AND tour_type = ?"},
	}

	for _, st := range stmts {
		prepared, err := s.db.PrepareContext(ctx, st.sql)
		if err != nil {
			return err
		}

		*st.dst = prepared
	}

	return nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("tourstore: %s: %w", p, err)
		}
	}

	return nil
}

// runMigrations applies all pending schema migrations. Uses the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("tourstore: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("tourstore: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("tourstore: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Debug("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

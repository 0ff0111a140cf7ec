package recorder

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is the take database.
type Store struct {
	conn   *sql.DB
	logger *log.Logger
}

// OpenStore opens or creates the database at path and applies pending
// migrations.
func OpenStore(path string, logger *log.Logger) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	s := &Store{conn: conn, logger: logger}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Conn() *sql.DB {
	return s.conn
}

func (s *Store) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}

	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if s.logger != nil {
			s.logger.Info("applied migration", "name", name)
		}
	}
	return nil
}

func (s *Store) isMigrationApplied(name string) bool {
	var exists int
	err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists)
	if err != nil {
		return false
	}

	var applied int
	err = s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (s *Store) BeginTake(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `INSERT INTO takes (id) VALUES (?)`, id)
	return err
}

func (s *Store) EndTake(ctx context.Context, id string) error {
	_, err := s.conn.ExecContext(ctx, `UPDATE takes SET ended_at = datetime('now') WHERE id = ?`, id)
	return err
}

type subjectRow struct {
	TakeID       string
	Source       string
	Name         string
	Role         string
	Bones        string
	Parents      string
	Properties   string
	RegisteredAt float64
}

func (s *Store) insertSubject(ctx context.Context, r subjectRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO subjects (take_id, source, name, role, bones, parents, properties, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TakeID, r.Source, r.Name, r.Role, r.Bones, r.Parents, r.Properties, r.RegisteredAt)
	return err
}

type frameRow struct {
	TakeID          string
	Source          string
	Subject         string
	WorldTime       float64
	FrameNumber     int32
	SubFrame        float32
	RateNumerator   int32
	RateDenominator int32
	Kind            string
	Transforms      string
	BlendShapes     sql.NullString
	MetaData        string
}

func (s *Store) insertFrame(ctx context.Context, r frameRow) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO frames (take_id, source, subject, world_time, frame_number, subframe,
			rate_numerator, rate_denominator, kind, transforms, blend_shapes, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.TakeID, r.Source, r.Subject, r.WorldTime, r.FrameNumber, r.SubFrame,
		r.RateNumerator, r.RateDenominator, r.Kind, r.Transforms, r.BlendShapes, r.MetaData)
	return err
}

func (s *Store) insertRemoval(ctx context.Context, takeID, source, subject string, at float64) error {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO removals (take_id, source, subject, removed_at) VALUES (?, ?, ?, ?)`,
		takeID, source, subject, at)
	return err
}

// SubjectSummary describes one recorded subject of a take.
type SubjectSummary struct {
	Name     string `json:"name"`
	Role     string `json:"role"`
	Frames   int    `json:"frames"`
	Removed  bool   `json:"removed"`
	LastSeen int32  `json:"last_frame"`
}

// Subjects summarises the subjects recorded in take, ordered by name.
func (s *Store) Subjects(ctx context.Context, takeID string) ([]SubjectSummary, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT s.name, s.role,
			(SELECT COUNT(*) FROM frames f WHERE f.take_id = s.take_id AND f.subject = s.name),
			(SELECT COALESCE(MAX(f.frame_number), -1) FROM frames f WHERE f.take_id = s.take_id AND f.subject = s.name),
			EXISTS (SELECT 1 FROM removals r WHERE r.take_id = s.take_id AND r.subject = s.name)
		FROM subjects s
		WHERE s.take_id = ?
		GROUP BY s.name
		ORDER BY s.name ASC`, takeID)
	if err != nil {
		return nil, fmt.Errorf("query subjects: %w", err)
	}
	defer rows.Close()

	var out []SubjectSummary
	for rows.Next() {
		var ss SubjectSummary
		if err := rows.Scan(&ss.Name, &ss.Role, &ss.Frames, &ss.LastSeen, &ss.Removed); err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, ss)
	}
	return out, rows.Err()
}

// RecordedFrame is a frame as stored.
type RecordedFrame struct {
	Subject     string
	FrameNumber int32
	Kind        string
	Transforms  []Bone
	BlendShapes []float32
	MetaData    map[string]string
}

// Frames returns the frames of subject in take, in insertion order.
func (s *Store) Frames(ctx context.Context, takeID, subject string) ([]RecordedFrame, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT subject, frame_number, kind, transforms, blend_shapes, metadata
		FROM frames
		WHERE take_id = ? AND subject = ?
		ORDER BY id ASC`, takeID, subject)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []RecordedFrame
	for rows.Next() {
		var (
			f                    RecordedFrame
			transforms, metadata string
			blend                sql.NullString
		)
		if err := rows.Scan(&f.Subject, &f.FrameNumber, &f.Kind, &transforms, &blend, &metadata); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		if err := decodeFrame(&f, transforms, blend, metadata); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

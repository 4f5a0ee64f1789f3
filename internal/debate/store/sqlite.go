package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultDirMode  = 0o755
	defaultFileMode = 0o600
)

// Turn is one persisted debate utterance.
type Turn struct {
	DebateID    string
	ChannelID   string
	Topic       string
	Personality string
	Turn        int
	Content     string
	CreatedAt   time.Time
}

type SQLiteStore struct {
	path string
	db   *sql.DB
}

func OpenSQLite(path string) (*SQLiteStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("debate store: db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirMode); err != nil {
		return nil, fmt.Errorf("debate store: create dir: %w", err)
	}
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("debate store: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{path: path, db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := os.Chmod(path, defaultFileMode); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) SaveTurn(ctx context.Context, turn Turn) error {
	if s == nil || s.db == nil {
		return errors.New("debate store: nil database")
	}
	if turn.DebateID == "" || turn.ChannelID == "" {
		return errors.New("debate store: debate id and channel id are required")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO debate_turns (
			debate_id, channel_id, topic, personality, turn, content, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, turn.DebateID, turn.ChannelID, turn.Topic, turn.Personality, turn.Turn, turn.Content, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("debate store: save turn: %w", err)
	}
	return nil
}

// Turns returns a debate's transcript in turn order.
func (s *SQLiteStore) Turns(ctx context.Context, debateID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT debate_id, channel_id, topic, personality, turn, content, created_at
		FROM debate_turns
		WHERE debate_id = ?
		ORDER BY turn ASC
	`, debateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

// RecentTurns returns the latest turns in the channel, newest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, channelID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT debate_id, channel_id, topic, personality, turn, content, created_at
		FROM debate_turns
		WHERE channel_id = ?
		ORDER BY created_at DESC, turn DESC
		LIMIT ?
	`, channelID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTurns(rows)
}

// DebateCount reports how many distinct debates have been recorded.
func (s *SQLiteStore) DebateCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT debate_id) FROM debate_turns`).Scan(&count)
	return count, err
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS debate_turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			debate_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			topic TEXT NOT NULL,
			personality TEXT NOT NULL,
			turn INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debate_turns_debate
			ON debate_turns(debate_id, turn)`,
		`CREATE INDEX IF NOT EXISTS idx_debate_turns_channel_created
			ON debate_turns(channel_id, created_at DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("debate store: migrate: %w", err)
		}
	}
	return nil
}

func scanTurns(rows *sql.Rows) ([]Turn, error) {
	turns := []Turn{}
	for rows.Next() {
		var t Turn
		if err := rows.Scan(
			&t.DebateID,
			&t.ChannelID,
			&t.Topic,
			&t.Personality,
			&t.Turn,
			&t.Content,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return turns, nil
}

// Package sqlite stores profiles in a SQLite database. Profile fields live in a
// JSON document column; conversation turns live in their own table so a
// history append is a single insert inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/silvercoin/advisor/backend/internal/model/profile"
)

// Store implements profile.Store on SQLite.
type Store struct {
	db  *sql.DB
	dsn string
}

var _ profile.Store = (*Store)(nil)

// Open creates or opens the database at dsn and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer keeps the per-profile append serialized and lets ":memory:" work.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, dsn: dsn}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	schema := `
	PRAGMA foreign_keys = ON;
	PRAGMA busy_timeout = 5000;

	CREATE TABLE IF NOT EXISTS profiles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		doc TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS conversation_turns (
		profile_id TEXT NOT NULL REFERENCES profiles(id),
		seq INTEGER NOT NULL,
		user_message TEXT NOT NULL,
		bot_reply TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (profile_id, seq)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Create(ctx context.Context, p profile.Profile) (profile.Profile, error) {
	p = p.Clone()
	p.ID = uuid.NewString()
	p.ConversationHistory = []profile.ConversationTurn{}

	doc, err := encodeDoc(p)
	if err != nil {
		return profile.Profile{}, err
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO profiles (id, name, doc) VALUES (?, ?, ?)`, p.ID, p.Name, doc); err != nil {
		return profile.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return p, nil
}

func (s *Store) Get(ctx context.Context, id string) (profile.Profile, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM profiles WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, fmt.Errorf("select profile: %w", err)
	}

	p, err := decodeDoc(doc)
	if err != nil {
		return profile.Profile{}, err
	}
	p.ID = id

	p.ConversationHistory, err = s.loadHistory(ctx, id)
	if err != nil {
		return profile.Profile{}, err
	}
	return p, nil
}

func (s *Store) List(ctx context.Context) ([]profile.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM profiles ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]profile.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, p profile.Profile) error {
	doc, err := encodeDoc(p)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE profiles SET name = ?, doc = ? WHERE id = ?`, p.Name, doc, p.ID)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return profile.ErrNotFound
	}
	return nil
}

func (s *Store) AppendHistory(ctx context.Context, id string, turn profile.ConversationTurn) (profile.ConversationTurn, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return profile.ConversationTurn{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	if err := ensureExists(ctx, tx, id); err != nil {
		return profile.ConversationTurn{}, err
	}

	var history []profile.ConversationTurn
	var (
		lastSeq int64
		lastAt  string
	)
	err = tx.QueryRowContext(ctx,
		`SELECT seq, created_at FROM conversation_turns WHERE profile_id = ? ORDER BY seq DESC LIMIT 1`, id,
	).Scan(&lastSeq, &lastAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return profile.ConversationTurn{}, fmt.Errorf("select last turn: %w", err)
	default:
		ts, err := time.Parse(time.RFC3339Nano, lastAt)
		if err != nil {
			return profile.ConversationTurn{}, fmt.Errorf("parse last turn time: %w", err)
		}
		history = append(history, profile.ConversationTurn{Seq: lastSeq, Timestamp: ts})
	}

	turn = profile.NextTurn(history, turn)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_turns (profile_id, seq, user_message, bot_reply, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, turn.Seq, turn.User, turn.Bot, turn.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return profile.ConversationTurn{}, fmt.Errorf("insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return profile.ConversationTurn{}, fmt.Errorf("commit append: %w", err)
	}
	return turn, nil
}

func (s *Store) AppendSpending(ctx context.Context, id string, entries []profile.SpendingEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin spending append: %w", err)
	}
	defer tx.Rollback()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT doc FROM profiles WHERE id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("select profile: %w", err)
	}

	p, err := decodeDoc(doc)
	if err != nil {
		return err
	}
	p.SpendingData = append(p.SpendingData, entries...)

	updated, err := encodeDoc(p)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE profiles SET doc = ? WHERE id = ?`, updated, id); err != nil {
		return fmt.Errorf("update spending: %w", err)
	}
	return tx.Commit()
}

func (s *Store) loadHistory(ctx context.Context, id string) ([]profile.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, user_message, bot_reply, created_at FROM conversation_turns WHERE profile_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("select history: %w", err)
	}
	defer rows.Close()

	history := []profile.ConversationTurn{}
	for rows.Next() {
		var (
			turn profile.ConversationTurn
			at   string
		)
		if err := rows.Scan(&turn.Seq, &turn.User, &turn.Bot, &at); err != nil {
			return nil, err
		}
		turn.Timestamp, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("parse turn time: %w", err)
		}
		history = append(history, turn)
	}
	return history, rows.Err()
}

func ensureExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM profiles WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return profile.ErrNotFound
	}
	return err
}

func encodeDoc(p profile.Profile) (string, error) {
	p.ConversationHistory = nil
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode profile: %w", err)
	}
	return string(data), nil
}

func decodeDoc(doc string) (profile.Profile, error) {
	var p profile.Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return profile.Profile{}, fmt.Errorf("decode profile: %w", err)
	}
	if p.FinancialGoals == nil {
		p.FinancialGoals = []string{}
	}
	if p.SpendingData == nil {
		p.SpendingData = []profile.SpendingEntry{}
	}
	return p, nil
}

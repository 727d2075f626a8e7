package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	oraclesdk "github.com/candlelight-labs/oracle-companion-go"
)

// SQLRelationshipStore persists RelationshipState in a relational
// database via database/sql. The state document is stored as JSON in a
// single row per user; the columns that matter for ops queries (current
// stage, last turn) are lifted out alongside it.
//
// Table (auto-created if AutoMigrate is true):
//
//	{prefix}_state (user_id, current_stage, last_turn_at, state, updated_at)
//
// Works with any driver whose placeholder syntax is "?" (MySQL, SQLite).
type SQLRelationshipStore struct {
	db     *sql.DB
	prefix string
}

// SQLStoreConfig configures the SQL store.
type SQLStoreConfig struct {
	Prefix      string // table prefix, default "oracle"
	AutoMigrate bool   // create the table if it does not exist
}

// NewSQLRelationshipStore creates a RelationshipStore backed by an open
// sql.DB.
func NewSQLRelationshipStore(db *sql.DB, config ...SQLStoreConfig) (*SQLRelationshipStore, error) {
	cfg := SQLStoreConfig{Prefix: "oracle", AutoMigrate: true}
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "oracle"
	}

	s := &SQLRelationshipStore{db: db, prefix: cfg.Prefix}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return s, nil
}

func (s *SQLRelationshipStore) table() string {
	return s.prefix + "_state"
}

func (s *SQLRelationshipStore) migrate() error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		user_id       VARCHAR(128) PRIMARY KEY,
		current_stage VARCHAR(64)  NOT NULL,
		last_turn_at  TIMESTAMP    NULL,
		state         TEXT         NOT NULL,
		updated_at    TIMESTAMP    NOT NULL
	)`, s.table())
	_, err := s.db.Exec(query)
	return err
}

func (s *SQLRelationshipStore) Load(ctx context.Context, userID string) (*oraclesdk.RelationshipState, error) {
	query := fmt.Sprintf("SELECT state FROM %s WHERE user_id = ?", s.table())
	var raw string
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", userID, err)
	}

	var state oraclesdk.RelationshipState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("load %s: %w: %v", userID, oraclesdk.ErrCorruptState, err)
	}
	if err := oraclesdk.ValidateState(&state); err != nil {
		return nil, fmt.Errorf("load %s: %w", userID, err)
	}
	return &state, nil
}

func (s *SQLRelationshipStore) Save(ctx context.Context, state *oraclesdk.RelationshipState) error {
	if state == nil || state.UserID == "" {
		return fmt.Errorf("save: missing user id")
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("save %s: %w", state.UserID, err)
	}

	query := fmt.Sprintf(`REPLACE INTO %s (user_id, current_stage, last_turn_at, state, updated_at)
		VALUES (?, ?, ?, ?, ?)`, s.table())
	_, err = s.db.ExecContext(ctx, query,
		state.UserID, string(state.CurrentStage), state.LastTurnAt, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("save %s: %w", state.UserID, err)
	}
	return nil
}

func (s *SQLRelationshipStore) Delete(ctx context.Context, userID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE user_id = ?", s.table())
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

func (s *SQLRelationshipStore) Close() error {
	return s.db.Close()
}

var _ RelationshipStore = (*SQLRelationshipStore)(nil)

package emotion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// personalityKey is the settings table row holding the persisted profile.
const personalityKey = "emotion.personality"

// DB is the subset of pgxpool.Pool the settings store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// SettingsStore persists the personality profile in the Postgres settings
// table so trait tuning survives restarts.
type SettingsStore struct {
	db DB
}

// NewSettingsStore creates a settings store over the given database handle.
func NewSettingsStore(db DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// LoadPersonality reads the stored profile merged over the defaults. A
// missing row returns the defaults without error.
func (s *SettingsStore) LoadPersonality(ctx context.Context) (Personality, error) {
	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var raw []byte
	err := s.db.QueryRow(opCtx, `SELECT value FROM settings WHERE key = $1`, personalityKey).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultPersonality.clone(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load personality: %w", err)
	}

	var stored Personality
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode stored personality: %w", err)
	}

	merged := DefaultPersonality.clone()
	for trait, value := range stored {
		merged[trait] = value
	}
	return merged, nil
}

// SavePersonality upserts the full profile.
func (s *SettingsStore) SavePersonality(ctx context.Context, p Personality) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode personality: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err = s.db.Exec(opCtx, `
		INSERT INTO settings (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		personalityKey, raw,
	)
	if err != nil {
		return fmt.Errorf("failed to save personality: %w", err)
	}
	return nil
}

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bodhi-ai/bodhi/pkg/bus"
)

// DB is the subset of pgxpool.Pool the episodic store needs. Tests substitute
// fakes; production passes the pool directly.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// pgOpTimeout bounds every single Postgres round trip so a stuck database
// cannot wedge the consolidation sweep or an HTTP handler.
const pgOpTimeout = 5 * time.Second

// Record is one persisted memory row.
type Record struct {
	MemoryID     string         `json:"memory_id"`
	SessionID    string         `json:"session_id"`
	Content      string         `json:"content"`
	MemoryType   string         `json:"memory_type"`
	Importance   float64        `json:"importance"`
	AccessCount  int            `json:"access_count"`
	LastAccessed *time.Time     `json:"last_accessed"`
	CreatedAt    time.Time      `json:"created_at"`
	Metadata     map[string]any `json:"metadata"`
}

// EpisodicStore persists long-term memories in Postgres. It is also the
// durable fallback for semantic memories when the vector index is down.
type EpisodicStore struct {
	db        DB
	instance  string
	publisher Publisher // may be nil
}

// NewEpisodicStore creates an episodic store over the given database handle.
func NewEpisodicStore(db DB, instance string, publisher Publisher) *EpisodicStore {
	return &EpisodicStore{db: db, instance: instance, publisher: publisher}
}

// Store inserts an episodic memory and announces it on memory.stored.
// Returns the new row's memory id.
func (s *EpisodicStore) Store(ctx context.Context, content, sessionID string, importance float64, metadata map[string]any) (string, error) {
	return s.insert(ctx, "episodic", content, sessionID, importance, metadata)
}

// StoreSemanticFallback inserts a semantic memory row. Used when the vector
// index is unavailable: Postgres holds the record so the write is not lost,
// tagged so it stays distinguishable from episodic rows.
func (s *EpisodicStore) StoreSemanticFallback(ctx context.Context, content, sessionID string, importance float64, metadata map[string]any) (string, error) {
	return s.insert(ctx, "semantic", content, sessionID, importance, metadata)
}

func (s *EpisodicStore) insert(ctx context.Context, memoryType, content, sessionID string, importance float64, metadata map[string]any) (string, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	var memoryID string
	err = s.db.QueryRow(opCtx, `
		INSERT INTO memories (session_id, content, memory_type, importance, metadata)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		RETURNING memory_id::text`,
		sessionID, content, memoryType, importance, metadataJSON,
	).Scan(&memoryID)
	if err != nil {
		return "", fmt.Errorf("failed to insert %s memory: %w", memoryType, err)
	}

	s.announce(ctx, memoryID, memoryType)
	return memoryID, nil
}

// Recent returns the newest rows, optionally filtered to one session.
func (s *EpisodicStore) Recent(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}

	opCtx, cancel := context.WithTimeout(ctx, pgOpTimeout)
	defer cancel()

	query := `
		SELECT memory_id::text, session_id, content, memory_type, importance,
		       access_count, last_accessed, created_at, metadata
		FROM memories`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, sessionID, limit)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.db.Query(opCtx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent memories: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var metadataJSON []byte
		if err := rows.Scan(&rec.MemoryID, &rec.SessionID, &rec.Content, &rec.MemoryType,
			&rec.Importance, &rec.AccessCount, &rec.LastAccessed, &rec.CreatedAt, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan memory row: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &rec.Metadata); err != nil {
				rec.Metadata = map[string]any{}
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read memory rows: %w", err)
	}
	return records, nil
}

// BumpAccess increments access counters for retrieved memories. Best-effort:
// the caller already has its results, so failures are logged and swallowed.
func (s *EpisodicStore) BumpAccess(ctx context.Context, memoryIDs []string) {
	if len(memoryIDs) == 0 {
		return
	}

	opCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	_, err := s.db.Exec(opCtx, `
		UPDATE memories
		   SET access_count = access_count + 1,
		       last_accessed = NOW()
		 WHERE memory_id = ANY($1::uuid[])`,
		memoryIDs,
	)
	if err != nil {
		log.Printf("[Memory] Access count update failed: %v", err)
	}
}

func (s *EpisodicStore) announce(ctx context.Context, memoryID, memoryType string) {
	if s.publisher == nil {
		return
	}
	payload, err := json.Marshal(map[string]string{"memory_id": memoryID, "memory_type": memoryType})
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, bus.MemoryStoredChannel(s.instance), payload); err != nil {
		log.Printf("[Memory] Failed to publish store confirmation: %v", err)
	}
}

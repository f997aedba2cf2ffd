package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bajo34/wa-pro/internal/domain"
)

// StateStore persists per-conversation state as a JSON blob.
// State is created lazily on first write and never deleted here;
// retention is an external concern.
type StateStore struct {
	db *DB
}

// NewStateStore creates a conversation state store on the given database.
func NewStateStore(db *DB) *StateStore {
	return &StateStore{db: db}
}

// Get loads the state for a key. A conversation with no record yet
// returns the zero state.
func (s *StateStore) Get(key domain.Key) (domain.ConvState, error) {
	var raw string
	err := s.db.sql.QueryRow(
		`SELECT state FROM bot_conversations WHERE instance = ? AND remote_jid = ?`,
		key.Instance, key.RemoteJid,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ConvState{}, nil
	}
	if err != nil {
		return domain.ConvState{}, fmt.Errorf("loading state for %s: %w", key, err)
	}

	var state domain.ConvState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return domain.ConvState{}, fmt.Errorf("decoding state for %s: %w", key, err)
	}
	return state, nil
}

// Put upserts the state for a key.
func (s *StateStore) Put(key domain.Key, state domain.ConvState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding state for %s: %w", key, err)
	}

	_, err = s.db.sql.Exec(
		`INSERT INTO bot_conversations (instance, remote_jid, state, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (instance, remote_jid)
		 DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		key.Instance, key.RemoteJid, string(raw), time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("saving state for %s: %w", key, err)
	}
	return nil
}

// DedupStore records processed message ids. Records are write-once;
// periodic purging is an external concern.
type DedupStore struct {
	db *DB
}

// NewDedupStore creates a dedup store on the given database.
func NewDedupStore(db *DB) *DedupStore {
	return &DedupStore{db: db}
}

// Seen reports whether the message id was already recorded.
func (s *DedupStore) Seen(messageID string) (bool, error) {
	var one int
	err := s.db.sql.QueryRow(
		`SELECT 1 FROM bot_messages_dedupe WHERE id = ?`, messageID,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking dedupe for %s: %w", messageID, err)
	}
	return true, nil
}

// Mark records a message id. Marking an already-seen id is a no-op.
func (s *DedupStore) Mark(messageID string, key domain.Key, direction string) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO bot_messages_dedupe (id, instance, remote_jid, direction)
		 VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		messageID, key.Instance, key.RemoteJid, direction,
	)
	if err != nil {
		return fmt.Errorf("marking dedupe for %s: %w", messageID, err)
	}
	return nil
}

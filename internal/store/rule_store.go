package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bajo34/wa-pro/internal/domain"
)

// ContactRule is a per-number override row.
type ContactRule struct {
	Number    string         `json:"number"`
	Mode      domain.BotMode `json:"botMode"`
	Notes     string         `json:"notes,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// ConversationRule is a per-conversation override row.
type ConversationRule struct {
	Key       domain.Key     `json:"key"`
	Mode      domain.BotMode `json:"botMode"`
	Notes     string         `json:"notes,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// RuleStore persists contact-level and conversation-level bot mode
// overrides. Absence of a rule means the default behaviour (ON).
type RuleStore struct {
	db *DB
}

// NewRuleStore creates a rule store on the given database.
func NewRuleStore(db *DB) *RuleStore {
	return &RuleStore{db: db}
}

// GetContactRule returns the mode for a phone number, or ok=false when no
// rule is defined.
func (s *RuleStore) GetContactRule(number string) (domain.BotMode, bool, error) {
	var mode string
	err := s.db.sql.QueryRow(
		`SELECT bot_mode FROM bot_contact_rules WHERE number = ?`, number,
	).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading contact rule for %s: %w", number, err)
	}
	return domain.BotMode(mode), true, nil
}

// SetContactRule creates or updates a contact rule.
func (s *RuleStore) SetContactRule(number string, mode domain.BotMode, notes string) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO bot_contact_rules (number, bot_mode, notes, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (number)
		 DO UPDATE SET bot_mode = excluded.bot_mode, notes = excluded.notes, updated_at = excluded.updated_at`,
		number, string(mode), nullable(notes), now(),
	)
	if err != nil {
		return fmt.Errorf("saving contact rule for %s: %w", number, err)
	}
	return nil
}

// DeleteContactRule removes a contact rule, reverting the number to the
// default behaviour.
func (s *RuleStore) DeleteContactRule(number string) error {
	_, err := s.db.sql.Exec(`DELETE FROM bot_contact_rules WHERE number = ?`, number)
	if err != nil {
		return fmt.Errorf("deleting contact rule for %s: %w", number, err)
	}
	return nil
}

// ListContactRules returns all contact rules, most recently updated first.
func (s *RuleStore) ListContactRules() ([]ContactRule, error) {
	rows, err := s.db.sql.Query(
		`SELECT number, bot_mode, COALESCE(notes, ''), updated_at
		 FROM bot_contact_rules ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing contact rules: %w", err)
	}
	defer rows.Close()

	var out []ContactRule
	for rows.Next() {
		var r ContactRule
		var mode, updatedAt string
		if err := rows.Scan(&r.Number, &mode, &r.Notes, &updatedAt); err != nil {
			continue
		}
		r.Mode = domain.BotMode(mode)
		r.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetConversationRule returns the mode for a conversation key, or ok=false
// when no rule is defined.
func (s *RuleStore) GetConversationRule(key domain.Key) (domain.BotMode, bool, error) {
	var mode string
	err := s.db.sql.QueryRow(
		`SELECT bot_mode FROM bot_conversation_rules WHERE instance = ? AND remote_jid = ?`,
		key.Instance, key.RemoteJid,
	).Scan(&mode)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading conversation rule for %s: %w", key, err)
	}
	return domain.BotMode(mode), true, nil
}

// SetConversationRule creates or updates a conversation rule.
func (s *RuleStore) SetConversationRule(key domain.Key, mode domain.BotMode, notes string) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO bot_conversation_rules (instance, remote_jid, bot_mode, notes, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (instance, remote_jid)
		 DO UPDATE SET bot_mode = excluded.bot_mode, notes = excluded.notes, updated_at = excluded.updated_at`,
		key.Instance, key.RemoteJid, string(mode), nullable(notes), now(),
	)
	if err != nil {
		return fmt.Errorf("saving conversation rule for %s: %w", key, err)
	}
	return nil
}

// DeleteConversationRule removes a conversation rule so the conversation
// falls back to the contact rule or default.
func (s *RuleStore) DeleteConversationRule(key domain.Key) error {
	_, err := s.db.sql.Exec(
		`DELETE FROM bot_conversation_rules WHERE instance = ? AND remote_jid = ?`,
		key.Instance, key.RemoteJid,
	)
	if err != nil {
		return fmt.Errorf("deleting conversation rule for %s: %w", key, err)
	}
	return nil
}

// ListConversationRules returns all conversation rules, most recently
// updated first.
func (s *RuleStore) ListConversationRules() ([]ConversationRule, error) {
	rows, err := s.db.sql.Query(
		`SELECT instance, remote_jid, bot_mode, COALESCE(notes, ''), updated_at
		 FROM bot_conversation_rules ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing conversation rules: %w", err)
	}
	defer rows.Close()

	var out []ConversationRule
	for rows.Next() {
		var r ConversationRule
		var mode, updatedAt string
		if err := rows.Scan(&r.Key.Instance, &r.Key.RemoteJid, &mode, &r.Notes, &updatedAt); err != nil {
			continue
		}
		r.Mode = domain.BotMode(mode)
		r.UpdatedAt, _ = time.Parse(time.DateTime, updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func now() string {
	return time.Now().UTC().Format(time.DateTime)
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Faq is a panel-authored question/answer row matched by trigger phrases.
type Faq struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title,omitempty"`
	Triggers []string `json:"triggers"`
	Answer   string   `json:"answer"`
	Enabled  bool     `json:"enabled"`
}

// Playbook is like a Faq but keyed to a named intent, used for more
// structured flows at slightly lower confidence.
type Playbook struct {
	ID       int64    `json:"id"`
	Intent   string   `json:"intent"`
	Triggers []string `json:"triggers"`
	Template string   `json:"template"`
	Enabled  bool     `json:"enabled"`
}

// DecisionRecord is an audit row for each routing decision worth keeping.
type DecisionRecord struct {
	ID         string         `json:"id"`
	Instance   string         `json:"instance"`
	RemoteJid  string         `json:"remoteJid"`
	Intent     string         `json:"intent,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// IntelligenceStore persists FAQ rows, playbooks, routing decisions, and
// the free-form settings blob templates resolve against.
type IntelligenceStore struct {
	db *DB
}

// NewIntelligenceStore creates an intelligence store on the given database.
func NewIntelligenceStore(db *DB) *IntelligenceStore {
	return &IntelligenceStore{db: db}
}

// ListEnabledFaqs returns enabled FAQ rows, newest first.
func (s *IntelligenceStore) ListEnabledFaqs() ([]Faq, error) {
	return s.listFaqs(`WHERE enabled = 1`)
}

// ListFaqs returns every FAQ row, newest first.
func (s *IntelligenceStore) ListFaqs() ([]Faq, error) {
	return s.listFaqs("")
}

func (s *IntelligenceStore) listFaqs(where string) ([]Faq, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, COALESCE(title, ''), triggers, answer, enabled
		 FROM bot_faq ` + where + ` ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing faqs: %w", err)
	}
	defer rows.Close()
	return scanFaqs(rows)
}

// CreateFaq inserts a FAQ row and returns its id.
func (s *IntelligenceStore) CreateFaq(f Faq) (int64, error) {
	triggers, err := json.Marshal(f.Triggers)
	if err != nil {
		return 0, fmt.Errorf("encoding triggers: %w", err)
	}
	res, err := s.db.sql.Exec(
		`INSERT INTO bot_faq (title, triggers, answer, enabled) VALUES (?, ?, ?, ?)`,
		nullable(f.Title), string(triggers), f.Answer, boolInt(f.Enabled),
	)
	if err != nil {
		return 0, fmt.Errorf("creating faq: %w", err)
	}
	return res.LastInsertId()
}

// DeleteFaq removes a FAQ row by id.
func (s *IntelligenceStore) DeleteFaq(id int64) error {
	_, err := s.db.sql.Exec(`DELETE FROM bot_faq WHERE id = ?`, id)
	return err
}

// ListEnabledPlaybooks returns enabled playbook rows, newest first.
func (s *IntelligenceStore) ListEnabledPlaybooks() ([]Playbook, error) {
	return s.listPlaybooks(`WHERE enabled = 1`)
}

// ListPlaybooks returns every playbook row, newest first.
func (s *IntelligenceStore) ListPlaybooks() ([]Playbook, error) {
	return s.listPlaybooks("")
}

func (s *IntelligenceStore) listPlaybooks(where string) ([]Playbook, error) {
	rows, err := s.db.sql.Query(
		`SELECT id, intent, triggers, template, enabled
		 FROM bot_playbooks ` + where + ` ORDER BY id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing playbooks: %w", err)
	}
	defer rows.Close()

	var out []Playbook
	for rows.Next() {
		var p Playbook
		var triggers string
		var enabled int
		if err := rows.Scan(&p.ID, &p.Intent, &triggers, &p.Template, &enabled); err != nil {
			continue
		}
		p.Enabled = enabled != 0
		_ = json.Unmarshal([]byte(triggers), &p.Triggers)
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePlaybook inserts a playbook row and returns its id.
func (s *IntelligenceStore) CreatePlaybook(p Playbook) (int64, error) {
	triggers, err := json.Marshal(p.Triggers)
	if err != nil {
		return 0, fmt.Errorf("encoding triggers: %w", err)
	}
	res, err := s.db.sql.Exec(
		`INSERT INTO bot_playbooks (intent, triggers, template, enabled) VALUES (?, ?, ?, ?)`,
		p.Intent, string(triggers), p.Template, boolInt(p.Enabled),
	)
	if err != nil {
		return 0, fmt.Errorf("creating playbook: %w", err)
	}
	return res.LastInsertId()
}

// DeletePlaybook removes a playbook row by id.
func (s *IntelligenceStore) DeletePlaybook(id int64) error {
	_, err := s.db.sql.Exec(`DELETE FROM bot_playbooks WHERE id = ?`, id)
	return err
}

// LogDecision records a routing decision for audit.
func (s *IntelligenceStore) LogDecision(rec DecisionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	data, err := json.Marshal(rec.Data)
	if err != nil {
		data = []byte("{}")
	}
	_, err = s.db.sql.Exec(
		`INSERT INTO bot_decisions (id, instance, remote_jid, intent, confidence, data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Instance, rec.RemoteJid, nullable(rec.Intent), rec.Confidence, string(data),
	)
	if err != nil {
		return fmt.Errorf("logging decision: %w", err)
	}
	return nil
}

// ListDecisions returns the most recent decisions, newest first.
// A limit of 0 defaults to 100.
func (s *IntelligenceStore) ListDecisions(limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.sql.Query(
		`SELECT id, instance, remote_jid, COALESCE(intent, ''), COALESCE(confidence, 0), data, created_at
		 FROM bot_decisions ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var rec DecisionRecord
		var data, createdAt string
		if err := rows.Scan(&rec.ID, &rec.Instance, &rec.RemoteJid, &rec.Intent, &rec.Confidence, &data, &createdAt); err != nil {
			continue
		}
		_ = json.Unmarshal([]byte(data), &rec.Data)
		rec.CreatedAt, _ = time.Parse(time.DateTime, createdAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetSettings returns the settings blob templates resolve against.
func (s *IntelligenceStore) GetSettings() (map[string]any, error) {
	var raw string
	err := s.db.sql.QueryRow(`SELECT value FROM bot_settings WHERE id = 1`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	var value map[string]any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}
	return value, nil
}

// PutSettings upserts the settings blob.
func (s *IntelligenceStore) PutSettings(value map[string]any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	_, err = s.db.sql.Exec(
		`INSERT INTO bot_settings (id, value, updated_at) VALUES (1, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		string(raw), now(),
	)
	if err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

func scanFaqs(rows *sql.Rows) ([]Faq, error) {
	var out []Faq
	for rows.Next() {
		var f Faq
		var triggers string
		var enabled int
		if err := rows.Scan(&f.ID, &f.Title, &triggers, &f.Answer, &enabled); err != nil {
			continue
		}
		f.Enabled = enabled != 0
		_ = json.Unmarshal([]byte(triggers), &f.Triggers)
		out = append(out, f)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package domain defines the core types shared across the reply engine.
package domain

import (
	"strings"
	"time"
)

// BotMode controls whether the assistant replies for a contact or conversation.
type BotMode string

const (
	// ModeOn lets the assistant reply normally.
	ModeOn BotMode = "ON"
	// ModeOff suppresses the assistant entirely.
	ModeOff BotMode = "OFF"
	// ModeHumanOnly leaves the conversation to a human operator.
	ModeHumanOnly BotMode = "HUMAN_ONLY"
)

// Key identifies a one-to-one chat thread on a platform instance.
// Groups and broadcast channels never produce a Key; they are rejected
// at the ingestion gate.
type Key struct {
	Instance  string `json:"instance"`
	RemoteJid string `json:"remoteJid"`
}

// String returns the canonical "instance:remoteJid" form used as a map key.
func (k Key) String() string { return k.Instance + ":" + k.RemoteJid }

// Number returns the bare phone number portion of the remote JID
// (everything before the "@s.whatsapp.net" suffix).
func (k Key) Number() string {
	if i := strings.IndexByte(k.RemoteJid, '@'); i >= 0 {
		return k.RemoteJid[:i]
	}
	return k.RemoteJid
}

// Conversation stages.
const (
	StageIdle          = "idle"
	StageAwaitingQuery = "awaiting_query"
)

// ConvState is the durable per-conversation record the engine owns.
// It is read at routing time and written back once per completed turn;
// the aggregator guarantees at most one in-flight write per Key.
type ConvState struct {
	Stage            string    `json:"stage,omitempty"`
	LastIntent       string    `json:"last_intent,omitempty"`
	LastQuery        string    `json:"last_query,omitempty"`
	LastBotReplyAt   time.Time `json:"last_bot_reply_at,omitzero"`
	LastBotReplyHash string    `json:"last_bot_reply_hash,omitempty"`
	LastFallbackAt   time.Time `json:"last_fallback_at,omitzero"`
	LastHits         []string  `json:"last_hits,omitempty"`
	LastHitsAt       time.Time `json:"last_hits_at,omitzero"`
	FollowupSent     bool      `json:"followup_sent,omitempty"`
	FollowupSentAt   time.Time `json:"followup_sent_at,omitzero"`
	LastFaqID        int64     `json:"last_faq_id,omitempty"`
	LastPlaybookID   int64     `json:"last_playbook_id,omitempty"`
}

// HitsFresh reports whether LastHits is non-empty and younger than ttl.
func (s ConvState) HitsFresh(now time.Time, ttl time.Duration) bool {
	return len(s.LastHits) > 0 && !s.LastHitsAt.IsZero() && now.Sub(s.LastHitsAt) < ttl
}

package ingest

import (
	"strings"
	"time"

	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/textutil"
)

// Rejection reasons reported back to the gateway.
const (
	ReasonIgnoredEvent = "ignored_event"
	ReasonMissingIDs   = "missing_jid_or_id"
	ReasonGroup        = "group"
	ReasonStatus       = "status"
	ReasonFromMe       = "from_me"
	ReasonDedupe       = "dedupe"
	ReasonEmptyText    = "empty_text"
)

// Result says whether the message was accepted for aggregation, and
// why not otherwise.
type Result struct {
	Accepted bool
	Reason   string
	Event    domain.Event
}

func rejected(reason string) Result {
	return Result{Reason: reason}
}

// Gate filters webhook messages before aggregation: event type,
// chat kind, self-echo, duplicates, and empty content.
type Gate struct {
	dedup *store.DedupStore
	rules *store.RuleStore
	log   *logging.Logger
}

func NewGate(dedup *store.DedupStore, rules *store.RuleStore, log *logging.Logger) *Gate {
	return &Gate{dedup: dedup, rules: rules, log: log.Sub("ingest")}
}

// Accept runs the checks in order and marks the message as seen when
// it passes. A self-echo (fromMe) flips the conversation to
// HUMAN_ONLY so the bot stays quiet once an operator replied.
func (g *Gate) Accept(p Payload, defaultInstance string) Result {
	if !IsUpsertEvent(p.Event) {
		return rejected(ReasonIgnoredEvent)
	}

	instance := p.Instance
	if instance == "" {
		instance = defaultInstance
	}
	remoteJid := p.Data.Key.RemoteJid
	messageID := p.Data.Key.ID

	if remoteJid == "" || messageID == "" {
		return rejected(ReasonMissingIDs)
	}
	if strings.HasSuffix(remoteJid, "@g.us") {
		return rejected(ReasonGroup)
	}
	if remoteJid == "status@broadcast" {
		return rejected(ReasonStatus)
	}

	key := domain.Key{Instance: instance, RemoteJid: remoteJid}

	if p.Data.Key.FromMe {
		if err := g.rules.SetConversationRule(key, domain.ModeHumanOnly, "operator reply"); err != nil {
			g.log.Warn().Err(err).Str("conv", key.String()).Msg("conversation rule update failed")
		}
		return rejected(ReasonFromMe)
	}

	seen, err := g.dedup.Seen(messageID)
	if err != nil {
		g.log.Warn().Err(err).Str("msgId", messageID).Msg("dedupe lookup failed")
	}
	if seen {
		return rejected(ReasonDedupe)
	}
	if err := g.dedup.Mark(messageID, key, "IN"); err != nil {
		g.log.Warn().Err(err).Str("msgId", messageID).Msg("dedupe mark failed")
	}

	raw := p.Data.Text()
	if textutil.Normalize(raw) == "" {
		return rejected(ReasonEmptyText)
	}

	return Result{
		Accepted: true,
		Event: domain.Event{
			Key:       key,
			MessageID: messageID,
			Text:      raw,
			Timestamp: time.Now(),
		},
	}
}

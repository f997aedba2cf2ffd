// Package rules decides whether the bot may answer a conversation at
// all, combining static number lists with stored overrides.
package rules

import (
	"slices"

	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/store"
)

// Deny reasons, for logging and the event feed.
const (
	DenyTestNumber       = "test_number"
	DenyPrivateNumber    = "private_number"
	DenyContactRule      = "contact_rule"
	DenyConversationRule = "conversation_rule"
)

// Gate evaluates, in order: the test allowlist, the private denylist,
// the per-contact rule, and the per-conversation rule. Lookup failures
// fail open so a database hiccup never silences the bot.
type Gate struct {
	testNumbers    []string
	privateNumbers []string
	store          *store.RuleStore
	log            *logging.Logger
}

func NewGate(cfg config.BotConfig, s *store.RuleStore, log *logging.Logger) *Gate {
	return &Gate{
		testNumbers:    cfg.TestNumbers,
		privateNumbers: cfg.PrivateNumbers,
		store:          s,
		log:            log.Sub("rules"),
	}
}

// Allow reports whether the bot may reply on this conversation, with
// the deny reason when it may not.
func (g *Gate) Allow(key domain.Key) (bool, string) {
	number := key.Number()

	if slices.Contains(g.testNumbers, number) {
		return false, DenyTestNumber
	}

	if slices.Contains(g.privateNumbers, number) {
		// Persist the override so admin surfaces show why the bot is
		// quiet on this number.
		if err := g.store.SetContactRule(number, domain.ModeHumanOnly, "private_numbers_env"); err != nil {
			g.log.Warn().Err(err).Str("number", number).Msg("contact rule persist failed")
		}
		return false, DenyPrivateNumber
	}

	mode, ok, err := g.store.GetContactRule(number)
	if err != nil {
		g.log.Warn().Err(err).Str("number", number).Msg("contact rule lookup failed")
	} else if ok && mode != domain.ModeOn {
		return false, DenyContactRule
	}

	mode, ok, err = g.store.GetConversationRule(key)
	if err != nil {
		g.log.Warn().Err(err).Str("conv", key.String()).Msg("conversation rule lookup failed")
	} else if ok && mode != domain.ModeOn {
		return false, DenyConversationRule
	}

	return true, ""
}

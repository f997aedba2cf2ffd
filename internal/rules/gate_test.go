package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/store"
)

func testGate(t *testing.T, cfg config.BotConfig) (*Gate, *store.RuleStore) {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rs := store.NewRuleStore(db)
	return NewGate(cfg, rs, log), rs
}

func key() domain.Key {
	return domain.Key{Instance: "main", RemoteJid: "5491122334455@s.whatsapp.net"}
}

func TestAllow_Default(t *testing.T) {
	g, _ := testGate(t, config.BotConfig{})

	ok, reason := g.Allow(key())
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestAllow_TestNumber(t *testing.T) {
	g, rs := testGate(t, config.BotConfig{TestNumbers: []string{"5491122334455"}})

	ok, reason := g.Allow(key())
	assert.False(t, ok)
	assert.Equal(t, DenyTestNumber, reason)

	// Test numbers are silently skipped, nothing is persisted.
	rules, err := rs.ListContactRules()
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestAllow_PrivateNumberPersistsHumanOnly(t *testing.T) {
	g, rs := testGate(t, config.BotConfig{PrivateNumbers: []string{"5491122334455"}})

	ok, reason := g.Allow(key())
	assert.False(t, ok)
	assert.Equal(t, DenyPrivateNumber, reason)

	mode, found, err := rs.GetContactRule("5491122334455")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.ModeHumanOnly, mode)
}

func TestAllow_ContactRule(t *testing.T) {
	g, rs := testGate(t, config.BotConfig{})
	require.NoError(t, rs.SetContactRule("5491122334455", domain.ModeOff, ""))

	ok, reason := g.Allow(key())
	assert.False(t, ok)
	assert.Equal(t, DenyContactRule, reason)
}

func TestAllow_ContactRuleOnStillAllows(t *testing.T) {
	g, rs := testGate(t, config.BotConfig{})
	require.NoError(t, rs.SetContactRule("5491122334455", domain.ModeOn, ""))

	ok, _ := g.Allow(key())
	assert.True(t, ok)
}

func TestAllow_ConversationRule(t *testing.T) {
	g, rs := testGate(t, config.BotConfig{})
	require.NoError(t, rs.SetConversationRule(key(), domain.ModeHumanOnly, ""))

	ok, reason := g.Allow(key())
	assert.False(t, ok)
	assert.Equal(t, DenyConversationRule, reason)
}

func TestAllow_FailsOpenWhenStoreBroken(t *testing.T) {
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)

	g := NewGate(config.BotConfig{}, store.NewRuleStore(db), log)
	require.NoError(t, db.Close())

	ok, _ := g.Allow(key())
	assert.True(t, ok)
}

package routing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bajo34/wa-pro/internal/catalog"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/ingest"
	"github.com/bajo34/wa-pro/internal/intelligence"
	"github.com/bajo34/wa-pro/internal/intent"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/rules"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/wachat"
)

type sentMessage struct {
	kind     string
	to       string
	text     string
	imageURL string
}

type fakeSender struct {
	mu       sync.Mutex
	messages []sentMessage
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{kind: "text", to: to, text: text})
	return nil
}

func (f *fakeSender) SendImage(ctx context.Context, to, imageURL, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessage{kind: "image", to: to, text: caption, imageURL: imageURL})
	return nil
}

func (f *fakeSender) SendPresence(ctx context.Context, to string, presence wachat.Presence, delay time.Duration) error {
	return nil
}

func (f *fakeSender) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

type fakeCatalog []catalog.Item

func (f fakeCatalog) Items() []catalog.Item { return f }

func boolPtr(b bool) *bool { return &b }

type pipeEnv struct {
	pipe   *Pipeline
	sender *fakeSender
	rules  *store.RuleStore
	states *store.StateStore
}

func testPipeline(t *testing.T) *pipeEnv {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	rs := store.NewRuleStore(db)
	states := store.NewStateStore(db)
	items := fakeCatalog{
		{ID: "ps5", Name: "PlayStation 5 Slim", PriceNumber: 999999, HasPrice: true, Currency: "ARS", InStock: boolPtr(true), Category: "consolas", Image: "https://x/ps5.jpg"},
		{ID: "mon24", Name: "Monitor 24\" 144Hz", PriceNumber: 249999, HasPrice: true, Currency: "ARS", InStock: boolPtr(true), Category: "monitores"},
	}

	sender := &fakeSender{}
	botCfg := config.BotConfig{CooldownMs: 1, FallbackCooldownMs: 300000}
	pipe := New(Deps{
		Gate:   ingest.NewGate(store.NewDedupStore(db), rs, log),
		Rules:  rules.NewGate(botCfg, rs, log),
		States: states,
		Router: intent.NewRouter(items, intelligence.NewMatcher(store.NewIntelligenceStore(db), log), rs, log),
		Sender: sender,
		Humanizer: config.HumanizerConfig{
			DebounceMinMs: 10, DebounceMaxMs: 20,
			DelayBaseMinMs: 1, DelayBaseMaxMs: 2,
			DelayPerCharMinMs: 0, DelayPerCharMaxMs: 0,
		},
		Bot:      botCfg,
		Instance: "main",
	}, log)

	return &pipeEnv{pipe: pipe, sender: sender, rules: rs, states: states}
}

func payload(jid, id, text string) ingest.Payload {
	return ingest.Payload{
		Event:    "messages.upsert",
		Instance: "main",
		Data: ingest.Message{
			Key:     ingest.MessageKey{RemoteJid: jid, ID: id},
			Message: ingest.MessageBody{Conversation: text},
		},
	}
}

func waitForMessages(t *testing.T, sender *fakeSender, n int) []sentMessage {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(sender.sent()) >= n
	}, 3*time.Second, 10*time.Millisecond)
	return sender.sent()
}

func TestPipeline_GreetingThenProductQuery(t *testing.T) {
	env := testPipeline(t)
	jid := "5491122334455@s.whatsapp.net"
	key := domain.Key{Instance: "main", RemoteJid: jid}

	res := env.pipe.HandleWebhook(payload(jid, "M1", "hola!"))
	require.True(t, res.Accepted)

	sent := waitForMessages(t, env.sender, 1)
	assert.Equal(t, "text", sent[0].kind)
	assert.Equal(t, "5491122334455", sent[0].to)

	state, err := env.states.Get(key)
	require.NoError(t, err)
	assert.Equal(t, domain.StageAwaitingQuery, state.Stage)
	assert.Equal(t, "greeting", state.LastIntent)

	res = env.pipe.HandleWebhook(payload(jid, "M2", "tenes ps5?"))
	require.True(t, res.Accepted)

	sent = waitForMessages(t, env.sender, 2)
	assert.Equal(t, "image", sent[1].kind)
	assert.Equal(t, "https://x/ps5.jpg", sent[1].imageURL)
	assert.Contains(t, sent[1].text, "Opción 1")
	assert.Contains(t, sent[1].text, "PlayStation 5 Slim")

	state, err = env.states.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "product_results_single", state.LastIntent)
	assert.Equal(t, []string{"ps5"}, state.LastHits)
}

func TestPipeline_BurstProducesOneReply(t *testing.T) {
	env := testPipeline(t)
	jid := "5491122334455@s.whatsapp.net"

	env.pipe.HandleWebhook(payload(jid, "M1", "hola"))
	env.pipe.HandleWebhook(payload(jid, "M2", "que tal"))
	env.pipe.HandleWebhook(payload(jid, "M3", "busco monitor"))

	// Burst escalation stretches the wait up to a few seconds.
	require.Eventually(t, func() bool {
		return len(env.sender.sent()) >= 1
	}, 8*time.Second, 20*time.Millisecond)
	sent := env.sender.sent()
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, env.sender.sent(), len(sent))
}

func TestPipeline_HumanOnlyConversationStaysSilent(t *testing.T) {
	env := testPipeline(t)
	jid := "5491199887766@s.whatsapp.net"
	key := domain.Key{Instance: "main", RemoteJid: jid}
	require.NoError(t, env.rules.SetConversationRule(key, domain.ModeHumanOnly, ""))

	res := env.pipe.HandleWebhook(payload(jid, "M1", "hola"))
	require.True(t, res.Accepted)

	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, env.sender.sent())
}

func TestPipeline_OperatorReplyLocksConversation(t *testing.T) {
	env := testPipeline(t)
	jid := "5491155443322@s.whatsapp.net"

	p := payload(jid, "M1", "ya te respondo yo")
	p.Data.Key.FromMe = true
	res := env.pipe.HandleWebhook(p)
	assert.False(t, res.Accepted)
	assert.Equal(t, ingest.ReasonFromMe, res.Reason)

	// The customer's next message is swallowed by the new rule.
	res = env.pipe.HandleWebhook(payload(jid, "M2", "hola"))
	require.True(t, res.Accepted)
	time.Sleep(300 * time.Millisecond)
	assert.Empty(t, env.sender.sent())
}

func TestPipeline_DuplicateDeliveryIgnored(t *testing.T) {
	env := testPipeline(t)
	jid := "5491122334455@s.whatsapp.net"

	res := env.pipe.HandleWebhook(payload(jid, "M1", "hola"))
	require.True(t, res.Accepted)

	res = env.pipe.HandleWebhook(payload(jid, "M1", "hola"))
	assert.False(t, res.Accepted)
	assert.Equal(t, ingest.ReasonDedupe, res.Reason)

	waitForMessages(t, env.sender, 1)
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, env.sender.sent(), 1)
}

package schedule

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bajo34/wa-pro/internal/clock"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/intent"
	"github.com/bajo34/wa-pro/internal/logging"
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
	mu        sync.Mutex
	messages  []sentMessage
	presences []time.Duration
	fail      bool
}

func (f *fakeSender) SendText(ctx context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.messages = append(f.messages, sentMessage{kind: "text", to: to, text: text})
	return nil
}

func (f *fakeSender) SendImage(ctx context.Context, to, imageURL, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.messages = append(f.messages, sentMessage{kind: "image", to: to, text: caption, imageURL: imageURL})
	return nil
}

func (f *fakeSender) SendPresence(ctx context.Context, to string, presence wachat.Presence, delay time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presences = append(f.presences, delay)
	return nil
}

func (f *fakeSender) sent() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.messages...)
}

type fakeTimers struct {
	delays   []time.Duration
	fns      []func()
	finished []domain.Key
}

func (f *fakeTimers) ScheduleSend(key domain.Key, delay time.Duration, fn func()) {
	f.delays = append(f.delays, delay)
	f.fns = append(f.fns, fn)
}

func (f *fakeTimers) Finish(key domain.Key) {
	f.finished = append(f.finished, key)
}

func (f *fakeTimers) fire() {
	fns := f.fns
	f.fns = nil
	for _, fn := range fns {
		fn()
	}
}

type fixedRand struct {
	intn  int
	float float64
}

func (f fixedRand) Intn(n int) int   { return f.intn % n }
func (f fixedRand) Float64() float64 { return f.float }

type notified struct {
	key      domain.Key
	text     string
	imageURL string
}

type fakeNotifier struct {
	events []notified
}

func (f *fakeNotifier) NotifyOutgoing(key domain.Key, text, imageURL string) {
	f.events = append(f.events, notified{key, text, imageURL})
}

type schedEnv struct {
	sched  *Scheduler
	sender *fakeSender
	timers *fakeTimers
	states *store.StateStore
	clk    *clock.Fake
}

func testScheduler(t *testing.T, bot config.BotConfig) *schedEnv {
	t.Helper()
	log := logging.New(nil, "silent")
	db, err := store.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if bot.CooldownMs == 0 {
		bot.CooldownMs = 1000
	}
	if bot.FallbackCooldownMs == 0 {
		bot.FallbackCooldownMs = 300000
	}

	sender := &fakeSender{}
	timers := &fakeTimers{}
	states := store.NewStateStore(db)
	s := New(sender, timers, states, bot, config.HumanizerConfig{
		DelayBaseMinMs: 800, DelayBaseMaxMs: 2500,
		DelayPerCharMinMs: 20, DelayPerCharMaxMs: 60,
	}, log)

	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.clk = fake
	s.rand = fixedRand{}
	return &schedEnv{sched: s, sender: sender, timers: timers, states: states, clk: fake}
}

func key() domain.Key {
	return domain.Key{Instance: "main", RemoteJid: "5491122334455@s.whatsapp.net"}
}

func decision(reply string) *intent.Decision {
	return &intent.Decision{
		Intent: "greeting",
		Reply:  reply,
		State:  domain.ConvState{Stage: domain.StageAwaitingQuery, LastIntent: "greeting"},
	}
}

func TestSchedule_SendsAndCommitsState(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})
	notifier := &fakeNotifier{}
	env.sched.SetNotifier(notifier)

	env.sched.Schedule(key(), decision("¡Hola! ¿Qué andás buscando?"), domain.ConvState{})
	require.Len(t, env.timers.fns, 1)

	env.timers.fire()

	sent := env.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "text", sent[0].kind)
	assert.Equal(t, "5491122334455", sent[0].to)
	assert.Equal(t, "¡Hola! ¿Qué andás buscando?", sent[0].text)

	state, err := env.states.Get(key())
	require.NoError(t, err)
	assert.Equal(t, domain.StageAwaitingQuery, state.Stage)
	assert.Equal(t, env.clk.Now(), state.LastBotReplyAt)
	assert.Equal(t, hashReply("¡Hola! ¿Qué andás buscando?"), state.LastBotReplyHash)

	assert.Equal(t, []domain.Key{key()}, env.timers.finished)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "¡Hola! ¿Qué andás buscando?", notifier.events[0].text)

	require.Eventually(t, func() bool {
		env.sender.mu.Lock()
		defer env.sender.mu.Unlock()
		return len(env.sender.presences) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSchedule_CooldownDrops(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})

	prev := domain.ConvState{LastBotReplyAt: env.clk.Now().Add(-500 * time.Millisecond)}
	env.sched.Schedule(key(), decision("hola de nuevo"), prev)

	assert.Empty(t, env.timers.fns)
	assert.Equal(t, []domain.Key{key()}, env.timers.finished)
	assert.Empty(t, env.sender.sent())
}

func TestSchedule_RepeatedReplyDrops(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})

	reply := "Dale 🙂 ¿Qué producto estabas buscando?"
	prev := domain.ConvState{
		LastBotReplyAt:   env.clk.Now().Add(-2 * time.Minute),
		LastBotReplyHash: hashReply(reply),
	}
	env.sched.Schedule(key(), decision(reply), prev)

	assert.Empty(t, env.timers.fns)
	assert.Equal(t, []domain.Key{key()}, env.timers.finished)
}

func TestSchedule_RepeatedReplyAllowedAfterWindow(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})

	reply := "Dale 🙂 ¿Qué producto estabas buscando?"
	prev := domain.ConvState{
		LastBotReplyAt:   env.clk.Now().Add(-10 * time.Minute),
		LastBotReplyHash: hashReply(reply),
	}
	env.sched.Schedule(key(), decision(reply), prev)
	require.Len(t, env.timers.fns, 1)
}

func TestSchedule_FallbackEscalatesToClarifyingQuestion(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})

	d := decision("Decime qué estás buscando y te paso opciones y precios.")
	d.Fallback = true
	prev := domain.ConvState{LastFallbackAt: env.clk.Now().Add(-time.Minute)}

	env.sched.Schedule(key(), d, prev)
	require.Len(t, env.timers.fns, 1)
	env.timers.fire()

	sent := env.sender.sent()
	require.Len(t, sent, 1)
	assert.Contains(t, clarifyingVariants, sent[0].text)
}

func TestSchedule_FirstFallbackStampsState(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})

	d := decision("Dale 🙂 ¿Qué producto estabas buscando?")
	d.Fallback = true

	env.sched.Schedule(key(), d, domain.ConvState{})
	env.timers.fire()

	state, err := env.states.Get(key())
	require.NoError(t, err)
	assert.Equal(t, env.clk.Now(), state.LastFallbackAt)
}

func TestSchedule_ImageDecisionSendsMedia(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})

	d := decision("Dale. Opción 1:\n1) PlayStation 5 Slim — ARS 999.999")
	d.ImageURL = "https://x/ps5.jpg"

	env.sched.Schedule(key(), d, domain.ConvState{})
	env.timers.fire()

	sent := env.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "image", sent[0].kind)
	assert.Equal(t, "https://x/ps5.jpg", sent[0].imageURL)
	assert.Equal(t, d.Reply, sent[0].text)
}

func TestSchedule_SendFailureLeavesStateUntouched(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})
	env.sender.fail = true

	env.sched.Schedule(key(), decision("hola"), domain.ConvState{})
	env.timers.fire()

	state, err := env.states.Get(key())
	require.NoError(t, err)
	assert.True(t, state.LastBotReplyAt.IsZero())
	// The conversation is still released.
	assert.Equal(t, []domain.Key{key()}, env.timers.finished)
}

func TestSchedule_DelayCappedAtEightSeconds(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})
	env.sched.rand = fixedRand{intn: 1 << 30}

	delay := env.sched.computeDelay(strings.Repeat("a", 2000))
	assert.LessOrEqual(t, delay, maxReplyDelay)
	assert.Positive(t, delay)
}

func TestSchedule_PresenceCappedAtFiveSeconds(t *testing.T) {
	env := testScheduler(t, config.BotConfig{})
	env.sched.rand = fixedRand{intn: 1 << 30}

	env.sched.Schedule(key(), decision(strings.Repeat("a", 2000)), domain.ConvState{})

	require.Eventually(t, func() bool {
		env.sender.mu.Lock()
		defer env.sender.mu.Unlock()
		return len(env.sender.presences) == 1
	}, time.Second, 10*time.Millisecond)

	env.sender.mu.Lock()
	defer env.sender.mu.Unlock()
	assert.LessOrEqual(t, env.sender.presences[0], maxPresenceDelay)
}

func TestSendTextHuman_SplitsLongReplies(t *testing.T) {
	env := testScheduler(t, config.BotConfig{SplitReplies: true, SplitRepliesProb: 1.0})

	reply := "Te paso opciones 👇\n1) Monitor 24\n2) Monitor 27\n\nContame presupuesto y zona."
	require.NoError(t, env.sched.sendTextHuman(context.Background(), "549111", reply))

	sent := env.sender.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "Te paso opciones 👇", sent[0].text)
	assert.Equal(t, "1) Monitor 24\n2) Monitor 27\nContame presupuesto y zona.", sent[1].text)
}

func TestSendTextHuman_ShortRepliesNeverSplit(t *testing.T) {
	env := testScheduler(t, config.BotConfig{SplitReplies: true, SplitRepliesProb: 1.0})

	require.NoError(t, env.sched.sendTextHuman(context.Background(), "549111", "Hola\nQue tal"))
	sent := env.sender.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "Hola\nQue tal", sent[0].text)
}

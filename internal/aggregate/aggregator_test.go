package aggregate

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bajo34/wa-pro/internal/clock"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/logging"
)

var testHumanizer = config.HumanizerConfig{DebounceMinMs: 2500, DebounceMaxMs: 4000}

func testAggregator(t *testing.T) (*Aggregator, *clock.Fake, *[]domain.Turn) {
	t.Helper()
	turns := &[]domain.Turn{}
	a := New(testHumanizer, func(turn domain.Turn) {
		*turns = append(*turns, turn)
	}, logging.New(nil, "silent"))

	fake := clock.NewFake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	a.clk = fake
	a.rand = rand.New(rand.NewSource(1))
	return a, fake, turns
}

func event(text, id string) domain.Event {
	return domain.Event{
		Key:       domain.Key{Instance: "main", RemoteJid: "549111@s.whatsapp.net"},
		MessageID: id,
		Text:      text,
	}
}

func TestSingleMessageDrainsAfterDebounce(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	assert.Empty(t, *turns)

	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 1)
	assert.Equal(t, "hola", (*turns)[0].Text)
	assert.Equal(t, "M1", (*turns)[0].MessageID)
	assert.True(t, a.Active((*turns)[0].Key))

	a.Finish((*turns)[0].Key)
	assert.False(t, a.Active((*turns)[0].Key))
}

func TestRapidMessagesCoalesceIntoOneTurn(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	fake.Advance(1 * time.Second)
	a.Add(event("tenes ps5?", "M2"))

	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 1)
	assert.Equal(t, "hola\ntenes ps5?", (*turns)[0].Text)
	assert.Equal(t, "M2", (*turns)[0].MessageID)
}

func TestBurstExtendsDebounce(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("che", "M1"))
	fake.Advance(500 * time.Millisecond)
	a.Add(event("una consulta", "M2"))
	fake.Advance(500 * time.Millisecond)
	a.Add(event("tenes ps5", "M3"))

	// Base debounce alone is not enough once the burst extension kicks in.
	fake.Advance(4 * time.Second)
	assert.Empty(t, *turns)

	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 1)
	assert.Equal(t, "che\nuna consulta\ntenes ps5", (*turns)[0].Text)
}

func TestBufferKeepsLastSix(t *testing.T) {
	a, fake, turns := testAggregator(t)

	for i := 1; i <= 8; i++ {
		a.Add(event(fmt.Sprintf("msg%d", i), fmt.Sprintf("M%d", i)))
	}

	fake.Advance(10 * time.Second)
	require.Len(t, *turns, 1)
	assert.Equal(t, "msg3\nmsg4\nmsg5\nmsg6\nmsg7\nmsg8", (*turns)[0].Text)
	assert.Equal(t, "M8", (*turns)[0].MessageID)
}

func TestScheduleSendFires(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 1)
	key := (*turns)[0].Key

	sent := false
	a.ScheduleSend(key, 2*time.Second, func() { sent = true })

	fake.Advance(1 * time.Second)
	assert.False(t, sent)
	fake.Advance(1 * time.Second)
	assert.True(t, sent)
}

func TestNewMessageCancelsPendingSend(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 1)
	key := (*turns)[0].Key

	sent := false
	a.ScheduleSend(key, 2*time.Second, func() { sent = true })

	// User keeps typing before the reply goes out.
	a.Add(event("pero espera", "M2"))
	fake.Advance(10 * time.Second)
	assert.False(t, sent)

	// The second cycle delivers one turn with everything buffered.
	require.Len(t, *turns, 2)
	assert.Equal(t, "hola\npero espera", (*turns)[1].Text)
}

func TestFinishKeepsEntryWhenDebouncePending(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 1)
	key := (*turns)[0].Key

	a.Add(event("y precios?", "M2"))
	a.Finish(key)
	assert.True(t, a.Active(key))

	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 2)
	assert.Equal(t, "hola\ny precios?", (*turns)[1].Text)
}

func TestDrainDuringInFlightTurnFoldsIntoNextCycle(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 1)
	key := (*turns)[0].Key

	// Turn one is still being handled (no Finish yet) when a new
	// message fully debounces; it must not produce a second turn.
	a.Add(event("segundo", "M2"))
	fake.Advance(4 * time.Second)
	assert.Len(t, *turns, 1)

	// Once the first turn finishes, the folded batch drains.
	a.Finish(key)
	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 2)
	assert.Equal(t, "hola\nsegundo", (*turns)[1].Text)
}

func TestAbortDropsEverything(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	key := domain.Key{Instance: "main", RemoteJid: "549111@s.whatsapp.net"}
	a.Abort(key)

	fake.Advance(10 * time.Second)
	assert.Empty(t, *turns)
	assert.False(t, a.Active(key))
}

func TestConversationsAreIndependent(t *testing.T) {
	a, fake, turns := testAggregator(t)

	a.Add(event("hola", "M1"))
	other := domain.Event{
		Key:       domain.Key{Instance: "main", RemoteJid: "549222@s.whatsapp.net"},
		MessageID: "N1",
		Text:      "buenas",
	}
	a.Add(other)

	fake.Advance(4 * time.Second)
	require.Len(t, *turns, 2)
	texts := []string{(*turns)[0].Text, (*turns)[1].Text}
	assert.ElementsMatch(t, []string{"hola", "buenas"}, texts)
}

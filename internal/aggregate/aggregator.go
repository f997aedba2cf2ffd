// Package aggregate coalesces rapid-fire messages from one
// conversation into a single turn before the router sees them.
package aggregate

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/bajo34/wa-pro/internal/clock"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/logging"
)

const (
	// A conversation keeps at most this many buffered texts and ids.
	maxBuffered = 6

	// Three or more messages inside the window count as a burst and
	// push the debounce out further.
	burstCount  = 3
	burstWindow = 3 * time.Second

	burstExtraMin = 2 * time.Second
	burstExtraMax = 4 * time.Second
)

// Handler receives one aggregated turn per debounce cycle.
type Handler func(turn domain.Turn)

type entry struct {
	key     domain.Key
	texts   []string
	ids     []string
	firstAt time.Time
	lastAt  time.Time
	count   int

	debounce clock.Timer
	send     clock.Timer
	sendGen  int
	draining bool
}

// Aggregator holds one in-memory entry per active conversation. A new
// message resets the debounce timer and cancels any reply that is
// still waiting on its humanized delay, so each burst produces at most
// one turn downstream.
type Aggregator struct {
	minWait time.Duration
	maxWait time.Duration
	handler Handler
	clk     clock.Clock
	rand    *rand.Rand
	log     *logging.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func New(cfg config.HumanizerConfig, handler Handler, log *logging.Logger) *Aggregator {
	return &Aggregator{
		minWait: time.Duration(cfg.DebounceMinMs) * time.Millisecond,
		maxWait: time.Duration(cfg.DebounceMaxMs) * time.Millisecond,
		handler: handler,
		clk:     clock.System(),
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     log.Sub("aggregate"),
		entries: make(map[string]*entry),
	}
}

// Add buffers an inbound event and (re)arms the debounce timer for its
// conversation.
func (a *Aggregator) Add(ev domain.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clk.Now()
	id := ev.Key.String()

	e := a.entries[id]
	if e == nil {
		e = &entry{key: ev.Key, firstAt: now}
		a.entries[id] = e
	}

	if e.debounce != nil {
		e.debounce.Stop()
		e.debounce = nil
	}
	if e.send != nil {
		// User kept typing while we were about to reply. Cancel and
		// let the next cycle recompute.
		e.send.Stop()
		e.send = nil
		e.sendGen++
		e.draining = false
	}

	e.texts = appendCapped(e.texts, ev.Text)
	e.ids = appendCapped(e.ids, ev.MessageID)
	e.count++
	e.lastAt = now

	wait := a.randWait(a.minWait, a.maxWait)
	if e.count >= burstCount && e.lastAt.Sub(e.firstAt) <= burstWindow {
		wait += a.randWait(burstExtraMin, burstExtraMax)
		a.log.Debug().Str("conv", id).Dur("wait", wait).Msg("burst, extending debounce")
	}

	key := ev.Key
	e.debounce = a.clk.AfterFunc(wait, func() { a.drain(key) })
}

// drain fires when the debounce window closes. The entry stays in the
// map so a later message can still cancel the pending reply; if a turn
// is already in flight the new batch folds into a fresh debounce cycle.
func (a *Aggregator) drain(key domain.Key) {
	a.mu.Lock()
	e := a.entries[key.String()]
	if e == nil {
		a.mu.Unlock()
		return
	}
	e.debounce = nil

	if e.draining {
		e.debounce = a.clk.AfterFunc(a.randWait(a.minWait, a.maxWait), func() { a.drain(key) })
		a.mu.Unlock()
		return
	}
	e.draining = true

	turn := domain.Turn{
		Key:       key,
		Text:      strings.Join(e.texts, "\n"),
		MessageID: e.ids[len(e.ids)-1],
	}
	a.mu.Unlock()

	a.handler(turn)
}

// ScheduleSend arms the reply timer for a conversation. The callback
// is skipped if another message arrives before it fires.
func (a *Aggregator) ScheduleSend(key domain.Key, delay time.Duration, fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.entries[key.String()]
	if e == nil {
		a.clk.AfterFunc(delay, fn)
		return
	}

	if e.send != nil {
		e.send.Stop()
	}
	e.sendGen++
	gen := e.sendGen

	e.send = a.clk.AfterFunc(delay, func() {
		a.mu.Lock()
		cur := a.entries[key.String()]
		stale := cur != nil && cur.sendGen != gen
		a.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
}

// Finish releases a conversation after its turn was fully handled. If
// more messages arrived meanwhile the entry stays for the next cycle.
func (a *Aggregator) Finish(key domain.Key) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.entries[key.String()]
	if e == nil {
		return
	}
	if e.debounce != nil {
		e.draining = false
		return
	}
	if e.send != nil {
		e.send.Stop()
	}
	delete(a.entries, key.String())
}

// Abort drops a conversation outright, cancelling any pending timers.
func (a *Aggregator) Abort(key domain.Key) {
	a.mu.Lock()
	defer a.mu.Unlock()

	e := a.entries[key.String()]
	if e == nil {
		return
	}
	if e.debounce != nil {
		e.debounce.Stop()
	}
	if e.send != nil {
		e.send.Stop()
	}
	delete(a.entries, key.String())
}

// Active reports whether a conversation currently has a buffered entry.
func (a *Aggregator) Active(key domain.Key) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.entries[key.String()]
	return ok
}

func (a *Aggregator) randWait(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(a.rand.Int63n(int64(max-min)+1))
}

func appendCapped(list []string, v string) []string {
	list = append(list, v)
	if len(list) > maxBuffered {
		list = list[len(list)-maxBuffered:]
	}
	return list
}

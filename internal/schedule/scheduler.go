// Package schedule delivers router decisions: it applies the reply
// gates, waits a human-looking delay with a typing indicator, sends,
// and commits conversation state.
package schedule

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"math/rand"
	"strings"
	"time"

	"github.com/bajo34/wa-pro/internal/clock"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/intent"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/wachat"
)

const (
	maxReplyDelay    = 8 * time.Second
	maxPresenceDelay = 5 * time.Second

	splitPauseMin = 700 * time.Millisecond
	splitPauseMax = 1200 * time.Millisecond
)

var clarifyingVariants = []string{
	"¿Tenés alguna marca o modelo en mente?",
	"¿Cuál es tu presupuesto aproximado?",
	"¿Para qué lo vas a usar?",
}

// Timers is the slice of the aggregator the scheduler drives: arming
// the cancellable send timer and releasing the conversation.
type Timers interface {
	ScheduleSend(key domain.Key, delay time.Duration, fn func())
	Finish(key domain.Key)
}

// Notifier receives outgoing messages for the live event feed.
type Notifier interface {
	NotifyOutgoing(key domain.Key, text, imageURL string)
}

type Rand interface {
	Intn(n int) int
	Float64() float64
}

type sysRand struct{}

func (sysRand) Intn(n int) int   { return rand.Intn(n) }
func (sysRand) Float64() float64 { return rand.Float64() }

type Scheduler struct {
	sender   wachat.Sender
	timers   Timers
	states   *store.StateStore
	notifier Notifier

	cooldown         time.Duration
	fallbackCooldown time.Duration
	splitReplies     bool
	splitProb        float64
	baseMin          time.Duration
	baseMax          time.Duration
	perCharMin       time.Duration
	perCharMax       time.Duration

	clk  clock.Clock
	rand Rand
	log  *logging.Logger
}

func New(sender wachat.Sender, timers Timers, states *store.StateStore, bot config.BotConfig, hum config.HumanizerConfig, log *logging.Logger) *Scheduler {
	return &Scheduler{
		sender:           sender,
		timers:           timers,
		states:           states,
		cooldown:         bot.Cooldown(),
		fallbackCooldown: bot.FallbackCooldown(),
		splitReplies:     bot.SplitReplies,
		splitProb:        bot.SplitRepliesProb,
		baseMin:          time.Duration(hum.DelayBaseMinMs) * time.Millisecond,
		baseMax:          time.Duration(hum.DelayBaseMaxMs) * time.Millisecond,
		perCharMin:       time.Duration(hum.DelayPerCharMinMs) * time.Millisecond,
		perCharMax:       time.Duration(hum.DelayPerCharMaxMs) * time.Millisecond,
		clk:              clock.System(),
		rand:             sysRand{},
		log:              log.Sub("schedule"),
	}
}

// SetNotifier attaches the live event feed. Optional.
func (s *Scheduler) SetNotifier(n Notifier) { s.notifier = n }

// Schedule runs the reply gates and, if the reply survives, arms the
// humanized send timer. prev is the state loaded before routing.
func (s *Scheduler) Schedule(key domain.Key, d *intent.Decision, prev domain.ConvState) {
	now := s.clk.Now()

	if !prev.LastBotReplyAt.IsZero() && now.Sub(prev.LastBotReplyAt) < s.cooldown {
		s.log.Debug().Str("conv", key.String()).Msg("cooldown, dropping reply")
		s.timers.Finish(key)
		return
	}

	reply := d.Reply
	fallback := d.Fallback
	next := d.State

	// The same reply twice in a row inside the window reads like a
	// broken record; stay quiet and let the user clarify.
	if prev.LastBotReplyHash != "" && prev.LastBotReplyHash == hashReply(reply) &&
		!prev.LastBotReplyAt.IsZero() && now.Sub(prev.LastBotReplyAt) < s.fallbackCooldown {
		s.log.Debug().Str("conv", key.String()).Msg("repeated reply, dropping")
		s.timers.Finish(key)
		return
	}

	// A second fallback inside the window escalates to one concrete
	// clarifying question instead.
	if fallback && !prev.LastFallbackAt.IsZero() && now.Sub(prev.LastFallbackAt) < s.fallbackCooldown {
		reply = s.pick(clarifyingVariants)
		fallback = false
	}
	if fallback {
		next.LastFallbackAt = now
	}

	delay := s.computeDelay(reply)

	go func() {
		err := s.sender.SendPresence(context.Background(), key.Number(), wachat.PresenceComposing, min(delay, maxPresenceDelay))
		if err != nil {
			s.log.Debug().Err(err).Str("conv", key.String()).Msg("presence failed")
		}
	}()

	imageURL := d.ImageURL
	intentName := d.Intent
	s.timers.ScheduleSend(key, delay, func() {
		s.deliver(key, intentName, reply, imageURL, next)
	})
}

func (s *Scheduler) deliver(key domain.Key, intentName, reply, imageURL string, next domain.ConvState) {
	defer s.timers.Finish(key)

	ctx := context.Background()
	number := key.Number()

	var err error
	if imageURL != "" {
		err = s.sender.SendImage(ctx, number, imageURL, reply)
	} else {
		err = s.sendTextHuman(ctx, number, reply)
	}
	if err != nil {
		s.log.Error().Err(err).Str("conv", key.String()).Str("intent", intentName).Msg("send failed")
		return
	}

	next.LastBotReplyAt = s.clk.Now()
	next.LastBotReplyHash = hashReply(reply)
	if err := s.states.Put(key, next); err != nil {
		s.log.Warn().Err(err).Str("conv", key.String()).Msg("state commit failed")
	}

	if s.notifier != nil {
		s.notifier.NotifyOutgoing(key, reply, imageURL)
	}
	s.log.Info().Str("conv", key.String()).Str("intent", intentName).Int("chars", len(reply)).Msg("reply sent")
}

// sendTextHuman occasionally splits a multi-line reply into a short
// header message followed by the rest, with a brief pause between.
func (s *Scheduler) sendTextHuman(ctx context.Context, number, reply string) error {
	if !s.splitReplies {
		return s.sender.SendText(ctx, number, reply)
	}

	var lines []string
	for _, l := range strings.Split(reply, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) < 3 || s.rand.Float64() >= s.splitProb {
		return s.sender.SendText(ctx, number, reply)
	}

	if err := s.sender.SendText(ctx, number, lines[0]); err != nil {
		return err
	}
	time.Sleep(s.randDur(splitPauseMin, splitPauseMax))
	return s.sender.SendText(ctx, number, strings.Join(lines[1:], "\n"))
}

// computeDelay scales with reply length so longer messages take
// longer to "type", capped so nobody waits on an essay.
func (s *Scheduler) computeDelay(reply string) time.Duration {
	delay := s.randDur(s.baseMin, s.baseMax)
	perChar := s.randDur(s.perCharMin, s.perCharMax)
	delay += time.Duration(len([]rune(reply))) * perChar
	return min(delay, maxReplyDelay)
}

func (s *Scheduler) randDur(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rand.Intn(int(hi-lo)+1))
}

func (s *Scheduler) pick(variants []string) string {
	return variants[s.rand.Intn(len(variants))]
}

func hashReply(reply string) string {
	sum := sha1.Sum([]byte(reply))
	return hex.EncodeToString(sum[:])
}

// Package routing wires the inbound path end to end: webhook payloads
// enter, aggregated turns get routed, and surviving replies are
// handed to the scheduler.
package routing

import (
	"github.com/bajo34/wa-pro/internal/aggregate"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/ingest"
	"github.com/bajo34/wa-pro/internal/intent"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/rules"
	"github.com/bajo34/wa-pro/internal/schedule"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/wachat"
)

// Events receives inbound messages for the live event feed.
type Events interface {
	NotifyInbound(key domain.Key, text string)
}

// Deps are the components the pipeline composes. The aggregator and
// scheduler are built here because the turn handler is the pipeline
// itself.
type Deps struct {
	Gate      *ingest.Gate
	Rules     *rules.Gate
	States    *store.StateStore
	Router    *intent.Router
	Sender    wachat.Sender
	Humanizer config.HumanizerConfig
	Bot       config.BotConfig
	Instance  string
}

type Pipeline struct {
	gate     *ingest.Gate
	agg      *aggregate.Aggregator
	rules    *rules.Gate
	states   *store.StateStore
	router   *intent.Router
	sched    *schedule.Scheduler
	events   Events
	instance string
	log      *logging.Logger
}

func New(deps Deps, log *logging.Logger) *Pipeline {
	p := &Pipeline{
		gate:     deps.Gate,
		rules:    deps.Rules,
		states:   deps.States,
		router:   deps.Router,
		instance: deps.Instance,
		log:      log.Sub("routing"),
	}
	p.agg = aggregate.New(deps.Humanizer, p.handleTurn, log)
	p.sched = schedule.New(deps.Sender, p.agg, deps.States, deps.Bot, deps.Humanizer, log)
	return p
}

// SetEvents attaches the live event feed. Optional.
func (p *Pipeline) SetEvents(e Events) { p.events = e }

// Scheduler exposes the scheduler so the serve command can attach the
// outgoing side of the event feed.
func (p *Pipeline) Scheduler() *schedule.Scheduler { return p.sched }

// HandleWebhook screens one webhook payload and, if accepted, buffers
// it for debounced processing. It returns fast; replies happen later.
func (p *Pipeline) HandleWebhook(payload ingest.Payload) ingest.Result {
	res := p.gate.Accept(payload, p.instance)
	if !res.Accepted {
		p.log.Debug().Str("reason", res.Reason).Str("event", payload.Event).Msg("webhook ignored")
		return res
	}

	if p.events != nil {
		p.events.NotifyInbound(res.Event.Key, res.Event.Text)
	}

	p.agg.Add(res.Event)
	return res
}

// handleTurn runs when a conversation's debounce window closes.
func (p *Pipeline) handleTurn(turn domain.Turn) {
	ok, reason := p.rules.Allow(turn.Key)
	if !ok {
		p.log.Info().Str("conv", turn.Key.String()).Str("reason", reason).Msg("reply suppressed")
		p.agg.Abort(turn.Key)
		return
	}

	state, err := p.states.Get(turn.Key)
	if err != nil {
		p.log.Warn().Err(err).Str("conv", turn.Key.String()).Msg("state load failed, starting fresh")
		state = domain.ConvState{}
	}

	decision := p.router.Route(turn, state)
	if decision == nil {
		p.agg.Finish(turn.Key)
		return
	}

	p.log.Debug().
		Str("conv", turn.Key.String()).
		Str("intent", decision.Intent).
		Bool("fallback", decision.Fallback).
		Msg("decision")

	p.sched.Schedule(turn.Key, decision, state)
}

// Package intent turns an aggregated conversation turn into a reply
// decision by walking an ordered chain of matchers.
package intent

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/bajo34/wa-pro/internal/catalog"
	"github.com/bajo34/wa-pro/internal/clock"
	"github.com/bajo34/wa-pro/internal/domain"
	"github.com/bajo34/wa-pro/internal/intelligence"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/textutil"
)

const (
	maxHits      = 6
	hitsTTL      = 20 * time.Minute
	ackReplyOdds = 0.35
)

// Decision is what the router wants sent, plus the state to persist
// once the reply actually goes out.
type Decision struct {
	Intent   string
	Reply    string
	ImageURL string
	Fallback bool
	State    domain.ConvState
}

// Rand is the randomness the router consumes: variant picks and the
// acknowledgement coin flip.
type Rand interface {
	Intn(n int) int
	Float64() float64
}

type sysRand struct{}

func (sysRand) Intn(n int) int   { return rand.Intn(n) }
func (sysRand) Float64() float64 { return rand.Float64() }

var (
	testModePattern = regexp.MustCompile(`(?i)(probando|testeando|test\b|configurando|\bestoy\s+(?:probando|testeando|configurando)|\bchatbot\b|no\s+le\s+des\s+bola|no\s+respondas|no\s+contestes)`)
	handoffPattern  = regexp.MustCompile(`(?i)(comprar|reservar|senar|se[ñn]a|pagar|quiero\s+ya|transferencia)`)
	greetingPattern = regexp.MustCompile(`(?i)^(hola|buenas|buen\s+dia|buen\s+tarde|buen\s+noche|hey|que\s+tal)\b`)
	pricePattern    = regexp.MustCompile(`(?i)(precio|cuanto|vale|valor|sale)`)
	productPattern  = regexp.MustCompile(`(?i)(ps5|play\s*5|xbox|consola|auricular|headset|monitor|notebook|silla|joystick|teclado|mouse)`)
	ackPattern      = regexp.MustCompile(`^(ok|oki|okey|dale|(?:de\s+una|deuna)|jaja+|aja|ah+|mmm+|joya|genial|buenisimo|listo|gracias|grx|sorry|sry|👍|👌)$`)
	contentPattern  = regexp.MustCompile(`[a-z0-9]`)
)

var (
	greetingVariants = []string{
		"¡Buenas 😄! ¿Qué estás buscando hoy?",
		"¡Hola! Decime qué necesitás y te paso opciones.",
		"¡Hola! ¿Qué andás buscando?",
	}
	priceVariants = []string{
		"Dale. ¿De qué producto/modelo querés precio?",
		"¡Ok! Decime el modelo o marca y busco el precio.",
		"Decime el producto o modelo para chequear el precio.",
	}
	ackVariants = []string{"Dale 👍", "Ok", "Perfecto", "Genial 🙌"}
	headerVariants = []string{
		"Te paso opciones 👇",
		"Mirá estas opciones 👇",
		"Dale. Tengo esto 👇",
	}
	tailVariants = []string{
		"Si me decís presupuesto y zona, te recomiendo la mejor opción.",
		"¿Querés que te pase alternativas en otro rango de precio?",
		"Contame presupuesto y zona para ajustar la búsqueda.",
	}
	noMatchVariants = []string{
		"No lo encontré 😕 ¿Me decís marca/modelo o para qué lo necesitás?",
		"No me aparece ese modelo. ¿Tenés presupuesto aproximado?",
		"No lo veo en el catálogo ahora. ¿Qué uso le das y rango de precio?",
	}
	fallbackVariants = []string{
		"Dale 🙂 ¿Qué producto estabas buscando?",
		"¿Qué necesitás ver? Si me decís marca/modelo o presupuesto, te recomiendo mejor.",
		"Decime qué estás buscando y te paso opciones y precios.",
	}

	testModeReply = "jaja ok 😄 decime qué querés testear: búsqueda, precios o checkout"
	handoffReply  = "Perfecto 🙌 Te paso con un asesor para cerrarlo rápido. Decime tu nombre y zona, y qué producto querés."
)

// Catalog is the product lookup surface the router needs.
type Catalog interface {
	Items() []catalog.Item
}

// Router walks the chain in order; the first matching step wins. A nil
// decision means stay silent.
type Router struct {
	catalog Catalog
	matcher *intelligence.Matcher
	rules   *store.RuleStore
	clk     clock.Clock
	rand    Rand
	log     *logging.Logger
}

func NewRouter(cat Catalog, matcher *intelligence.Matcher, rules *store.RuleStore, log *logging.Logger) *Router {
	return &Router{
		catalog: cat,
		matcher: matcher,
		rules:   rules,
		clk:     clock.System(),
		rand:    sysRand{},
		log:     log.Sub("intent"),
	}
}

func (r *Router) Route(turn domain.Turn, state domain.ConvState) *Decision {
	now := r.clk.Now()
	text := turn.Text

	if testModePattern.MatchString(text) {
		next := state
		next.Stage = domain.StageIdle
		next.LastIntent = "test_mode"
		return &Decision{Intent: "test_mode", Reply: testModeReply, State: next}
	}

	if d := r.routeIntelligence(turn, state); d != nil {
		return d
	}

	if isAckOnly(text) {
		if state.Stage == domain.StageAwaitingQuery {
			return nil
		}
		if r.rand.Float64() >= ackReplyOdds {
			return nil
		}
		next := state
		if next.Stage == "" {
			next.Stage = domain.StageIdle
		}
		next.LastIntent = "ack"
		return &Decision{Intent: "ack", Reply: r.pick(ackVariants), State: next}
	}

	if handoffPattern.MatchString(text) {
		if err := r.rules.SetConversationRule(turn.Key, domain.ModeHumanOnly, "handoff"); err != nil {
			r.log.Warn().Err(err).Str("conv", turn.Key.String()).Msg("handoff rule persist failed")
		}
		next := state
		next.Stage = domain.StageIdle
		next.LastIntent = "handoff"
		return &Decision{Intent: "handoff", Reply: handoffReply, State: next}
	}

	items := r.catalog.Items()

	if d := r.routeQuickFollowup(turn, state, items, now); d != nil {
		return d
	}

	if state.Stage == domain.StageAwaitingQuery {
		return r.routeSearch(turn, state, items, now, false)
	}

	return r.routeHeuristics(turn, state, items, now)
}

func (r *Router) routeIntelligence(turn domain.Turn, state domain.ConvState) *Decision {
	settings := r.matcher.Settings()

	if faq, ok := r.matcher.MatchFaq(turn.Text); ok && faq.Answer != "" {
		reply := intelligence.RenderTemplate(faq.Answer, templateCtx(state, settings, nil))
		r.matcher.LogDecision(store.DecisionRecord{
			Instance:   turn.Key.Instance,
			RemoteJid:  turn.Key.RemoteJid,
			Intent:     "faq",
			Confidence: 0.99,
			Data:       map[string]any{"faqId": faq.ID},
		})
		next := state
		if next.Stage == "" {
			next.Stage = domain.StageIdle
		}
		next.LastIntent = "faq"
		next.LastFaqID = faq.ID
		return &Decision{Intent: "faq", Reply: reply, State: next}
	}

	if pb, ok := r.matcher.MatchPlaybook(turn.Text); ok && pb.Template != "" {
		intentName := pb.Intent
		if intentName == "" {
			intentName = "playbook"
		}
		reply := intelligence.RenderTemplate(pb.Template, templateCtx(state, settings, &pb))
		r.matcher.LogDecision(store.DecisionRecord{
			Instance:   turn.Key.Instance,
			RemoteJid:  turn.Key.RemoteJid,
			Intent:     intentName,
			Confidence: 0.9,
			Data:       map[string]any{"playbookId": pb.ID},
		})
		next := state
		if next.Stage == "" {
			next.Stage = domain.StageIdle
		}
		next.LastIntent = intentName
		next.LastPlaybookID = pb.ID
		return &Decision{Intent: intentName, Reply: reply, State: next}
	}

	return nil
}

// routeQuickFollowup answers "2" or "y el precio?" while a recently
// shown option list is still fresh.
func (r *Router) routeQuickFollowup(turn domain.Turn, state domain.ConvState, items []catalog.Item, now time.Time) *Decision {
	if !state.HitsFresh(now, hitsTTL) {
		return nil
	}

	opt, hasOpt := textutil.ExtractOptionNumber(turn.Text)
	if hasOpt && opt >= 1 && opt <= len(state.LastHits) {
		id := state.LastHits[opt-1]
		for _, item := range items {
			if item.ID == id {
				next := state
				next.Stage = domain.StageIdle
				next.LastIntent = "option_selected"
				return &Decision{
					Intent:   "option_selected",
					Reply:    detailReply(item, opt),
					ImageURL: item.Image,
					State:    next,
				}
			}
		}
		return nil
	}

	if pricePattern.MatchString(turn.Text) && !hasOpt {
		next := state
		next.Stage = domain.StageIdle
		next.LastIntent = "ask_price_which"
		n := min(len(state.LastHits), maxHits)
		return &Decision{
			Intent: "ask_price_which",
			Reply:  fmt.Sprintf("Dale. ¿De cuál opción querés el precio? (1-%d)", n),
			State:  next,
		}
	}

	return nil
}

func (r *Router) routeHeuristics(turn domain.Turn, state domain.ConvState, items []catalog.Item, now time.Time) *Decision {
	text := turn.Text

	if greetingPattern.MatchString(text) {
		next := state
		next.Stage = domain.StageAwaitingQuery
		next.LastIntent = "greeting"
		return &Decision{Intent: "greeting", Reply: r.pick(greetingVariants), State: next}
	}

	if pricePattern.MatchString(text) {
		next := state
		next.Stage = domain.StageAwaitingQuery
		next.LastIntent = "price_request"
		return &Decision{Intent: "price_request", Reply: r.pick(priceVariants), State: next}
	}

	norm := textutil.Normalize(text)
	hasContent := len(norm) >= 3 && contentPattern.MatchString(norm)
	if productPattern.MatchString(text) || hasContent {
		return r.routeSearch(turn, state, items, now, true)
	}

	next := state
	next.Stage = domain.StageAwaitingQuery
	next.LastIntent = "fallback"
	return &Decision{Intent: "fallback", Reply: r.pick(fallbackVariants), Fallback: true, State: next}
}

// routeSearch runs the catalog search; reAskOnMiss re-opens the query
// stage when nothing matched a cold query.
func (r *Router) routeSearch(turn domain.Turn, state domain.ConvState, items []catalog.Item, now time.Time, reAskOnMiss bool) *Decision {
	hits := catalog.Search(items, turn.Text, maxHits)

	if len(hits) == 0 {
		next := state
		next.Stage = domain.StageIdle
		if reAskOnMiss {
			next.Stage = domain.StageAwaitingQuery
		}
		next.LastIntent = "no_match"
		next.LastQuery = turn.Text
		return &Decision{Intent: "no_match", Reply: r.pick(noMatchVariants), Fallback: true, State: next}
	}

	if len(hits) == 1 {
		item := hits[0]
		next := state
		next.Stage = domain.StageIdle
		next.LastIntent = "product_results_single"
		next.LastQuery = turn.Text
		next.LastHits = []string{item.ID}
		next.LastHitsAt = now
		return &Decision{
			Intent:   "product_results_single",
			Reply:    detailReply(item, 1),
			ImageURL: item.Image,
			State:    next,
		}
	}

	lines := make([]string, 0, len(hits)+3)
	lines = append(lines, r.pick(headerVariants))
	for i, item := range hits {
		lines = append(lines, catalog.FormatItemLine(item, i+1))
	}
	lines = append(lines, "", r.pick(tailVariants))

	ids := make([]string, 0, len(hits))
	for _, item := range hits {
		ids = append(ids, item.ID)
	}

	next := state
	next.Stage = domain.StageIdle
	next.LastIntent = "product_results"
	next.LastQuery = turn.Text
	next.LastHits = ids
	next.LastHitsAt = now
	return &Decision{Intent: "product_results", Reply: strings.Join(lines, "\n"), State: next}
}

func detailReply(item catalog.Item, opt int) string {
	return fmt.Sprintf(
		"Dale. Opción %d:\n%s\n\n¿Querés coordinar reserva o te paso otra alternativa?",
		opt, catalog.FormatItemLine(item, opt),
	)
}

// isAckOnly flags short low-signal acknowledgements like "ok" or
// "jaja" that rarely deserve a reply.
func isAckOnly(text string) bool {
	t := textutil.Normalize(text)
	if t == "" || len(t) > 16 {
		return false
	}
	return ackPattern.MatchString(t)
}

func (r *Router) pick(variants []string) string {
	return variants[r.rand.Intn(len(variants))]
}

// templateCtx flattens state (and optionally the matched playbook)
// into the map shape templates address with {state.x} / {settings.x}.
func templateCtx(state domain.ConvState, settings map[string]any, pb *store.Playbook) map[string]any {
	ctx := map[string]any{
		"state":    toMap(state),
		"settings": settings,
	}
	if pb != nil {
		ctx["playbook"] = toMap(*pb)
	}
	return ctx
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]any{}
	}
	return out
}

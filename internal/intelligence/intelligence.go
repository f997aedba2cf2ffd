// Package intelligence matches inbound text against operator-managed
// FAQ entries and playbooks stored in the database.
package intelligence

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bajo34/wa-pro/internal/clock"
	"github.com/bajo34/wa-pro/internal/logging"
	"github.com/bajo34/wa-pro/internal/store"
	"github.com/bajo34/wa-pro/internal/textutil"
)

const cacheTTL = 15 * time.Second

// Matcher serves trigger matches from a short-lived cache so a burst of
// messages does not hammer the FAQ tables.
type Matcher struct {
	store *store.IntelligenceStore
	clk   clock.Clock
	log   *logging.Logger

	mu        sync.Mutex
	faqs      []store.Faq
	playbooks []store.Playbook
	loadedAt  time.Time
}

func NewMatcher(s *store.IntelligenceStore, log *logging.Logger) *Matcher {
	return &Matcher{
		store: s,
		clk:   clock.System(),
		log:   log.Sub("intelligence"),
	}
}

// MatchFaq returns the first enabled FAQ whose triggers match the text.
func (m *Matcher) MatchFaq(text string) (store.Faq, bool) {
	faqs, _ := m.snapshot()
	for _, faq := range faqs {
		if matchesTriggers(text, faq.Triggers) {
			return faq, true
		}
	}
	return store.Faq{}, false
}

// MatchPlaybook returns the first enabled playbook whose triggers match.
func (m *Matcher) MatchPlaybook(text string) (store.Playbook, bool) {
	_, playbooks := m.snapshot()
	for _, pb := range playbooks {
		if matchesTriggers(text, pb.Triggers) {
			return pb, true
		}
	}
	return store.Playbook{}, false
}

// Settings returns the operator settings blob, empty on any failure.
func (m *Matcher) Settings() map[string]any {
	settings, err := m.store.GetSettings()
	if err != nil {
		m.log.Warn().Err(err).Msg("settings lookup failed")
		return map[string]any{}
	}
	return settings
}

// LogDecision records a routing decision. Failures are logged and
// swallowed, the bot never stops over bookkeeping.
func (m *Matcher) LogDecision(rec store.DecisionRecord) {
	if err := m.store.LogDecision(rec); err != nil {
		m.log.Warn().Err(err).Str("intent", rec.Intent).Msg("decision log failed")
	}
}

func (m *Matcher) snapshot() ([]store.Faq, []store.Playbook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clk.Now()
	if now.Sub(m.loadedAt) < cacheTTL && (len(m.faqs) > 0 || len(m.playbooks) > 0) {
		return m.faqs, m.playbooks
	}

	faqs, err := m.store.ListEnabledFaqs()
	if err != nil {
		m.log.Warn().Err(err).Msg("faq list failed")
		return m.faqs, m.playbooks
	}
	playbooks, err := m.store.ListEnabledPlaybooks()
	if err != nil {
		m.log.Warn().Err(err).Msg("playbook list failed")
		return m.faqs, m.playbooks
	}

	m.faqs = faqs
	m.playbooks = playbooks
	m.loadedAt = now
	return m.faqs, m.playbooks
}

// matchesTriggers does accent-insensitive containment so trigger lists
// cover the usual Spanish spelling variations.
func matchesTriggers(text string, triggers []string) bool {
	t := textutil.Normalize(text)
	if t == "" {
		return false
	}
	for _, raw := range triggers {
		trig := textutil.Normalize(raw)
		if trig != "" && strings.Contains(t, trig) {
			return true
		}
	}
	return false
}

var templateKeyPattern = regexp.MustCompile(`\{\s*([a-zA-Z0-9_.-]+)\s*\}`)

// RenderTemplate substitutes {key.path} placeholders from the context.
// Unknown keys render as empty strings.
func RenderTemplate(template string, ctx map[string]any) string {
	return templateKeyPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := templateKeyPattern.FindStringSubmatch(match)[1]
		var v any = ctx
		for _, part := range strings.Split(key, ".") {
			node, ok := v.(map[string]any)
			if !ok {
				return ""
			}
			v = node[part]
		}
		return stringify(v)
	})
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// Package catalog loads the product list from a JSON feed or local file
// and answers free-text product searches against it.
package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bajo34/wa-pro/internal/clock"
	"github.com/bajo34/wa-pro/internal/config"
	"github.com/bajo34/wa-pro/internal/logging"
)

// Item is one sellable product after raw-feed coercion.
type Item struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	PriceNumber float64 `json:"priceNumber,omitempty"`
	HasPrice    bool    `json:"-"`
	Currency    string  `json:"currency,omitempty"`
	PriceText   string  `json:"priceText,omitempty"`
	InStock     *bool   `json:"inStock,omitempty"`
	URL         string  `json:"url,omitempty"`
	Image       string  `json:"image,omitempty"`
	Category    string  `json:"category,omitempty"`
	Description string  `json:"description,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// sampleItems keeps the bot answering when no feed is configured or the
// feed is unreachable and nothing is cached yet.
var sampleItems = []Item{
	{ID: "ps5", Name: "PlayStation 5 Slim", PriceNumber: 999999, HasPrice: true, Currency: "ARS", InStock: boolPtr(true), Category: "consolas"},
	{ID: "xbox", Name: "Xbox Series X", PriceNumber: 999999, HasPrice: true, Currency: "ARS", InStock: boolPtr(true), Category: "consolas"},
	{ID: "headset", Name: "Auriculares Gamer HyperX Cloud Stinger", PriceNumber: 99999, HasPrice: true, Currency: "ARS", InStock: boolPtr(true), Category: "auriculares"},
	{ID: "monitor", Name: "Monitor 24\" 144Hz", PriceNumber: 249999, HasPrice: true, Currency: "ARS", InStock: boolPtr(true), Category: "monitores"},
}

// Provider serves catalog items from a TTL cache backed by either an
// HTTP feed or a local JSON file. Feed errors fall back to the last
// good snapshot, then to the built-in sample list.
type Provider struct {
	url     string
	path    string
	ttl     time.Duration
	client  *http.Client
	clk     clock.Clock
	log     *logging.Logger

	mu       sync.Mutex
	cached   []Item
	cachedAt time.Time
}

func NewProvider(cfg config.CatalogConfig, log *logging.Logger) *Provider {
	return &Provider{
		url:    cfg.URL,
		path:   cfg.Path,
		ttl:    time.Duration(cfg.CacheTTLMs) * time.Millisecond,
		client: &http.Client{Timeout: time.Duration(cfg.FetchTimeoutMs) * time.Millisecond},
		clk:    clock.System(),
		log:    log.Sub("catalog"),
	}
}

// Items returns the current catalog, refreshing the cache when it
// expired. It never returns an empty catalog and never fails hard.
func (p *Provider) Items() []Item {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clk.Now()
	if p.cached != nil && now.Sub(p.cachedAt) < p.ttl {
		return p.cached
	}

	raw, err := p.load()
	if err != nil {
		p.log.Warn().Err(err).Msg("catalog load failed")
		if p.cached != nil {
			return p.cached
		}
		return sampleItems
	}

	items := mapRaw(raw)
	if len(items) == 0 {
		if p.cached != nil {
			return p.cached
		}
		return sampleItems
	}

	p.cached = items
	p.cachedAt = now
	return items
}

func (p *Provider) load() ([]map[string]any, error) {
	if p.url != "" {
		return p.fetch()
	}
	if p.path != "" {
		return p.readFile()
	}
	return nil, fmt.Errorf("no catalog source configured")
}

func (p *Provider) fetch() ([]map[string]any, error) {
	resp, err := p.client.Get(p.url)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}
	return decodeArray(body)
}

func (p *Provider) readFile() ([]map[string]any, error) {
	body, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return decodeArray(body)
}

func decodeArray(body []byte) ([]map[string]any, error) {
	var raw []map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("catalog must be a JSON array: %w", err)
	}
	return raw, nil
}

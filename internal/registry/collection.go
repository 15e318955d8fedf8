package registry

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

// Collection is an immutable snapshot of every known configuration. All
// mutators return a new Collection; the receiver is left untouched.
// Configurations inside are shared and must be treated as read-only.
type Collection struct {
	clients  []domain.Client
	configs  []domain.Config
	report   LoadReport
	loadedAt time.Time
}

// LoadReport describes how a collection was produced.
type LoadReport struct {
	Clients  int `json:"clients"`
	Probes   int `json:"probes"`
	Found    int `json:"found"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

// NewCollection builds a collection. If configs repeats a key, the later
// entry replaces the earlier one in place.
func NewCollection(clients []domain.Client, configs []domain.Config) *Collection {
	c := &Collection{
		clients:  append([]domain.Client(nil), clients...),
		loadedAt: time.Now(),
	}
	for _, cfg := range configs {
		if cfg == nil {
			continue
		}
		c.configs = upsert(c.configs, cfg)
	}
	return c
}

func (c *Collection) Configs() []domain.Config {
	return append([]domain.Config(nil), c.configs...)
}

func (c *Collection) Clients() []domain.Client {
	return append([]domain.Client(nil), c.clients...)
}

func (c *Collection) Len() int {
	return len(c.configs)
}

func (c *Collection) Report() LoadReport {
	return c.report
}

func (c *Collection) LoadedAt() time.Time {
	return c.loadedAt
}

func (c *Collection) Client(id int64) (domain.Client, bool) {
	for _, cl := range c.clients {
		if cl.ID == id {
			return cl, true
		}
	}
	return domain.Client{}, false
}

func (c *Collection) Find(key domain.ConfigKey) (domain.Config, bool) {
	for _, cfg := range c.configs {
		if cfg.Key() == key {
			return cfg, true
		}
	}
	return nil, false
}

func (c *Collection) ByID(id uuid.UUID) (domain.Config, bool) {
	for _, cfg := range c.configs {
		if cfg.Meta().ID == id {
			return cfg, true
		}
	}
	return nil, false
}

// With returns a copy where cfg replaces whatever held its key, or is
// appended when the key is new. A key never appears twice.
func (c *Collection) With(cfg domain.Config) *Collection {
	next := c.clone()
	next.configs = upsert(next.configs, cfg)
	return next
}

// Without returns a copy without the configuration stored under key.
func (c *Collection) Without(key domain.ConfigKey) *Collection {
	next := c.clone()
	next.configs = next.configs[:0]
	for _, cfg := range c.configs {
		if cfg.Key() != key {
			next.configs = append(next.configs, cfg)
		}
	}
	return next
}

// WithoutID returns a copy without the configuration whose ID is id.
func (c *Collection) WithoutID(id uuid.UUID) *Collection {
	next := c.clone()
	next.configs = next.configs[:0]
	for _, cfg := range c.configs {
		if cfg.Meta().ID != id {
			next.configs = append(next.configs, cfg)
		}
	}
	return next
}

// WithClient returns a copy where client replaces the entry with the same ID.
func (c *Collection) WithClient(client domain.Client) *Collection {
	next := c.clone()
	for i, cl := range next.clients {
		if cl.ID == client.ID {
			next.clients[i] = client
			return next
		}
	}
	next.clients = append(next.clients, client)
	return next
}

// Filter narrows the listing. Zero values match everything.
type Filter struct {
	ClientID int64
	Type     domain.ConfigType
	// Query is matched case-insensitively against movement tokens, the
	// distance method, the creator or last editor, and the client name.
	Query string
}

func (c *Collection) Filter(f Filter) []domain.Config {
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]domain.Config, 0, len(c.configs))
	for _, cfg := range c.configs {
		if f.ClientID != 0 && cfg.Meta().ClientID != f.ClientID {
			continue
		}
		if f.Type != "" && cfg.Type() != f.Type {
			continue
		}
		if query != "" && !c.matchesQuery(cfg, query) {
			continue
		}
		out = append(out, cfg)
	}
	return out
}

func (c *Collection) matchesQuery(cfg domain.Config, query string) bool {
	meta := cfg.Meta()
	terms := []string{meta.CreatedBy}
	if client, ok := c.Client(meta.ClientID); ok {
		terms = append(terms, client.Name)
	}
	if meta.UpdatedBy != nil {
		terms = append(terms, *meta.UpdatedBy)
	}

	terms = append(terms, domain.MatchConfig(cfg,
		func(c *domain.LivenessConfig) []string {
			out := make([]string, 0, len(c.RequiredMovements))
			for _, m := range c.RequiredMovements {
				out = append(out, string(m))
			}
			return out
		},
		func(c *domain.MatchingConfig) []string {
			return []string{string(c.DistanceMethod)}
		},
		func(*domain.SilentLivenessConfig) []string {
			return nil
		},
	)...)

	for _, term := range terms {
		if strings.Contains(strings.ToLower(term), query) {
			return true
		}
	}
	return false
}

func (c *Collection) clone() *Collection {
	return &Collection{
		clients:  append([]domain.Client(nil), c.clients...),
		configs:  append([]domain.Config(nil), c.configs...),
		report:   c.report,
		loadedAt: c.loadedAt,
	}
}

func upsert(configs []domain.Config, cfg domain.Config) []domain.Config {
	key := cfg.Key()
	for i, existing := range configs {
		if existing.Key() == key {
			configs[i] = cfg
			return configs
		}
	}
	return append(configs, cfg)
}

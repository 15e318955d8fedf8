// Package lifecycle owns the in-memory registry and orchestrates create,
// update, delete and view of configurations addressed by (type, clientId).
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/metrics"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/presentation"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/registry"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/validation"
)

const (
	DefaultIntentTTL      = 2 * time.Minute
	DefaultRefreshTimeout = 30 * time.Second
)

// Operation names used in metrics.
const (
	OpCreate       = "create"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpClientStatus = "client_status"
	OpRefresh      = "refresh"
)

// Backend is the configuration service as seen by the console.
type Backend interface {
	registry.Source
	CreateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error)
	UpdateConfig(ctx context.Context, t domain.ConfigType, clientID int64, params domain.Params) (domain.Config, error)
	DeleteConfig(ctx context.Context, t domain.ConfigType, clientID int64) error
	SetClientStatus(ctx context.Context, clientID int64, status domain.ClientStatus) (domain.Client, error)
}

type Loader interface {
	LoadAll(ctx context.Context, forceRefresh bool) (*registry.Collection, error)
}

// Listener is called with every collection the manager installs, in install
// order. A listener must not mutate the manager.
type Listener func(*registry.Collection)

// Row is a list entry: the configuration plus its summary.
type Row struct {
	Config  domain.Config        `json:"config"`
	Summary presentation.Summary `json:"summary"`
}

type Manager struct {
	backend Backend
	loader  Loader
	logger  *slog.Logger
	metrics *metrics.Metrics
	intents *intentStore

	// inflight collapses concurrent confirmations of the same record.
	inflight singleflight.Group

	mu        sync.RWMutex
	current   *registry.Collection
	version   uint64
	listeners []Listener
	tickets   atomic.Uint64
	notifyMu  sync.Mutex

	pendingMu sync.Mutex
	pending   map[domain.ConfigKey]struct{}

	baseCtx        context.Context
	cancel         context.CancelFunc
	refreshTimeout time.Duration
	intentTTL      time.Duration
	now            func() time.Time
	wg             sync.WaitGroup
}

type Option func(*Manager)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mgr *Manager) { mgr.metrics = m }
}

func WithIntentTTL(ttl time.Duration) Option {
	return func(mgr *Manager) {
		if ttl > 0 {
			mgr.intentTTL = ttl
		}
	}
}

func WithRefreshTimeout(d time.Duration) Option {
	return func(mgr *Manager) {
		if d > 0 {
			mgr.refreshTimeout = d
		}
	}
}

// WithClock replaces time.Now, for intent expiry.
func WithClock(now func() time.Time) Option {
	return func(mgr *Manager) { mgr.now = now }
}

func NewManager(backend Backend, loader Loader, logger *slog.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		backend:        backend,
		loader:         loader,
		logger:         logger.With("component", "lifecycle"),
		current:        registry.NewCollection(nil, nil),
		pending:        make(map[domain.ConfigKey]struct{}),
		baseCtx:        ctx,
		cancel:         cancel,
		refreshTimeout: DefaultRefreshTimeout,
		intentTTL:      DefaultIntentTTL,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.intents = newIntentStore(m.intentTTL, m.now)

	return m
}

// Collection returns the current snapshot.
func (m *Manager) Collection() *registry.Collection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Subscribe registers l for every future collection change.
func (m *Manager) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// Refresh rebuilds the collection from scratch. A result older than the
// installed one (another refresh or a local mutation) is discarded.
func (m *Manager) Refresh(ctx context.Context, forceRefresh bool) (*registry.Collection, error) {
	ticket := m.tickets.Add(1)

	coll, err := m.loader.LoadAll(ctx, forceRefresh)
	if err != nil {
		m.metrics.ObserveOperation(OpRefresh, metrics.ResultError)
		return nil, err
	}
	m.metrics.ObserveOperation(OpRefresh, metrics.ResultSuccess)

	if !m.install(ticket, func(*registry.Collection) *registry.Collection { return coll }) {
		m.logger.DebugContext(ctx, "discarding stale registry load", slog.Uint64("ticket", ticket))
	}
	return m.Collection(), nil
}

// Validate is the inline validation entry point. It never touches the network.
func (m *Manager) Validate(t domain.ConfigType, f validation.Fields) validation.Errors {
	return validation.Validate(t, f)
}

// Create validates f, refuses a second configuration for the same
// (type, clientId) and then calls the backend. Backend errors are returned
// untouched and leave local state as it was.
func (m *Manager) Create(ctx context.Context, t domain.ConfigType, clientID int64, f validation.Fields) (domain.Config, error) {
	params, err := presentation.Payload(t, f)
	if err != nil {
		m.metrics.ObserveOperation(OpCreate, metrics.ResultRejected)
		return nil, err
	}

	key := domain.ConfigKey{Type: t, ClientID: clientID}
	if _, exists := m.Collection().Find(key); exists {
		m.metrics.ObserveOperation(OpCreate, metrics.ResultRejected)
		return nil, domain.ErrConfigExists
	}

	if !m.claim(key) {
		m.metrics.ObserveOperation(OpCreate, metrics.ResultRejected)
		return nil, domain.ErrOperationInProgress
	}
	defer m.release(key)

	cfg, err := m.backend.CreateConfig(ctx, t, clientID, params)
	if err != nil {
		m.metrics.ObserveOperation(OpCreate, metrics.ResultError)
		m.logger.WarnContext(ctx, "create configuration failed",
			slog.String("key", key.String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	m.apply(func(c *registry.Collection) *registry.Collection { return c.With(cfg) })
	m.scheduleRefresh()
	m.metrics.ObserveOperation(OpCreate, metrics.ResultSuccess)

	m.logger.InfoContext(ctx, "configuration created",
		slog.String("key", key.String()),
		slog.String("id", cfg.Meta().ID.String()),
	)
	return cfg, nil
}

// Update re-resolves (type, clientId) on the backend; the local ID is not
// used for addressing.
func (m *Manager) Update(ctx context.Context, t domain.ConfigType, clientID int64, f validation.Fields) (domain.Config, error) {
	params, err := presentation.Payload(t, f)
	if err != nil {
		m.metrics.ObserveOperation(OpUpdate, metrics.ResultRejected)
		return nil, err
	}

	key := domain.ConfigKey{Type: t, ClientID: clientID}
	if !m.claim(key) {
		m.metrics.ObserveOperation(OpUpdate, metrics.ResultRejected)
		return nil, domain.ErrOperationInProgress
	}
	defer m.release(key)

	cfg, err := m.backend.UpdateConfig(ctx, t, clientID, params)
	if err != nil {
		m.metrics.ObserveOperation(OpUpdate, metrics.ResultError)
		m.logger.WarnContext(ctx, "update configuration failed",
			slog.String("key", key.String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	m.apply(func(c *registry.Collection) *registry.Collection { return c.With(cfg) })
	m.scheduleRefresh()
	m.metrics.ObserveOperation(OpUpdate, metrics.ResultSuccess)

	m.logger.InfoContext(ctx, "configuration updated", slog.String("key", key.String()))
	return cfg, nil
}

// RequestDelete is the first phase of a delete. It has no side effect
// other than registering the intent.
func (m *Manager) RequestDelete(t domain.ConfigType, clientID int64) (Intent, error) {
	if !t.Valid() {
		return Intent{}, domain.ErrUnknownConfigType.WithError(fmt.Errorf("type %q", t))
	}

	key := domain.ConfigKey{Type: t, ClientID: clientID}
	cfg, ok := m.Collection().Find(key)
	if !ok {
		return Intent{}, domain.ErrConfigNotFound
	}

	return m.intents.add(Intent{
		Action:      ActionDeleteConfig,
		Key:         key,
		ConfigID:    cfg.Meta().ID,
		ClientID:    clientID,
		Description: fmt.Sprintf("Delete the %s configuration of client %d", t, clientID),
	}), nil
}

// RequestClientStatus is the first phase of activating or suspending a client.
func (m *Manager) RequestClientStatus(clientID int64, status domain.ClientStatus) (Intent, error) {
	if !domain.IsValidClientStatus(string(status)) {
		return Intent{}, domain.ErrInvalidClientStatus
	}

	client, ok := m.Collection().Client(clientID)
	if !ok {
		return Intent{}, domain.ErrClientNotFound
	}

	return m.intents.add(Intent{
		Action:      ActionSetClientStatus,
		ClientID:    clientID,
		Status:      status,
		Description: fmt.Sprintf("Change status of %s from %s to %s", client.Name, client.Status, status),
	}), nil
}

// Confirm executes a pending intent. Confirmations that target a record
// with an execution already in flight wait for it and share its outcome,
// so only one call reaches the backend.
func (m *Manager) Confirm(ctx context.Context, token string) (Notice, error) {
	in, err := m.intents.get(token)
	if err != nil {
		return Notice{}, err
	}

	v, err, shared := m.inflight.Do(in.target(), func() (any, error) {
		return m.execute(ctx, in)
	})
	if shared {
		m.logger.DebugContext(ctx, "confirmation joined in-flight execution", slog.String("target", in.target()))
	}
	if err != nil {
		return Notice{}, err
	}

	m.intents.remove(token)
	return v.(Notice), nil
}

func (m *Manager) execute(ctx context.Context, in Intent) (Notice, error) {
	switch in.Action {
	case ActionDeleteConfig:
		return m.deleteConfig(ctx, in)
	case ActionSetClientStatus:
		return m.setClientStatus(ctx, in)
	}
	return Notice{}, domain.ErrBadRequest.WithError(fmt.Errorf("unknown action %q", in.Action))
}

func (m *Manager) deleteConfig(ctx context.Context, in Intent) (Notice, error) {
	// Already gone: a previous confirmation won.
	if _, ok := m.Collection().ByID(in.ConfigID); !ok {
		m.metrics.ObserveOperation(OpDelete, metrics.ResultRejected)
		return Notice{}, domain.ErrConfigNotFound
	}

	// Shares the key guard with Create and Update so a slower update cannot
	// put the deleted record back.
	if !m.claim(in.Key) {
		m.metrics.ObserveOperation(OpDelete, metrics.ResultRejected)
		return Notice{}, domain.ErrOperationInProgress
	}
	defer m.release(in.Key)

	if err := m.backend.DeleteConfig(ctx, in.Key.Type, in.Key.ClientID); err != nil {
		m.metrics.ObserveOperation(OpDelete, metrics.ResultError)
		m.logger.WarnContext(ctx, "delete configuration failed",
			slog.String("key", in.Key.String()),
			slog.Any("error", err),
		)
		return Notice{}, err
	}

	m.apply(func(c *registry.Collection) *registry.Collection { return c.WithoutID(in.ConfigID) })
	m.scheduleRefresh()
	m.metrics.ObserveOperation(OpDelete, metrics.ResultSuccess)

	m.logger.InfoContext(ctx, "configuration deleted", slog.String("key", in.Key.String()))
	return Notice{
		Action:  ActionDeleteConfig,
		Message: fmt.Sprintf("The %s configuration of client %d was deleted", in.Key.Type, in.Key.ClientID),
		At:      m.now(),
	}, nil
}

func (m *Manager) setClientStatus(ctx context.Context, in Intent) (Notice, error) {
	client, err := m.backend.SetClientStatus(ctx, in.ClientID, in.Status)
	if err != nil {
		m.metrics.ObserveOperation(OpClientStatus, metrics.ResultError)
		return Notice{}, err
	}

	m.apply(func(c *registry.Collection) *registry.Collection { return c.WithClient(client) })
	m.metrics.ObserveOperation(OpClientStatus, metrics.ResultSuccess)

	return Notice{
		Action:  ActionSetClientStatus,
		Message: fmt.Sprintf("Client %s is now %s", client.Name, client.Status),
		At:      m.now(),
	}, nil
}

// View reads an already loaded configuration. It never calls the backend.
func (m *Manager) View(id uuid.UUID) (presentation.Detail, error) {
	cfg, ok := m.Collection().ByID(id)
	if !ok {
		return presentation.Detail{}, domain.ErrConfigNotFound
	}
	return presentation.DetailOf(cfg), nil
}

func (m *Manager) List(f registry.Filter) []Row {
	configs := m.Collection().Filter(f)
	rows := make([]Row, 0, len(configs))
	for _, cfg := range configs {
		rows = append(rows, Row{Config: cfg, Summary: presentation.Summarize(cfg)})
	}
	return rows
}

// Form returns the edit form for (t, clientID), or the create form when
// the client has no configuration of that type yet.
func (m *Manager) Form(t domain.ConfigType, clientID int64) (validation.Fields, bool, error) {
	if !t.Valid() {
		return validation.Fields{}, false, domain.ErrUnknownConfigType.WithError(fmt.Errorf("type %q", t))
	}
	cfg, ok := m.Collection().Find(domain.ConfigKey{Type: t, ClientID: clientID})
	if !ok {
		return presentation.Defaults(), false, nil
	}
	return presentation.FormFor(cfg), true, nil
}

// Wait blocks until every scheduled refresh has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close stops scheduling refreshes and waits for the running ones.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// apply patches the current collection. Local patches are never stale.
func (m *Manager) apply(fn func(*registry.Collection) *registry.Collection) {
	m.install(0, fn)
}

func (m *Manager) install(ticket uint64, fn func(*registry.Collection) *registry.Collection) bool {
	// Listeners see collections in install order.
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if ticket == 0 {
		ticket = m.tickets.Add(1)
	}
	if ticket < m.version {
		m.mu.Unlock()
		return false
	}
	m.current = fn(m.current)
	m.version = ticket
	coll := m.current
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	m.metrics.SetRegistryEntries(coll.Len())
	for _, l := range listeners {
		l(coll)
	}
	return true
}

func (m *Manager) scheduleRefresh() {
	if m.baseCtx.Err() != nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ctx, cancel := context.WithTimeout(m.baseCtx, m.refreshTimeout)
		defer cancel()

		if _, err := m.Refresh(ctx, true); err != nil {
			m.logger.Warn("background refresh failed", slog.Any("error", err))
		}
	}()
}

func (m *Manager) claim(key domain.ConfigKey) bool {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	if _, busy := m.pending[key]; busy {
		return false
	}
	m.pending[key] = struct{}{}
	return true
}

func (m *Manager) release(key domain.ConfigKey) {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	delete(m.pending, key)
}

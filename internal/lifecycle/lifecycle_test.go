package lifecycle

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/registry"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/validation"
)

type fakeBackend struct {
	mu      sync.Mutex
	clients map[int64]domain.Client
	order   []int64
	configs map[domain.ConfigKey]domain.Config

	createErr error
	updateErr error
	deleteErr error

	// deleteGate, when set, blocks DeleteConfig until closed.
	deleteGate chan struct{}
	// updateGate, when set, blocks UpdateConfig after the write until closed.
	updateGate chan struct{}

	createCalls atomic.Int64
	updateCalls atomic.Int64
	deleteCalls atomic.Int64
	statusCalls atomic.Int64
}

func newFakeBackend(clients ...domain.Client) *fakeBackend {
	b := &fakeBackend{
		clients: map[int64]domain.Client{},
		configs: map[domain.ConfigKey]domain.Config{},
	}
	for _, c := range clients {
		b.clients[c.ID] = c
		b.order = append(b.order, c.ID)
	}
	return b
}

func (b *fakeBackend) seed(t *testing.T, clientID int64, p domain.Params) domain.Config {
	t.Helper()
	cfg, err := domain.NewConfig(domain.ConfigMeta{ID: uuid.New(), ClientID: clientID, CreatedBy: "seed"}, p)
	require.NoError(t, err)
	b.mu.Lock()
	b.configs[cfg.Key()] = cfg
	b.mu.Unlock()
	return cfg
}

func (b *fakeBackend) ListClients(_ context.Context, _ bool) ([]domain.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Client, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.clients[id])
	}
	return out, nil
}

func (b *fakeBackend) GetConfig(_ context.Context, t domain.ConfigType, clientID int64, _ bool) (domain.Config, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cfg, ok := b.configs[domain.ConfigKey{Type: t, ClientID: clientID}]
	if !ok {
		return nil, domain.ErrConfigNotFound
	}
	return cfg, nil
}

func (b *fakeBackend) CreateConfig(_ context.Context, t domain.ConfigType, clientID int64, p domain.Params) (domain.Config, error) {
	b.createCalls.Add(1)
	if b.createErr != nil {
		return nil, b.createErr
	}
	return b.store(t, clientID, p)
}

func (b *fakeBackend) UpdateConfig(_ context.Context, t domain.ConfigType, clientID int64, p domain.Params) (domain.Config, error) {
	b.updateCalls.Add(1)
	if b.updateErr != nil {
		return nil, b.updateErr
	}
	cfg, err := b.store(t, clientID, p)
	if b.updateGate != nil {
		<-b.updateGate
	}
	return cfg, err
}

func (b *fakeBackend) store(t domain.ConfigType, clientID int64, p domain.Params) (domain.Config, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := domain.ConfigKey{Type: t, ClientID: clientID}
	meta := domain.ConfigMeta{ID: uuid.New(), ClientID: clientID, CreatedBy: "tester"}
	if existing, ok := b.configs[key]; ok {
		meta = existing.Meta()
	}
	cfg, err := domain.NewConfig(meta, p)
	if err != nil {
		return nil, err
	}
	b.configs[key] = cfg
	return cfg, nil
}

func (b *fakeBackend) DeleteConfig(_ context.Context, t domain.ConfigType, clientID int64) error {
	b.deleteCalls.Add(1)
	if b.deleteGate != nil {
		<-b.deleteGate
	}
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.configs, domain.ConfigKey{Type: t, ClientID: clientID})
	return nil
}

func (b *fakeBackend) SetClientStatus(_ context.Context, clientID int64, status domain.ClientStatus) (domain.Client, error) {
	b.statusCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.clients[clientID]
	if !ok {
		return domain.Client{}, domain.ErrClientNotFound
	}
	c.Status = status
	b.clients[clientID] = c
	return c, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestManager(t *testing.T, b *fakeBackend, opts ...Option) *Manager {
	t.Helper()
	logger := testLogger()
	m := NewManager(b, registry.NewLoader(b, logger), logger, opts...)
	t.Cleanup(m.Close)

	_, err := m.Refresh(context.Background(), false)
	require.NoError(t, err)
	return m
}

func validMatching() validation.Fields {
	return validation.Fields{
		DistanceMethod:    validation.String("cosine"),
		Threshold:         validation.Float(0.8),
		MinimumConfidence: validation.Float(0.9),
		MaxAngle:          validation.Int(30),
	}
}

var acme = domain.Client{ID: 7, Name: "Acme", Status: domain.ClientStatusActive}

func TestCreate_InvalidInputNeverReachesBackend(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	f := validMatching()
	f.Threshold = validation.Float(1.5)

	cfg, err := m.Create(context.Background(), domain.ConfigTypeMatching, 7, f)
	require.Error(t, err)
	assert.Nil(t, cfg)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"threshold": "must be between 0 and 1"}, verr.Fields)
	assert.ErrorIs(t, err, domain.ErrValidationFailed)
	assert.Equal(t, int64(0), b.createCalls.Load())
	assert.Equal(t, 0, m.Collection().Len())
}

func TestCreate_UnknownType(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	_, err := m.Create(context.Background(), domain.ConfigType("face-search"), 7, validMatching())
	assert.ErrorIs(t, err, domain.ErrUnknownConfigType)
	assert.Equal(t, int64(0), b.createCalls.Load())
}

func TestCreate_AddsEntryAndRejectsSecondCreate(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)
	ctx := context.Background()

	cfg, err := m.Create(ctx, domain.ConfigTypeMatching, 7, validMatching())
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigTypeMatching, cfg.Type())

	got, ok := m.Collection().Find(domain.ConfigKey{Type: domain.ConfigTypeMatching, ClientID: 7})
	require.True(t, ok)
	assert.Equal(t, cfg.Meta().ID, got.Meta().ID)

	_, err = m.Create(ctx, domain.ConfigTypeMatching, 7, validMatching())
	assert.ErrorIs(t, err, domain.ErrConfigExists)
	assert.Equal(t, int64(1), b.createCalls.Load())

	m.Wait()
	assert.Equal(t, 1, m.Collection().Len())
}

func TestCreate_BackendErrorReturnedVerbatim(t *testing.T) {
	b := newFakeBackend(acme)
	remote := &domain.RemoteError{StatusCode: 409, Code: "CONFIG_ALREADY_EXISTS", Message: "configuration already exists for client 7"}
	b.createErr = remote
	m := newTestManager(t, b)

	before := m.Collection()
	_, err := m.Create(context.Background(), domain.ConfigTypeMatching, 7, validMatching())

	require.Error(t, err)
	assert.Same(t, remote, err)
	assert.Equal(t, "configuration already exists for client 7", err.Error())
	assert.Same(t, before, m.Collection())
}

func TestUpdate_ReplacesEntryInPlace(t *testing.T) {
	b := newFakeBackend(acme)
	original := b.seed(t, 7, domain.MatchingParams{DistanceMethod: domain.DistanceCosine, Threshold: 0.8, MinimumConfidence: 0.9})
	m := newTestManager(t, b)

	f := validMatching()
	f.DistanceMethod = validation.String("hamming")

	cfg, err := m.Update(context.Background(), domain.ConfigTypeMatching, 7, f)
	require.NoError(t, err)
	assert.Equal(t, original.Meta().ID, cfg.Meta().ID)

	m.Wait()
	require.Equal(t, 1, m.Collection().Len())
	got, _ := m.Collection().Find(original.Key())
	mc, ok := got.(*domain.MatchingConfig)
	require.True(t, ok)
	assert.Equal(t, domain.DistanceHamming, mc.DistanceMethod)
}

func TestUpdate_FailureLeavesStateUntouched(t *testing.T) {
	b := newFakeBackend(acme)
	b.seed(t, 7, domain.MatchingParams{DistanceMethod: domain.DistanceCosine, Threshold: 0.8, MinimumConfidence: 0.9})
	b.updateErr = errors.New("connection reset")
	m := newTestManager(t, b)

	before := m.Collection()
	_, err := m.Update(context.Background(), domain.ConfigTypeMatching, 7, validMatching())
	require.EqualError(t, err, "connection reset")
	assert.Same(t, before, m.Collection())
}

func TestDelete_RemovesExactlyOneEntry(t *testing.T) {
	b := newFakeBackend(acme, domain.Client{ID: 8, Name: "Globex", Status: domain.ClientStatusActive})
	b.seed(t, 7, domain.LivenessParams{RequiredMovements: []domain.Movement{domain.MovementBlink}, MovementCount: 1, MovementDurationSec: 2, FPS: 30, TimeoutSec: 10})
	target := b.seed(t, 7, domain.SilentLivenessParams{FPS: 24, TimeoutSec: 10, MinFrames: 5, MinDurationSec: 1, DecisionThreshold: 0.5})
	b.seed(t, 8, domain.SilentLivenessParams{FPS: 24, TimeoutSec: 10, MinFrames: 5, MinDurationSec: 1, DecisionThreshold: 0.5})
	m := newTestManager(t, b)
	require.Equal(t, 3, m.Collection().Len())

	in, err := m.RequestDelete(domain.ConfigTypeSilentLiveness, 7)
	require.NoError(t, err)
	assert.Equal(t, target.Meta().ID, in.ConfigID)
	assert.Equal(t, 3, m.Collection().Len(), "requesting changes nothing")
	assert.Equal(t, int64(0), b.deleteCalls.Load())

	notice, err := m.Confirm(context.Background(), in.Token)
	require.NoError(t, err)
	assert.Equal(t, ActionDeleteConfig, notice.Action)
	assert.Contains(t, notice.Message, "silent-liveness")

	coll := m.Collection()
	assert.Equal(t, 2, coll.Len())
	_, ok := coll.ByID(target.Meta().ID)
	assert.False(t, ok)
	_, ok = coll.Find(domain.ConfigKey{Type: domain.ConfigTypeLiveness, ClientID: 7})
	assert.True(t, ok)
	_, ok = coll.Find(domain.ConfigKey{Type: domain.ConfigTypeSilentLiveness, ClientID: 8})
	assert.True(t, ok)

	m.Wait()
	assert.Equal(t, 2, m.Collection().Len())
	assert.Equal(t, 0, m.intents.len())
}

func TestDelete_RapidConfirmsCallBackendOnce(t *testing.T) {
	b := newFakeBackend(acme)
	b.seed(t, 7, domain.SilentLivenessParams{FPS: 24, TimeoutSec: 10, MinFrames: 5, MinDurationSec: 1, DecisionThreshold: 0.5})
	m := newTestManager(t, b)

	first, err := m.RequestDelete(domain.ConfigTypeSilentLiveness, 7)
	require.NoError(t, err)
	second, err := m.RequestDelete(domain.ConfigTypeSilentLiveness, 7)
	require.NoError(t, err)

	b.deleteGate = make(chan struct{})

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, token := range []string{first.Token, first.Token, second.Token} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = m.Confirm(context.Background(), token)
		}()
	}

	require.Eventually(t, func() bool { return b.deleteCalls.Load() == 1 }, time.Second, time.Millisecond)
	close(b.deleteGate)
	wg.Wait()

	assert.Equal(t, int64(1), b.deleteCalls.Load())
	for _, err := range errs {
		if err != nil {
			assert.True(t,
				errors.Is(err, domain.ErrConfigNotFound) || errors.Is(err, domain.ErrIntentNotFound),
				"unexpected error %v", err)
		}
	}

	_, err = m.Confirm(context.Background(), second.Token)
	assert.Error(t, err)
	assert.Equal(t, int64(1), b.deleteCalls.Load())
	assert.Equal(t, 0, m.Collection().Len())
}

func TestDelete_WaitsForInFlightUpdate(t *testing.T) {
	b := newFakeBackend(acme)
	seeded := b.seed(t, 7, domain.MatchingParams{DistanceMethod: domain.DistanceCosine, Threshold: 0.8, MinimumConfidence: 0.9})
	m := newTestManager(t, b)

	b.updateGate = make(chan struct{})
	updated := make(chan error, 1)
	go func() {
		_, err := m.Update(context.Background(), domain.ConfigTypeMatching, 7, validMatching())
		updated <- err
	}()
	require.Eventually(t, func() bool { return b.updateCalls.Load() == 1 }, time.Second, time.Millisecond)

	in, err := m.RequestDelete(domain.ConfigTypeMatching, 7)
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), in.Token)
	assert.ErrorIs(t, err, domain.ErrOperationInProgress)
	assert.Equal(t, int64(0), b.deleteCalls.Load())

	close(b.updateGate)
	require.NoError(t, <-updated)
	_, ok := m.Collection().ByID(seeded.Meta().ID)
	require.True(t, ok)

	// The intent survives the rejection and can be confirmed again.
	_, err = m.Confirm(context.Background(), in.Token)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.deleteCalls.Load())
	assert.Equal(t, 0, m.Collection().Len())

	m.Wait()
	assert.Equal(t, 0, m.Collection().Len())
}

func TestDelete_BackendFailureKeepsEntryAndIntent(t *testing.T) {
	b := newFakeBackend(acme)
	b.seed(t, 7, domain.SilentLivenessParams{FPS: 24, TimeoutSec: 10, MinFrames: 5, MinDurationSec: 1, DecisionThreshold: 0.5})
	b.deleteErr = &domain.RemoteError{StatusCode: 500, Message: "database unavailable"}
	m := newTestManager(t, b)

	in, err := m.RequestDelete(domain.ConfigTypeSilentLiveness, 7)
	require.NoError(t, err)

	_, err = m.Confirm(context.Background(), in.Token)
	require.EqualError(t, err, "database unavailable")
	assert.Equal(t, 1, m.Collection().Len())

	b.deleteErr = nil
	_, err = m.Confirm(context.Background(), in.Token)
	require.NoError(t, err, "intent survives a failed attempt")
	assert.Equal(t, 0, m.Collection().Len())
}

func TestRequestDelete_Errors(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	_, err := m.RequestDelete(domain.ConfigTypeMatching, 7)
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)

	_, err = m.RequestDelete(domain.ConfigType("nope"), 7)
	assert.ErrorIs(t, err, domain.ErrUnknownConfigType)
}

func TestConfirm_UnknownAndExpiredIntents(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	b := newFakeBackend(acme)
	b.seed(t, 7, domain.SilentLivenessParams{FPS: 24, TimeoutSec: 10, MinFrames: 5, MinDurationSec: 1, DecisionThreshold: 0.5})
	m := newTestManager(t, b, WithClock(clock.Now), WithIntentTTL(time.Minute))

	_, err := m.Confirm(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, domain.ErrIntentNotFound)

	in, err := m.RequestDelete(domain.ConfigTypeSilentLiveness, 7)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), in.ExpiresAt)

	clock.Advance(2 * time.Minute)
	_, err = m.Confirm(context.Background(), in.Token)
	assert.ErrorIs(t, err, domain.ErrIntentExpired)
	assert.Equal(t, int64(0), b.deleteCalls.Load())
	assert.Equal(t, 1, m.Collection().Len())
}

func TestClientStatus_TwoPhase(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	_, err := m.RequestClientStatus(7, domain.ClientStatus("PAUSED"))
	assert.ErrorIs(t, err, domain.ErrInvalidClientStatus)

	_, err = m.RequestClientStatus(99, domain.ClientStatusSuspended)
	assert.ErrorIs(t, err, domain.ErrClientNotFound)

	in, err := m.RequestClientStatus(7, domain.ClientStatusSuspended)
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.statusCalls.Load())

	notice, err := m.Confirm(context.Background(), in.Token)
	require.NoError(t, err)
	assert.Equal(t, "Client Acme is now SUSPENDED", notice.Message)

	c, ok := m.Collection().Client(7)
	require.True(t, ok)
	assert.Equal(t, domain.ClientStatusSuspended, c.Status)
	assert.Equal(t, int64(1), b.statusCalls.Load())
}

func TestView_IsPureRead(t *testing.T) {
	b := newFakeBackend(acme)
	cfg := b.seed(t, 7, domain.MatchingParams{DistanceMethod: domain.DistanceEuclidean, Threshold: 0.7, MinimumConfidence: 0.9, MaxAngle: 30})
	m := newTestManager(t, b)
	before := m.Collection()

	detail, err := m.View(cfg.Meta().ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfigTypeMatching, detail.Type)
	assert.Equal(t, int64(7), detail.ClientID)
	assert.Same(t, before, m.Collection())

	_, err = m.View(uuid.New())
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestForm_DefaultsAndExisting(t *testing.T) {
	b := newFakeBackend(acme)
	b.seed(t, 7, domain.MatchingParams{DistanceMethod: domain.DistanceManhattan, Threshold: 0.6, MinimumConfidence: 0.7})
	m := newTestManager(t, b)

	f, exists, err := m.Form(domain.ConfigTypeLiveness, 7)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, []string{"blink"}, f.RequiredMovements)

	f, exists, err = m.Form(domain.ConfigTypeMatching, 7)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, "manhattan", *f.DistanceMethod)
	assert.Equal(t, 0.6, *f.Threshold)

	_, _, err = m.Form(domain.ConfigType("x"), 7)
	assert.ErrorIs(t, err, domain.ErrUnknownConfigType)
}

func TestList_FiltersAndSummarizes(t *testing.T) {
	b := newFakeBackend(acme)
	b.seed(t, 7, domain.MatchingParams{DistanceMethod: domain.DistanceManhattan, Threshold: 0.6, MinimumConfidence: 0.7})
	b.seed(t, 7, domain.SilentLivenessParams{FPS: 24, TimeoutSec: 10, MinFrames: 5, MinDurationSec: 1, DecisionThreshold: 0.5})
	m := newTestManager(t, b)

	rows := m.List(registry.Filter{Query: "manhattan"})
	require.Len(t, rows, 1)
	assert.Equal(t, domain.ConfigTypeMatching, rows[0].Summary.Type)

	assert.Len(t, m.List(registry.Filter{ClientID: 7}), 2)
}

func TestSubscribe_NotifiedOnChange(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	var calls atomic.Int64
	m.Subscribe(func(*registry.Collection) { calls.Add(1) })

	_, err := m.Create(context.Background(), domain.ConfigTypeMatching, 7, validMatching())
	require.NoError(t, err)
	m.Wait()

	assert.GreaterOrEqual(t, calls.Load(), int64(1))
}

func TestSubscribe_NotifiedInInstallOrder(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	var (
		installed []*registry.Collection
		notifyMu  sync.Mutex
		notified  []*registry.Collection
	)
	m.Subscribe(func(c *registry.Collection) {
		notifyMu.Lock()
		notified = append(notified, c)
		notifyMu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.apply(func(*registry.Collection) *registry.Collection {
				next := registry.NewCollection([]domain.Client{acme}, nil)
				installed = append(installed, next)
				return next
			})
		}()
	}
	wg.Wait()

	require.Len(t, installed, 50)
	assert.Equal(t, installed, notified)
	assert.Same(t, installed[len(installed)-1], m.Collection())
}

func TestInstall_DiscardsStaleResult(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	stale := m.tickets.Add(1)
	fresh := registry.NewCollection(nil, nil)
	m.apply(func(*registry.Collection) *registry.Collection { return fresh })

	installed := m.install(stale, func(*registry.Collection) *registry.Collection {
		return registry.NewCollection([]domain.Client{acme}, nil)
	})
	assert.False(t, installed)
	assert.Same(t, fresh, m.Collection())
}

func TestValidate_NoNetwork(t *testing.T) {
	b := newFakeBackend(acme)
	m := newTestManager(t, b)

	errs := m.Validate(domain.ConfigTypeLiveness, validation.Fields{})
	assert.False(t, errs.Empty())
	assert.Contains(t, errs, "required_movements")
	assert.Equal(t, int64(0), b.createCalls.Load())
}

package lifecycle

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/domain"
)

// Action is a destructive or state-changing operation that needs an
// explicit confirmation before it runs.
type Action string

const (
	ActionDeleteConfig    Action = "delete_config"
	ActionSetClientStatus Action = "set_client_status"
)

// Intent is the first phase of a confirmed operation. Nothing happens until
// Confirm is called with its token.
type Intent struct {
	Token       string              `json:"token"`
	Action      Action              `json:"action"`
	Key         domain.ConfigKey    `json:"key"`
	ConfigID    uuid.UUID           `json:"config_id"`
	ClientID    int64               `json:"client_id"`
	Status      domain.ClientStatus `json:"status,omitempty"`
	Description string              `json:"description"`
	ExpiresAt   time.Time           `json:"expires_at"`
}

// target identifies the record an intent acts on; concurrent confirmations
// for the same target share a single execution.
func (i Intent) target() string {
	switch i.Action {
	case ActionSetClientStatus:
		return fmt.Sprintf("client:%d", i.ClientID)
	default:
		return "config:" + i.Key.String()
	}
}

// Notice is the transient message shown after a confirmed operation succeeds.
type Notice struct {
	Action  Action    `json:"action"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

type intentStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	intents map[string]Intent
}

func newIntentStore(ttl time.Duration, now func() time.Time) *intentStore {
	return &intentStore{
		ttl:     ttl,
		now:     now,
		intents: make(map[string]Intent),
	}
}

func (s *intentStore) add(in Intent) Intent {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for token, existing := range s.intents {
		if now.After(existing.ExpiresAt) {
			delete(s.intents, token)
		}
	}

	in.Token = uuid.NewString()
	in.ExpiresAt = now.Add(s.ttl)
	s.intents[in.Token] = in
	return in
}

func (s *intentStore) get(token string) (Intent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in, ok := s.intents[token]
	if !ok {
		return Intent{}, domain.ErrIntentNotFound
	}
	if s.now().After(in.ExpiresAt) {
		delete(s.intents, token)
		return Intent{}, domain.ErrIntentExpired
	}
	return in, nil
}

func (s *intentStore) remove(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.intents, token)
}

func (s *intentStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.intents)
}

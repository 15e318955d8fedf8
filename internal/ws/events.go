package ws

import (
	"time"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/registry"
)

type EventType string

const (
	EventConnected       EventType = "connected"
	EventRegistryUpdated EventType = "registry.updated"
)

type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// RegistrySnapshot is the payload of registry.updated. Clients refetch the
// list when they receive it.
type RegistrySnapshot struct {
	Total    int                 `json:"total"`
	Clients  int                 `json:"clients"`
	LoadedAt time.Time           `json:"loaded_at"`
	Report   registry.LoadReport `json:"report"`
}

func snapshotOf(c *registry.Collection) RegistrySnapshot {
	return RegistrySnapshot{
		Total:    c.Len(),
		Clients:  len(c.Clients()),
		LoadedAt: c.LoadedAt(),
		Report:   c.Report(),
	}
}

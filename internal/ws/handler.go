package ws

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/saturnino-fabrica-de-software/rekko-console/internal/admin"
	"github.com/saturnino-fabrica-de-software/rekko-console/internal/registry"
)

// Handler upgrades authenticated requests. The admin claims must already be
// in Locals under claimsKey. The current snapshot is sent on connect.
func Handler(hub *Hub, claimsKey string, current func() *registry.Collection) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		claims, ok := c.Locals(claimsKey).(*admin.AdminClaims)
		if !ok || claims == nil {
			_ = c.Close()
			return
		}

		client := &Client{
			hub:   hub,
			conn:  c,
			actor: claims.Actor(),
			send:  make(chan []byte, 256),
		}

		if current != nil {
			if msg, err := json.Marshal(Event{
				Type:      EventConnected,
				Data:      snapshotOf(current()),
				Timestamp: time.Now(),
			}); err == nil {
				client.send <- msg
			}
		}

		hub.register <- client

		go client.WritePump()
		client.ReadPump()
	})
}

func UpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

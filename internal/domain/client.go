package domain

import (
	"errors"
	"strings"
	"time"
)

// ClientStatus values
type ClientStatus string

const (
	ClientStatusActive    ClientStatus = "ACTIVE"
	ClientStatusSuspended ClientStatus = "SUSPENDED"
	ClientStatusInactive  ClientStatus = "INACTIVE"
)

var validClientStatuses = map[ClientStatus]bool{
	ClientStatusActive:    true,
	ClientStatusSuspended: true,
	ClientStatusInactive:  true,
}

// Client representa um cliente B2B que consome a verificação biométrica.
// Possui no máximo uma configuração de cada tipo.
type Client struct {
	ID        int64        `json:"id"`
	Name      string       `json:"name"`
	Status    ClientStatus `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (c *Client) IsActive() bool {
	return c.Status == ClientStatusActive
}

// Validate verifica se o cliente é válido
func (c *Client) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("client name cannot be empty")
	}

	if !IsValidClientStatus(string(c.Status)) {
		return errors.New("invalid client status")
	}

	return nil
}

func IsValidClientStatus(status string) bool {
	return validClientStatuses[ClientStatus(status)]
}

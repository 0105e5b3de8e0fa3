// Package ws serves live screen results over WebSocket. Clients join a group
// per preset and receive a fresh result each time the server loads a new
// trading date.
package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Hub manages WebSocket connections and group subscriptions.
type Hub struct {
	clients    map[*Client]bool
	groups     map[string]map[*Client]bool // group -> clients
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	validGroup func(string) bool
	logger     *zap.Logger
}

// NewHub creates a new Hub. validGroup decides which group names clients may join.
func NewHub(validGroup func(string) bool, logger *zap.Logger) *Hub {
	if validGroup == nil {
		validGroup = func(g string) bool { return g != "" }
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		groups:     make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		validGroup: validGroup,
		logger:     logger,
	}
}

// Run processes hub events. Call this in a goroutine.
// Returns when context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.logger.Info("hub shutting down")
			h.shutdown()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", zap.String("connID", client.connID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				// Remove from all groups
				for group := range client.groups {
					h.removeFromGroup(client, group)
				}
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", zap.String("connID", client.connID))
		}
	}
}

// shutdown gracefully closes all client connections.
func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
	h.groups = make(map[string]map[*Client]bool)
}

// JoinGroup adds a client to a group. It reports false for names the hub does not accept.
func (h *Hub) JoinGroup(client *Client, group string) bool {
	if !h.validGroup(group) {
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.groups[group] == nil {
		h.groups[group] = make(map[*Client]bool)
	}
	h.groups[group][client] = true
	client.groups[group] = true

	h.logger.Debug("client joined group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
	return true
}

// LeaveGroup removes a client from a group.
func (h *Hub) LeaveGroup(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromGroup(client, group)

	h.logger.Debug("client left group",
		zap.String("connID", client.connID),
		zap.String("group", group),
	)
}

// removeFromGroup requires h.mu held for writing.
func (h *Hub) removeFromGroup(client *Client, group string) {
	if clients, ok := h.groups[group]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.groups, group)
		}
	}
	delete(client.groups, group)
}

// ActiveGroups returns all groups with at least one subscriber, sorted.
func (h *Hub) ActiveGroups() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	groups := make([]string, 0, len(h.groups))
	for group, clients := range h.groups {
		if len(clients) > 0 {
			groups = append(groups, group)
		}
	}
	sort.Strings(groups)
	return groups
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload to every client in group and returns how many were reached.
// Clients whose buffer is full are disconnected.
func (h *Hub) Broadcast(group string, payload json.RawMessage) int {
	h.mu.RLock()
	clients, ok := h.groups[group]
	if !ok {
		h.mu.RUnlock()
		return 0
	}
	// Copy clients to avoid holding lock during send
	clientList := make([]*Client, 0, len(clients))
	for client := range clients {
		clientList = append(clientList, client)
	}
	h.mu.RUnlock()

	msg := buildDataMessage(group, payload)
	sent := 0
	for _, client := range clientList {
		if client.trySend(msg) {
			sent++
			continue
		}
		// Buffer full, schedule disconnect
		go func(c *Client) {
			h.unregister <- c
		}(client)
	}
	return sent
}

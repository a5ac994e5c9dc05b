// Mosaicus - Multi-Device Interactive Media Layout Orchestration
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mosaicus

// Package websocket pushes layout changes to connected clients. Each
// client subscribes to one context; whenever the engine produces a new
// layout the full document and the differential message sets are pushed
// to that context's subscribers.
package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/mosaicus/internal/logging"
	"github.com/tomtom215/mosaicus/internal/metrics"
	"github.com/tomtom215/mosaicus/internal/models"
)

// ShutdownReason identifies why the hub is shutting down.
type ShutdownReason string

const (
	// ShutdownReasonContextCanceled is the normal graceful shutdown path
	// (e.g. SIGTERM).
	ShutdownReasonContextCanceled ShutdownReason = "context_canceled"

	// ShutdownReasonContextDeadline indicates the shutdown deadline was
	// exceeded while the hub was still draining.
	ShutdownReasonContextDeadline ShutdownReason = "context_deadline"
)

// Message types pushed to clients.
const (
	MessageTypeLayout       = "layout"
	MessageTypeDiff         = "layout_diff"
	MessageTypeRegionChange = "region_change"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
)

// Message is one websocket frame. ContextID scopes delivery: only
// clients subscribed to that context receive it. An empty ContextID
// broadcasts to everyone.
type Message struct {
	Type      string `json:"type"`
	ContextID string `json:"contextId,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Hub maintains the set of active clients and routes layout pushes to
// the clients subscribed to each context.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	Register   chan *Client
	Unregister chan *Client
	mu         sync.RWMutex
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

// RunWithContext runs the hub until ctx is canceled, then closes every
// client and returns ctx.Err(). Designed for suture supervision: a
// restart finds no orphaned connections.
//
// Selection is priority ordered (shutdown, then lifecycle, then
// broadcast) so client state is consistent before messages route. Go's
// select picks randomly among ready channels; the staged non-blocking
// checks make the ordering deterministic.
func (h *Hub) RunWithContext(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()
		default:
		}

		select {
		case client := <-h.Register:
			h.addClient(client)
			continue
		case client := <-h.Unregister:
			h.removeClient(client)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			h.logGracefulShutdown(ctx)
			return ctx.Err()

		case client := <-h.Register:
			h.addClient(client)

		case client := <-h.Unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.broadcastToClients(message)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	h.clients[client] = true
	total := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnectedClients.Inc()
	logging.Info().
		Str("context_id", client.contextID).
		Int("total_clients", total).
		Msg("websocket client connected")
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		metrics.WSConnectedClients.Dec()
	}
	total := len(h.clients)
	h.mu.Unlock()
	logging.Info().
		Str("context_id", client.contextID).
		Int("total_clients", total).
		Msg("websocket client disconnected")
}

func (h *Hub) logGracefulShutdown(ctx context.Context) {
	clientCount := h.ClientCount()
	h.closeAllClients()
	logging.Info().
		Str("component", "websocket-hub").
		Str("reason", string(shutdownReason(ctx))).
		Int("clients_closed", clientCount).
		Msg("websocket hub stopped")
}

func shutdownReason(ctx context.Context) ShutdownReason {
	if ctx.Err() == context.DeadlineExceeded {
		return ShutdownReasonContextDeadline
	}
	return ShutdownReasonContextCanceled
}

// broadcastToClients routes a message to the subscribed clients in
// client-id order. The stable order keeps delivery reproducible in
// tests and keeps slow-client eviction deterministic.
func (h *Hub) broadcastToClients(message Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if message.ContextID != "" && client.contextID != message.ContextID {
			continue
		}
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	var toRemove []*Client
	for _, client := range clients {
		select {
		case client.send <- message:
			metrics.WSMessagesSent.Inc()
		default:
			// Channel full; the client cannot keep up.
			toRemove = append(toRemove, client)
		}
	}

	for _, client := range toRemove {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnectedClients.Dec()
		metrics.WSSendFailures.Inc()
		logging.Warn().
			Str("context_id", client.contextID).
			Msg("dropping slow websocket client")
	}
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	sort.Slice(clients, func(i, j int) bool {
		return clients[i].id < clients[j].id
	})

	for _, client := range clients {
		close(client.send)
		delete(h.clients, client)
		metrics.WSConnectedClients.Dec()
	}
}

// BroadcastLayout pushes a full layout document to the clients of its
// context.
func (h *Hub) BroadcastLayout(lay *models.Layout) {
	h.enqueue(Message{
		Type:      MessageTypeLayout,
		ContextID: lay.ContextID,
		Data:      lay,
	})
}

// BroadcastDiff pushes one evaluation's differential message sets to the
// clients of a context. Empty diffs are not pushed.
func (h *Hub) BroadcastDiff(contextID string, diff *models.Diff) {
	if diff == nil || diff.Empty() {
		return
	}
	h.enqueue(Message{
		Type:      MessageTypeDiff,
		ContextID: contextID,
		Data:      diff,
	})
}

// BroadcastRegionChange pushes a logical region change to the clients of
// a context.
func (h *Hub) BroadcastRegionChange(contextID string, msg *models.LogicalRegionChangeMessage) {
	h.enqueue(Message{
		Type:      MessageTypeRegionChange,
		ContextID: contextID,
		Data:      msg,
	})
}

func (h *Hub) enqueue(message Message) {
	select {
	case h.broadcast <- message:
	default:
		metrics.WSSendFailures.Inc()
		logging.Warn().
			Str("message_type", message.Type).
			Str("context_id", message.ContextID).
			Msg("broadcast channel full, dropping message")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ContextClientCount returns the number of clients subscribed to one
// context.
func (h *Hub) ContextClientCount(contextID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for client := range h.clients {
		if client.contextID == contextID {
			n++
		}
	}
	return n
}

// MarshalMessage converts a message to JSON.
func MarshalMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

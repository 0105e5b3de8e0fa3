// Package sync streams server state to subscribers over server-sent events so
// dashboards can follow which trading date is loaded and refresh on reload.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	gosync "sync"
	"time"

	"go.uber.org/zap"
)

// Event types written on the stream.
const (
	EventSnapshot  = "snapshot"
	EventHeartbeat = "heartbeat"
	EventReload    = "reload"
)

// Broadcaster sends state events to connected SSE clients.
type Broadcaster struct {
	broadcasterID string
	state         func() State
	logger        *zap.Logger

	mu       gosync.RWMutex
	sequence uint64
	clients  map[*sseClient]bool

	interval time.Duration
}

// sseClient represents a connected SSE subscriber.
type sseClient struct {
	dataCh  chan []byte
	doneCh  chan struct{}
	flusher http.Flusher
	writer  http.ResponseWriter
}

// NewBroadcaster creates a broadcaster. state is called for every event;
// interval <= 0 disables heartbeats.
func NewBroadcaster(id string, interval time.Duration, state func() State, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{
		broadcasterID: id,
		state:         state,
		logger:        logger,
		clients:       make(map[*sseClient]bool),
		interval:      interval,
	}
}

// Run sends heartbeats until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	if b.interval <= 0 {
		return
	}

	b.logger.Info("event broadcaster starting",
		zap.String("broadcaster_id", b.broadcasterID),
		zap.Duration("interval", b.interval),
	)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("event broadcaster stopping")
			return
		case <-ticker.C:
			b.Publish(EventHeartbeat)
		}
	}
}

// HandleSSE handles the SSE endpoint for subscribers.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := &sseClient{
		dataCh:  make(chan []byte, 10),
		doneCh:  make(chan struct{}),
		flusher: flusher,
		writer:  w,
	}

	b.addClient(client)
	defer b.removeClient(client)

	b.logger.Debug("event client connected", zap.String("remote_addr", r.RemoteAddr))

	// Send initial snapshot
	snapshot, err := b.formatEvent(EventSnapshot, b.nextEvent())
	if err != nil {
		b.logger.Error("failed to build snapshot", zap.Error(err))
		return
	}
	if _, err := w.Write(snapshot); err != nil {
		return
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			b.logger.Debug("event client disconnected", zap.String("remote_addr", r.RemoteAddr))
			return
		case <-client.doneCh:
			return
		case eventData := <-client.dataCh:
			if _, err := client.writer.Write(eventData); err != nil {
				b.logger.Debug("failed to write to client", zap.Error(err))
				return
			}
			client.flusher.Flush()
		}
	}
}

// ClientCount returns the number of connected subscribers.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Publish sends the current state to every subscriber as eventType. Slow
// subscribers miss the event rather than block the publisher.
func (b *Broadcaster) Publish(eventType string) {
	b.mu.RLock()
	clients := make([]*sseClient, 0, len(b.clients))
	for client := range b.clients {
		clients = append(clients, client)
	}
	b.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	eventData, err := b.formatEvent(eventType, b.nextEvent())
	if err != nil {
		b.logger.Error("failed to format event", zap.String("type", eventType), zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.dataCh <- eventData:
		default:
			// Channel full, client is slow
			b.logger.Debug("client channel full, dropping event", zap.String("type", eventType))
		}
	}
}

func (b *Broadcaster) addClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = true
}

func (b *Broadcaster) removeClient(client *sseClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, client)
	close(client.doneCh)
}

func (b *Broadcaster) nextEvent() *Event {
	b.mu.Lock()
	b.sequence++
	seq := b.sequence
	b.mu.Unlock()

	return &Event{
		BroadcasterID: b.broadcasterID,
		Timestamp:     time.Now().UnixMilli(),
		Sequence:      seq,
		State:         b.state(),
	}
}

func (b *Broadcaster) formatEvent(eventType string, event *Event) ([]byte, error) {
	jsonData, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\nid: %d\ndata: %s\n\n", eventType, event.Sequence, jsonData)), nil
}

// Package server coordinates client registration, per-room message fan-out, and
// connection cleanup for the chat WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tyrowin/roomchat/internal/chat"
)

// ErrHubClosed is returned when publishing to a hub that has shut down.
var ErrHubClosed = errors.New("hub is shut down")

// Hub manages all WebSocket client connections grouped by room and fans room
// messages out to them. A single event loop serialises registration and
// delivery, so every subscriber of a room observes the same message order.
type Hub struct {
	rooms      map[string]map[*Client]struct{}
	clients    map[*Client]struct{}
	broadcast  chan chat.Message
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        zerolog.Logger
}

// NewHub creates and initializes a new Hub. The returned Hub is ready to run.
func NewHub(logger zerolog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan chat.Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        logger.With().Str("component", "hub").Logger(),
	}
}

// Publish queues msg for delivery to every local subscriber of its room. It
// satisfies chat.Publisher for single-instance deployments.
func (h *Hub) Publish(ctx context.Context, msg chat.Message) error {
	select {
	case h.broadcast <- msg:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Deliver queues a message received from the cross-instance relay. Messages
// arriving after shutdown are dropped.
func (h *Hub) Deliver(msg chat.Message) {
	if err := h.Publish(h.ctx, msg); err != nil {
		h.log.Debug().Str("room_id", msg.RoomID).Msg("relayed message dropped; hub closed")
	}
}

// Register hands client to the event loop, which starts its pumps.
func (h *Hub) Register(client *Client) error {
	if client == nil {
		return errors.New("nil client")
	}
	select {
	case h.register <- client:
		return nil
	case <-h.ctx.Done():
		return ErrHubClosed
	}
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		// The loop is gone; drop the client directly.
		h.removeClient(client)
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomClientCount returns the number of connections subscribed to roomID.
func (h *Hub) RoomClientCount(roomID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Interface("panic", r).Msg("recovered from panic in safeSend")
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// Run starts the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.addClient(client)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.removeClient(client)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

func (h *Hub) addClient(client *Client) {
	roomID := client.session.RoomID()

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = struct{}{}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[*Client]struct{})
		h.rooms[roomID] = members
	}
	members[client] = struct{}{}
	total := len(h.clients)
	inRoom := len(members)
	h.mutex.Unlock()

	client.log.Info().Int("room_clients", inRoom).Int("total_clients", total).Msg("client registered")
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if !h.detachLocked(client) {
		h.mutex.Unlock()
		return
	}
	total := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	client.log.Info().Int("total_clients", total).Msg("client unregistered")
}

// detachLocked removes client from every index. The caller holds the write
// lock and closes client.send when it returns true.
func (h *Hub) detachLocked(client *Client) bool {
	if _, ok := h.clients[client]; !ok {
		return false
	}
	delete(h.clients, client)
	roomID := client.session.RoomID()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	client.closed = true
	return true
}

// handleBroadcast encodes msg once and sends it to every subscriber of its
// room, the sender included.
func (h *Hub) handleBroadcast(msg chat.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", msg.RoomID).Msg("message encoding failed")
		return
	}

	clients := h.roomSnapshot(msg.RoomID)
	h.log.Debug().Str("room_id", msg.RoomID).Str("type", string(msg.Type)).Int("targets", len(clients)).Msg("broadcasting message")

	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) roomSnapshot(roomID string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := h.rooms[roomID]
	clients := make([]*Client, 0, len(members))
	for client := range members {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients drops clients whose send buffer is full. Closing their
// channel makes the write pump close the socket, which ends the session.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range failed {
		if h.detachLocked(client) {
			channelsToClose = append(channelsToClose, client.send)
			client.log.Warn().Msg("client removed due to full send buffer")
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes every active socket. The read pumps observe the close
// and run the implicit leave of their sessions.
func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.log.Warn().Err(err).Msg("error closing client connection")
		}
	}

	h.log.Info().Int("clients", len(clients)).Msg("closed client connections")
}

// Shutdown stops the event loop and waits for all client goroutines to finish
// or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info().Msg("initiating hub shutdown")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info().Msg("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn().Msg("hub shutdown timeout reached; some client goroutines are still running")
		return context.DeadlineExceeded
	}
}

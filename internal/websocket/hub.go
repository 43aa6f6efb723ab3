package websocket

import (
	"encoding/json"
	"errors"
	"sync"
)

// MaxConnectionsPerUser bounds how many sockets one user may hold open.
const MaxConnectionsPerUser = 5

var (
	ErrTooManyConnections = errors.New("too many websocket connections")
	ErrHubClosed          = errors.New("websocket hub closed")
)

// BalanceUpdate is pushed to an account owner after a committed movement.
type BalanceUpdate struct {
	AccountID     string `json:"account_id"`
	AccountNumber string `json:"account_number"`
	Balance       string `json:"balance"`
	TransactionID string `json:"transaction_id"`
	Kind          string `json:"kind"`
}

// Hub fans balance updates out to the sockets of the owning user only.
type Hub struct {
	mu         sync.RWMutex
	maxPerUser int
	closed     bool
	byUser     map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{
		maxPerUser: MaxConnectionsPerUser,
		byUser:     make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(userID string, client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	sockets := h.byUser[userID]
	if sockets == nil {
		sockets = make(map[*Client]struct{})
		h.byUser[userID] = sockets
	}
	if len(sockets) >= h.maxPerUser {
		return ErrTooManyConnections
	}
	sockets[client] = struct{}{}
	return nil
}

// Unregister is safe to call more than once for the same client.
func (h *Hub) Unregister(userID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sockets, ok := h.byUser[userID]
	if !ok {
		return
	}
	delete(sockets, client)
	if len(sockets) == 0 {
		delete(h.byUser, userID)
	}
}

func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}

// BroadcastBalance reports how many sockets took the update. It never
// blocks: a client with a full buffer misses it.
func (h *Hub) BroadcastBalance(userID string, update BalanceUpdate) int {
	payload, err := json.Marshal(update)
	if err != nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for client := range h.byUser[userID] {
		select {
		case client.send <- payload:
			delivered++
		default:
		}
	}
	return delivered
}

// Close ends every write pump and refuses new registrations.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for userID, sockets := range h.byUser {
		for client := range sockets {
			close(client.send)
		}
		delete(h.byUser, userID)
	}
}

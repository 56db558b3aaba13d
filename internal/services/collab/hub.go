// Package collab provides the real-time editing channel for demand
// letters. Clients exchange opaque CRDT payloads through per-letter
// rooms; the relay orders updates with a monotonic sequence and persists
// periodic snapshots onto the letter record. Merge semantics live
// entirely in the client payloads.
package collab

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dictumlegal/dictum/internal/common"
	"github.com/dictumlegal/dictum/internal/interfaces"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message types on the editing channel.
const (
	MsgHello    = "hello"    // server -> client on join
	MsgUpdate   = "update"   // incremental CRDT payload, both directions
	MsgSnapshot = "snapshot" // full CRDT state, client -> server
	MsgPresence = "presence" // server -> clients on join/leave
)

// Message is the wire envelope. Payload is an opaque base64 CRDT blob.
type Message struct {
	Type    string `json:"type"`
	Payload string `json:"payload,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	Sender  string `json:"sender,omitempty"`
	Editors int    `json:"editors,omitempty"`
}

// Hub manages one room per letter being edited.
type Hub struct {
	letters interfaces.LetterStore
	logger  *common.Logger

	mu    sync.Mutex
	rooms map[string]*room
	done  chan struct{}
}

// room is the set of clients editing one letter.
type room struct {
	letterID string

	mu       sync.Mutex
	clients  map[*Client]bool
	seq      int64
	snapshot string
	dirty    bool
}

// Client is one connected editor.
type Client struct {
	hub    *Hub
	room   *room
	conn   *websocket.Conn
	send   chan []byte
	userID string
}

func NewHub(letters interfaces.LetterStore, logger *common.Logger) *Hub {
	return &Hub{
		letters: letters,
		logger:  logger,
		rooms:   make(map[string]*room),
		done:    make(chan struct{}),
	}
}

// Stop persists all dirty room snapshots and prevents new joins.
func (h *Hub) Stop() {
	select {
	case <-h.done:
		return
	default:
		close(h.done)
	}

	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}
	h.mu.Unlock()

	for _, r := range rooms {
		h.persistRoom(context.Background(), r)
	}
}

// RoomCount returns the number of active rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// getOrCreateRoom returns the letter's room, seeding sequence and
// snapshot from the stored record on first join.
func (h *Hub) getOrCreateRoom(ctx context.Context, letterID string) (*room, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r, ok := h.rooms[letterID]; ok {
		return r, nil
	}

	letter, err := h.letters.Get(ctx, letterID)
	if err != nil {
		return nil, err
	}

	r := &room{
		letterID: letterID,
		clients:  make(map[*Client]bool),
		seq:      letter.SyncSeq,
		snapshot: letter.SyncState,
	}
	h.rooms[letterID] = r
	return r, nil
}

// Join upgrades the connection and attaches the user to the letter's
// room. Access checks happen in the handler before this is called.
func (h *Hub) Join(w http.ResponseWriter, r *http.Request, letterID, userID string) error {
	select {
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return nil
	default:
	}

	rm, err := h.getOrCreateRoom(r.Context(), letterID)
	if err != nil {
		return err
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return nil
	}

	client := &Client{
		hub:    h,
		room:   rm,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}

	rm.mu.Lock()
	rm.clients[client] = true
	editors := len(rm.clients)
	hello := Message{Type: MsgHello, Seq: rm.seq, Payload: rm.snapshot, Editors: editors}
	rm.mu.Unlock()

	// Join snapshot goes only to the new client; presence goes to everyone.
	if data, err := json.Marshal(hello); err == nil {
		client.send <- data
	}
	rm.broadcast(Message{Type: MsgPresence, Sender: userID, Editors: editors}, client)

	h.logger.Debug().Str("letter", letterID).Str("user", userID).Int("editors", editors).Msg("Editor joined")

	go client.writePump()
	go client.readPump()
	return nil
}

// broadcast fans a message out to every client in the room except the
// sender. Clients that cannot keep up are dropped.
func (r *room) broadcast(msg Message, exclude *Client) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	r.mu.Lock()
	var slow []*Client
	for c := range r.clients {
		if c == exclude {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		delete(r.clients, c)
		close(c.send)
	}
	r.mu.Unlock()
}

// handleMessage applies one inbound message from a client.
func (h *Hub) handleMessage(c *Client, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Debug().Str("letter", c.room.letterID).Err(err).Msg("Dropping malformed collab message")
		return
	}

	switch msg.Type {
	case MsgUpdate:
		c.room.mu.Lock()
		c.room.seq++
		msg.Seq = c.room.seq
		c.room.dirty = true
		c.room.mu.Unlock()

		msg.Sender = c.userID
		c.room.broadcast(msg, c)

	case MsgSnapshot:
		c.room.mu.Lock()
		c.room.snapshot = msg.Payload
		c.room.dirty = true
		c.room.mu.Unlock()

		h.persistRoom(context.Background(), c.room)

	default:
		h.logger.Debug().Str("type", msg.Type).Msg("Ignoring unknown collab message type")
	}
}

// persistRoom writes the room's snapshot and sequence onto the letter
// record so late joiners and exports see the latest synced state.
func (h *Hub) persistRoom(ctx context.Context, r *room) {
	r.mu.Lock()
	if !r.dirty {
		r.mu.Unlock()
		return
	}
	snapshot, seq := r.snapshot, r.seq
	r.dirty = false
	r.mu.Unlock()

	if err := h.letters.UpdateSyncState(ctx, r.letterID, snapshot, seq); err != nil {
		h.logger.Warn().Str("letter", r.letterID).Err(err).Msg("Failed to persist collab snapshot")
		return
	}
	h.logger.Debug().Str("letter", r.letterID).Int64("seq", seq).Msg("Collab snapshot persisted")
}

// leave detaches a client, persists state, and evicts empty rooms.
func (h *Hub) leave(c *Client) {
	r := c.room

	r.mu.Lock()
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		close(c.send)
	}
	remaining := len(r.clients)
	r.mu.Unlock()

	r.broadcast(Message{Type: MsgPresence, Sender: c.userID, Editors: remaining}, nil)

	if remaining == 0 {
		h.persistRoom(context.Background(), r)
		h.mu.Lock()
		if cur, ok := h.rooms[r.letterID]; ok && cur == r {
			delete(h.rooms, r.letterID)
		}
		h.mu.Unlock()
	}

	h.logger.Debug().Str("letter", r.letterID).Str("user", c.userID).Int("editors", remaining).Msg("Editor left")
}

// writePump sends messages from the send channel to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound messages and relays them through the room.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20) // CRDT snapshots can be large
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		c.hub.handleMessage(c, data)
	}
}

package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/exam-sentinel/backend/internal/session"
	"github.com/gorilla/websocket"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster fans session commands out to connected kiosk shells. It is the
// core's session.ShellDriver: each ShellDriver call becomes one pushed
// message. There is normally exactly one shell connected, but reconnects can
// briefly leave zero or two; commands are fire-and-forget either way.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool

	grace time.Duration

	// stateHook supplies the current session snapshot for the status
	// message sent to newly connected shells.
	stateHook func() *session.State
}

func NewBroadcaster(grace time.Duration) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*client]bool),
		grace:   grace,
	}
}

// SetStateHook configures the snapshot source for connect-time status
// messages. Must be set before the first client connects.
func (b *Broadcaster) SetStateHook(fn func() *session.State) {
	b.stateHook = fn
}

func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if b.stateHook != nil {
		b.send(c, Message{Type: MsgStatus, Payload: StatusPayload{State: b.stateHook()}})
	}

	return c
}

func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// PushState broadcasts a status message after a session transition.
func (b *Broadcaster) PushState(state *session.State) {
	b.broadcast(Message{Type: MsgStatus, Payload: StatusPayload{State: state}})
}

// session.ShellDriver implementation.

func (b *Broadcaster) LockWindow() {
	b.broadcast(Message{Type: MsgLockWindow})
}

func (b *Broadcaster) EnterKiosk() {
	b.broadcast(Message{Type: MsgEnterKiosk})
}

func (b *Broadcaster) ExitKiosk() {
	b.broadcast(Message{Type: MsgExitKiosk})
}

func (b *Broadcaster) ShowWarning(message string) {
	b.broadcast(Message{
		Type: MsgShowWarning,
		Payload: WarningPayload{
			Message:      message,
			GraceSeconds: int(b.grace.Seconds()),
		},
	})
}

func (b *Broadcaster) CloseWarning() {
	b.broadcast(Message{Type: MsgCloseWarning})
}

func (b *Broadcaster) ShowTerminated(reason string) {
	b.broadcast(Message{Type: MsgTerminated, Payload: TerminatedPayload{Reason: reason}})
}

func (b *Broadcaster) UnlockForExit() {
	b.broadcast(Message{Type: MsgUnlockForExit})
}

func (b *Broadcaster) Quit() {
	b.broadcast(Message{Type: MsgQuit})
}

func (b *Broadcaster) send(c *client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] marshal error: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// Client too slow, drop the message
	}
}

func (b *Broadcaster) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] broadcast marshal error: %v", err)
		return
	}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- data:
		default:
			// Client can't keep up, disconnect it
			log.Printf("[ws] shell client too slow, disconnecting")
			b.RemoveClient(c)
		}
	}
}

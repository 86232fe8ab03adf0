package notify

import (
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// sendBuffer is the per-subscriber queue depth. A subscriber that falls this
// far behind is dropped.
const sendBuffer = 16

// subscriber owns all writes to one connection. gorilla/websocket permits
// only one concurrent writer, so every outbound message is queued on send
// and a single goroutine drains it.
type subscriber struct {
	conn *websocket.Conn
	send chan any
}

func (s *subscriber) writeLoop(logger *logrus.Logger) {
	for msg := range s.send {
		if err := s.conn.WriteJSON(msg); err != nil {
			// Writes on a dead connection fail fast; keep draining so the
			// queue empties, and let the reader side clean up.
			logger.WithError(err).Debug("websocket write failed")
		}
	}
}

// Hub pushes transition events to WebSocket subscribers keyed by reference.
// A client subscribes to exactly one reference; once it observes a terminal
// state it is expected to disconnect.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*websocket.Conn]*subscriber
	logger      *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[*websocket.Conn]*subscriber),
		logger:      logger,
	}
}

// Subscribe registers conn for events about reference and starts its writer.
// The hub owns all writes from here on; the caller keeps ownership of reads
// and of closing the connection.
func (h *Hub) Subscribe(reference string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[reference] == nil {
		h.subscribers[reference] = make(map[*websocket.Conn]*subscriber)
	}
	sub := &subscriber{conn: conn, send: make(chan any, sendBuffer)}
	h.subscribers[reference][conn] = sub
	go sub.writeLoop(h.logger)
}

// Unsubscribe removes conn and stops its writer once the queue drains. Safe
// to call for a conn that was never subscribed, and safe to call twice.
func (h *Hub) Unsubscribe(reference string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(reference, conn)
}

func (h *Hub) removeLocked(reference string, conn *websocket.Conn) {
	sub, ok := h.subscribers[reference][conn]
	if !ok {
		return
	}
	close(sub.send)
	delete(h.subscribers[reference], conn)
	if len(h.subscribers[reference]) == 0 {
		delete(h.subscribers, reference)
	}
}

// Send queues one message for a single subscriber, through the same writer
// that delivers events.
func (h *Hub) Send(reference string, conn *websocket.Conn, msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[reference][conn]; ok {
		h.enqueueLocked(reference, sub, msg)
	}
}

func (h *Hub) Notify(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subscribers[evt.Reference] {
		h.enqueueLocked(evt.Reference, sub, evt)
	}
}

// enqueueLocked queues msg without blocking; a subscriber whose queue is
// full is dropped. Holding h.mu across every enqueue and close is what
// keeps sends from racing a close.
func (h *Hub) enqueueLocked(reference string, sub *subscriber, msg any) {
	select {
	case sub.send <- msg:
	default:
		h.logger.WithField("reference", reference).Warn("dropping slow websocket subscriber")
		h.removeLocked(reference, sub.conn)
		sub.conn.Close()
	}
}

// SubscriberCount reports how many connections watch a reference.
func (h *Hub) SubscriberCount(reference string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[reference])
}

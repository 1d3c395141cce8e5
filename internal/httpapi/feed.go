package httpapi

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/memo"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/middleware"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

const (
	feedBuffer    = 64
	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = (pongWait * 9) / 10
	maxClientRead = 512
)

// feedMessage is one websocket frame. The first frame is a snapshot, every
// later frame carries one memo in store order.
type feedMessage struct {
	Type   string        `json:"type"`
	Memos  []memo.Record `json:"memos,omitempty"`
	Memo   *memo.Record  `json:"memo,omitempty"`
	Source memo.Source   `json:"source,omitempty"`
}

// feedHub tracks websocket clients so they can be closed on shutdown.
type feedHub struct {
	store    *memo.Store
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
	closed  bool
}

func newFeedHub(store *memo.Store, cors *middleware.CORS, log *logger.Logger) *feedHub {
	return &feedHub{
		store: store,
		log:   log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cors.AllowRequest,
		},
		clients: make(map[*websocket.Conn]struct{}),
	}
}

func (h *feedHub) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	if !h.add(conn) {
		_ = conn.Close()
		return
	}
	defer h.remove(conn)

	updates := make(chan feedMessage, feedBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	snapshot, unsubscribe := h.store.SnapshotAndSubscribe(func(rec memo.Record, src memo.Source) {
		select {
		case updates <- feedMessage{Type: "memo", Memo: &rec, Source: src}:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	})
	defer unsubscribe()

	if snapshot == nil {
		snapshot = []memo.Record{}
	}
	if err := h.write(conn, feedMessage{Type: "snapshot", Memos: snapshot}); err != nil {
		return
	}

	readerDone := make(chan struct{})
	go h.readLoop(conn, readerDone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg := <-updates:
			if err := h.write(conn, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-overflow:
			h.log.Warn("feed client too slow, closing")
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"),
				time.Now().Add(writeWait))
			return
		case <-readerDone:
			return
		}
	}
}

// readLoop discards client frames and handles pongs until the connection
// closes.
func (h *feedHub) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxClientRead)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *feedHub) write(conn *websocket.Conn, msg feedMessage) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (h *feedHub) add(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[conn] = struct{}{}
	return true
}

func (h *feedHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

// close disconnects every client and refuses new ones.
func (h *feedHub) close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		_ = c.Close()
	}
}

// clientCount returns the number of connected feed clients.
func (h *feedHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

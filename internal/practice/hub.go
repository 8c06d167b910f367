package practice

import (
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"

	"github.com/sat-prep/web/internal/quiz"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

// Hub fans controller events out to every open event stream of the same
// owner. Publish never blocks: a subscriber whose buffer is full misses the
// event.
type Hub struct {
	upgrader websocket.Upgrader
	buffer   int

	mu   sync.Mutex
	subs map[string]map[chan quiz.Event]struct{}
}

// NewHub accepts stream requests from allowedOrigins; "*" allows any origin
// and an empty list only the request's own host.
func NewHub(buffer int, allowedOrigins []string) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	h := &Hub{
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		buffer:   buffer,
		subs:     make(map[string]map[chan quiz.Event]struct{}),
	}
	if len(allowedOrigins) > 0 {
		allowed := make(map[string]bool, len(allowedOrigins))
		for _, o := range allowedOrigins {
			allowed[o] = true
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		}
	}
	return h
}

func (h *Hub) Publish(owner string, ev quiz.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[owner] {
		select {
		case ch <- ev:
		default:
			glog.V(2).Infof("[hub] dropped %s event for %s", ev.Type, owner)
		}
	}
}

// Subscribe registers a new stream for owner. The returned func removes it
// and closes the channel.
func (h *Hub) Subscribe(owner string) (<-chan quiz.Event, func()) {
	ch := make(chan quiz.Event, h.buffer)
	h.mu.Lock()
	if h.subs[owner] == nil {
		h.subs[owner] = make(map[chan quiz.Event]struct{})
	}
	h.subs[owner][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[owner], ch)
			if len(h.subs[owner]) == 0 {
				delete(h.subs, owner)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[owner])
}

// ServeWS upgrades the request and streams owner's events as JSON text
// frames until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, owner string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		glog.Errorf("[hub] error upgrading: %v", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := h.Subscribe(owner)
	defer unsubscribe()

	// The client never sends anything we act on; reading only notices the
	// close and answers pings.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				glog.V(1).Infof("[hub] write to %s: %v", owner, err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

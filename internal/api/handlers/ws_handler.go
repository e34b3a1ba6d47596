package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/omnihear/omnihear/internal/services"
)

// WSHandler bridges the per-user Redis channels to a WebSocket. Workers
// publish result chunks and status updates; this handler forwards them as-is
// so the wire format is identical whether the client polls or streams.
type WSHandler struct {
	redis    *redis.Client
	upgrader websocket.Upgrader
}

func NewWSHandler(rdb *redis.Client) *WSHandler {
	return &WSHandler{
		redis: rdb,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeText(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

// Feed handles GET /ws. The subject of the JWT picks the channels; a client
// can never subscribe to another user's feed.
func (h *WSHandler) Feed(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	pubsub := h.redis.Subscribe(ctx, services.ResponseChannel(userID), services.StatusChannel(userID))
	defer pubsub.Close()

	// reader: drain control frames and detect close
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}()

	// writer: Redis Pub/Sub -> WS. A channel-based receive keeps the loop
	// responsive to a client disconnect even when no message ever arrives.
	forwardMessages(ctx, readDone, pubsub.Channel(), wc.writeText)
}

func forwardMessages(ctx context.Context, done <-chan struct{}, msgs <-chan *redis.Message, write func([]byte) error) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			if err := write([]byte(m.Payload)); err != nil {
				return
			}
		}
	}
}

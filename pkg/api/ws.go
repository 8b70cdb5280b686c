package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/api/middleware"
	"github.com/termgate/termgate/pkg/broker"
)

const (
	// wsWriteTimeout bounds a single frame write to a slow client.
	wsWriteTimeout = 10 * time.Second

	// wsPongTimeout is how long the read side waits for any traffic
	// (frames or pongs) before declaring the client gone.
	wsPongTimeout = 60 * time.Second

	// wsPingInterval is how often the gateway pings the client. Must be
	// shorter than wsPongTimeout.
	wsPingInterval = 30 * time.Second

	// wsMaxMessageSize caps a single inbound frame.
	wsMaxMessageSize = 1 << 20
)

// handleStream upgrades GET /ws to the message stream and runs one broker
// on it until either side closes.
//
// The bearer token is taken from the Authorization header or, because
// browser websocket clients cannot set headers, from the `token` query
// parameter. Authentication failure closes the channel before upgrade.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.ExtractBearerToken(r)
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	user, _, err := s.deps.Auth.Verify(r.Context(), token)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logger.DebugCtx(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(conn)
	client.startPinger()
	defer client.Close()

	s.deps.Metrics.StreamOpened()
	defer s.deps.Metrics.StreamClosed()

	logger.InfoCtx(r.Context(), "stream opened", "user_id", user.ID)

	b := broker.New(user, client, s.deps.Store, s.deps.Vault, s.deps.Manager, s.deps.Assist, s.deps.Metrics)
	if err := b.Run(r.Context()); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			logger.DebugCtx(r.Context(), "stream closed abnormally", "user_id", user.ID, "error", err)
		}
	}

	logger.InfoCtx(r.Context(), "stream closed", "user_id", user.ID)
}

// wsClient adapts a gorilla websocket connection to the broker's transport
// interface. All writes (frames and pings) share one lock; gorilla permits
// only a single concurrent writer.
type wsClient struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	return &wsClient{
		conn: conn,
		done: make(chan struct{}),
	}
}

// startPinger keeps the connection alive and lets dead clients be
// detected by the read deadline.
func (c *wsClient) startPinger() {
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
				c.writeMu.Unlock()
				if err != nil {
					return
				}
			case <-c.done:
				return
			}
		}
	}()
}

// ReadMessage blocks for the next text or binary frame. Inbound traffic
// also extends the read deadline.
func (c *wsClient) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	return data, nil
}

// WriteMessage sends one text frame.
func (c *wsClient) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears the transport down. Safe to call more than once.
func (c *wsClient) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

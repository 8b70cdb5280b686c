package sshconn

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/metrics"
	"github.com/termgate/termgate/pkg/models"
)

// ManagerConfig tunes connection lifecycle timing.
type ManagerConfig struct {
	// DialTimeout bounds the TCP and SSH handshake. Default: 30 seconds.
	DialTimeout time.Duration

	// KeepaliveInterval is the gap between keepalive requests. Default: 60 seconds.
	KeepaliveInterval time.Duration

	// ReconnectDelay is the pause before the single reconnect attempt.
	// Default: 5 seconds.
	ReconnectDelay time.Duration

	// IdleTimeout is how long a connection may sit without client input
	// before the sweeper closes it. Default: 30 minutes.
	IdleTimeout time.Duration

	// SweepInterval is how often the idle sweeper runs. Default: 60 seconds.
	SweepInterval time.Duration

	// Metrics receives connection lifecycle counts. May be nil.
	Metrics *metrics.Metrics
}

// ApplyDefaults fills in missing configuration with default values.
func (c *ManagerConfig) ApplyDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = 30 * time.Second
	}
	if c.KeepaliveInterval == 0 {
		c.KeepaliveInterval = 60 * time.Second
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 5 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = 60 * time.Second
	}
}

// Manager owns every live SSH connection in the process and reaps the idle
// ones.
type Manager struct {
	config ManagerConfig

	mu    sync.Mutex
	conns map[string]*Connection

	stopOnce sync.Once
	stop     chan struct{}
}

// NewManager builds a connection manager and starts its idle sweeper.
func NewManager(config ManagerConfig) *Manager {
	config.ApplyDefaults()
	m := &Manager{
		config: config,
		conns:  make(map[string]*Connection),
		stop:   make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Connect dials the target and registers the resulting connection. The
// connection starts in connecting state; the caller sees the transition to
// connected (or error) on the status channel as well as in the return value.
func (m *Manager) Connect(ctx context.Context, userID, sessionID string, target models.ConnectTarget) (*Connection, error) {
	conn := &Connection{
		ID:             uuid.New().String(),
		UserID:         userID,
		SessionID:      sessionID,
		dialTimeout:    m.config.DialTimeout,
		keepalive:      m.config.KeepaliveInterval,
		reconnectDelay: m.config.ReconnectDelay,
		target:         target,
		status:         models.StatusConnecting,
		cols:           DefaultCols,
		rows:           DefaultRows,
		lastActivity:   time.Now(),
		dataCh:         make(chan []byte, 256),
		statusCh:       make(chan StatusEvent, 16),
		closed:         make(chan struct{}),
		onClose:        m.remove,
		metrics:        m.config.Metrics,
	}

	type dialResult struct{ err error }
	done := make(chan dialResult, 1)
	go func() { done <- dialResult{conn.dial()} }()

	select {
	case res := <-done:
		if res.err != nil {
			conn.closeWith(models.StatusError, res.err.Error())
			m.config.Metrics.ConnectionFailed()
			return nil, res.err
		}
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				conn.Close()
			}
		}()
		conn.closeWith(models.StatusError, ctx.Err().Error())
		m.config.Metrics.ConnectionFailed()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	m.conns[conn.ID] = conn
	m.mu.Unlock()
	m.config.Metrics.ConnectionOpened()

	logger.InfoCtx(ctx, "ssh connection established",
		logger.KeyConnectionID, conn.ID,
		logger.KeySessionID, sessionID,
		logger.KeyUserID, userID,
		logger.KeyHost, target.Host,
		logger.KeyPort, target.Port)

	return conn, nil
}

// Get returns a connection by ID, scoped to its owning user.
func (m *Manager) Get(userID, connID string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.conns[connID]
	if !ok || conn.UserID != userID {
		return nil, models.ErrConnectionNotFound
	}
	return conn, nil
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// CloseAll closes every connection, optionally filtered to one user. An empty
// userID closes everything.
func (m *Manager) CloseAll(userID string) {
	m.mu.Lock()
	var victims []*Connection
	for _, conn := range m.conns {
		if userID == "" || conn.UserID == userID {
			victims = append(victims, conn)
		}
	}
	m.mu.Unlock()
	for _, conn := range victims {
		conn.Close()
	}
}

// Stop shuts down the sweeper and closes every connection.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.CloseAll("")
}

func (m *Manager) remove(conn *Connection) {
	m.mu.Lock()
	_, registered := m.conns[conn.ID]
	delete(m.conns, conn.ID)
	m.mu.Unlock()
	// Connections that failed the initial dial were never registered and
	// never counted as open.
	if registered {
		m.config.Metrics.ConnectionClosed()
	}
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stop:
			return
		}
	}
}

// sweep closes connections whose last client activity is older than the idle
// timeout.
func (m *Manager) sweep() {
	cutoff := time.Now().Add(-m.config.IdleTimeout)

	m.mu.Lock()
	var idle []*Connection
	for _, conn := range m.conns {
		if conn.LastActivity().Before(cutoff) {
			idle = append(idle, conn)
		}
	}
	m.mu.Unlock()

	for _, conn := range idle {
		logger.Info("closing idle connection",
			logger.KeyConnectionID, conn.ID,
			logger.KeySessionID, conn.SessionID)
		m.config.Metrics.RecordIdleReap()
		conn.Close()
	}
}

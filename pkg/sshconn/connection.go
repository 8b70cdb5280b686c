// Package sshconn manages live SSH connections for terminal sessions: dialing
// with credentials from the vault, pty allocation, keepalives, a single
// automatic reconnect, and idle reaping.
package sshconn

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/metrics"
	"github.com/termgate/termgate/pkg/models"
)

// Terminal geometry limits. Resize requests are clamped into these ranges.
const (
	DefaultTerm = "xterm-256color"
	DefaultCols = 80
	DefaultRows = 24
	MinCols     = 1
	MaxCols     = 300
	MinRows     = 1
	MaxRows     = 100
)

// StatusEvent is delivered on a connection's status channel whenever the
// lifecycle state changes.
type StatusEvent struct {
	Status  models.ConnectionStatus `json:"status"`
	Message string                  `json:"message,omitempty"`
}

// Connection is one live SSH connection bound to a terminal session. Output
// and status changes are delivered on per-connection channels; nothing is
// broadcast.
type Connection struct {
	ID        string
	UserID    string
	SessionID string

	dialTimeout    time.Duration
	keepalive      time.Duration
	reconnectDelay time.Duration
	onClose        func(*Connection)
	metrics        *metrics.Metrics

	mu           sync.Mutex
	target       models.ConnectTarget
	client       *ssh.Client
	session      *ssh.Session
	stdin        io.WriteCloser
	status       models.ConnectionStatus
	cols, rows   int
	lastActivity time.Time
	retried      bool

	dataCh   chan []byte
	statusCh chan StatusEvent

	closeOnce sync.Once
	closed    chan struct{}
}

// Data returns the channel carrying remote terminal output. The channel is
// never closed; consumers stop on Done.
func (c *Connection) Data() <-chan []byte { return c.dataCh }

// Status returns the channel carrying lifecycle events.
func (c *Connection) Status() <-chan StatusEvent { return c.statusCh }

// Done is closed when the connection has fully shut down.
func (c *Connection) Done() <-chan struct{} { return c.closed }

// CurrentStatus returns the connection's lifecycle state.
func (c *Connection) CurrentStatus() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// LastActivity returns the time of the last client interaction.
func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Write forwards client keystrokes to the remote shell. Writes are serialized
// so concurrent callers cannot interleave bytes.
func (c *Connection) Write(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != models.StatusConnected || c.stdin == nil {
		return models.ErrNotConnected
	}
	c.lastActivity = time.Now()
	if _, err := c.stdin.Write(p); err != nil {
		return fmt.Errorf("writing to remote shell: %w", err)
	}
	return nil
}

// Resize changes the remote pty geometry, clamping out-of-range values
// instead of failing.
func (c *Connection) Resize(cols, rows int) error {
	cols = clamp(cols, MinCols, MaxCols)
	rows = clamp(rows, MinRows, MaxRows)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cols, c.rows = cols, rows
	if c.status != models.StatusConnected || c.session == nil {
		return models.ErrNotConnected
	}
	c.lastActivity = time.Now()
	if err := c.session.WindowChange(rows, cols); err != nil {
		return fmt.Errorf("resizing pty: %w", err)
	}
	return nil
}

// Close tears the connection down. It is idempotent and emits exactly one
// terminal status event.
func (c *Connection) Close() {
	c.closeWith(models.StatusDisconnected, "")
}

func (c *Connection) closeWith(status models.ConnectionStatus, message string) {
	c.closeOnce.Do(func() {
		// closed is closed while the lock is held so that a dial racing
		// this shutdown either sees it or has its client captured here.
		c.mu.Lock()
		c.status = status
		c.target.Credentials.Scrub()
		session := c.session
		client := c.client
		c.session = nil
		c.client = nil
		c.stdin = nil
		close(c.closed)
		c.mu.Unlock()

		if session != nil {
			_ = session.Close()
		}
		if client != nil {
			_ = client.Close()
		}
		c.emitStatus(StatusEvent{Status: status, Message: message})

		if c.onClose != nil {
			c.onClose(c)
		}
		logger.Info("connection closed",
			logger.KeyConnectionID, c.ID,
			logger.KeySessionID, c.SessionID,
			logger.KeyStatus, string(status))
	})
}

// dial establishes the transport and an interactive pty session, then starts
// the pump goroutines. Callers hold no locks.
func (c *Connection) dial() error {
	c.mu.Lock()
	target := c.target
	cols, rows := c.cols, c.rows
	c.mu.Unlock()

	authMethods, err := buildAuthMethods(&target)
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            target.Username,
		Auth:            authMethods,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.dialTimeout,
	}

	addr := net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", addr, err)
	}

	session, err := client.NewSession()
	if err != nil {
		client.Close()
		return fmt.Errorf("opening session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty(DefaultTerm, rows, cols, modes); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("requesting pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("opening stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("opening stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("opening stderr: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		client.Close()
		return fmt.Errorf("starting shell: %w", err)
	}

	c.mu.Lock()
	select {
	case <-c.closed:
		c.mu.Unlock()
		session.Close()
		client.Close()
		return fmt.Errorf("connection closed during dial")
	default:
	}
	c.client = client
	c.session = session
	c.stdin = stdin
	c.status = models.StatusConnected
	c.lastActivity = time.Now()
	c.mu.Unlock()
	c.emitStatus(StatusEvent{Status: models.StatusConnected})

	go c.pumpOutput(stdout)
	go c.pumpOutput(stderr)
	go c.keepaliveLoop(client)
	go c.watch(session, client)

	return nil
}

// pumpOutput copies remote output onto the data channel until the stream or
// the connection ends.
func (c *Connection) pumpOutput(r io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			out := make([]byte, n)
			copy(out, buf[:n])
			c.mu.Lock()
			c.lastActivity = time.Now()
			c.mu.Unlock()
			select {
			case c.dataCh <- out:
			case <-c.closed:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// keepaliveLoop sends a keepalive request on a fixed interval. A failed
// keepalive closes the client, which wakes the watcher.
func (c *Connection) keepaliveLoop(client *ssh.Client) {
	ticker := time.NewTicker(c.keepalive)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
				client.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// watch waits for the session to end. A deliberate Close ends quietly; an
// unexpected drop gets one reconnect attempt before the connection fails.
func (c *Connection) watch(session *ssh.Session, client *ssh.Client) {
	waitErr := session.Wait()

	select {
	case <-c.closed:
		return
	default:
	}

	c.mu.Lock()
	// A newer session may already have replaced this one.
	if c.session != session {
		c.mu.Unlock()
		return
	}
	c.session = nil
	c.stdin = nil
	c.client = nil
	retried := c.retried
	c.retried = true
	c.mu.Unlock()
	client.Close()

	if retried {
		c.closeWith(models.StatusError, errorMessage(waitErr))
		return
	}

	logger.Warn("connection dropped, retrying",
		logger.KeyConnectionID, c.ID,
		logger.KeySessionID, c.SessionID,
		logger.KeyError, errorMessage(waitErr))

	// A clean remote close reads as disconnected, a transport failure as
	// error. Either way the client sees the drop before the retry starts.
	dropStatus := models.StatusError
	var exitErr *ssh.ExitError
	if waitErr == nil || errors.As(waitErr, &exitErr) {
		dropStatus = models.StatusDisconnected
	}
	c.setStatus(dropStatus, errorMessage(waitErr))

	c.metrics.RecordReconnect()
	c.setStatus(models.StatusReconnecting, "")
	select {
	case <-time.After(c.reconnectDelay):
	case <-c.closed:
		return
	}

	if err := c.dial(); err != nil {
		c.closeWith(models.StatusError, err.Error())
		return
	}
}

func (c *Connection) setStatus(status models.ConnectionStatus, message string) {
	c.mu.Lock()
	c.status = status
	c.mu.Unlock()
	c.emitStatus(StatusEvent{Status: status, Message: message})
}

// emitStatus delivers the event in order, blocking on a full buffer until the
// consumer catches up or the connection shuts down. The buffered attempt comes
// first so the final event of closeWith still lands after closed is closed.
func (c *Connection) emitStatus(ev StatusEvent) {
	select {
	case c.statusCh <- ev:
		return
	default:
	}
	select {
	case c.statusCh <- ev:
	case <-c.closed:
	}
}

func buildAuthMethods(target *models.ConnectTarget) ([]ssh.AuthMethod, error) {
	switch target.AuthMethod {
	case models.AuthMethodPassword:
		if target.Credentials.Password == "" {
			return nil, fmt.Errorf("profile has no password")
		}
		return []ssh.AuthMethod{ssh.Password(target.Credentials.Password)}, nil

	case models.AuthMethodPublicKey:
		if target.Credentials.PrivateKey == "" {
			return nil, fmt.Errorf("profile has no private key")
		}
		var signer ssh.Signer
		var err error
		if target.Credentials.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(
				[]byte(target.Credentials.PrivateKey),
				[]byte(target.Credentials.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey([]byte(target.Credentials.PrivateKey))
		}
		if err != nil {
			return nil, fmt.Errorf("parsing private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	default:
		return nil, fmt.Errorf("unknown auth method %q", target.AuthMethod)
	}
}

func errorMessage(err error) string {
	if err == nil {
		return "connection closed by remote host"
	}
	return err.Error()
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Package broker runs one message loop per authenticated client stream. It
// owns the mapping from client-visible session IDs to live SSH connections
// and fans each connection's output back to its own client only.
package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/termgate/termgate/internal/logger"
	"github.com/termgate/termgate/pkg/assist"
	"github.com/termgate/termgate/pkg/metrics"
	"github.com/termgate/termgate/pkg/models"
	"github.com/termgate/termgate/pkg/sshconn"
	"github.com/termgate/termgate/pkg/store"
	"github.com/termgate/termgate/pkg/vault"
)

// ClientConn is the transport the broker speaks to its client over. The
// websocket layer implements it; tests substitute a pipe.
type ClientConn interface {
	// ReadMessage blocks for the next complete frame.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one complete frame.
	WriteMessage(data []byte) error

	// Close tears the transport down.
	Close() error
}

// Broker serves a single client stream. It is not safe to share between
// streams; create one per accepted channel.
type Broker struct {
	user    *models.User
	client  ClientConn
	store   *store.GORMStore
	vault   *vault.Vault
	manager *sshconn.Manager
	assist  *assist.Service  // nil when no provider is configured
	metrics *metrics.Metrics // may be nil

	writeMu sync.Mutex

	mu       sync.Mutex
	sessions map[string]*sshconn.Connection

	cancel context.CancelFunc
}

// New builds a broker for one authenticated client.
func New(user *models.User, client ClientConn, st *store.GORMStore, v *vault.Vault, manager *sshconn.Manager, assistSvc *assist.Service, m *metrics.Metrics) *Broker {
	return &Broker{
		user:     user,
		client:   client,
		store:    st,
		vault:    v,
		manager:  manager,
		assist:   assistSvc,
		metrics:  m,
		sessions: make(map[string]*sshconn.Connection),
	}
}

// Run reads client frames until the transport closes or the context is
// cancelled, then closes every connection this broker owns.
func (b *Broker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	defer b.shutdown()

	for {
		raw, err := b.client.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			b.sendError("", "malformed message")
			continue
		}
		b.dispatch(ctx, &msg)

		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func (b *Broker) dispatch(ctx context.Context, msg *inboundMessage) {
	b.metrics.RecordStreamMessage(msg.Type, "in")
	switch msg.Type {
	case TypeSSHConnect:
		b.handleConnect(ctx, msg)
	case TypeSSHDisconnect:
		b.handleDisconnect(ctx, msg)
	case TypeTerminalInput:
		b.handleInput(msg)
	case TypeTerminalResize:
		b.handleResize(msg)
	case TypeTerminalClear:
		// Client-side visual clear; nothing to do server-side.
	case TypeAITranslate:
		b.handleAssistant(ctx, msg, assist.ModeTranslate)
	case TypeAIExplain:
		b.handleAssistant(ctx, msg, assist.ModeExplain)
	case TypeAIQuery:
		b.handleAssistant(ctx, msg, assist.ModeQuery)
	case TypeSessionList:
		b.handleSessionList(ctx)
	default:
		b.sendError(msg.SessionID, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

func (b *Broker) handleConnect(ctx context.Context, msg *inboundMessage) {
	if msg.SessionID == "" || msg.ProfileID == "" {
		b.sendError(msg.SessionID, "sessionId and profileId are required")
		return
	}
	b.mu.Lock()
	_, exists := b.sessions[msg.SessionID]
	b.mu.Unlock()
	if exists {
		b.sendError(msg.SessionID, "session already connected")
		return
	}

	profile, err := b.store.GetProfile(ctx, b.user.ID, msg.ProfileID)
	if err != nil {
		b.sendStatus(msg.SessionID, models.StatusError, "profile not found")
		return
	}

	creds, err := b.vault.OpenCredentials(profile.EncryptedCredentials)
	if err != nil {
		logger.ErrorCtx(ctx, "failed to decrypt profile credentials",
			logger.KeyProfileID, profile.ID, logger.KeyError, err)
		b.sendStatus(msg.SessionID, models.StatusError, "credential decryption failed")
		return
	}

	target := models.ConnectTarget{
		ProfileID:   profile.ID,
		Host:        profile.Host,
		Port:        profile.Port,
		Username:    profile.Username,
		AuthMethod:  profile.AuthMethod,
		Credentials: *creds,
	}
	creds.Scrub()

	b.sendStatus(msg.SessionID, models.StatusConnecting, "")
	b.persistSession(ctx, msg.SessionID, profile.ID, models.StatusConnecting, msg.Title)

	conn, err := b.manager.Connect(ctx, b.user.ID, msg.SessionID, target)
	if err != nil {
		b.sendStatus(msg.SessionID, models.StatusError, "connection failed: "+err.Error())
		b.updateSessionStatus(ctx, msg.SessionID, models.StatusError)
		return
	}

	b.mu.Lock()
	b.sessions[msg.SessionID] = conn
	b.mu.Unlock()

	if err := b.store.TouchProfile(ctx, b.user.ID, profile.ID); err != nil {
		logger.WarnCtx(ctx, "failed to touch profile", logger.KeyProfileID, profile.ID, logger.KeyError, err)
	}
	b.updateSessionStatus(ctx, msg.SessionID, models.StatusConnected)

	go b.pump(ctx, msg.SessionID, conn)
}

func (b *Broker) handleDisconnect(ctx context.Context, msg *inboundMessage) {
	conn, ok := b.lookup(msg.SessionID)
	if !ok {
		b.sendError(msg.SessionID, "unknown session")
		return
	}
	conn.Close()
	b.removeMapping(msg.SessionID)
	b.updateSessionStatus(ctx, msg.SessionID, models.StatusDisconnected)
}

func (b *Broker) handleInput(msg *inboundMessage) {
	conn, ok := b.lookup(msg.SessionID)
	if !ok {
		b.sendError(msg.SessionID, "unknown session")
		return
	}
	b.metrics.RecordTerminalBytes("input", len(msg.Data))
	if err := conn.Write([]byte(msg.Data)); err != nil {
		if errors.Is(err, models.ErrNotConnected) {
			b.sendError(msg.SessionID, "session is not connected")
			return
		}
		b.sendError(msg.SessionID, "write failed")
	}
}

func (b *Broker) handleResize(msg *inboundMessage) {
	conn, ok := b.lookup(msg.SessionID)
	if !ok {
		b.sendError(msg.SessionID, "unknown session")
		return
	}
	if err := conn.Resize(msg.Cols, msg.Rows); err != nil && !errors.Is(err, models.ErrNotConnected) {
		b.sendError(msg.SessionID, "resize failed")
	}
}

func (b *Broker) handleAssistant(ctx context.Context, msg *inboundMessage, mode assist.Mode) {
	// Provider failures never tear the stream down; they come back as a
	// zero-confidence response with a diagnostic warning.
	if b.assist == nil {
		b.send(outboundMessage{
			Type:      TypeAIResponse,
			SessionID: msg.SessionID,
			Result: &assist.Result{
				Confidence: 0,
				Warnings:   []string{"assistant is not configured"},
			},
		})
		return
	}

	var sessionRef *string
	if msg.SessionID != "" {
		sessionRef = &msg.SessionID
	}
	start := time.Now()
	result, err := b.assist.Ask(ctx, b.user.ID, sessionRef, mode, msg.Prompt)
	if err != nil {
		b.metrics.ObserveAssistRequest(string(mode), "error", time.Since(start))
		b.send(outboundMessage{
			Type:      TypeAIResponse,
			SessionID: msg.SessionID,
			Result: &assist.Result{
				Confidence: 0,
				Warnings:   []string{"assistant request failed"},
			},
		})
		return
	}
	b.metrics.ObserveAssistRequest(string(mode), "success", time.Since(start))
	b.send(outboundMessage{Type: TypeAIResponse, SessionID: msg.SessionID, Result: result})
}

func (b *Broker) handleSessionList(ctx context.Context) {
	all, err := b.store.ListSessions(ctx, b.user.ID)
	if err != nil {
		b.sendError("", "failed to list sessions")
		return
	}
	live := make([]*models.TerminalSession, 0, len(all))
	for _, s := range all {
		if s.Status != models.StatusDisconnected {
			live = append(live, s)
		}
	}
	b.send(outboundMessage{Type: TypeSessionList, Sessions: live})
}

// pump forwards one connection's output and status events to the client
// until the connection dies or the broker shuts down.
func (b *Broker) pump(ctx context.Context, sessionID string, conn *sshconn.Connection) {
	defer b.removeMapping(sessionID)
	for {
		select {
		case data := <-conn.Data():
			b.metrics.RecordTerminalBytes("output", len(data))
			// Base64, not a raw string: terminal output is arbitrary bytes
			// and JSON strings cannot carry invalid UTF-8 unmangled.
			b.send(outboundMessage{
				Type:      TypeTerminalOutput,
				SessionID: sessionID,
				Data:      base64.StdEncoding.EncodeToString(data),
			})

		case ev := <-conn.Status():
			b.forwardStatus(ctx, sessionID, ev)

		case <-conn.Done():
			b.drainStatus(ctx, sessionID, conn)
			return

		case <-ctx.Done():
			return
		}
	}
}

// drainStatus delivers the final status event, which may land in the channel
// just after Done closes.
func (b *Broker) drainStatus(ctx context.Context, sessionID string, conn *sshconn.Connection) {
	for {
		select {
		case ev := <-conn.Status():
			b.forwardStatus(ctx, sessionID, ev)
		case <-time.After(100 * time.Millisecond):
			return
		}
	}
}

func (b *Broker) forwardStatus(ctx context.Context, sessionID string, ev sshconn.StatusEvent) {
	b.sendStatus(sessionID, ev.Status, ev.Message)
	b.updateSessionStatus(ctx, sessionID, ev.Status)
}

func (b *Broker) lookup(sessionID string) (*sshconn.Connection, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	conn, ok := b.sessions[sessionID]
	return conn, ok
}

func (b *Broker) removeMapping(sessionID string) {
	b.mu.Lock()
	delete(b.sessions, sessionID)
	b.mu.Unlock()
}

// shutdown closes every owned connection, best-effort, and leaves durable
// session records at whatever status was last reported.
func (b *Broker) shutdown() {
	if b.cancel != nil {
		b.cancel()
	}
	b.mu.Lock()
	conns := make([]*sshconn.Connection, 0, len(b.sessions))
	for _, conn := range b.sessions {
		conns = append(conns, conn)
	}
	b.sessions = make(map[string]*sshconn.Connection)
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	logger.Info("client stream closed",
		logger.KeyUserID, b.user.ID,
		"connections_closed", len(conns))
}

func (b *Broker) persistSession(ctx context.Context, sessionID, profileID string, status models.ConnectionStatus, title string) {
	err := b.store.UpsertSession(ctx, &models.TerminalSession{
		ID:        sessionID,
		UserID:    b.user.ID,
		ProfileID: profileID,
		Status:    status,
		Title:     title,
	})
	if err != nil {
		logger.WarnCtx(ctx, "failed to persist session",
			logger.KeySessionID, sessionID, logger.KeyError, err)
	}
}

func (b *Broker) updateSessionStatus(ctx context.Context, sessionID string, status models.ConnectionStatus) {
	if err := b.store.UpdateSessionStatus(ctx, b.user.ID, sessionID, status); err != nil {
		logger.WarnCtx(ctx, "failed to update session status",
			logger.KeySessionID, sessionID, logger.KeyError, err)
	}
}

func (b *Broker) sendStatus(sessionID string, status models.ConnectionStatus, message string) {
	b.send(outboundMessage{Type: TypeSSHStatus, SessionID: sessionID, Status: status, Error: message})
}

func (b *Broker) sendError(sessionID, message string) {
	b.send(outboundMessage{Type: TypeError, SessionID: sessionID, Error: message})
}

// send serializes writes so concurrent pumps cannot interleave frames.
func (b *Broker) send(msg outboundMessage) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	b.metrics.RecordStreamMessage(msg.Type, "out")
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.client.WriteMessage(raw); err != nil && b.cancel != nil {
		b.cancel()
	}
}

package broker

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/termgate/termgate/pkg/assist"
	"github.com/termgate/termgate/pkg/models"
	"github.com/termgate/termgate/pkg/sshconn"
	"github.com/termgate/termgate/pkg/store"
	"github.com/termgate/termgate/pkg/vault"
)

// pipeConn is an in-memory ClientConn for driving a broker without a
// websocket.
type pipeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newPipeConn() *pipeConn {
	return &pipeConn{
		in:     make(chan []byte, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	select {
	case msg := <-p.in:
		return msg, nil
	case <-p.closed:
		return nil, io.EOF
	}
}

func (p *pipeConn) WriteMessage(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case p.out <- cp:
		return nil
	case <-p.closed:
		return io.EOF
	}
}

func (p *pipeConn) Close() error {
	p.once.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeConn) sendJSON(t *testing.T, v any) {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	p.in <- raw
}

// expect reads outbound frames until one matches pred or the timeout expires.
func (p *pipeConn) expect(t *testing.T, what string, pred func(outboundMessage) bool) outboundMessage {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case raw := <-p.out:
			var msg outboundMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("bad outbound frame %q: %v", raw, err)
			}
			if pred(msg) {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		}
	}
}

// echoSSHServer is the same minimal fixture the connection manager tests use.
// A non-empty banner is written to the shell before echoing starts.
func echoSSHServer(t *testing.T, banner []byte) (host string, port int) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}
	config := &ssh.ServerConfig{
		PasswordCallback: func(conn ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if conn.User() == "testuser" && string(pass) == "testpass" {
				return nil, nil
			}
			return nil, fmt.Errorf("access denied")
		},
	}
	config.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				sconn, chans, reqs, err := ssh.NewServerConn(nc, config)
				if err != nil {
					return
				}
				defer sconn.Close()
				go ssh.DiscardRequests(reqs)
				for newChan := range chans {
					if newChan.ChannelType() != "session" {
						_ = newChan.Reject(ssh.UnknownChannelType, "unsupported")
						continue
					}
					channel, requests, err := newChan.Accept()
					if err != nil {
						continue
					}
					go func() {
						for req := range requests {
							switch req.Type {
							case "pty-req", "shell", "window-change":
								if req.WantReply {
									_ = req.Reply(true, nil)
								}
							default:
								if req.WantReply {
									_ = req.Reply(false, nil)
								}
							}
						}
					}()
					go func() {
						if len(banner) > 0 {
							_, _ = channel.Write(banner)
						}
						_, _ = io.Copy(channel, channel)
						_ = channel.Close()
					}()
				}
			}()
		}
	}()

	h, portStr, _ := net.SplitHostPort(ln.Addr().String())
	p, _ := strconv.Atoi(portStr)
	return h, p
}

type brokerFixture struct {
	broker  *Broker
	client  *pipeConn
	store   *store.GORMStore
	user    *models.User
	profile *models.SSHProfile
	done    chan struct{}
}

type cannedProvider struct{ answer string }

func (c *cannedProvider) Name() string { return "canned" }
func (c *cannedProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	return c.answer, nil
}

func newBrokerFixture(t *testing.T) *brokerFixture {
	return newBrokerFixtureBanner(t, nil)
}

func newBrokerFixtureBanner(t *testing.T, banner []byte) *brokerFixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.New(&store.Config{URL: ":memory:"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	v, err := vault.New("broker-test-secret")
	if err != nil {
		t.Fatalf("vault: %v", err)
	}

	user := &models.User{Email: "broker@example.com", PasswordHash: "x"}
	if _, err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("user: %v", err)
	}

	host, port := echoSSHServer(t, banner)
	sealed, err := v.SealCredentials(&models.Credentials{Password: "testpass"})
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	profile := &models.SSHProfile{
		UserID:               user.ID,
		Name:                 "fixture",
		Host:                 host,
		Port:                 port,
		Username:             "testuser",
		AuthMethod:           models.AuthMethodPassword,
		EncryptedCredentials: sealed,
	}
	if _, err := st.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("profile: %v", err)
	}

	manager := sshconn.NewManager(sshconn.ManagerConfig{DialTimeout: 5 * time.Second})
	t.Cleanup(manager.Stop)

	assistSvc := assist.NewServiceWithProvider(&cannedProvider{
		answer: `{"commands": ["ls -la"], "explanation": "lists files", "confidence": 0.9}`,
	}, st)

	client := newPipeConn()
	b := New(user, client, st, v, manager, assistSvc, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(context.Background())
	}()
	t.Cleanup(func() {
		client.Close()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("broker did not stop")
		}
	})

	return &brokerFixture{broker: b, client: client, store: st, user: user, profile: profile, done: done}
}

func TestConnectInputOutputDisconnect(t *testing.T) {
	f := newBrokerFixture(t)

	f.client.sendJSON(t, map[string]any{
		"type": TypeSSHConnect, "sessionId": "S1", "profileId": f.profile.ID,
	})

	f.client.expect(t, "connecting status", func(m outboundMessage) bool {
		return m.Type == TypeSSHStatus && m.SessionID == "S1" && m.Status == models.StatusConnecting
	})
	f.client.expect(t, "connected status", func(m outboundMessage) bool {
		return m.Type == TypeSSHStatus && m.SessionID == "S1" && m.Status == models.StatusConnected
	})

	f.client.sendJSON(t, map[string]any{
		"type": TypeTerminalInput, "sessionId": "S1", "data": "echo hi\n",
	})
	var output strings.Builder
	f.client.expect(t, "echoed output", func(m outboundMessage) bool {
		if m.Type != TypeTerminalOutput || m.SessionID != "S1" {
			return false
		}
		chunk, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil {
			t.Fatalf("terminal output is not base64: %v", err)
		}
		output.Write(chunk)
		return strings.Contains(output.String(), "hi")
	})

	f.client.sendJSON(t, map[string]any{"type": TypeSessionList})
	list := f.client.expect(t, "session list", func(m outboundMessage) bool {
		return m.Type == TypeSessionList
	})
	if len(list.Sessions) != 1 || list.Sessions[0].ID != "S1" {
		t.Fatalf("session list = %+v", list.Sessions)
	}

	f.client.sendJSON(t, map[string]any{"type": TypeSSHDisconnect, "sessionId": "S1"})
	f.client.expect(t, "disconnected status", func(m outboundMessage) bool {
		return m.Type == TypeSSHStatus && m.SessionID == "S1" && m.Status == models.StatusDisconnected
	})

	// The durable record survives disconnect but drops out of session:list.
	sess, err := f.store.GetSession(context.Background(), f.user.ID, "S1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != models.StatusDisconnected {
		t.Errorf("durable status = %q", sess.Status)
	}
}

func TestTerminalOutputPreservesRawBytes(t *testing.T) {
	// 0xc3 alone is an invalid UTF-8 sequence; a plain JSON string would
	// deliver it as U+FFFD.
	banner := []byte{0x68, 0x69, 0xc3}
	f := newBrokerFixtureBanner(t, banner)

	f.client.sendJSON(t, map[string]any{
		"type": TypeSSHConnect, "sessionId": "S1", "profileId": f.profile.ID,
	})

	var got []byte
	f.client.expect(t, "raw terminal bytes", func(m outboundMessage) bool {
		if m.Type != TypeTerminalOutput || m.SessionID != "S1" {
			return false
		}
		chunk, err := base64.StdEncoding.DecodeString(m.Data)
		if err != nil {
			t.Fatalf("terminal output is not base64: %v", err)
		}
		got = append(got, chunk...)
		return bytes.Contains(got, banner)
	})
}

func TestUnknownMessageType(t *testing.T) {
	f := newBrokerFixture(t)

	f.client.sendJSON(t, map[string]any{"type": "bogus:type"})
	msg := f.client.expect(t, "protocol error", func(m outboundMessage) bool {
		return m.Type == TypeError
	})
	if !strings.Contains(msg.Error, "bogus:type") {
		t.Errorf("error should name the bad type: %q", msg.Error)
	}
}

func TestInputOnUnknownSession(t *testing.T) {
	f := newBrokerFixture(t)

	f.client.sendJSON(t, map[string]any{
		"type": TypeTerminalInput, "sessionId": "nope", "data": "x",
	})
	f.client.expect(t, "unknown session error", func(m outboundMessage) bool {
		return m.Type == TypeError && m.SessionID == "nope"
	})
}

func TestConnectUnknownProfile(t *testing.T) {
	f := newBrokerFixture(t)

	f.client.sendJSON(t, map[string]any{
		"type": TypeSSHConnect, "sessionId": "S1", "profileId": "missing",
	})
	f.client.expect(t, "error status", func(m outboundMessage) bool {
		return m.Type == TypeSSHStatus && m.SessionID == "S1" && m.Status == models.StatusError
	})
}

func TestAssistantRoundTrip(t *testing.T) {
	f := newBrokerFixture(t)

	f.client.sendJSON(t, map[string]any{
		"type": TypeAITranslate, "prompt": "list all files",
	})
	msg := f.client.expect(t, "ai response", func(m outboundMessage) bool {
		return m.Type == TypeAIResponse
	})
	if msg.Result == nil || len(msg.Result.Commands) != 1 || msg.Result.Commands[0] != "ls -la" {
		t.Fatalf("result = %+v", msg.Result)
	}
}

func TestClientCloseTearsDownConnections(t *testing.T) {
	f := newBrokerFixture(t)

	f.client.sendJSON(t, map[string]any{
		"type": TypeSSHConnect, "sessionId": "S1", "profileId": f.profile.ID,
	})
	f.client.expect(t, "connected status", func(m outboundMessage) bool {
		return m.Type == TypeSSHStatus && m.Status == models.StatusConnected
	})

	f.client.Close()
	select {
	case <-f.done:
	case <-time.After(2 * time.Second):
		t.Fatal("broker did not exit on client close")
	}

	deadline := time.After(2 * time.Second)
	for f.broker.manager.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("connections survived client close")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

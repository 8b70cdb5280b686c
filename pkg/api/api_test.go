package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termgate/termgate/pkg/auth"
	"github.com/termgate/termgate/pkg/ratelimit"
	"github.com/termgate/termgate/pkg/sshconn"
	"github.com/termgate/termgate/pkg/store"
	"github.com/termgate/termgate/pkg/vault"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type testEnv struct {
	ts     *httptest.Server
	client *http.Client
}

// newTestEnv stands up the full API surface on an in-memory store.
// authTokens tunes the auth limiter budget so the rate-limit test can
// exhaust it quickly while the rest of the suite stays unthrottled.
func newTestEnv(t *testing.T, authTokens uint64) *testEnv {
	t.Helper()

	st, err := store.New(&store.Config{URL: ":memory:"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: testSecret})
	if err != nil {
		t.Fatalf("jwt: %v", err)
	}
	authSvc := auth.NewService(st, jwtSvc)

	v, err := vault.New(testSecret)
	if err != nil {
		t.Fatalf("vault: %v", err)
	}

	manager := sshconn.NewManager(sshconn.ManagerConfig{})
	t.Cleanup(manager.Stop)

	global, err := ratelimit.New(ratelimit.Config{Tokens: 10000, Interval: 15 * time.Minute})
	if err != nil {
		t.Fatalf("global limiter: %v", err)
	}
	authLimiter, err := ratelimit.New(ratelimit.Config{Tokens: authTokens, Interval: 15 * time.Minute})
	if err != nil {
		t.Fatalf("auth limiter: %v", err)
	}

	srv := NewServer(APIConfig{Port: 0}, Deps{
		Auth:          authSvc,
		Store:         st,
		Vault:         v,
		Manager:       manager,
		GlobalLimiter: global,
		AuthLimiter:   authLimiter,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, client: ts.Client()}
}

type envelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	RetryAfter int64           `json:"retryAfter"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (int, *envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decoding %s %s response: %v", method, path, err)
	}
	return resp.StatusCode, &env
}

func (e *testEnv) register(t *testing.T, email, password string) string {
	t.Helper()
	status, env := e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email": email, "password": password, "name": "Test",
	})
	if status != http.StatusCreated {
		t.Fatalf("register %s: status %d (%s)", email, status, env.Error)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Token == "" {
		t.Fatal("register returned no token")
	}
	return data.Token
}

func TestRegisterListCreateProfile(t *testing.T) {
	e := newTestEnv(t, 100)
	token := e.register(t, "a@b.co", "Abcdef12")

	status, env := e.do(t, "GET", "/api/profiles", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	if string(env.Data) != "[]" && string(env.Data) != "null" {
		t.Fatalf("expected empty profile list, got %s", env.Data)
	}

	status, env = e.do(t, "POST", "/api/profiles", token, map[string]any{
		"profile": map[string]any{
			"name": "p1", "host": "10.0.0.1", "port": 22,
			"username": "u", "authMethod": "password",
		},
		"credentials": map[string]string{"password": "s3cret"},
	})
	if status != http.StatusCreated {
		t.Fatalf("create profile: status %d (%s)", status, env.Error)
	}

	status, env = e.do(t, "GET", "/api/profiles", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	raw := string(env.Data)
	if !strings.Contains(raw, `"name":"p1"`) {
		t.Errorf("profile list missing p1: %s", raw)
	}
	for _, leak := range []string{"s3cret", "credential", "Credential"} {
		if strings.Contains(raw, leak) {
			t.Errorf("profile list leaks %q: %s", leak, raw)
		}
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	e := newTestEnv(t, 100)

	status, env := e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email": "weak@b.co", "password": "abcdefgh", "name": "W",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if env.Success {
		t.Error("error response claims success")
	}
	if env.Error == "" {
		t.Error("error response carries no message")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	e := newTestEnv(t, 100)
	e.register(t, "dup@b.co", "Abcdef12")

	status, _ := e.do(t, "POST", "/api/auth/register", "", map[string]string{
		"email": "dup@b.co", "password": "Abcdef12", "name": "D",
	})
	if status != http.StatusConflict {
		t.Fatalf("status = %d, want 409", status)
	}
}

func TestLoginAndVerify(t *testing.T) {
	e := newTestEnv(t, 100)
	e.register(t, "log@b.co", "Abcdef12")

	status, env := e.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email": "log@b.co", "password": "Abcdef12",
	})
	if status != http.StatusOK {
		t.Fatalf("login: status %d (%s)", status, env.Error)
	}
	var data struct {
		Token string `json:"token"`
		User  struct {
			Email string `json:"email"`
		} `json:"user"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.User.Email != "log@b.co" {
		t.Errorf("login user email = %q", data.User.Email)
	}
	if strings.Contains(string(env.Data), "passwordHash") {
		t.Error("login response leaks password hash")
	}

	status, _ = e.do(t, "GET", "/api/auth/verify", data.Token, nil)
	if status != http.StatusOK {
		t.Errorf("verify: status %d", status)
	}

	status, _ = e.do(t, "GET", "/api/auth/verify", "", nil)
	if status != http.StatusUnauthorized {
		t.Errorf("verify without token: status %d, want 401", status)
	}

	status, _ = e.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email": "log@b.co", "password": "WrongPass1",
	})
	if status != http.StatusUnauthorized {
		t.Errorf("wrong password: status %d, want 401", status)
	}
}

func TestAuthRateLimit(t *testing.T) {
	e := newTestEnv(t, 5)

	// Five wrong logins are admitted and fail on credentials
	for i := 0; i < 5; i++ {
		status, _ := e.do(t, "POST", "/api/auth/login", "", map[string]string{
			"email": "nobody@b.co", "password": "WrongPass1",
		})
		if status != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status %d, want 401", i+1, status)
		}
	}

	// The sixth within the window is rejected with a retry hint
	status, env := e.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email": "nobody@b.co", "password": "WrongPass1",
	})
	if status != http.StatusTooManyRequests {
		t.Fatalf("sixth attempt: status %d, want 429", status)
	}
	if env.RetryAfter <= 0 || env.RetryAfter > 900 {
		t.Errorf("retryAfter = %d, want in (0, 900]", env.RetryAfter)
	}
}

func TestProfileCrossUserIsolation(t *testing.T) {
	e := newTestEnv(t, 100)
	tokenA := e.register(t, "usera@b.co", "Abcdef12")
	tokenB := e.register(t, "userb@b.co", "Abcdef12")

	status, env := e.do(t, "POST", "/api/profiles", tokenA, map[string]any{
		"profile": map[string]any{
			"name": "shared", "host": "10.0.0.1", "port": 22,
			"username": "u", "authMethod": "password",
		},
		"credentials": map[string]string{"password": "pw"},
	})
	if status != http.StatusCreated {
		t.Fatalf("create: status %d (%s)", status, env.Error)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}

	status, _ = e.do(t, "DELETE", "/api/profiles/"+created.ID, tokenB, nil)
	if status != http.StatusNotFound {
		t.Errorf("cross-user delete: status %d, want 404", status)
	}

	status, _ = e.do(t, "DELETE", "/api/profiles/"+created.ID, tokenA, nil)
	if status != http.StatusOK {
		t.Errorf("owner delete: status %d, want 200", status)
	}
}

func TestProfileUpdate(t *testing.T) {
	e := newTestEnv(t, 100)
	token := e.register(t, "upd@b.co", "Abcdef12")

	_, env := e.do(t, "POST", "/api/profiles", token, map[string]any{
		"profile": map[string]any{
			"name": "old", "host": "10.0.0.1", "port": 22,
			"username": "u", "authMethod": "password",
		},
		"credentials": map[string]string{"password": "pw"},
	})
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatal(err)
	}

	status, env := e.do(t, "PUT", "/api/profiles/"+created.ID, token, map[string]any{
		"name": "renamed",
	})
	if status != http.StatusOK {
		t.Fatalf("update: status %d (%s)", status, env.Error)
	}
	if !strings.Contains(string(env.Data), `"name":"renamed"`) {
		t.Errorf("update did not rename: %s", env.Data)
	}

	status, _ = e.do(t, "PUT", "/api/profiles/missing", token, map[string]any{"name": "x"})
	if status != http.StatusNotFound {
		t.Errorf("update missing: status %d, want 404", status)
	}

	status, _ = e.do(t, "PUT", "/api/profiles/"+created.ID, token, map[string]any{"port": 99999})
	if status != http.StatusBadRequest {
		t.Errorf("invalid port: status %d, want 400", status)
	}

	status, _ = e.do(t, "PUT", "/api/profiles/"+created.ID, token, map[string]any{})
	if status != http.StatusBadRequest {
		t.Errorf("empty update: status %d, want 400", status)
	}
}

func TestPreferencesUpdate(t *testing.T) {
	e := newTestEnv(t, 100)
	token := e.register(t, "prefs@b.co", "Abcdef12")

	status, env := e.do(t, "PUT", "/api/auth/preferences", token, map[string]any{
		"preferences": map[string]any{"theme": "dark"},
	})
	if status != http.StatusOK {
		t.Fatalf("preferences: status %d (%s)", status, env.Error)
	}
	if !strings.Contains(string(env.Data), `"theme":"dark"`) {
		t.Errorf("preferences not echoed: %s", env.Data)
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t, 100)

	status, env := e.do(t, "GET", "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("health: status %d", status)
	}
	raw := string(env.Data)
	for _, field := range []string{`"status"`, `"uptime"`, `"timestamp"`} {
		if !strings.Contains(raw, field) {
			t.Errorf("health response missing %s: %s", field, raw)
		}
	}
}

func TestUnknownRoute(t *testing.T) {
	e := newTestEnv(t, 100)

	status, env := e.do(t, "GET", "/api/bogus", "", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
	if env.Success {
		t.Error("404 response claims success")
	}
}

func TestStreamHandshake(t *testing.T) {
	e := newTestEnv(t, 100)
	token := e.register(t, "ws@b.co", "Abcdef12")

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"session:list"}`)); err != nil {
		t.Fatal(err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	var msg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "session:list" {
		t.Errorf("reply type = %q, want session:list", msg.Type)
	}
}

func TestStreamHandshakeRejectsBadToken(t *testing.T) {
	e := newTestEnv(t, 100)

	wsURL := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws?token=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		code := 0
		if resp != nil {
			code = resp.StatusCode
		}
		t.Errorf("handshake status = %d, want 401", code)
	}
}

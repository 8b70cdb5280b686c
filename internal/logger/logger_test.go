package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "WARN", "text", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	out := buf.String()
	if strings.Contains(out, "debug message") {
		t.Error("debug message should be filtered at WARN level")
	}
	if strings.Contains(out, "info message") {
		t.Error("info message should be filtered at WARN level")
	}
	if !strings.Contains(out, "warn message") {
		t.Error("warn message should be logged at WARN level")
	}
	if !strings.Contains(out, "error message") {
		t.Error("error message should be logged at WARN level")
	}
}

func TestStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	Info("session opened", KeySessionID, "s-1", KeyHost, "10.0.0.1")

	out := buf.String()
	if !strings.Contains(out, "session_id=s-1") {
		t.Errorf("expected session_id field, got %q", out)
	}
	if !strings.Contains(out, "host=10.0.0.1") {
		t.Errorf("expected host field, got %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "json", false)
	defer InitWithWriter(&buf, "INFO", "text", false)

	Info("json message", "key", "value")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if record["msg"] != "json message" {
		t.Errorf("expected msg 'json message', got %v", record["msg"])
	}
	if record["key"] != "value" {
		t.Errorf("expected key=value, got %v", record["key"])
	}
}

func TestContextFields(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(&buf, "INFO", "text", false)

	lc := NewLogContext("192.168.1.5").WithUser("u-1").WithSession("s-1", "c-1")
	ctx := WithContext(context.Background(), lc)

	InfoCtx(ctx, "input forwarded")

	out := buf.String()
	for _, want := range []string{"user_id=u-1", "session_id=s-1", "connection_id=c-1", "client_ip=192.168.1.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output, got %q", want, out)
		}
	}
}

func TestFromContextMissing(t *testing.T) {
	if lc := FromContext(context.Background()); lc != nil {
		t.Errorf("expected nil LogContext, got %+v", lc)
	}
	if lc := FromContext(nil); lc != nil { //nolint:staticcheck
		t.Errorf("expected nil LogContext for nil ctx, got %+v", lc)
	}
}

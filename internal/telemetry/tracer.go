package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for gateway operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// Client attributes
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// Identity attributes
	AttrUserID = "user.id"
	AttrEmail  = "user.email"

	// Session and connection attributes
	AttrSessionID    = "session.id"
	AttrConnectionID = "connection.id"
	AttrSSHHost      = "ssh.host"
	AttrSSHPort      = "ssh.port"
	AttrSSHStatus    = "ssh.status"
	AttrProfileID    = "profile.id"

	// Stream attributes
	AttrMessageType = "stream.message_type"

	// Assistant attributes
	AttrAssistProvider = "assist.provider"
	AttrAssistMode     = "assist.mode"
)

// Span names for gateway operations.
// Format: <component>.<operation>
const (
	SpanAuthRegister = "auth.register"
	SpanAuthLogin    = "auth.login"
	SpanAuthVerify   = "auth.verify"

	SpanProfileList   = "profile.list"
	SpanProfileCreate = "profile.create"
	SpanProfileUpdate = "profile.update"
	SpanProfileDelete = "profile.delete"

	SpanSSHConnect    = "ssh.connect"
	SpanSSHDisconnect = "ssh.disconnect"

	SpanStreamMessage = "stream.message"
	SpanAssistAsk     = "assist.ask"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// UserID returns an attribute for the authenticated user
func UserID(id string) attribute.KeyValue {
	return attribute.String(AttrUserID, id)
}

// SessionID returns an attribute for the client-visible session
func SessionID(id string) attribute.KeyValue {
	return attribute.String(AttrSessionID, id)
}

// ConnectionID returns an attribute for the internal SSH connection
func ConnectionID(id string) attribute.KeyValue {
	return attribute.String(AttrConnectionID, id)
}

// SSHHost returns an attribute for the remote host
func SSHHost(host string) attribute.KeyValue {
	return attribute.String(AttrSSHHost, host)
}

// SSHPort returns an attribute for the remote port
func SSHPort(port int) attribute.KeyValue {
	return attribute.Int(AttrSSHPort, port)
}

// SSHStatus returns an attribute for the connection lifecycle state
func SSHStatus(status string) attribute.KeyValue {
	return attribute.String(AttrSSHStatus, status)
}

// ProfileID returns an attribute for the SSH profile
func ProfileID(id string) attribute.KeyValue {
	return attribute.String(AttrProfileID, id)
}

// MessageType returns an attribute for a stream frame type
func MessageType(t string) attribute.KeyValue {
	return attribute.String(AttrMessageType, t)
}

// AssistProvider returns an attribute for the assistant backend
func AssistProvider(name string) attribute.KeyValue {
	return attribute.String(AttrAssistProvider, name)
}

// AssistMode returns an attribute for the assistant request mode
func AssistMode(mode string) attribute.KeyValue {
	return attribute.String(AttrAssistMode, mode)
}

// StartConnectSpan starts a span for an SSH connect, tagging the target.
func StartConnectSpan(ctx context.Context, sessionID, host string, port int, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		SessionID(sessionID),
		SSHHost(host),
		SSHPort(port),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanSSHConnect, trace.WithAttributes(allAttrs...))
}

// StartStreamSpan starts a span for one inbound stream message.
func StartStreamSpan(ctx context.Context, messageType string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		MessageType(messageType),
	}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanStreamMessage, trace.WithAttributes(allAttrs...))
}

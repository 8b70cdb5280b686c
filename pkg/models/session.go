package models

import (
	"fmt"
	"time"
)

// ConnectionStatus is the lifecycle state of an SSH connection.
type ConnectionStatus string

const (
	// StatusDisconnected is the initial and terminal state.
	StatusDisconnected ConnectionStatus = "disconnected"
	// StatusConnecting means a dial is in flight.
	StatusConnecting ConnectionStatus = "connecting"
	// StatusConnected means the channel is open and interactive.
	StatusConnected ConnectionStatus = "connected"
	// StatusReconnecting means the link dropped and a single retry is pending.
	StatusReconnecting ConnectionStatus = "reconnecting"
	// StatusError means the connection failed and will not retry.
	StatusError ConnectionStatus = "error"
)

// Valid reports whether the status is a known lifecycle state.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusReconnecting, StatusError:
		return true
	}
	return false
}

// TerminalSession records one terminal attachment to a profile. The ID is
// chosen by the client so that the stream protocol and the REST surface agree
// on the identifier.
type TerminalSession struct {
	ID           string           `gorm:"primaryKey;size:64" json:"id"`
	UserID       string           `gorm:"index;not null;size:36" json:"userId"`
	ProfileID    string           `gorm:"index;not null;size:36" json:"profileId"`
	Status       ConnectionStatus `gorm:"not null;size:32" json:"status"`
	Title        string           `gorm:"size:255" json:"title,omitempty"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	LastActivity time.Time        `json:"lastActivity"`
}

// TableName returns the table name for TerminalSession.
func (TerminalSession) TableName() string {
	return "terminal_sessions"
}

// Validate checks if the session has valid configuration.
func (s *TerminalSession) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("session id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	if s.ProfileID == "" {
		return fmt.Errorf("profile id is required")
	}
	if !s.Status.Valid() {
		return fmt.Errorf("unknown session status %q", s.Status)
	}
	return nil
}

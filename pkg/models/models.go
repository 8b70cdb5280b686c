// Package models defines the durable data model for the gateway:
// users, SSH profiles, terminal sessions, and assistant queries.
package models

// AllModels returns every model for GORM AutoMigrate.
// Order matters: parents before children so foreign keys resolve.
func AllModels() []any {
	return []any{
		&User{},
		&SSHProfile{},
		&TerminalSession{},
		&AssistantQuery{},
	}
}

// Package assist bridges terminal sessions to external text-generation
// providers: natural language to shell commands, command explanation, and
// free-form questions, with a safety classifier over every suggested command.
package assist

import (
	"context"
	"fmt"
)

// Provider is a text-generation backend.
type Provider interface {
	// Name identifies the provider in logs and stored queries.
	Name() string

	// Complete sends a system and user prompt and returns the raw answer.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Mode selects how a prompt is framed for the provider.
type Mode string

const (
	// ModeTranslate turns natural language into shell commands.
	ModeTranslate Mode = "translate"
	// ModeExplain explains what a given command does.
	ModeExplain Mode = "explain"
	// ModeQuery answers a free-form question.
	ModeQuery Mode = "query"
)

// Valid reports whether the mode is supported.
func (m Mode) Valid() bool {
	return m == ModeTranslate || m == ModeExplain || m == ModeQuery
}

func systemPrompt(mode Mode) (string, error) {
	switch mode {
	case ModeTranslate:
		return "You are a terminal assistant. Translate the user's request into shell commands. " +
			"Respond with a JSON object containing fields: " +
			`"commands" (array of strings), "explanation" (string), "confidence" (number 0-1).`, nil
	case ModeExplain:
		return "You are a terminal assistant. Explain what the given shell command does, " +
			"including any risks. Respond with a JSON object containing fields: " +
			`"explanation" (string), "warnings" (array of strings), "confidence" (number 0-1).`, nil
	case ModeQuery:
		return "You are a terminal assistant. Answer the user's question about shells, " +
			"servers, and system administration. Respond with a JSON object containing fields: " +
			`"response" (string), "commands" (array of strings, may be empty), "confidence" (number 0-1).`, nil
	default:
		return "", fmt.Errorf("unknown assistant mode %q", mode)
	}
}

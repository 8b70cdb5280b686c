package assist

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Result is the structured answer returned to clients and persisted with the
// query record.
type Result struct {
	Response    string   `json:"response"`
	Commands    []string `json:"commands,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
	Warnings    []string `json:"warnings,omitempty"`
	Confidence  float64  `json:"confidence"`
}

type rawAnswer struct {
	Response    string   `json:"response"`
	Commands    []string `json:"commands"`
	Explanation string   `json:"explanation"`
	Warnings    []string `json:"warnings"`
	Confidence  *float64 `json:"confidence"`
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9_-]*\n)?(.*?)```")

// parseAnswer turns a provider's raw text into a Result. A well-formed JSON
// object is taken at face value; anything else falls back to pulling fenced
// code blocks out of the text, with confidence capped accordingly.
func parseAnswer(raw string) Result {
	if r, ok := parseStructured(raw); ok {
		return r
	}

	result := Result{
		Response:   strings.TrimSpace(raw),
		Confidence: MaxFlaggedConfidence,
	}
	for _, match := range fencedBlockRe.FindAllStringSubmatch(raw, -1) {
		for _, line := range strings.Split(match[1], "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			result.Commands = append(result.Commands, line)
		}
	}
	return result
}

func parseStructured(raw string) (Result, bool) {
	text := strings.TrimSpace(raw)
	// Providers often wrap the object in a fenced block.
	if m := fencedBlockRe.FindStringSubmatch(text); m != nil && strings.HasPrefix(strings.TrimSpace(m[1]), "{") {
		text = strings.TrimSpace(m[1])
	}
	if !strings.HasPrefix(text, "{") {
		return Result{}, false
	}

	var answer rawAnswer
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return Result{}, false
	}
	if answer.Response == "" && answer.Explanation == "" && len(answer.Commands) == 0 {
		return Result{}, false
	}

	result := Result{
		Response:    answer.Response,
		Commands:    answer.Commands,
		Explanation: answer.Explanation,
		Warnings:    answer.Warnings,
		Confidence:  0.9,
	}
	if answer.Confidence != nil {
		result.Confidence = clampConfidence(*answer.Confidence)
	}
	if result.Response == "" {
		result.Response = result.Explanation
	}
	return result, true
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

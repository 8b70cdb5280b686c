package assist

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/termgate/termgate/pkg/models"
	"github.com/termgate/termgate/pkg/store"
)

func TestClassifyCommand(t *testing.T) {
	dangerous := []string{
		"rm -rf /",
		"sudo rm -fr / ",
		"dd if=/dev/zero of=/dev/sda",
		"mkfs.ext4 /dev/sdb1",
		"fdisk /dev/sda",
		"shutdown -h now",
		"reboot",
		"halt",
		"poweroff",
		"kill -9 1",
		"kill 1",
		"pkill -f python",
		"killall nginx",
		"cat garbage > /dev/sda",
	}
	for _, cmd := range dangerous {
		if len(ClassifyCommand(cmd)) == 0 {
			t.Errorf("%q should be flagged", cmd)
		}
	}

	safe := []string{
		"ls -la",
		"rm -rf ./build",
		"rm file.txt",
		"kill 12345",
		"pkill nginx",
		"df -h",
		"echo rebooted > notes.txt",
		"grep -r 'halting problem' docs/",
	}
	for _, cmd := range safe {
		if w := ClassifyCommand(cmd); len(w) != 0 {
			t.Errorf("%q wrongly flagged: %v", cmd, w)
		}
	}
}

func TestParseStructuredAnswer(t *testing.T) {
	raw := `{"commands": ["ls -la"], "explanation": "lists files", "confidence": 0.95}`
	result := parseAnswer(raw)
	if len(result.Commands) != 1 || result.Commands[0] != "ls -la" {
		t.Errorf("commands = %v", result.Commands)
	}
	if result.Explanation != "lists files" {
		t.Errorf("explanation = %q", result.Explanation)
	}
	if result.Confidence != 0.95 {
		t.Errorf("confidence = %v", result.Confidence)
	}
}

func TestParseStructuredInFence(t *testing.T) {
	raw := "```json\n{\"response\": \"use tar\", \"commands\": [\"tar -czf out.tgz dir\"], \"confidence\": 0.8}\n```"
	result := parseAnswer(raw)
	if result.Response != "use tar" || len(result.Commands) != 1 {
		t.Errorf("fenced JSON not parsed: %+v", result)
	}
	if result.Confidence != 0.8 {
		t.Errorf("confidence = %v", result.Confidence)
	}
}

func TestParseFallbackToCodeBlocks(t *testing.T) {
	raw := "You can list files like this:\n```bash\nls -la\ndu -sh *\n```\nHope that helps."
	result := parseAnswer(raw)
	if len(result.Commands) != 2 || result.Commands[0] != "ls -la" || result.Commands[1] != "du -sh *" {
		t.Errorf("commands = %v", result.Commands)
	}
	if result.Confidence > MaxFlaggedConfidence {
		t.Errorf("fallback confidence %v should be at most %v", result.Confidence, MaxFlaggedConfidence)
	}
	if result.Response == "" {
		t.Error("fallback should keep the raw text as response")
	}
}

func TestParseConfidenceClamped(t *testing.T) {
	result := parseAnswer(`{"explanation": "x", "confidence": 7.5}`)
	if result.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", result.Confidence)
	}
	result = parseAnswer(`{"explanation": "x", "confidence": -3}`)
	if result.Confidence != 0 {
		t.Errorf("confidence = %v, want 0", result.Confidence)
	}
}

// fakeProvider returns a canned answer or error.
type fakeProvider struct {
	answer string
	err    error
}

func (f *fakeProvider) Name() string { return "fake" }
func (f *fakeProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	return f.answer, f.err
}

func newTestAssist(t *testing.T, p Provider) (*Service, *store.GORMStore) {
	t.Helper()
	s, err := store.New(&store.Config{URL: ":memory:"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return NewServiceWithProvider(p, s), s
}

func TestAskFlagsDangerousCommands(t *testing.T) {
	svc, st := newTestAssist(t, &fakeProvider{
		answer: `{"commands": ["rm -rf /"], "explanation": "wipes everything", "confidence": 0.99}`,
	})

	result, err := svc.Ask(context.Background(), "u-1", nil, ModeTranslate, "delete all files")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if len(result.Warnings) == 0 {
		t.Error("dangerous command produced no warning")
	}
	if result.Confidence > MaxFlaggedConfidence {
		t.Errorf("confidence %v not clamped", result.Confidence)
	}

	queries, err := st.ListQueries(context.Background(), "u-1", 10)
	if err != nil {
		t.Fatalf("ListQueries: %v", err)
	}
	if len(queries) != 1 {
		t.Fatalf("expected 1 stored query, got %d", len(queries))
	}
	if queries[0].Mode != string(ModeTranslate) || queries[0].Confidence > MaxFlaggedConfidence {
		t.Errorf("stored query wrong: %+v", queries[0])
	}
}

func TestAskProviderFailure(t *testing.T) {
	svc, _ := newTestAssist(t, &fakeProvider{err: fmt.Errorf("upstream down")})

	_, err := svc.Ask(context.Background(), "u-1", nil, ModeQuery, "what is tar")
	if !errors.Is(err, models.ErrAssistant) {
		t.Errorf("expected ErrAssistant, got %v", err)
	}
}

func TestAskEmptyPrompt(t *testing.T) {
	svc, _ := newTestAssist(t, &fakeProvider{answer: "{}"})
	if _, err := svc.Ask(context.Background(), "u-1", nil, ModeQuery, "   "); !errors.Is(err, models.ErrAssistant) {
		t.Errorf("expected ErrAssistant for empty prompt, got %v", err)
	}
}

func TestNewServicePicksProvider(t *testing.T) {
	s, err := store.New(&store.Config{URL: ":memory:"})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	defer s.Close()

	svc, err := NewService(Config{OpenAIKey: "sk-x", AnthropicKey: "sk-ant-x"}, s)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.ProviderName() != "openai" {
		t.Errorf("both keys set should prefer openai, got %q", svc.ProviderName())
	}

	svc, err = NewService(Config{AnthropicKey: "sk-ant-x"}, s)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.ProviderName() != "anthropic" {
		t.Errorf("anthropic key alone should pick anthropic, got %q", svc.ProviderName())
	}

	if _, err := NewService(Config{}, s); err == nil {
		t.Error("expected error with no credentials")
	}
}

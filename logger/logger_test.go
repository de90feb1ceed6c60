package logger

import "testing"

func TestSanitizeKVsRedactsSecrets(t *testing.T) {
	out := sanitizeKVs([]interface{}{"api_key", "sk-123", "model", "gpt", "Authorization", "Bearer x", "dangling"})
	if len(out) != 7 {
		t.Fatalf("expected 7 entries, got %d", len(out))
	}
	if out[1] != "[REDACTED]" {
		t.Fatalf("expected api_key redacted, got %v", out[1])
	}
	if out[3] != "gpt" {
		t.Fatalf("expected model kept, got %v", out[3])
	}
	if out[5] != "[REDACTED]" {
		t.Fatalf("expected authorization redacted, got %v", out[5])
	}
	if out[6] != "dangling" {
		t.Fatalf("expected dangling key kept, got %v", out[6])
	}
}

func TestNopLogger(t *testing.T) {
	l := Nop().With("run", "x")
	l.Info("hello", "k", "v")
	l.Sync()
}

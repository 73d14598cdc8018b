package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "valid JSON config", config: Config{Level: "info", Format: "json"}},
		{name: "valid text config", config: Config{Level: "debug", Format: "text"}},
		{name: "console maps to text", config: Config{Level: "WARN", Format: "console"}},
		{name: "defaults", config: Config{}},
		{name: "invalid log level", config: Config{Level: "loud"}, wantErr: true},
		{name: "invalid format", config: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Writer = &buf
			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithProvider(ctx, "anthropic")
	ctx = WithModel(ctx, "claude-3-5-sonnet")
	logger.InfoContext(ctx, "request started", "stream", true)

	entry := decodeLine(t, &buf)
	for key, want := range map[string]any{
		"msg":        "request started",
		"request_id": "req-123",
		"provider":   "anthropic",
		"model":      "claude-3-5-sonnet",
		"stream":     true,
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestLogger_NoDuplicateRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Format: "text", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	logger.With("request_id", "req-1").InfoContext(ctx, "hello")

	if n := strings.Count(buf.String(), "request_id="); n != 1 {
		t.Errorf("request_id appears %d times in %q, want 1", n, buf.String())
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "warn", Writer: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
	logger.Warn("kept")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn not logged: %q", buf.String())
	}
}

func TestLogger_RedactSecrets(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Writer: &buf, RedactSecrets: true})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("upstream call",
		"api_key", "sk-ant-abcdef123456",
		"header", "Authorization: Bearer abc.def.ghi",
		"detail", "used key sk-proj1234567",
	)

	entry := decodeLine(t, &buf)
	tests := []struct {
		key  string
		want string
	}{
		{"api_key", "sk-a***"},
		{"header", "Authorization: Bearer ***"},
		{"detail", "used key sk-***"},
	}
	for _, tt := range tests {
		if got := entry[tt.key]; got != tt.want {
			t.Errorf("%s = %v, want %q", tt.key, got, tt.want)
		}
	}
}

func TestSetup(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	if _, err := Setup(Config{Writer: &buf}); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	slog.InfoContext(WithRequestID(context.Background(), "req-9"), "via default")
	if !strings.Contains(buf.String(), `"request_id":"req-9"`) {
		t.Errorf("default logger output %q missing request_id", buf.String())
	}
}

func TestContextGetters_Empty(t *testing.T) {
	ctx := context.Background()
	for name, get := range map[string]func(context.Context) string{
		"RequestIDFrom": RequestIDFrom,
		"ProviderFrom":  ProviderFrom,
		"ModelFrom":     ModelFrom,
	} {
		if got := get(ctx); got != "" {
			t.Errorf("%s() = %q, want empty", name, got)
		}
	}
}

func TestRedactAPIKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "***"},
		{"abc", "***"},
		{"sk-live-123", "sk-l***"},
	}
	for _, tt := range tests {
		if got := RedactAPIKey(tt.in); got != tt.want {
			t.Errorf("RedactAPIKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

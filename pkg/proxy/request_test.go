package proxy

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"mercator-hq/relay/pkg/faults"
	"mercator-hq/relay/pkg/lifecycle"
	"mercator-hq/relay/pkg/proxy/types"
)

func TestParseChatCompletionRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
		wantCode   string
		wantParam  string
	}{
		{
			name: "minimal request",
			body: `{"model":"gpt-4o","messages":[{"role":"user","content":"Hello"}]}`,
		},
		{
			name: "optional parameters",
			body: `{"model":"gpt-4o","messages":[{"role":"user","content":"Hello"}],"temperature":0.7,"max_tokens":100,"stream":true}`,
		},
		{
			name: "assistant tool calls without content",
			body: `{"model":"gpt-4o","messages":[{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_weather","arguments":"{}"}}]}]}`,
		},
		{
			name:       "empty body",
			body:       "",
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
			wantCode:   faults.CodeMissingField,
			wantParam:  "body",
		},
		{
			name:       "invalid JSON",
			body:       `{"model":`,
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
			wantCode:   faults.CodeInvalidJSON,
		},
		{
			name:       "missing model",
			body:       `{"messages":[{"role":"user","content":"Hello"}]}`,
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
			wantCode:   faults.CodeMissingField,
			wantParam:  "model",
		},
		{
			name:       "temperature out of range",
			body:       `{"model":"gpt-4o","messages":[{"role":"user","content":"Hello"}],"temperature":3}`,
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
			wantCode:   faults.CodeInvalidValue,
			wantParam:  "temperature",
		},
		{
			name:       "bad role on second message",
			body:       `{"model":"gpt-4o","messages":[{"role":"user","content":"a"},{"role":"robot","content":"b"}]}`,
			wantErr:    true,
			wantStatus: http.StatusBadRequest,
			wantCode:   faults.CodeInvalidValue,
			wantParam:  "messages[1].role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(tt.body))
			req, err := ParseChatCompletionRequest(r, 0)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("ParseChatCompletionRequest() error = %v", err)
				}
				if req.Model != "gpt-4o" {
					t.Errorf("Model = %q, want gpt-4o", req.Model)
				}
				return
			}

			var f *faults.Fault
			if !errors.As(err, &f) {
				t.Fatalf("error = %v, want *faults.Fault", err)
			}
			if f.HTTPStatus() != tt.wantStatus {
				t.Errorf("status = %d, want %d", f.HTTPStatus(), tt.wantStatus)
			}
			if f.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", f.Code, tt.wantCode)
			}
			if tt.wantParam != "" && f.Param != tt.wantParam {
				t.Errorf("param = %q, want %q", f.Param, tt.wantParam)
			}
		})
	}
}

func TestParseChatCompletionRequest_TooLarge(t *testing.T) {
	body := `{"model":"gpt-4o","messages":[{"role":"user","content":"` + strings.Repeat("x", 200) + `"}]}`
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))

	_, err := ParseChatCompletionRequest(r, 64)
	var f *faults.Fault
	if !errors.As(err, &f) {
		t.Fatalf("error = %v, want *faults.Fault", err)
	}
	if f.HTTPStatus() != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", f.HTTPStatus())
	}
	if f.Code != faults.CodeRequestTooLarge {
		t.Errorf("code = %q, want %q", f.Code, faults.CodeRequestTooLarge)
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer sk-123", want: "sk-123"},
		{header: "bearer sk-123", want: "sk-123"},
		{header: "Bearer  sk-123 ", want: "sk-123"},
		{header: "Basic dXNlcjpwYXNz", want: ""},
		{header: "sk-123", want: ""},
		{header: "", want: ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodPost, "/", nil)
		if tt.header != "" {
			r.Header.Set(AuthorizationHeader, tt.header)
		}
		if got := ExtractAPIKey(r); got != tt.want {
			t.Errorf("ExtractAPIKey(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestToProviderRequest(t *testing.T) {
	maxTokens := 50
	presence := 0.5
	req := &types.ChatCompletionRequest{
		Model: "claude-3-5-sonnet",
		Messages: []types.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: []any{
				map[string]any{"type": "text", "text": "first"},
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": "https://example.com/a.png"}},
				map[string]any{"type": "text", "text": "second"},
			}},
			{Role: "assistant", ToolCalls: []types.ToolCall{{ID: "call_1", Function: types.FunctionCall{Name: "lookup", Arguments: `{"q":1}`}}}},
			{Role: "tool", Content: "42", ToolCallID: "call_1"},
		},
		MaxTokens:       &maxTokens,
		PresencePenalty: &presence,
		Stream:          true,
		User:            "user-7",
		Tools:           []types.Tool{{Type: "function", Function: types.FunctionDefinition{Name: "lookup"}}},
	}

	out := ToProviderRequest(req, "req-1")

	if out.MaxTokens != 50 || out.PresencePenalty != 0.5 || !out.Stream {
		t.Errorf("scalar fields = %d/%v/%v, want 50/0.5/true", out.MaxTokens, out.PresencePenalty, out.Stream)
	}
	if len(out.Messages) != 4 {
		t.Fatalf("len(Messages) = %d, want 4", len(out.Messages))
	}
	if got := out.Messages[1].Content; got != "first\nsecond" {
		t.Errorf("content parts = %q, want %q", got, "first\nsecond")
	}
	if tc := out.Messages[2].ToolCalls; len(tc) != 1 || tc[0].Function.Name != "lookup" || tc[0].Type != "function" {
		t.Errorf("tool calls = %+v", tc)
	}
	if out.Messages[3].ToolCallID != "call_1" {
		t.Errorf("ToolCallID = %q, want call_1", out.Messages[3].ToolCallID)
	}
	if len(out.Tools) != 1 || out.Tools[0].Function.Name != "lookup" {
		t.Errorf("Tools = %+v", out.Tools)
	}
	if out.Metadata["request_id"] != "req-1" || out.Metadata["user"] != "user-7" {
		t.Errorf("Metadata = %v", out.Metadata)
	}
}

func TestExtractRequestMetadata(t *testing.T) {
	maxTokens := 10
	req := &types.ChatCompletionRequest{
		Model:     "gpt-4o",
		Stream:    true,
		Messages:  []types.Message{{Role: "user", Content: "hi"}},
		MaxTokens: &maxTokens,
	}
	r := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	r.Header.Set(AuthorizationHeader, "Bearer sk-abcdef")
	r.Header.Set(UserIDHeader, "header-user")
	r.Header.Set("User-Agent", "relay-test")

	m := ExtractRequestMetadata(r, req, "req-9")

	if m.RequestID != "req-9" || m.Model != "gpt-4o" || m.MaxTokens != 10 {
		t.Errorf("metadata = %+v", m)
	}
	if m.UserID != "header-user" {
		t.Errorf("UserID = %q, want header-user", m.UserID)
	}
	if strings.Contains(m.APIKey, "abcdef") {
		t.Errorf("APIKey = %q, want redacted", m.APIKey)
	}
	if m.Kind() != lifecycle.KindIncremental {
		t.Errorf("Kind() = %v, want incremental", m.Kind())
	}

	req.User = "body-user"
	req.Stream = false
	m = ExtractRequestMetadata(r, req, "req-9")
	if m.UserID != "body-user" {
		t.Errorf("UserID = %q, want body-user to take precedence", m.UserID)
	}
	if m.Kind() != lifecycle.KindPlain {
		t.Errorf("Kind() = %v, want plain", m.Kind())
	}
}

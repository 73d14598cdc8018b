package anthropic

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"mercator-hq/relay/pkg/providers"
)

func TestToUpstreamRequest(t *testing.T) {
	temp := 0.2
	req := &providers.CompletionRequest{
		Model:       "claude-sonnet-4",
		Temperature: &temp,
		User:        "user-1",
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "Be brief."},
			{Role: providers.RoleSystem, Content: "Use metric units."},
			{Role: providers.RoleUser, Content: "Weather in Oslo and Bergen?"},
			{
				Role:    providers.RoleAssistant,
				Content: "Checking.",
				ToolCalls: []providers.ToolCall{
					{ID: "toolu_1", Type: "function", Function: providers.FunctionCall{Name: "weather", Arguments: `{"city":"Oslo"}`}},
					{ID: "toolu_2", Type: "function", Function: providers.FunctionCall{Name: "weather", Arguments: `{"city":"Bergen"}`}},
				},
			},
			{Role: providers.RoleTool, ToolCallID: "toolu_1", Content: "12C"},
			{Role: providers.RoleTool, ToolCallID: "toolu_2", Content: "9C"},
		},
		Tools: []providers.Tool{{
			Type:     "function",
			Function: providers.FunctionDefinition{Name: "weather", Description: "Current weather"},
		}},
		ToolChoice: "required",
	}

	got, err := ToUpstreamRequest(req)
	if err != nil {
		t.Fatalf("ToUpstreamRequest() error = %v", err)
	}

	want := &MessagesRequest{
		Model:       "claude-sonnet-4",
		System:      "Be brief.\n\nUse metric units.",
		MaxTokens:   DefaultMaxTokens,
		Temperature: &temp,
		Metadata:    &UserMetadata{UserID: "user-1"},
		Messages: []Message{
			{Role: "user", Content: []ContentBlock{{Type: "text", Text: "Weather in Oslo and Bergen?"}}},
			{Role: "assistant", Content: []ContentBlock{
				{Type: "text", Text: "Checking."},
				{Type: "tool_use", ID: "toolu_1", Name: "weather", Input: json.RawMessage(`{"city":"Oslo"}`)},
				{Type: "tool_use", ID: "toolu_2", Name: "weather", Input: json.RawMessage(`{"city":"Bergen"}`)},
			}},
			{Role: "user", Content: []ContentBlock{
				{Type: "tool_result", ToolUseID: "toolu_1", Content: "12C"},
				{Type: "tool_result", ToolUseID: "toolu_2", Content: "9C"},
			}},
		},
		Tools: []Tool{{
			Name:        "weather",
			Description: "Current weather",
			InputSchema: map[string]any{"type": "object"},
		}},
		ToolChoice: &ToolChoice{Type: "any"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToUpstreamRequest() mismatch (-want +got):\n%s", diff)
	}
}

func TestToUpstreamRequest_Errors(t *testing.T) {
	tests := []struct {
		name  string
		req   *providers.CompletionRequest
		field string
	}{
		{
			name: "assistant first",
			req: &providers.CompletionRequest{Model: "m", Messages: []providers.Message{
				{Role: providers.RoleAssistant, Content: "hi"},
			}},
			field: "messages",
		},
		{
			name: "only system",
			req: &providers.CompletionRequest{Model: "m", Messages: []providers.Message{
				{Role: providers.RoleSystem, Content: "sys"},
			}},
			field: "messages",
		},
		{
			name: "tool without call id",
			req: &providers.CompletionRequest{Model: "m", Messages: []providers.Message{
				{Role: providers.RoleUser, Content: "hi"},
				{Role: providers.RoleTool, Content: "x"},
			}},
			field: "messages[1].tool_call_id",
		},
		{
			name: "bad tool arguments",
			req: &providers.CompletionRequest{Model: "m", Messages: []providers.Message{
				{Role: providers.RoleUser, Content: "hi"},
				{Role: providers.RoleAssistant, ToolCalls: []providers.ToolCall{{Function: providers.FunctionCall{Name: "f", Arguments: "[1"}}}},
			}},
			field: "messages[1].tool_calls[0].function.arguments",
		},
		{
			name: "unknown role",
			req: &providers.CompletionRequest{Model: "m", Messages: []providers.Message{
				{Role: "developer", Content: "hi"},
			}},
			field: "messages[0].role",
		},
		{
			name: "unsupported tool choice",
			req: &providers.CompletionRequest{
				Model:      "m",
				Messages:   []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
				ToolChoice: 42,
			},
			field: "tool_choice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToUpstreamRequest(tt.req)
			var validErr *providers.ValidationError
			if !errors.As(err, &validErr) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if validErr.Field != tt.field {
				t.Errorf("Field = %q, want %q", validErr.Field, tt.field)
			}
		})
	}
}

func TestToToolChoice(t *testing.T) {
	tests := []struct {
		in   any
		want *ToolChoice
	}{
		{nil, nil},
		{"auto", &ToolChoice{Type: "auto"}},
		{"none", &ToolChoice{Type: "none"}},
		{"required", &ToolChoice{Type: "any"}},
		{map[string]any{"type": "function", "function": map[string]any{"name": "f"}}, &ToolChoice{Type: "tool", Name: "f"}},
	}
	for _, tt := range tests {
		got, err := toToolChoice(tt.in)
		if err != nil {
			t.Errorf("toToolChoice(%v) error = %v", tt.in, err)
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("toToolChoice(%v) mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestToCompletionResponse(t *testing.T) {
	resp := &MessagesResponse{
		ID:    "msg_1",
		Model: "claude-sonnet-4",
		Content: []ContentBlock{
			{Type: "text", Text: "Let me check. "},
			{Type: "tool_use", ID: "toolu_1", Name: "weather", Input: json.RawMessage(`{"city":"Oslo"}`)},
		},
		StopReason: "tool_use",
		Usage:      Usage{InputTokens: 10, OutputTokens: 5},
	}

	got, err := ToCompletionResponse(resp)
	if err != nil {
		t.Fatalf("ToCompletionResponse() error = %v", err)
	}

	want := &providers.CompletionResponse{
		ID:           "msg_1",
		Model:        "claude-sonnet-4",
		Content:      "Let me check. ",
		FinishReason: providers.FinishReasonToolCalls,
		Usage:        providers.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		ToolCalls: []providers.ToolCall{{
			ID:       "toolu_1",
			Type:     providers.ToolTypeFunction,
			Function: providers.FunctionCall{Name: "weather", Arguments: `{"city":"Oslo"}`},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToCompletionResponse() mismatch (-want +got):\n%s", diff)
	}

	if _, err := ToCompletionResponse(&MessagesResponse{}); err == nil {
		t.Error("ToCompletionResponse() of an empty response succeeded")
	}
}

func TestStreamTranslator(t *testing.T) {
	events := []string{
		`{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4","usage":{"input_tokens":7}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"ping"}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"weather"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Oslo\"}"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":12}}`,
	}

	want := []*providers.StreamChunk{
		{ID: "msg_1", Model: "claude-sonnet-4", Role: "assistant"},
		{ID: "msg_1", Model: "claude-sonnet-4", Delta: "Hi"},
		{ID: "msg_1", Model: "claude-sonnet-4", ToolCalls: []providers.ToolCall{{
			ID: "toolu_1", Type: "function", Function: providers.FunctionCall{Name: "weather"},
		}}},
		{ID: "msg_1", Model: "claude-sonnet-4", ToolCalls: []providers.ToolCall{{
			Function: providers.FunctionCall{Arguments: `{"city":`},
		}}},
		{ID: "msg_1", Model: "claude-sonnet-4", ToolCalls: []providers.ToolCall{{
			Function: providers.FunctionCall{Arguments: `"Oslo"}`},
		}}},
		{
			ID: "msg_1", Model: "claude-sonnet-4",
			FinishReason: providers.FinishReasonToolCalls,
			Usage:        &providers.TokenUsage{PromptTokens: 7, CompletionTokens: 12, TotalTokens: 19},
		},
	}

	tr := NewStreamTranslator("anthropic")
	var got []*providers.StreamChunk
	for _, raw := range events {
		var ev StreamEvent
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			t.Fatalf("bad fixture %s: %v", raw, err)
		}
		chunk, err := tr.Translate(&ev)
		if err != nil {
			t.Fatalf("Translate(%s) error = %v", ev.Type, err)
		}
		if chunk != nil {
			got = append(got, chunk)
		}
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}
}

func TestStreamTranslator_ErrorEvent(t *testing.T) {
	var ev StreamEvent
	if err := json.Unmarshal([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`), &ev); err != nil {
		t.Fatal(err)
	}

	_, err := NewStreamTranslator("anthropic").Translate(&ev)

	var streamErr *providers.StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("error = %v, want *StreamError", err)
	}
	if streamErr.Type != "overloaded_error" || streamErr.Message != "Overloaded" {
		t.Errorf("StreamError = %+v, want overloaded_error/Overloaded", streamErr)
	}
}

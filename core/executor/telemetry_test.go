package executor

import (
	"testing"

	"github.com/Jinn-Network/jinn-worker/domain"
)

func TestSplitTopLevelObjects(t *testing.T) {
	buf := []byte(`{"a":1}{"b":"has } brace"}{"c":{"nested":true}}`)
	objects := splitTopLevelObjects(buf)
	if len(objects) != 3 {
		t.Fatalf("expected 3 objects, got %d: %v", len(objects), objects)
	}
}

func TestParseTelemetryAccumulatesTokensAndPrompt(t *testing.T) {
	buf := []byte(`
		{"name":"gemini_cli.user_prompt","timestamp":1,"attributes":{"prompt":"build the thing"}}
		{"name":"gemini_cli.api_response","timestamp":2,"attributes":{"input_token_count":10,"output_token_count":20,"total_token_count":30,"response_text":"ok"}}
		{"name":"gemini_cli.api_response","timestamp":3,"attributes":{"input_token_count":5,"output_token_count":7,"total_token_count":12,"response_text":"done"}}
		{"name":"gemini_cli.tool_call","timestamp":4,"attributes":{"function_name":"shell","success":true,"duration_ms":150}}
	`)

	telemetry, events := ParseTelemetry(buf)
	if telemetry.Prompt != "build the thing" {
		t.Fatalf("unexpected prompt: %q", telemetry.Prompt)
	}
	if telemetry.InputTokens != 15 || telemetry.OutputTokens != 27 {
		t.Fatalf("unexpected token sums: in=%d out=%d", telemetry.InputTokens, telemetry.OutputTokens)
	}
	if telemetry.MaxTotalTokens != 30 {
		t.Fatalf("expected max-accumulated total tokens 30, got %d", telemetry.MaxTotalTokens)
	}
	if len(telemetry.ToolCalls) != 1 || telemetry.ToolCalls[0].Name != "shell" {
		t.Fatalf("unexpected tool calls: %+v", telemetry.ToolCalls)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[0].Kind != domain.EventUserPrompt {
		t.Fatalf("unexpected first event kind: %v", events[0].Kind)
	}
}

func TestParseTelemetryUnknownEventKind(t *testing.T) {
	buf := []byte(`{"name":"some_other_event","timestamp":1,"attributes":{"x":1}}`)
	_, events := ParseTelemetry(buf)
	if len(events) != 1 || events[0].Kind != domain.EventUnknown {
		t.Fatalf("expected one unknown event, got %+v", events)
	}
}

func TestAttachToolResults(t *testing.T) {
	telemetry := &domain.Telemetry{
		ToolCalls: []domain.ToolCallEvent{{Name: "shell"}},
		ConversationHistory: `{"functionResponse":{"name":"shell","response":"exit 0"}}`,
	}
	attachToolResults(telemetry)
	if telemetry.ToolCalls[0].Result != "exit 0" {
		t.Fatalf("expected attached result, got %q", telemetry.ToolCalls[0].Result)
	}
}

package executor

import (
	"encoding/json"
	"regexp"
	"time"

	"github.com/Jinn-Network/jinn-worker/domain"
)

// rawEvent is the on-the-wire shape of one OpenTelemetry-style JSON
// object the subprocess appends to its telemetry file.
type rawEvent struct {
	Name       string         `json:"name"`
	Timestamp  int64          `json:"timestamp"`
	Attributes map[string]any `json:"attributes"`
}

// splitTopLevelObjects walks buf character by character, tracking brace
// depth and string-escape state, and returns the byte ranges of each
// complete top-level JSON object.
func splitTopLevelObjects(buf []byte) [][]byte {
	var objects [][]byte
	depth := 0
	inString := false
	escaped := false
	start := -1

	for i, b := range buf {
		if inString {
			switch {
			case escaped:
				escaped = false
			case b == '\\':
				escaped = true
			case b == '"':
				inString = false
			}
			continue
		}

		switch b {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && start >= 0 {
				objects = append(objects, buf[start:i+1])
				start = -1
			}
		}
	}
	return objects
}

const (
	eventUserPrompt  = "gemini_cli.user_prompt"
	eventAPIRequest  = "gemini_cli.api_request"
	eventAPIResponse = "gemini_cli.api_response"
	eventToolCall    = "gemini_cli.tool_call"
	eventFunctionCall = "function_call"
)

// ParseTelemetry decodes every complete top-level JSON object in buf into
// a domain.TelemetryEvent and folds it into an accumulated
// domain.Telemetry.
func ParseTelemetry(buf []byte) (*domain.Telemetry, []domain.TelemetryEvent) {
	result := &domain.Telemetry{}
	var events []domain.TelemetryEvent

	for _, raw := range splitTopLevelObjects(buf) {
		var re rawEvent
		if err := json.Unmarshal(raw, &re); err != nil {
			continue
		}

		ev := domain.TelemetryEvent{Timestamp: time.Unix(0, re.Timestamp)}

		switch re.Name {
		case eventUserPrompt:
			ev.Kind = domain.EventUserPrompt
			ev.UserPrompt, _ = re.Attributes["prompt"].(string)
			result.Prompt = ev.UserPrompt

		case eventAPIRequest:
			ev.Kind = domain.EventAPIRequest
			text, _ := re.Attributes["request_text"].(string)
			ev.APIRequest = text
			result.ConversationHistory += text

		case eventAPIResponse:
			ev.Kind = domain.EventAPIResponse
			resp := &domain.APIResponseEvent{}
			resp.ResponseText, _ = re.Attributes["response_text"].(string)
			resp.InputTokens = int64(asFloat(re.Attributes["input_token_count"]))
			resp.OutputTokens = int64(asFloat(re.Attributes["output_token_count"]))
			resp.TotalTokens = int64(asFloat(re.Attributes["total_token_count"]))
			ev.APIResponse = resp

			result.InputTokens += resp.InputTokens
			result.OutputTokens += resp.OutputTokens
			if resp.TotalTokens > result.MaxTotalTokens {
				result.MaxTotalTokens = resp.TotalTokens
			}

		case eventToolCall, eventFunctionCall:
			if re.Name == eventFunctionCall {
				ev.Kind = domain.EventFunctionCall
			} else {
				ev.Kind = domain.EventToolCall
			}
			tc := &domain.ToolCallEvent{}
			tc.Name, _ = re.Attributes["function_name"].(string)
			tc.Success, _ = re.Attributes["success"].(bool)
			tc.Duration = time.Duration(asFloat(re.Attributes["duration_ms"])) * time.Millisecond
			if args, ok := re.Attributes["args"].(map[string]any); ok {
				tc.Args = args
			}
			ev.ToolCall = tc
			result.ToolCalls = append(result.ToolCalls, *tc)

		default:
			ev.Kind = domain.EventUnknown
			ev.Raw = re.Attributes
		}

		events = append(events, ev)
	}

	attachToolResults(result)
	return result, events
}

func asFloat(v any) float64 {
	f, _ := v.(float64)
	return f
}

// functionResponsePattern finds `functionResponse` entries in the
// accumulated conversation history text, used to attach a tool's result
// back onto its call record when the streamed tool_call event didn't
// carry one.
var functionResponsePattern = regexp.MustCompile(`"functionResponse"\s*:\s*\{\s*"name"\s*:\s*"([^"]+)"[^}]*"response"\s*:\s*"([^"]*)"`)

func attachToolResults(t *domain.Telemetry) {
	matches := functionResponsePattern.FindAllStringSubmatch(t.ConversationHistory, -1)
	if len(matches) == 0 {
		return
	}

	responsesByName := make(map[string][]string)
	for _, m := range matches {
		responsesByName[m[1]] = append(responsesByName[m[1]], m[2])
	}

	for i := range t.ToolCalls {
		tc := &t.ToolCalls[i]
		if tc.Result != "" {
			continue
		}
		queue := responsesByName[tc.Name]
		if len(queue) == 0 {
			continue
		}
		tc.Result = queue[0]
		responsesByName[tc.Name] = queue[1:]
	}
}

package anthropic

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestNewUserMessage(t *testing.T) {
	m := NewUserMessage("hello")
	if m.Role != RoleUser {
		t.Errorf("got role %q, want %q", m.Role, RoleUser)
	}
	if m.Text() != "hello" {
		t.Errorf("got text %q, want %q", m.Text(), "hello")
	}
}

func TestNewAssistantMessage(t *testing.T) {
	m := NewAssistantMessage("hi there")
	if m.Role != RoleAssistant {
		t.Errorf("got role %q, want %q", m.Role, RoleAssistant)
	}
	if m.Text() != "hi there" {
		t.Errorf("got text %q, want %q", m.Text(), "hi there")
	}
}

func TestMessageTextConcatenatesAllTextBlocks(t *testing.T) {
	m := NewBlocksMessage(RoleAssistant,
		TextBlock("hello "),
		ToolUseBlock("t1", "calc", []byte(`{}`)),
		TextBlock("world"),
	)
	if got := m.Text(); got != "hello world" {
		t.Errorf("got %q, want %q", got, "hello world")
	}
}

func TestMessageTextEmptyWhenNoTextBlocks(t *testing.T) {
	m := NewBlocksMessage(RoleAssistant, ToolUseBlock("t1", "calc", []byte(`{}`)))
	if got := m.Text(); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}

func TestContentUnmarshalStringShorthand(t *testing.T) {
	var m Message
	if err := json.Unmarshal([]byte(`{"role":"user","content":"just text"}`), &m); err != nil {
		t.Fatal(err)
	}
	if len(m.Content) != 1 || m.Content[0].Type != BlockTypeText {
		t.Fatalf("Content = %+v", m.Content)
	}
	if m.Text() != "just text" {
		t.Errorf("Text = %q", m.Text())
	}
}

func TestContentUnmarshalBlockArray(t *testing.T) {
	var m Message
	data := `{"role":"assistant","content":[{"type":"text","text":"a"},{"type":"tool_use","id":"t1","name":"calc","input":{"x":1}}]}`
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		t.Fatal(err)
	}
	if len(m.Content) != 2 {
		t.Fatalf("Content len = %d", len(m.Content))
	}
	if m.Content[1].ID != "t1" || m.Content[1].Name != "calc" {
		t.Errorf("tool_use block = %+v", m.Content[1])
	}
}

func TestRequestWireShape(t *testing.T) {
	req := NewRequest("claude-sonnet-4-5", []Message{NewUserMessage("hi")}, 1024)
	req.System = SystemText("be brief")
	req.Tools = []Tool{NewTool("get_weather", "Get weather", StringParam("location"))}
	req.ToolChoice = ToolChoiceAuto()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["model"] != "claude-sonnet-4-5" {
		t.Errorf("model = %v", m["model"])
	}
	if m["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v", m["max_tokens"])
	}
	if m["system"] != "be brief" {
		t.Errorf("system = %v", m["system"])
	}
	if _, ok := m["stream"]; ok {
		t.Error("stream should be omitted when unset")
	}
	tc, ok := m["tool_choice"].(map[string]any)
	if !ok || tc["type"] != "auto" {
		t.Errorf("tool_choice = %v", m["tool_choice"])
	}
	tools, ok := m["tools"].([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("tools = %v", m["tools"])
	}
	tool := tools[0].(map[string]any)
	schema := tool["input_schema"].(map[string]any)
	if schema["type"] != "object" {
		t.Errorf("input_schema.type = %v", schema["type"])
	}
	required := schema["required"].([]any)
	if len(required) != 1 || required[0] != "location" {
		t.Errorf("required = %v", required)
	}
}

func TestToolResultBlockWireShape(t *testing.T) {
	block := ToolResultBlock("t1", "42", false)
	data, err := json.Marshal(block)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"tool_result","tool_use_id":"t1","content":"42"}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestToolResultContentBlocks(t *testing.T) {
	content := ToolResultContent{Blocks: []ContentBlock{TextBlock("a"), TextBlock("b")}}
	data, err := json.Marshal(content)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "[") {
		t.Errorf("expected array, got %s", data)
	}

	var back ToolResultContent
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if len(back.Blocks) != 2 {
		t.Errorf("Blocks len = %d", len(back.Blocks))
	}
}

func TestSystemPromptBlocksWithCache(t *testing.T) {
	sp := SystemBlocks(NewSystemBlock("you are helpful").WithCacheControl(EphemeralCache()))
	data, err := json.Marshal(sp)
	if err != nil {
		t.Fatal(err)
	}
	want := `[{"type":"text","text":"you are helpful","cache_control":{"type":"ephemeral"}}]`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestResponseUnmarshal(t *testing.T) {
	body := `{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-5",
		"content": [
			{"type": "text", "text": "Let me check."},
			{"type": "tool_use", "id": "t1", "name": "get_weather", "input": {"location": "SF"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 10, "output_tokens": 5}
	}`
	var resp Response
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.StopReason != StopReasonToolUse {
		t.Errorf("StopReason = %q", resp.StopReason)
	}
	if resp.Text() != "Let me check." {
		t.Errorf("Text = %q", resp.Text())
	}
	uses := resp.ToolUses()
	if len(uses) != 1 || uses[0].ID != "t1" || uses[0].Name != "get_weather" {
		t.Fatalf("ToolUses = %+v", uses)
	}
	var args map[string]any
	if err := json.Unmarshal(uses[0].Input, &args); err != nil {
		t.Fatal(err)
	}
	if args["location"] != "SF" {
		t.Errorf("location = %v", args["location"])
	}
	if resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
}

func TestUsageAdd(t *testing.T) {
	a := Usage{InputTokens: 10, OutputTokens: 5, CacheReadInputTokens: 3}
	b := Usage{InputTokens: 1, OutputTokens: 2, CacheCreationInputTokens: 4}
	sum := a.Add(b)
	if sum.InputTokens != 11 || sum.OutputTokens != 7 {
		t.Errorf("sum = %+v", sum)
	}
	if sum.CacheReadInputTokens != 3 || sum.CacheCreationInputTokens != 4 {
		t.Errorf("cache tokens = %+v", sum)
	}
}

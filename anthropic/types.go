package anthropic

import (
	"encoding/json"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Content block discriminator values as they appear on the wire.
const (
	BlockTypeText       = "text"
	BlockTypeImage      = "image"
	BlockTypeToolUse    = "tool_use"
	BlockTypeToolResult = "tool_result"
)

// CacheControl marks a block as a prompt-cache breakpoint.
type CacheControl struct {
	Type string `json:"type"`
	TTL  string `json:"ttl,omitempty"`
}

// EphemeralCache returns the default 5-minute cache breakpoint.
func EphemeralCache() *CacheControl { return &CacheControl{Type: "ephemeral"} }

// EphemeralCache1h returns a cache breakpoint with a 1-hour TTL.
func EphemeralCache1h() *CacheControl { return &CacheControl{Type: "ephemeral", TTL: "1h"} }

// ImageSource holds image data, either inline base64 or a remote URL.
type ImageSource struct {
	Type      string `json:"type"` // "base64" or "url"
	MediaType string `json:"media_type,omitempty"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// ContentBlock is a tagged union — only the fields matching Type are populated.
// The set of block kinds is closed: text, image, tool_use, tool_result.
type ContentBlock struct {
	Type string `json:"type"`

	// Type == "text"
	Text string `json:"text,omitempty"`

	// Type == "image"
	Source *ImageSource `json:"source,omitempty"`

	// Type == "tool_use" (response-only)
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// Type == "tool_result" (request-only)
	ToolUseID string             `json:"tool_use_id,omitempty"`
	Content   *ToolResultContent `json:"content,omitempty"`
	IsError   bool               `json:"is_error,omitempty"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// TextBlock creates a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockTypeText, Text: text}
}

// ImageBlock creates an image block with inline base64 data.
func ImageBlock(mediaType, data string) ContentBlock {
	return ContentBlock{
		Type:   BlockTypeImage,
		Source: &ImageSource{Type: "base64", MediaType: mediaType, Data: data},
	}
}

// ImageURLBlock creates an image block referencing a remote URL.
func ImageURLBlock(url string) ContentBlock {
	return ContentBlock{
		Type:   BlockTypeImage,
		Source: &ImageSource{Type: "url", URL: url},
	}
}

// ToolUseBlock creates a tool_use block. Normally these come back from the
// API; the constructor exists for priming conversations and for tests.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{Type: BlockTypeToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock creates a tool_result block with text content.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	return ContentBlock{
		Type:      BlockTypeToolResult,
		ToolUseID: toolUseID,
		Content:   &ToolResultContent{Text: content},
		IsError:   isError,
	}
}

// ToolResultContent is either plain text or a sequence of content blocks.
// Blocks wins when both are set.
type ToolResultContent struct {
	Text   string
	Blocks []ContentBlock
}

func (t ToolResultContent) MarshalJSON() ([]byte, error) {
	if t.Blocks != nil {
		return json.Marshal(t.Blocks)
	}
	return json.Marshal(t.Text)
}

func (t *ToolResultContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.Text)
	}
	return json.Unmarshal(data, &t.Blocks)
}

// Content is an ordered sequence of content blocks. The API accepts a bare
// string as shorthand for a single text block; UnmarshalJSON handles both
// forms. Marshaling always emits the block array, which is valid either way.
type Content []ContentBlock

func (c *Content) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		*c = Content{TextBlock(text)}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*c = blocks
	return nil
}

// Text concatenates all text blocks in order.
func (c Content) Text() string {
	var b strings.Builder
	for _, block := range c {
		if block.Type == BlockTypeText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// Message is a single turn in a conversation.
type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// NewUserMessage creates a user message with a single text block.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Content: Content{TextBlock(text)}}
}

// NewAssistantMessage creates an assistant message with a single text block.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: Content{TextBlock(text)}}
}

// NewBlocksMessage creates a message from explicit content blocks.
func NewBlocksMessage(role Role, blocks ...ContentBlock) Message {
	return Message{Role: role, Content: blocks}
}

// Text concatenates all text blocks in the message.
func (m Message) Text() string { return m.Content.Text() }

// SystemBlock is one block of a structured system prompt.
type SystemBlock struct {
	Type         string        `json:"type"`
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// NewSystemBlock creates a text system block.
func NewSystemBlock(text string) SystemBlock {
	return SystemBlock{Type: BlockTypeText, Text: text}
}

// WithCacheControl returns a copy of the block with a cache breakpoint set.
func (b SystemBlock) WithCacheControl(cc *CacheControl) SystemBlock {
	b.CacheControl = cc
	return b
}

// SystemPrompt is either a plain string or a sequence of system blocks.
// Blocks wins when both are set.
type SystemPrompt struct {
	Text   string
	Blocks []SystemBlock
}

// SystemText wraps a plain-text system prompt.
func SystemText(text string) *SystemPrompt { return &SystemPrompt{Text: text} }

// SystemBlocks wraps a structured system prompt.
func SystemBlocks(blocks ...SystemBlock) *SystemPrompt { return &SystemPrompt{Blocks: blocks} }

func (s SystemPrompt) MarshalJSON() ([]byte, error) {
	if s.Blocks != nil {
		return json.Marshal(s.Blocks)
	}
	return json.Marshal(s.Text)
}

func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Text)
	}
	return json.Unmarshal(data, &s.Blocks)
}

// CreateMessageRequest is the body of a Messages API call.
type CreateMessageRequest struct {
	Model         string            `json:"model"`
	Messages      []Message         `json:"messages"`
	MaxTokens     int               `json:"max_tokens"`
	System        *SystemPrompt     `json:"system,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	StopSequences []string          `json:"stop_sequences,omitempty"`
	Stream        bool              `json:"stream,omitempty"`
	Temperature   *float64          `json:"temperature,omitempty"`
	TopP          *float64          `json:"top_p,omitempty"`
	TopK          *int              `json:"top_k,omitempty"`
	Tools         []Tool            `json:"tools,omitempty"`
	ToolChoice    *ToolChoice       `json:"tool_choice,omitempty"`
}

// NewRequest creates a request with the required parameters set.
func NewRequest(model string, messages []Message, maxTokens int) *CreateMessageRequest {
	return &CreateMessageRequest{
		Model:     model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}
}

// NewSimpleRequest creates a single-turn text request.
func NewSimpleRequest(model, prompt string, maxTokens int) *CreateMessageRequest {
	return NewRequest(model, []Message{NewUserMessage(prompt)}, maxTokens)
}

// StopReason is the provider's classification of why a turn ended. Values the
// client does not recognize pass through unchanged.
type StopReason string

const (
	StopReasonEndTurn      StopReason = "end_turn"
	StopReasonMaxTokens    StopReason = "max_tokens"
	StopReasonStopSequence StopReason = "stop_sequence"
	StopReasonToolUse      StopReason = "tool_use"
)

// Usage contains token counts reported by the API.
type Usage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
}

// Add sums two Usage values.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:              u.InputTokens + other.InputTokens,
		OutputTokens:             u.OutputTokens + other.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + other.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + other.CacheReadInputTokens,
	}
}

// Response is a successful Messages API response.
type Response struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         Role           `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   StopReason     `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        Usage          `json:"usage"`
}

// Text returns concatenated text from all text blocks in the response.
func (r *Response) Text() string {
	var b strings.Builder
	for _, block := range r.Content {
		if block.Type == BlockTypeText {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// ToolUses returns all tool_use blocks from the response, in order.
func (r *Response) ToolUses() []ContentBlock {
	var uses []ContentBlock
	for _, block := range r.Content {
		if block.Type == BlockTypeToolUse {
			uses = append(uses, block)
		}
	}
	return uses
}

package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
)

// defaultMaxToolIterations caps CompleteToolLoop turns so a model that keeps
// requesting tools cannot loop forever.
const defaultMaxToolIterations = 10

// PendingToolUse is a model-requested tool invocation awaiting its result.
type PendingToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// ParseArgs unmarshals the tool use's JSON input into a ToolArgs map.
func (p PendingToolUse) ParseArgs() (ToolArgs, error) {
	args := make(ToolArgs)
	if len(p.Input) > 0 {
		if err := json.Unmarshal(p.Input, &args); err != nil {
			return nil, err
		}
	}
	return args, nil
}

// Result creates a successful tool result for this use.
func (p PendingToolUse) Result(content string) ToolResult {
	return NewToolResult(p.ID, content)
}

// ErrorResult creates an error tool result for this use.
func (p PendingToolUse) ErrorResult(content string) ToolResult {
	return NewToolError(p.ID, content)
}

// ToolResult is the caller-supplied outcome of executing a tool use.
type ToolResult struct {
	ToolUseID string
	Content   ToolResultContent
	IsError   bool
}

// NewToolResult creates a successful tool result with text content.
func NewToolResult(toolUseID, content string) ToolResult {
	return ToolResult{ToolUseID: toolUseID, Content: ToolResultContent{Text: content}}
}

// NewToolError creates an error tool result.
func NewToolError(toolUseID, message string) ToolResult {
	return ToolResult{ToolUseID: toolUseID, Content: ToolResultContent{Text: message}, IsError: true}
}

// ToolExecutor resolves one pending tool use. It may block on its own I/O;
// CompleteToolLoop invokes it serially, in request order.
type ToolExecutor func(ctx context.Context, use PendingToolUse) (ToolResult, error)

// Update is the per-turn summary handed back to the caller. It is derived
// from the latest response, not stored.
type Update struct {
	// TextParts holds the text blocks of the assistant turn, in order.
	TextParts []string
	// ToolUses holds the tool uses requested in this turn, in order.
	ToolUses []PendingToolUse
	// StopReason for this turn.
	StopReason StopReason
	// Usage reported for this turn.
	Usage Usage
}

// Text returns the concatenated assistant text, empty if the turn had none.
func (u *Update) Text() string {
	var b strings.Builder
	for _, part := range u.TextParts {
		b.WriteString(part)
	}
	return b.String()
}

// HasToolUses reports whether this turn requested any tools.
func (u *Update) HasToolUses() bool {
	return len(u.ToolUses) > 0
}

// Conversation tracks a multi-turn dialogue: message history, system prompt,
// tools, and the set of tool uses awaiting results. It is not safe for
// concurrent use; each operation must complete before the next is issued.
type Conversation struct {
	model             string
	maxTokens         int
	system            string
	tools             []Tool
	toolChoice        *ToolChoice
	temperature       *float64
	maxToolIterations int

	messages []Message
	pending  []PendingToolUse
	usage    Usage
}

// ConversationOption configures a Conversation.
type ConversationOption func(*Conversation)

// WithSystem sets the system prompt.
func WithSystem(system string) ConversationOption {
	return func(c *Conversation) { c.system = system }
}

// WithTools sets the tools available to the model.
func WithTools(tools ...Tool) ConversationOption {
	return func(c *Conversation) { c.tools = tools }
}

// WithToolChoice sets the tool selection policy.
func WithToolChoice(tc *ToolChoice) ConversationOption {
	return func(c *Conversation) { c.toolChoice = tc }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ConversationOption {
	return func(c *Conversation) { c.temperature = &t }
}

// WithMaxToolIterations overrides the CompleteToolLoop turn cap.
func WithMaxToolIterations(n int) ConversationOption {
	return func(c *Conversation) { c.maxToolIterations = n }
}

// NewConversation creates a conversation with empty history.
func NewConversation(model string, maxTokens int, opts ...ConversationOption) *Conversation {
	c := &Conversation{
		model:             model,
		maxTokens:         maxTokens,
		maxToolIterations: defaultMaxToolIterations,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// AddUserMessage appends a user text message. It fails while tool uses are
// pending: resolve them with AddToolResult first, otherwise the next send
// would be malformed and rejected by the API.
func (c *Conversation) AddUserMessage(text string) error {
	if err := c.checkNoPending(); err != nil {
		return err
	}
	c.messages = append(c.messages, NewUserMessage(text))
	return nil
}

// AddUserBlocks appends a user message with explicit content blocks (images,
// mixed content). Like AddUserMessage, it fails while tool uses are pending.
func (c *Conversation) AddUserBlocks(blocks ...ContentBlock) error {
	if err := c.checkNoPending(); err != nil {
		return err
	}
	c.messages = append(c.messages, NewBlocksMessage(RoleUser, blocks...))
	return nil
}

func (c *Conversation) checkNoPending() error {
	if len(c.pending) > 0 {
		return callerError("%d tool use(s) awaiting results; resolve them with AddToolResult before adding user content", len(c.pending))
	}
	return nil
}

// AddAssistantMessage appends an assistant text message, useful for priming
// a conversation with examples.
func (c *Conversation) AddAssistantMessage(text string) {
	c.messages = append(c.messages, NewAssistantMessage(text))
}

// AddAssistantBlocks appends an assistant message with explicit blocks.
func (c *Conversation) AddAssistantBlocks(blocks ...ContentBlock) {
	c.messages = append(c.messages, NewBlocksMessage(RoleAssistant, blocks...))
}

// AddToolResult supplies the result for one pending tool use, appending a
// user message with a single tool_result block. It fails if the id is not
// pending (unknown, already resolved, or orphaned by a newer turn), leaving
// history and the pending set unchanged.
func (c *Conversation) AddToolResult(toolUseID, content string, isError bool) error {
	result := NewToolResult(toolUseID, content)
	result.IsError = isError
	return c.AddToolResults(result)
}

// AddToolResults supplies results for several pending tool uses as a single
// user message, which is what the API expects when one turn requested
// multiple tools. All ids are validated against the pending set before any
// state changes, so a failure leaves the conversation untouched.
func (c *Conversation) AddToolResults(results ...ToolResult) error {
	if len(results) == 0 {
		return nil
	}

	remaining := slices.Clone(c.pending)
	for _, r := range results {
		i := slices.IndexFunc(remaining, func(p PendingToolUse) bool { return p.ID == r.ToolUseID })
		if i < 0 {
			return callerError("no pending tool use with id %q", r.ToolUseID)
		}
		remaining = slices.Delete(remaining, i, i+1)
	}

	blocks := make([]ContentBlock, 0, len(results))
	for _, r := range results {
		content := r.Content
		blocks = append(blocks, ContentBlock{
			Type:      BlockTypeToolResult,
			ToolUseID: r.ToolUseID,
			Content:   &content,
			IsError:   r.IsError,
		})
	}

	c.messages = append(c.messages, NewBlocksMessage(RoleUser, blocks...))
	c.pending = remaining
	return nil
}

// BuildRequest snapshots the conversation into a request.
func (c *Conversation) BuildRequest() *CreateMessageRequest {
	req := NewRequest(c.model, slices.Clone(c.messages), c.maxTokens)
	if c.system != "" {
		req.System = SystemText(c.system)
	}
	if len(c.tools) > 0 {
		req.Tools = c.tools
	}
	req.ToolChoice = c.toolChoice
	req.Temperature = c.temperature
	return req
}

// Send issues one API call from the current history and applies the reply.
// On success the assistant turn is appended, the pending set is replaced by
// this turn's tool uses (tool uses from older turns are dropped), and usage
// is accumulated. On failure nothing changes, so the caller can retry the
// same logical operation without duplicating messages.
func (c *Conversation) Send(ctx context.Context, client Sender) (*Update, error) {
	if c.model == "" {
		return nil, callerError("conversation has no model")
	}
	if c.maxTokens <= 0 {
		return nil, callerError("conversation max tokens must be positive")
	}

	resp, err := client.Messages(ctx, c.BuildRequest())
	if err != nil {
		return nil, err
	}

	var blocks []ContentBlock
	var textParts []string
	var pending []PendingToolUse
	for _, block := range resp.Content {
		switch block.Type {
		case BlockTypeText:
			textParts = append(textParts, block.Text)
			blocks = append(blocks, TextBlock(block.Text))
		case BlockTypeToolUse:
			pending = append(pending, PendingToolUse{ID: block.ID, Name: block.Name, Input: block.Input})
			blocks = append(blocks, ToolUseBlock(block.ID, block.Name, block.Input))
		}
	}

	if len(blocks) > 0 {
		c.messages = append(c.messages, NewBlocksMessage(RoleAssistant, blocks...))
	}
	c.pending = pending
	c.usage = c.usage.Add(resp.Usage)

	return &Update{
		TextParts:  textParts,
		ToolUses:   slices.Clone(pending),
		StopReason: resp.StopReason,
		Usage:      resp.Usage,
	}, nil
}

// SendUserMessage appends a user message and sends in one step. If the
// append fails the send is not attempted.
func (c *Conversation) SendUserMessage(ctx context.Context, client Sender, text string) (*Update, error) {
	if err := c.AddUserMessage(text); err != nil {
		return nil, err
	}
	return c.Send(ctx, client)
}

// CompleteToolLoop drives the conversation until the model stops requesting
// tools: resolve any pending uses through the executor (serially, in request
// order), send, repeat. It returns every Update produced along the way.
//
// An executor failure aborts the loop and surfaces the error; results from
// earlier turns remain in history. Exceeding the iteration cap yields an
// ErrToolLoop error rather than truncating silently.
func (c *Conversation) CompleteToolLoop(ctx context.Context, client Sender, executor ToolExecutor) ([]Update, error) {
	var updates []Update

	for i := 0; i < c.maxToolIterations; i++ {
		if len(c.pending) > 0 {
			results := make([]ToolResult, 0, len(c.pending))
			for _, use := range slices.Clone(c.pending) {
				result, err := executor(ctx, use)
				if err != nil {
					return updates, fmt.Errorf("execute tool %q (%s): %w", use.Name, use.ID, err)
				}
				results = append(results, result)
			}
			if err := c.AddToolResults(results...); err != nil {
				return updates, err
			}
		}

		update, err := c.Send(ctx, client)
		if err != nil {
			return updates, err
		}
		updates = append(updates, *update)

		if !update.HasToolUses() {
			return updates, nil
		}
	}

	return updates, &Error{
		Kind:    ErrToolLoop,
		Message: fmt.Sprintf("no final response after %d turns", c.maxToolIterations),
	}
}

// Fork returns an independent copy of the conversation: history, settings,
// pending set, and accumulated usage. Mutating either copy never affects the
// other.
func (c *Conversation) Fork() *Conversation {
	fork := &Conversation{
		model:             c.model,
		maxTokens:         c.maxTokens,
		system:            c.system,
		tools:             slices.Clone(c.tools),
		maxToolIterations: c.maxToolIterations,
		messages:          cloneMessages(c.messages),
		pending:           slices.Clone(c.pending),
		usage:             c.usage,
	}
	if c.toolChoice != nil {
		tc := *c.toolChoice
		fork.toolChoice = &tc
	}
	if c.temperature != nil {
		t := *c.temperature
		fork.temperature = &t
	}
	return fork
}

func cloneMessages(messages []Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = Message{Role: m.Role, Content: slices.Clone(m.Content)}
	}
	return out
}

// Clear empties the history and pending set, retaining model, max tokens,
// system prompt, tools, and tool choice. Accumulated usage is kept as
// lifetime telemetry.
func (c *Conversation) Clear() {
	c.messages = nil
	c.pending = nil
}

// Messages returns a copy of the message history.
func (c *Conversation) Messages() []Message {
	return slices.Clone(c.messages)
}

// HasPendingToolUses reports whether any tool uses await results.
func (c *Conversation) HasPendingToolUses() bool {
	return len(c.pending) > 0
}

// PendingToolUses returns a copy of the pending set, in request order.
func (c *Conversation) PendingToolUses() []PendingToolUse {
	return slices.Clone(c.pending)
}

// Usage returns token usage accumulated across all sends.
func (c *Conversation) Usage() Usage {
	return c.usage
}

package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

type mockInvoker struct {
	input  *bedrockruntime.InvokeModelInput
	output *bedrockruntime.InvokeModelOutput
	err    error
}

func (m *mockInvoker) InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	m.input = params
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func TestBedrockMessages(t *testing.T) {
	respBody, _ := json.Marshal(Response{
		ID:         "msg_01",
		Role:       RoleAssistant,
		Content:    []ContentBlock{TextBlock("Hello!")},
		StopReason: StopReasonEndTurn,
		Usage:      Usage{InputTokens: 10, OutputTokens: 5},
	})
	invoker := &mockInvoker{output: &bedrockruntime.InvokeModelOutput{Body: respBody}}
	client := NewBedrockClientWithInvoker(invoker)

	req := NewSimpleRequest("anthropic.claude-sonnet-4-5-v1:0", "hi", 1024)
	req.Stream = true // must not reach the wire
	resp, err := client.Messages(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text() != "Hello!" {
		t.Errorf("Text = %q", resp.Text())
	}

	if aws.ToString(invoker.input.ModelId) != "anthropic.claude-sonnet-4-5-v1:0" {
		t.Errorf("ModelId = %q", aws.ToString(invoker.input.ModelId))
	}
	if aws.ToString(invoker.input.ContentType) != "application/json" {
		t.Errorf("ContentType = %q", aws.ToString(invoker.input.ContentType))
	}

	var body map[string]any
	if err := json.Unmarshal(invoker.input.Body, &body); err != nil {
		t.Fatal(err)
	}
	if body["anthropic_version"] != bedrockAnthropicVersion {
		t.Errorf("anthropic_version = %v", body["anthropic_version"])
	}
	if _, ok := body["model"]; ok {
		t.Error("model belongs in ModelId, not the body")
	}
	if _, ok := body["stream"]; ok {
		t.Error("stream should be stripped from the body")
	}
	if body["max_tokens"] != float64(1024) {
		t.Errorf("max_tokens = %v", body["max_tokens"])
	}
}

func TestBedrockMessagesValidation(t *testing.T) {
	client := NewBedrockClientWithInvoker(&mockInvoker{})
	_, err := client.Messages(context.Background(), NewSimpleRequest("", "hi", 100))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != ErrCaller {
		t.Errorf("expected caller error, got %v", err)
	}
}

func TestBedrockMessagesDecodeError(t *testing.T) {
	invoker := &mockInvoker{output: &bedrockruntime.InvokeModelOutput{Body: []byte(`{"id": 42}`)}}
	client := NewBedrockClientWithInvoker(invoker)
	_, err := client.Messages(context.Background(), NewSimpleRequest("model", "hi", 100))
	var apiErr *Error
	if !errors.As(err, &apiErr) || apiErr.Kind != ErrDecode {
		t.Errorf("expected decode error, got %v", err)
	}
}

func TestClassifyBedrockError(t *testing.T) {
	msg := aws.String("nope")
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"access denied", &types.AccessDeniedException{Message: msg}, ErrAuthentication},
		{"validation", &types.ValidationException{Message: msg}, ErrInvalidRequest},
		{"not found", &types.ResourceNotFoundException{Message: msg}, ErrNotFound},
		{"throttling", &types.ThrottlingException{Message: msg}, ErrRateLimit},
		{"model timeout", &types.ModelTimeoutException{Message: msg}, ErrServer},
		{"internal", &types.InternalServerException{Message: msg}, ErrServer},
		{"model error", &types.ModelErrorException{Message: msg}, ErrServer},
		{"wrapped throttling", fmt.Errorf("operation failed: %w", &types.ThrottlingException{Message: msg}), ErrRateLimit},
		{"unknown", fmt.Errorf("dial tcp: connection refused"), ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := classifyBedrockError(tt.err)
			if e.Kind != tt.want {
				t.Errorf("Kind = %v, want %v", e.Kind, tt.want)
			}
			if !errors.Is(e, tt.err) {
				t.Error("classified error should wrap the cause")
			}
		})
	}
}

func TestBedrockConversation(t *testing.T) {
	respBody, _ := json.Marshal(Response{
		ID:         "msg_01",
		Role:       RoleAssistant,
		Content:    []ContentBlock{TextBlock("Hi from Bedrock")},
		StopReason: StopReasonEndTurn,
		Usage:      Usage{InputTokens: 8, OutputTokens: 4},
	})
	invoker := &mockInvoker{output: &bedrockruntime.InvokeModelOutput{Body: respBody}}
	client := NewBedrockClientWithInvoker(invoker)

	conv := NewConversation("anthropic.claude-sonnet-4-5-v1:0", 512)
	update, err := conv.SendUserMessage(context.Background(), client, "hello")
	if err != nil {
		t.Fatal(err)
	}
	if update.Text() != "Hi from Bedrock" {
		t.Errorf("Text = %q", update.Text())
	}
	if len(conv.Messages()) != 2 {
		t.Errorf("messages len = %d", len(conv.Messages()))
	}
}

package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// bedrockAnthropicVersion is the anthropic_version value Bedrock expects in
// the request body; the model itself moves into the InvokeModel ModelId.
const bedrockAnthropicVersion = "bedrock-2023-05-31"

// BedrockInvoker abstracts the Bedrock InvokeModel call for testing.
type BedrockInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockClient sends Messages API requests to Anthropic models hosted on
// AWS Bedrock. It satisfies Sender, so a Conversation can run against Bedrock
// or the HTTP API interchangeably.
type BedrockClient struct {
	invoker BedrockInvoker
}

var _ Sender = (*BedrockClient)(nil)

// NewBedrockClient creates a BedrockClient from the ambient AWS
// configuration (environment, shared config, instance role).
func NewBedrockClient(ctx context.Context, optFns ...func(*config.LoadOptions) error) (*BedrockClient, error) {
	conf, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, &Error{Kind: ErrConfig, Message: "load aws config", Cause: err}
	}
	return &BedrockClient{invoker: bedrockruntime.NewFromConfig(conf)}, nil
}

// NewBedrockClientWithInvoker creates a BedrockClient around an existing
// invoker, typically a *bedrockruntime.Client or a test double.
func NewBedrockClientWithInvoker(invoker BedrockInvoker) *BedrockClient {
	return &BedrockClient{invoker: invoker}
}

// Messages sends a request through Bedrock InvokeModel. Retry behavior is
// delegated to the AWS SDK's own retryer.
func (c *BedrockClient) Messages(ctx context.Context, req *CreateMessageRequest) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	body, err := bedrockBody(req)
	if err != nil {
		return nil, err
	}

	contentType := "application/json"
	out, err := c.invoker.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     &req.Model,
		Body:        body,
		ContentType: &contentType,
		Accept:      &contentType,
	})
	if err != nil {
		return nil, classifyBedrockError(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, &Error{Kind: ErrDecode, Message: "decode bedrock response", Cause: err, Raw: out.Body}
	}
	return &resp, nil
}

// bedrockBody reshapes a request for InvokeModel: drop model and stream,
// add anthropic_version.
func bedrockBody(req *CreateMessageRequest) ([]byte, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: ErrCaller, Message: "encode request", Cause: err}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &Error{Kind: ErrCaller, Message: "encode request", Cause: err}
	}
	delete(fields, "model")
	delete(fields, "stream")
	fields["anthropic_version"] = json.RawMessage(`"` + bedrockAnthropicVersion + `"`)

	body, err := json.Marshal(fields)
	if err != nil {
		return nil, &Error{Kind: ErrCaller, Message: "encode request", Cause: err}
	}
	return body, nil
}

func classifyBedrockError(err error) *Error {
	var kind ErrorKind

	var accessDenied *types.AccessDeniedException
	var validation *types.ValidationException
	var notFound *types.ResourceNotFoundException
	var throttling *types.ThrottlingException
	var timeout *types.ModelTimeoutException
	var internal *types.InternalServerException
	var modelErr *types.ModelErrorException

	switch {
	case errors.As(err, &accessDenied):
		kind = ErrAuthentication
	case errors.As(err, &validation):
		kind = ErrInvalidRequest
	case errors.As(err, &notFound):
		kind = ErrNotFound
	case errors.As(err, &throttling):
		kind = ErrRateLimit
	case errors.As(err, &timeout):
		kind = ErrServer
	case errors.As(err, &internal):
		kind = ErrServer
	case errors.As(err, &modelErr):
		kind = ErrServer
	default:
		kind = ErrTransport
	}

	return &Error{
		Kind:    kind,
		Message: err.Error(),
		Cause:   err,
	}
}

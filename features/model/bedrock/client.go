// Package bedrock provides a model.Client backed by the AWS Bedrock Converse
// API. It translates dialog completion requests into Converse calls using the
// AWS SDK for Go v2 and maps responses and smithy failures back into the
// generic model structures.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"goa.design/parley/runtime/dialog/model"
)

// providerName identifies this adapter in provider errors.
const providerName = "bedrock"

type (
	// ConverseClient captures the subset of the Bedrock runtime client used
	// by the adapter. It is satisfied by *bedrockruntime.Client so callers
	// can pass either a real client or a mock in tests.
	ConverseClient interface {
		Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	}

	// Options configures the Bedrock adapter.
	Options struct {
		// DefaultModel is the Bedrock model identifier used when
		// model.Request.Model is empty. Required.
		DefaultModel string
		// MaxTokens is the default completion cap when a request does not set
		// MaxTokens. Zero leaves the cap to the provider.
		MaxTokens int
		// Temperature is used when a request does not set Temperature.
		Temperature float32
	}

	// Client implements model.Client on top of Bedrock Converse.
	Client struct {
		runtime      ConverseClient
		defaultModel string
		maxTok       int
		temp         float32
	}
)

// New builds a Bedrock-backed model client.
func New(runtime ConverseClient, opts Options) (*Client, error) {
	if runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		runtime:      runtime,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	input, err := c.encodeRequest(req)
	if err != nil {
		return model.Response{}, err
	}
	output, err := c.runtime.Converse(ctx, input)
	if err != nil {
		return model.Response{}, wrapError("converse", err)
	}
	return decodeResponse(output), nil
}

func (c *Client) encodeRequest(req model.Request) (*bedrockruntime.ConverseInput, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("bedrock: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	conversation := make([]brtypes.Message, 0, len(req.Messages))
	var system []brtypes.SystemContentBlock
	for _, m := range req.Messages {
		if m == nil || m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			system = append(system, &brtypes.SystemContentBlockMemberText{Value: m.Content})
		case model.RoleUser:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleUser,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		case model.RoleAssistant:
			conversation = append(conversation, brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.Content}},
			})
		default:
			return nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return nil, errors.New("bedrock: at least one user or assistant message is required")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: conversation,
	}
	if len(system) > 0 {
		input.System = system
	}
	if cfg := c.inferenceConfig(req.MaxTokens, req.Temperature); cfg != nil {
		input.InferenceConfig = cfg
	}
	return input, nil
}

func (c *Client) inferenceConfig(maxTokens int, temp float32) *brtypes.InferenceConfiguration {
	var cfg brtypes.InferenceConfiguration
	tokens := maxTokens
	if tokens <= 0 {
		tokens = c.maxTok
	}
	if tokens > 0 {
		cfg.MaxTokens = aws.Int32(int32(tokens)) //nolint:gosec // AWS SDK requires int32
	}
	t := temp
	if t <= 0 {
		t = c.temp
	}
	if t > 0 {
		cfg.Temperature = aws.Float32(t)
	}
	if cfg.MaxTokens == nil && cfg.Temperature == nil {
		return nil
	}
	return &cfg
}

func decodeResponse(output *bedrockruntime.ConverseOutput) model.Response {
	var resp model.Response
	if output == nil {
		return resp
	}
	if out, ok := output.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range out.Value.Content {
			text, ok := block.(*brtypes.ContentBlockMemberText)
			if !ok || text.Value == "" {
				continue
			}
			resp.Content = append(resp.Content, model.Message{
				Role:    model.RoleAssistant,
				Content: text.Value,
			})
		}
	}
	if u := output.Usage; u != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(aws.ToInt32(u.InputTokens)),
			OutputTokens: int(aws.ToInt32(u.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(u.TotalTokens)),
		}
	}
	resp.StopReason = string(output.StopReason)
	return resp
}

// isRateLimited reports whether err is provider throttling: an HTTP 429 or a
// throttling error code, whichever surface the SDK reported it on.
func isRateLimited(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429
}

// wrapError maps a smithy failure to a *model.ProviderError so the engine can
// branch on the failure kind without importing the AWS SDK.
func wrapError(operation string, err error) error {
	if isRateLimited(err) {
		return model.NewProviderError(providerName, operation, http.StatusTooManyRequests, model.KindRateLimited, "", true, err)
	}

	var (
		status int
		msg    string
	)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		msg = apiErr.ErrorMessage()
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}

	kind := model.KindUnknown
	retryable := false
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = model.KindAuth
	case status >= http.StatusInternalServerError:
		kind = model.KindUnavailable
		retryable = true
	case status >= http.StatusBadRequest:
		kind = model.KindInvalidRequest
	}
	return model.NewProviderError(providerName, operation, status, kind, msg, retryable, err)
}

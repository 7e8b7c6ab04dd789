// Package anthropic provides a model.Client backed by the Anthropic Claude
// Messages API. It translates dialog completion requests into Messages.New
// calls using github.com/anthropics/anthropic-sdk-go and maps responses and
// provider failures back into the generic model structures.
package anthropic

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"goa.design/parley/runtime/dialog/model"
)

// providerName identifies this adapter in provider errors.
const providerName = "anthropic"

type (
	// MessagesClient captures the subset of the Anthropic SDK used by the
	// adapter. It is satisfied by *sdk.MessageService so callers can pass
	// either a real client or a mock in tests.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the Anthropic adapter.
	Options struct {
		// DefaultModel is the Claude model identifier used when
		// model.Request.Model is empty. Required.
		DefaultModel string
		// MaxTokens is the default completion cap when a request does not set
		// MaxTokens. Defaults to 1024.
		MaxTokens int
		// Temperature is used when a request does not set Temperature.
		Temperature float64
	}

	// Client implements model.Client on top of Claude Messages.
	Client struct {
		msg          MessagesClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds an Anthropic-backed model client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = 1024
	}
	return &Client{
		msg:          msg,
		defaultModel: opts.DefaultModel,
		maxTok:       maxTok,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params, err := c.encodeRequest(req)
	if err != nil {
		return model.Response{}, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return model.Response{}, wrapError(err)
	}
	return decodeResponse(msg), nil
}

func (c *Client) encodeRequest(req model.Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}

	conversation := make([]sdk.MessageParam, 0, len(req.Messages))
	var system []sdk.TextBlockParam
	for _, m := range req.Messages {
		if m == nil || m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			system = append(system, sdk.TextBlockParam{Text: m.Content})
		case model.RoleUser:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return sdk.MessageNewParams{}, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	if len(conversation) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: at least one user or assistant message is required")
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
		Model:     sdk.Model(modelID),
	}
	if len(system) > 0 {
		params.System = system
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		params.Temperature = sdk.Float(t)
	}
	return params, nil
}

func (c *Client) effectiveTemperature(requested float32) float64 {
	if requested > 0 {
		return float64(requested)
	}
	return c.temp
}

func decodeResponse(msg *sdk.Message) model.Response {
	var resp model.Response
	if msg == nil {
		return resp
	}
	for _, block := range msg.Content {
		if block.Type != "text" || block.Text == "" {
			continue
		}
		resp.Content = append(resp.Content, model.Message{
			Role:    model.RoleAssistant,
			Content: block.Text,
		})
	}
	if u := msg.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(u.InputTokens),
			OutputTokens: int(u.OutputTokens),
			TotalTokens:  int(u.InputTokens + u.OutputTokens),
		}
	}
	resp.StopReason = string(msg.StopReason)
	return resp
}

// wrapError maps an SDK failure to a *model.ProviderError so the engine can
// branch on the failure kind without importing the Anthropic SDK.
func wrapError(err error) error {
	var apierr *sdk.Error
	if !errors.As(err, &apierr) {
		return model.NewProviderError(providerName, "messages.new", 0, model.KindUnknown, "", false, err)
	}
	status := apierr.StatusCode
	kind, retryable := classifyStatus(status)
	return model.NewProviderError(providerName, "messages.new", status, kind, "", retryable, err)
}

func classifyStatus(status int) (model.ProviderErrorKind, bool) {
	switch {
	case status == 401 || status == 403:
		return model.KindAuth, false
	case status == 429:
		return model.KindRateLimited, true
	case status == 529:
		// Anthropic's overloaded_error.
		return model.KindUnavailable, true
	case status >= 500:
		return model.KindUnavailable, true
	case status >= 400:
		return model.KindInvalidRequest, false
	}
	return model.KindUnknown, false
}

// Package openai provides a model.Client backed by the OpenAI Chat
// Completions API. It translates dialog completion requests into
// Chat.Completions.New calls using github.com/openai/openai-go and maps
// responses and provider failures back into the generic model structures.
package openai

import (
	"context"
	"errors"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"goa.design/parley/runtime/dialog/model"
)

// providerName identifies this adapter in provider errors.
const providerName = "openai"

type (
	// ChatClient captures the subset of the OpenAI SDK used by the adapter.
	// It is satisfied by *sdk.ChatCompletionService so callers can pass
	// either a real client or a mock in tests.
	ChatClient interface {
		New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
	}

	// Options configures the OpenAI adapter.
	Options struct {
		// DefaultModel is the model identifier used when model.Request.Model
		// is empty. Required.
		DefaultModel string
		// MaxTokens is the default completion cap when a request does not set
		// MaxTokens. Zero leaves the cap to the provider.
		MaxTokens int
		// Temperature is used when a request does not set Temperature.
		Temperature float64
	}

	// Client implements model.Client on top of Chat Completions.
	Client struct {
		chat         ChatClient
		defaultModel string
		maxTok       int
		temp         float64
	}
)

// New builds an OpenAI-backed model client.
func New(chat ChatClient, opts Options) (*Client, error) {
	if chat == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	return &Client{
		chat:         chat,
		defaultModel: opts.DefaultModel,
		maxTok:       opts.MaxTokens,
		temp:         opts.Temperature,
	}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	oc := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&oc.Chat.Completions, Options{DefaultModel: defaultModel})
}

// Complete implements model.Client.
func (c *Client) Complete(ctx context.Context, req model.Request) (model.Response, error) {
	params, err := c.encodeRequest(req)
	if err != nil {
		return model.Response{}, err
	}
	completion, err := c.chat.New(ctx, params)
	if err != nil {
		return model.Response{}, wrapError(err)
	}
	return decodeResponse(completion), nil
}

func (c *Client) encodeRequest(req model.Request) (sdk.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}

	msgs := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m == nil || m.Content == "" {
			continue
		}
		switch m.Role {
		case model.RoleSystem:
			msgs = append(msgs, sdk.SystemMessage(m.Content))
		case model.RoleUser:
			msgs = append(msgs, sdk.UserMessage(m.Content))
		case model.RoleAssistant:
			msgs = append(msgs, sdk.AssistantMessage(m.Content))
		default:
			return sdk.ChatCompletionNewParams{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return sdk.ChatCompletionNewParams{}, errors.New("openai: at least one non-empty message is required")
	}

	params := sdk.ChatCompletionNewParams{
		Messages: msgs,
		Model:    sdk.ChatModel(modelID),
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens > 0 {
		params.MaxTokens = sdk.Int(int64(maxTokens))
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

func decodeResponse(completion *sdk.ChatCompletion) model.Response {
	var resp model.Response
	if completion == nil {
		return resp
	}
	for _, choice := range completion.Choices {
		if choice.Message.Content == "" {
			continue
		}
		resp.Content = append(resp.Content, model.Message{
			Role:    model.RoleAssistant,
			Content: choice.Message.Content,
		})
		if resp.StopReason == "" {
			resp.StopReason = choice.FinishReason
		}
	}
	if u := completion.Usage; u.PromptTokens != 0 || u.CompletionTokens != 0 {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(u.PromptTokens),
			OutputTokens: int(u.CompletionTokens),
			TotalTokens:  int(u.TotalTokens),
		}
	}
	return resp
}

// wrapError maps an SDK failure to a *model.ProviderError so the engine can
// branch on the failure kind without importing the OpenAI SDK.
func wrapError(err error) error {
	var apierr *sdk.Error
	if !errors.As(err, &apierr) {
		return model.NewProviderError(providerName, "chat.completions.new", 0, model.KindUnknown, "", false, err)
	}
	status := apierr.StatusCode
	kind, retryable := classifyStatus(status)
	return model.NewProviderError(providerName, "chat.completions.new", status, kind, "", retryable, err)
}

func classifyStatus(status int) (model.ProviderErrorKind, bool) {
	switch {
	case status == 401 || status == 403:
		return model.KindAuth, false
	case status == 429:
		return model.KindRateLimited, true
	case status >= 500:
		return model.KindUnavailable, true
	case status >= 400:
		return model.KindInvalidRequest, false
	}
	return model.KindUnknown, false
}

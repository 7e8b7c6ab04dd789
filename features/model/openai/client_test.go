package openai

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/parley/runtime/dialog/model"
)

// fakeChat records the last request and plays back a canned response.
type fakeChat struct {
	last sdk.ChatCompletionNewParams
	resp *sdk.ChatCompletion
	err  error
}

func (f *fakeChat) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	f.last = body
	return f.resp, f.err
}

func textCompletion(text string) *sdk.ChatCompletion {
	return &sdk.ChatCompletion{
		Choices: []sdk.ChatCompletionChoice{
			{
				Message:      sdk.ChatCompletionMessage{Content: text},
				FinishReason: "stop",
			},
		},
		Usage: sdk.CompletionUsage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, Options{DefaultModel: "gpt-4o"})
	require.EqualError(t, err, "openai client is required")

	_, err = New(&fakeChat{}, Options{})
	require.EqualError(t, err, "default model identifier is required")
}

func TestCompleteEncodesRequest(t *testing.T) {
	fake := &fakeChat{resp: textCompletion(`{"action":"handle_objection"}`)}
	c, err := New(fake, Options{DefaultModel: "gpt-4o", MaxTokens: 256, Temperature: 0.3})
	require.NoError(t, err)

	resp, err := c.Complete(context.Background(), model.Request{
		Messages: []*model.Message{
			{Role: model.RoleSystem, Content: "you decide the next dialog action"},
			{Role: model.RoleUser, Content: "that is too expensive"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, sdk.ChatModel("gpt-4o"), fake.last.Model)
	assert.Equal(t, int64(256), fake.last.MaxTokens.Value)
	assert.InDelta(t, 0.3, fake.last.Temperature.Value, 1e-6)
	assert.Len(t, fake.last.Messages, 2)

	assert.Equal(t, `{"action":"handle_objection"}`, resp.Text())
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, model.TokenUsage{InputTokens: 20, OutputTokens: 8, TotalTokens: 28}, resp.Usage)
}

func TestCompleteRequestOverrides(t *testing.T) {
	fake := &fakeChat{resp: textCompletion("ok")}
	c, err := New(fake, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), model.Request{
		Model:       "gpt-4o-mini",
		MaxTokens:   64,
		Temperature: 0.9,
		Messages:    []*model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, sdk.ChatModel("gpt-4o-mini"), fake.last.Model)
	assert.Equal(t, int64(64), fake.last.MaxTokens.Value)
	assert.InDelta(t, 0.9, fake.last.Temperature.Value, 1e-6)
}

func TestCompleteRejectsEmptyConversation(t *testing.T) {
	c, err := New(&fakeChat{}, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), model.Request{})
	require.EqualError(t, err, "openai: messages are required")

	_, err = c.Complete(context.Background(), model.Request{
		Messages: []*model.Message{{Role: model.RoleUser, Content: ""}},
	})
	require.EqualError(t, err, "openai: at least one non-empty message is required")
}

func TestCompleteWrapsProviderErrors(t *testing.T) {
	cases := []struct {
		status    int
		kind      model.ProviderErrorKind
		retryable bool
	}{
		{401, model.KindAuth, false},
		{404, model.KindInvalidRequest, false},
		{429, model.KindRateLimited, true},
		{503, model.KindUnavailable, true},
	}
	for _, tc := range cases {
		fake := &fakeChat{err: &sdk.Error{StatusCode: tc.status}}
		c, err := New(fake, Options{DefaultModel: "gpt-4o"})
		require.NoError(t, err)

		_, err = c.Complete(context.Background(), model.Request{
			Messages: []*model.Message{{Role: model.RoleUser, Content: "hi"}},
		})
		pe, ok := model.AsProviderError(err)
		require.True(t, ok, "status %d", tc.status)
		assert.Equal(t, providerName, pe.Provider())
		assert.Equal(t, tc.status, pe.HTTPStatus())
		assert.Equal(t, tc.kind, pe.Kind())
		assert.Equal(t, tc.retryable, pe.Retryable())
	}
}

func TestCompleteRateLimitSentinel(t *testing.T) {
	fake := &fakeChat{err: &sdk.Error{StatusCode: 429}}
	c, err := New(fake, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), model.Request{
		Messages: []*model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, model.ErrRateLimited)
}

func TestCompleteNonAPIError(t *testing.T) {
	fake := &fakeChat{err: errors.New("context deadline exceeded")}
	c, err := New(fake, Options{DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), model.Request{
		Messages: []*model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	pe, ok := model.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, model.KindUnknown, pe.Kind())
}

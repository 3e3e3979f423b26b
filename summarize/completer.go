package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/sashabaranov/go-openai"
)

// Completer sends one system prompt and one or more user messages to a chat
// model and returns its answer.
type Completer interface {
	Complete(ctx context.Context, system string, user ...string) (string, error)
}

type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAI{
		client: client,
		model:  model,
	}
}

func (o *OpenAI) Complete(ctx context.Context, system string, user ...string) (string, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: system,
	}}
	for _, u := range user {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: u,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	return resp.Choices[len(resp.Choices)-1].Message.Content, nil
}

type Anthropic struct {
	client    *anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropic(client *anthropic.Client, model string) *Anthropic {
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &Anthropic{
		client:    client,
		model:     model,
		maxTokens: 8192,
	}
}

func (a *Anthropic) Complete(ctx context.Context, system string, user ...string) (string, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(user))
	for _, u := range user {
		blocks = append(blocks, anthropic.NewTextBlock(u))
	}

	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{{
			Text: system,
		}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, content := range resp.Content {
		text.WriteString(content.Text)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("message %s contained no text", resp.ID)
	}

	return text.String(), nil
}

package transcribe

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(client *openai.Client, model string) *OpenAI {
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{
		client: client,
		model:  model,
	}
}

func (o *OpenAI) Transcribe(ctx context.Context, audioPath string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatText,
	})
	if err != nil {
		return "", err
	}

	return resp.Text, nil
}

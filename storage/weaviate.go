package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/fault"
	"github.com/weaviate/weaviate/entities/models"

	"ewintr.nl/hansard/model"
)

const className = "Stream"

type WeaviateInfo struct {
	Scheme       string
	Host         string
	ApiKey       string
	OpenAIApiKey string
}

// Weaviate keeps the summaries searchable by meaning.
type Weaviate struct {
	client *weaviate.Client
}

func NewWeaviate(info WeaviateInfo) (*Weaviate, error) {
	config := weaviate.Config{
		Scheme:  info.Scheme,
		Host:    info.Host,
		Headers: map[string]string{},
	}
	if config.Scheme == "" {
		config.Scheme = "https"
	}
	if info.ApiKey != "" {
		config.AuthConfig = auth.ApiKey{Value: info.ApiKey}
	}
	if info.OpenAIApiKey != "" {
		config.Headers["X-OpenAI-Api-Key"] = info.OpenAIApiKey
	}

	c, err := weaviate.NewClient(config)
	if err != nil {
		return nil, err
	}

	return &Weaviate{client: c}, nil
}

// ResetSchema drops the stream class with all its objects and creates it
// again.
func (w *Weaviate) ResetSchema(ctx context.Context) error {
	if err := w.client.Schema().ClassDeleter().WithClassName(className).Do(ctx); err != nil {
		// a missing class is reported as 400
		var status *fault.WeaviateClientError
		if !errors.As(err, &status) || status.StatusCode != http.StatusBadRequest {
			return err
		}
	}

	classObj := &models.Class{
		Class:      className,
		Vectorizer: "text2vec-openai",
		ModuleConfig: map[string]any{
			"text2vec-openai": map[string]any{
				"model":        "ada",
				"modelVersion": "002",
				"type":         "text",
			},
		},
	}

	return w.client.Schema().ClassCreator().WithClass(classObj).Do(ctx)
}

// Index stores or replaces the summaries of the given streams.
func (w *Weaviate) Index(ctx context.Context, streams []model.Stream) error {
	for _, s := range streams {
		if err := w.save(ctx, s); err != nil {
			return fmt.Errorf("failed to index stream %s: %w", s.ID, err)
		}
	}
	return nil
}

func objectID(s model.Stream) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.URL())).String()
}

func (w *Weaviate) save(ctx context.Context, s model.Stream) error {
	id := objectID(s)
	props := map[string]any{
		"videoId":  s.ID,
		"title":    s.Title,
		"url":      s.URL(),
		"category": string(s.Category()),
		"summary":  s.Summary,
	}

	exists, err := w.client.Data().
		Checker().
		WithID(id).
		WithClassName(className).
		Do(ctx)
	if err != nil {
		return err
	}

	if exists {
		return w.client.Data().
			Updater().
			WithID(id).
			WithClassName(className).
			WithProperties(props).
			Do(ctx)
	}

	_, err = w.client.Data().
		Creator().
		WithClassName(className).
		WithID(id).
		WithProperties(props).
		Do(ctx)

	return err
}

package summarize

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"ewintr.nl/hansard/model"
)

//go:embed prompts.yaml
var defaultPrompts []byte

type Prompts struct {
	System      string `yaml:"system"`
	Summarize   string `yaml:"summarize"`
	Chunk       string `yaml:"chunk"`
	Context     string `yaml:"context"`
	Combine     string `yaml:"combine"`
	UnknownDate string `yaml:"unknown_date"`
}

// LoadPrompts returns the built in prompts, with the fields set in the file
// at path taking precedence. An empty path returns the defaults.
func LoadPrompts(path string) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(defaultPrompts, &p); err != nil {
		return Prompts{}, fmt.Errorf("failed to parse default prompts: %w", err)
	}
	if path == "" {
		return p, nil
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return Prompts{}, fmt.Errorf("failed to read prompts file: %w", err)
	}
	if err := yaml.Unmarshal(body, &p); err != nil {
		return Prompts{}, fmt.Errorf("failed to parse prompts file: %w", err)
	}

	return p, nil
}

func (p Prompts) date(stream model.Stream, now time.Time) string {
	if at, ok := stream.Timestamp(now); ok {
		return at.Format(time.DateOnly)
	}
	return p.UnknownDate
}

func (p Prompts) summarize(stream model.Stream, now time.Time) string {
	return strings.NewReplacer(
		"{{TITLE}}", stream.Title,
		"{{DATE}}", p.date(stream, now),
	).Replace(p.Summarize)
}

func (p Prompts) chunk(chunk, priorContext string) string {
	ctxBlock := ""
	if priorContext != "" {
		ctxBlock = strings.ReplaceAll(p.Context, "{{SUMMARIES}}", priorContext)
	}
	return strings.NewReplacer(
		"{{CONTEXT}}", ctxBlock,
		"{{CHUNK}}", chunk,
	).Replace(p.Chunk)
}

func (p Prompts) combine(stream model.Stream, now time.Time, summaries []string) string {
	return strings.NewReplacer(
		"{{TITLE}}", stream.Title,
		"{{DATE}}", p.date(stream, now),
		"{{SUMMARIES}}", strings.Join(summaries, "\n"),
	).Replace(p.Combine)
}

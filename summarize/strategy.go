package summarize

import (
	"context"
	"strings"
)

// ChunkFunc summarizes one part of a transcript. priorContext holds what is
// known from the parts before it and is empty for the first part.
type ChunkFunc func(ctx context.Context, chunk, priorContext string) (string, error)

// CombineFunc merges the partial summaries into the final one.
type CombineFunc func(ctx context.Context, summaries []string) (string, error)

// SummarizeLinear splits the transcript on delimiter and summarizes the
// non-empty parts in order. Each part gets all previous summaries, joined by
// newlines, as context. The summaries are then combined.
func SummarizeLinear(ctx context.Context, transcript, delimiter string, summarizeChunk ChunkFunc, combine CombineFunc) (string, error) {
	var (
		summaries    []string
		priorContext string
	)
	for _, chunk := range strings.Split(transcript, delimiter) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}

		summary, err := summarizeChunk(ctx, chunk, priorContext)
		if err != nil {
			return "", err
		}
		if priorContext == "" {
			priorContext = summary
		} else {
			priorContext = priorContext + "\n" + summary
		}
		summaries = append(summaries, summary)
	}

	return combine(ctx, summaries)
}

type Window struct {
	Size    int
	Slide   int
	Context int
}

var DefaultWindow = Window{Size: 2000, Slide: 1000, Context: 500}

// SummarizeSlidingWindow walks over the transcript in overlapping windows of
// characters. Each window gets the tail of the accumulated summaries as
// context, at most w.Context characters long.
func SummarizeSlidingWindow(ctx context.Context, transcript string, w Window, summarizeChunk ChunkFunc, combine CombineFunc) (string, error) {
	if w.Size <= 0 || w.Slide <= 0 {
		w = DefaultWindow
	}

	var (
		text         = []rune(transcript)
		summaries    []string
		priorContext []rune
	)
	for start := 0; ; start += w.Slide {
		end := min(start+w.Size, len(text))
		summary, err := summarizeChunk(ctx, string(text[start:end]), string(priorContext))
		if err != nil {
			return "", err
		}
		summaries = append(summaries, summary)

		priorContext = append(priorContext, []rune("\n"+summary)...)
		if len(priorContext) > w.Context {
			priorContext = priorContext[len(priorContext)-w.Context:]
		}

		if end >= len(text) {
			break
		}
	}

	return combine(ctx, summaries)
}

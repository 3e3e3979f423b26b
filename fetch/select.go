package fetch

import (
	"context"
	"sort"
	"time"

	"ewintr.nl/hansard/model"
)

// Discovery lists the streams that are currently available upstream.
type Discovery interface {
	Candidates(ctx context.Context) ([]model.Stream, error)
}

// Acknowledger is implemented by discovery sources that keep their own
// read state and want to hear which streams were persisted.
type Acknowledger interface {
	Acknowledge(ctx context.Context, ids []string) error
}

// Select drops the candidates that are already persisted or carry no
// parseable publish time, orders the rest oldest first and keeps at most
// maxStreams of them. The second return value holds the ids that were left
// out because their publish time could not be parsed.
func Select(candidates []model.Stream, persisted map[string]struct{}, maxStreams int, now time.Time) ([]model.Stream, []string) {
	type dated struct {
		stream model.Stream
		at     time.Time
	}

	var (
		fresh       []dated
		unparseable []string
	)
	for _, c := range candidates {
		if _, ok := persisted[c.ID]; ok {
			continue
		}
		at, ok := c.Timestamp(now)
		if !ok {
			unparseable = append(unparseable, c.ID)
			continue
		}
		fresh = append(fresh, dated{stream: c, at: at})
	}

	sort.SliceStable(fresh, func(i, j int) bool {
		return fresh[i].at.Before(fresh[j].at)
	})

	if maxStreams < 0 {
		maxStreams = 0
	}
	if len(fresh) > maxStreams {
		fresh = fresh[:maxStreams]
	}

	selected := make([]model.Stream, 0, len(fresh))
	for _, d := range fresh {
		selected = append(selected, d.stream)
	}

	return selected, unparseable
}

// IDs returns the ids of the streams in order.
func IDs(streams []model.Stream) []string {
	ids := make([]string, 0, len(streams))
	for _, s := range streams {
		ids = append(ids, s.ID)
	}
	return ids
}

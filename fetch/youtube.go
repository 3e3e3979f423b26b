package fetch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/api/youtube/v3"

	"ewintr.nl/hansard/model"
)

// Youtube discovers the finished live broadcasts of a single channel through
// the YouTube Data API.
type Youtube struct {
	client    *youtube.Service
	channelID string
	pageSize  int64
	now       func() time.Time
}

func NewYoutube(client *youtube.Service, channelID string) *Youtube {
	return &Youtube{
		client:    client,
		channelID: channelID,
		pageSize:  50,
		now:       time.Now,
	}
}

func (y *Youtube) Candidates(ctx context.Context) ([]model.Stream, error) {
	ids, err := y.search(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to search channel %s: %w", y.channelID, err)
	}
	if len(ids) == 0 {
		return []model.Stream{}, nil
	}

	streams, err := y.metadata(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata: %w", err)
	}

	return streams, nil
}

func (y *Youtube) search(ctx context.Context) ([]string, error) {
	response, err := y.client.Search.
		List([]string{"id"}).
		ChannelId(y.channelID).
		EventType("completed").
		Type("video").
		Order("date").
		MaxResults(y.pageSize).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		ids = append(ids, item.Id.VideoId)
	}

	return ids, nil
}

func (y *Youtube) metadata(ctx context.Context, ids []string) ([]model.Stream, error) {
	response, err := y.client.Videos.
		List([]string{"snippet", "contentDetails", "statistics", "liveStreamingDetails"}).
		Id(ids...).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	now := y.now()
	streams := make([]model.Stream, 0, len(response.Items))
	for _, item := range response.Items {
		if item.Snippet == nil {
			continue
		}
		s := model.Stream{
			ID:    item.Id,
			Title: item.Snippet.Title,
		}
		published := item.Snippet.PublishedAt
		if item.LiveStreamingDetails != nil && item.LiveStreamingDetails.ActualStartTime != "" {
			published = item.LiveStreamingDetails.ActualStartTime
		}
		if at, err := time.Parse(time.RFC3339, published); err == nil {
			s.RawPublishedAt = model.FormatRelative(at, now)
		} else {
			s.RawPublishedAt = published
		}
		if item.ContentDetails != nil {
			s.Duration = item.ContentDetails.Duration
		}
		if item.Statistics != nil {
			s.ViewCount = strconv.FormatUint(item.Statistics.ViewCount, 10)
		}

		streams = append(streams, s)
	}

	return streams, nil
}

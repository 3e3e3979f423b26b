package fetch

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"miniflux.app/client"

	"ewintr.nl/hansard/model"
)

type MinifluxInfo struct {
	Endpoint string
	ApiKey   string
	// FeedID restricts discovery to one feed when set.
	FeedID int64
}

// Miniflux discovers streams from the unread entries of a YouTube channel
// feed that is followed in Miniflux.
type Miniflux struct {
	client *client.Client
	feedID int64
	policy *bluemonday.Policy
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]int64
}

func NewMiniflux(mflInfo MinifluxInfo) *Miniflux {
	return &Miniflux{
		client:  client.New(mflInfo.Endpoint, mflInfo.ApiKey),
		feedID:  mflInfo.FeedID,
		policy:  bluemonday.StrictPolicy(),
		now:     time.Now,
		entries: map[string]int64{},
	}
}

func (m *Miniflux) Candidates(_ context.Context) ([]model.Stream, error) {
	filter := &client.Filter{Status: "unread"}

	var (
		result *client.EntryResultSet
		err    error
	)
	if m.feedID > 0 {
		result, err = m.client.FeedEntries(m.feedID, filter)
	} else {
		result, err = m.client.Entries(filter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unread entries: %w", err)
	}

	now := m.now()
	streams := make([]model.Stream, 0, len(result.Entries))
	seen := make(map[string]int64, len(result.Entries))
	for _, entry := range result.Entries {
		id := model.IDFromURL(entry.URL)
		if id == "" || id == entry.URL {
			continue
		}
		seen[id] = entry.ID
		streams = append(streams, model.Stream{
			ID:             id,
			Title:          html.UnescapeString(m.policy.Sanitize(strings.TrimSpace(entry.Title))),
			RawPublishedAt: model.FormatRelative(entry.Date, now),
		})
	}

	m.mu.Lock()
	m.entries = seen
	m.mu.Unlock()

	return streams, nil
}

// Acknowledge marks the entries of the given streams as read.
func (m *Miniflux) Acknowledge(_ context.Context, ids []string) error {
	m.mu.Lock()
	entryIDs := make([]int64, 0, len(ids))
	for _, id := range ids {
		if entryID, ok := m.entries[id]; ok {
			entryIDs = append(entryIDs, entryID)
			delete(m.entries, id)
		}
	}
	m.mu.Unlock()

	if len(entryIDs) == 0 {
		return nil
	}
	if err := m.client.UpdateEntries(entryIDs, "read"); err != nil {
		return fmt.Errorf("failed to mark entries read: %w", err)
	}

	return nil
}

package model

import (
	"fmt"
	"strings"
	"time"
)

type Category string

const (
	CategoryNationalAssembly Category = "National Assembly"
	CategorySenate           Category = "Senate"
	CategoryOther            Category = "Other"
)

const watchURL = "https://www.youtube.com/watch?v="

// Stream is one archived legislative broadcast, as discovered and later
// enriched with a summary.
type Stream struct {
	ID             string
	Title          string
	ViewCount      string
	RawPublishedAt string
	Duration       string
	Summary        string
	TimestampHint  string
	// PublishedAt is only known once the stream has been persisted.
	PublishedAt time.Time
}

func (s Stream) URL() string {
	return fmt.Sprintf("%s%s", watchURL, s.ID)
}

// Timestamp resolves the relative publish time against now.
func (s Stream) Timestamp(now time.Time) (time.Time, bool) {
	return ParseRelative(s.RawPublishedAt, now)
}

func (s Stream) Category() Category {
	title := strings.ToLower(s.Title)
	switch {
	case strings.Contains(title, "national assembly"):
		return CategoryNationalAssembly
	case strings.Contains(title, "senate"):
		return CategorySenate
	default:
		return CategoryOther
	}
}

// IDFromURL returns the video id of a watch url, or the input unchanged when
// it is not one.
func IDFromURL(u string) string {
	return strings.TrimPrefix(u, watchURL)
}

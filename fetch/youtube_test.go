package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

func newTestYoutube(t *testing.T, handler http.HandlerFunc) *Youtube {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	svc, err := youtube.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	return NewYoutube(svc, "UC123")
}

func TestYoutube_Candidates(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var searchQuery, videosQuery string

	y := newTestYoutube(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/search"):
			searchQuery = r.URL.RawQuery
			fmt.Fprint(w, `{"items":[{"id":{"videoId":"v1"}},{"id":{"videoId":"v2"}},{"id":{}}]}`)
		case strings.HasSuffix(r.URL.Path, "/videos"):
			videosQuery = r.URL.RawQuery
			fmt.Fprint(w, `{"items":[
				{"id":"v1","snippet":{"title":"Senate sitting","publishedAt":"2024-05-30T12:00:00Z"},
				 "contentDetails":{"duration":"PT3H2M"},"statistics":{"viewCount":"1234"},
				 "liveStreamingDetails":{"actualStartTime":"2024-05-29T12:00:00Z"}},
				{"id":"v2","snippet":{"title":"National Assembly","publishedAt":"2024-06-01T07:00:00Z"}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	})
	y.now = func() time.Time { return now }

	streams, err := y.Candidates(context.Background())
	require.NoError(t, err)
	require.Len(t, streams, 2)

	assert.Contains(t, searchQuery, "channelId=UC123")
	assert.Contains(t, searchQuery, "eventType=completed")
	assert.Contains(t, videosQuery, "id=v1")

	assert.Equal(t, "v1", streams[0].ID)
	assert.Equal(t, "Senate sitting", streams[0].Title)
	assert.Equal(t, "3 days ago", streams[0].RawPublishedAt)
	assert.Equal(t, "PT3H2M", streams[0].Duration)
	assert.Equal(t, "1234", streams[0].ViewCount)

	assert.Equal(t, "5 hours ago", streams[1].RawPublishedAt)
	assert.Empty(t, streams[1].ViewCount)
}

func TestYoutube_CandidatesError(t *testing.T) {
	y := newTestYoutube(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"quota exceeded"}}`, http.StatusForbidden)
	})

	_, err := y.Candidates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to search channel UC123")
}

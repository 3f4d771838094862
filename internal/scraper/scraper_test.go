package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverFeeds(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/news/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<!doctype html><html><head>
<link rel="stylesheet" href="/style.css">
<link rel="alternate" type="application/rss+xml" title="RSS" href="feed.xml">
<link rel="alternate" type="application/atom+xml" href="https://cdn.example.com/atom">
<link rel="alternate" type="application/rss+xml" href="feed.xml">
<link rel="alternate" hreflang="ja" href="/ja/">
<link rel="alternate" type="application/rss+xml" href="">
</head><body><a href="/other.xml">not a link tag</a></body></html>`)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	s := New(time.Second)
	feeds, err := s.DiscoverFeeds(context.Background(), srv.URL+"/news/")
	require.NoError(t, err)
	assert.Equal(t, []string{srv.URL + "/news/feed.xml", "https://cdn.example.com/atom"}, feeds)

	_, err = s.DiscoverFeeds(context.Background(), srv.URL+"/gone")
	assert.Error(t, err)
}

func TestDiscoverFeedsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	s := New(50 * time.Millisecond)
	_, err := s.DiscoverFeeds(context.Background(), srv.URL)
	assert.Error(t, err)
}

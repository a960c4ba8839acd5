package platform_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/truleado/truleado-sub002/internal/platform"
)

const atomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>search results</title>
  <entry>
    <author><name>/u/founder1</name></author>
    <content type="html">&lt;div class="md"&gt;&lt;p&gt;Spreadsheets are a &lt;b&gt;nightmare&lt;/b&gt;&lt;/p&gt;&lt;/div&gt;</content>
    <id>t3_abc1</id>
    <link href="https://www.reddit.com/r/entrepreneur/comments/abc1/x/"/>
    <updated>2026-10-16T10:00:00+00:00</updated>
    <published>2026-10-16T10:00:00+00:00</published>
    <title>Looking for a CRM?</title>
  </entry>
  <entry>
    <id>t3_abc2</id>
    <title>Weekly thread</title>
    <updated>2026-10-15T10:00:00+00:00</updated>
  </entry>
</feed>`

func TestFeedSearcher_ParsesEntries(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/atom+xml")
		fmt.Fprint(w, atomFeed)
	}))
	defer srv.Close()

	f := platform.NewFeedSearcher(srv.URL, "test-agent", time.Second)
	posts, err := f.Search(context.Background(), "u1", query)
	if err != nil {
		t.Fatalf("Search() unexpected error: %v", err)
	}
	if gotPath != "/r/entrepreneur/search.rss" {
		t.Errorf("path = %q", gotPath)
	}
	if len(posts) != 2 {
		t.Fatalf("len(posts) = %d, want 2", len(posts))
	}
	p := posts[0]
	if p.ExternalID != "abc1" {
		t.Errorf("ExternalID = %q, want abc1", p.ExternalID)
	}
	if p.Author != "founder1" {
		t.Errorf("Author = %q, want founder1", p.Author)
	}
	if p.Body != "Spreadsheets are a nightmare" {
		t.Errorf("Body = %q", p.Body)
	}
	if p.CreatedAt.IsZero() || p.Community != "entrepreneur" || p.SearchTerm != "CRM" {
		t.Errorf("post = %+v", p)
	}
	if posts[1].CreatedAt.IsZero() {
		t.Error("entry without <published> should fall back to <updated>")
	}
}

func TestFeedSearcher_RateLimitedIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := platform.NewFeedSearcher(srv.URL, "", time.Second)
	if _, err := f.Search(context.Background(), "u1", query); !platform.IsRetryable(err) {
		t.Fatalf("Search() error = %v, want retryable", err)
	}
}

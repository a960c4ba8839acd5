package platform

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/truleado/truleado-sub002/internal/model"
)

const redditFeedBaseURL = "https://www.reddit.com"

// FeedSearcher searches through the public per-subreddit search feed. It
// needs no owner credential, so it backs deployments without platform app
// credentials. Feed entries carry no score or comment counters.
//
// Calls are still serialized per owner to keep request pressure in line with
// the authenticated client.
type FeedSearcher struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	client    *http.Client
	parser    *gofeed.Parser
	locks     *OwnerLocks
}

// NewFeedSearcher constructs a FeedSearcher. Empty baseURL uses reddit.com.
func NewFeedSearcher(baseURL, userAgent string, timeout time.Duration) *FeedSearcher {
	if baseURL == "" {
		baseURL = redditFeedBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &FeedSearcher{
		baseURL:   baseURL,
		userAgent: userAgent,
		timeout:   timeout,
		client:    &http.Client{},
		parser:    gofeed.NewParser(),
		locks:     NewOwnerLocks(),
	}
}

func (f *FeedSearcher) Search(ctx context.Context, ownerID string, q Query) ([]model.Candidate, error) {
	release, err := f.locks.Acquire(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	defer release()

	params := url.Values{}
	params.Set("q", q.Term)
	params.Set("restrict_sr", "on")
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Window != "" {
		params.Set("t", q.Window)
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	endpoint := fmt.Sprintf("%s/r/%s/search.rss?%s", f.baseURL, url.PathEscape(q.Community), params.Encode())

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	op := fmt.Sprintf("feed r/%s %q", q.Community, q.Term)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, err)
	}
	defer resp.Body.Close()

	if retryableStatus(resp.StatusCode) {
		return nil, &RetryableError{Op: op, StatusCode: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("%s: feed returned %d: %s", op, resp.StatusCode, string(body))
	}

	feed, err := f.parser.Parse(resp.Body)
	if err != nil {
		if ctx.Err() == nil && callCtx.Err() != nil {
			return nil, &RetryableError{Op: op, Err: err}
		}
		return nil, fmt.Errorf("%s: parse: %w", op, err)
	}

	results := make([]model.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		id := feedPostID(item)
		if id == "" {
			continue
		}
		c := model.Candidate{
			ExternalID: id,
			Community:  q.Community,
			Title:      item.Title,
			Body:       htmlText(item.Content),
			URL:        item.Link,
			SearchTerm: q.Term,
		}
		if item.Author != nil {
			c.Author = strings.TrimPrefix(item.Author.Name, "/u/")
		}
		switch {
		case item.PublishedParsed != nil:
			c.CreatedAt = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			c.CreatedAt = item.UpdatedParsed.UTC()
		}
		results = append(results, c)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	return results, nil
}

// feedPostID extracts the base36 post id from an entry GUID such as "t3_abc123".
func feedPostID(item *gofeed.Item) string {
	id := item.GUID
	if i := strings.LastIndex(id, "/"); i >= 0 {
		id = id[i+1:]
	}
	return strings.TrimPrefix(id, "t3_")
}

// htmlText flattens an entry's HTML body to plain text.
func htmlText(html string) string {
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

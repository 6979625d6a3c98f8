// Package news aggregates financial RSS feeds into a local table the
// API serves without refetching.
package news

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var httpClient = &http.Client{Timeout: 15 * time.Second}

type rssResponse struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title   string `xml:"title"`
	Link    string `xml:"link"`
	PubDate string `xml:"pubDate"`
	Desc    string `xml:"description"`
}

// FetchFeed downloads one RSS feed and converts its entries to items.
// Entries without a link or a parseable date are dropped.
func FetchFeed(ctx context.Context, source, url string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s answered status %d", source, resp.StatusCode)
	}

	var rss rssResponse
	if err := xml.NewDecoder(resp.Body).Decode(&rss); err != nil {
		return nil, fmt.Errorf("decoding %s feed: %w", source, err)
	}

	items := make([]Item, 0, len(rss.Channel.Items))
	for _, entry := range rss.Channel.Items {
		if entry.Link == "" {
			continue
		}
		published, err := time.Parse(time.RFC1123Z, entry.PubDate)
		if err != nil {
			published, err = time.Parse(time.RFC1123, entry.PubDate)
			if err != nil {
				continue
			}
		}
		items = append(items, Item{
			Source:      source,
			Title:       strings.TrimSpace(entry.Title),
			Link:        entry.Link,
			Description: strings.TrimSpace(entry.Desc),
			PublishedAt: published,
		})
	}
	return items, nil
}

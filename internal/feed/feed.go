package feed

import (
	"fmt"
	"time"

	"github.com/gorilla/feeds"

	"github.com/corvusreach/crawlkit/internal/store"
)

// Format selects the wire encoding a feed is rendered to.
type Format string

const (
	FormatRSS  Format = "rss"
	FormatJSON Format = "json"
)

// Options configures feed generation. The feed command fills the
// title/description from its --title/--description flags, Limit from
// --max-items, and Topic from the --topic flag (empty means "recent
// across all topics").
type Options struct {
	Title       string
	Description string
	Link        string
	Topic       string
	Limit       int
	Format      Format
}

// Generate renders records, in the order given, as an RSS or JSON feed
// document. It does not select or trim them: opts.Topic and opts.Limit
// are not applied here.
func Generate(records []store.Record, opts Options) (string, error) {
	feed := &feeds.Feed{
		Title:       opts.Title,
		Link:        &feeds.Link{Href: opts.Link},
		Description: opts.Description,
		Created:     time.Now().UTC(),
	}

	for _, record := range records {
		item := &feeds.Item{
			Title:       record.Title,
			Link:        &feeds.Link{Href: record.URL},
			Description: record.Description,
			Id:          record.ContentHash,
			Content:     record.Content,
		}
		if record.Author != "" {
			item.Author = &feeds.Author{Name: record.Author}
		}
		if published, err := time.Parse(time.RFC3339, record.PublishDate); err == nil {
			item.Created = published
		} else {
			item.Created = record.CrawledAt
		}
		feed.Items = append(feed.Items, item)
	}

	switch opts.Format {
	case FormatJSON:
		return feed.ToJSON()
	case FormatRSS, "":
		return feed.ToRss()
	default:
		return "", fmt.Errorf("unsupported feed format: %q", opts.Format)
	}
}

// Package crawl implements the Fetch-Extract-Store pipeline (C6) and
// ties it to the Frontier (C3), the HTML Extractor (C4), the Fetcher
// (C5), the Content Store (C2), and the Indexing Bridge (C7). Unlike
// internal/scheduler's Markdown Mirror pipeline (an opt-in, file-writing
// enrichment, see SPEC_FULL.md §2.1), this is the crawl loop spec.md
// §4.6 describes: dequeue, fetch, extract a Document, persist it,
// forward discovered links, mark visited, apply the politeness delay.
package crawl

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/corvusreach/crawlkit/internal/config"
	"github.com/corvusreach/crawlkit/internal/extractor"
	"github.com/corvusreach/crawlkit/internal/fetcher"
	"github.com/corvusreach/crawlkit/internal/frontier"
	"github.com/corvusreach/crawlkit/internal/indexer"
	"github.com/corvusreach/crawlkit/internal/metadata"
	"github.com/corvusreach/crawlkit/internal/store"
	"github.com/corvusreach/crawlkit/pkg/limiter"
	"github.com/corvusreach/crawlkit/pkg/retry"
	"github.com/corvusreach/crawlkit/pkg/timeutil"
	"github.com/corvusreach/crawlkit/pkg/urlutil"
)

// Stats summarizes a single Run of the crawl loop.
type Stats struct {
	CrawledCount int
	SavedCount   int
	ErrorCount   int
}

// Crawler orchestrates C3->C5->C4->C2->C7 for a single crawl run. A
// zero-value Crawler is not usable; construct with New.
type Crawler struct {
	cfg          config.Config
	frontier     *frontier.Frontier
	htmlFetcher  fetcher.Fetcher
	store        *store.ContentStore
	indexer      *indexer.Indexer
	rateLimiter  limiter.RateLimiter
	sleeper      timeutil.Sleeper
	metadataSink metadata.MetadataSink
	patterns     []*regexp.Regexp
}

// New constructs a Crawler. idx may be nil: per spec.md §7
// (IndexUnavailable), the crawl loop still writes to the store and
// simply skips the indexing step.
func New(cfg config.Config, htmlFetcher fetcher.Fetcher, st *store.ContentStore, idx *indexer.Indexer, sink metadata.MetadataSink) *Crawler {
	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	return &Crawler{
		cfg:          cfg,
		frontier:     frontier.NewFrontier(),
		htmlFetcher:  htmlFetcher,
		store:        st,
		indexer:      idx,
		rateLimiter:  rateLimiter,
		sleeper:      timeutil.NewRealSleeper(),
		metadataSink: sink,
		patterns:     compilePatterns(cfg.UsefulURLPatterns()),
	}
}

// SetSleeper overrides the politeness-delay sleeper, for tests that want
// the loop to run without actually blocking.
func (c *Crawler) SetSleeper(sleeper timeutil.Sleeper) {
	c.sleeper = sleeper
}

// Run seeds the frontier from cfg.SeedURLs() at PrioritySeed and drains
// it, dequeuing at most cfg.MaxPages() URLs (spec.md §4.6).
func (c *Crawler) Run(ctx context.Context) Stats {
	c.frontier.Init(c.cfg)
	for _, seed := range c.cfg.SeedURLs() {
		c.frontier.Add(seed, frontier.PrioritySeed)
	}

	var stats Stats
	maxPages := c.cfg.MaxPages()
	for maxPages <= 0 || stats.CrawledCount < maxPages {
		select {
		case <-ctx.Done():
			return stats
		default:
		}

		token, ok := c.frontier.Dequeue()
		if !ok {
			break
		}

		c.processOne(ctx, token.URL(), &stats)
		stats.CrawledCount++
		c.sleep(token.URL().Hostname())
	}
	return stats
}

// processOne fetches, extracts, persists, and forwards the outbound
// links of a single dequeued URL. Any failure along the way is absorbed
// per spec.md §7's "degrade, don't die" policy: the URL was already
// marked visited by Frontier.Dequeue, so the loop simply moves on.
func (c *Crawler) processOne(ctx context.Context, target url.URL, stats *Stats) {
	result, err := c.htmlFetcher.Fetch(ctx, 0, fetcher.NewFetchParam(target, c.cfg.UserAgent()), retryParam(c.cfg))
	if err != nil {
		stats.ErrorCount++
		return
	}

	doc, ok := extractor.ExtractDocument(target, result.Body())
	if !ok {
		c.forwardLinks(result.Body(), target)
		return
	}

	if len(doc.Content) < c.cfg.MinContentLength() {
		c.forwardLinks(result.Body(), target)
		return
	}

	record := toRecord(doc)
	saved, storeErr := c.store.Save(ctx, record)
	if storeErr != nil {
		stats.ErrorCount++
	}
	if saved {
		stats.SavedCount++
		if c.indexer != nil {
			c.indexer.Index(toIndexable(record))
		}
	}

	c.forwardLinks(result.Body(), target)
}

// forwardLinks resolves every <a href> discovered in rawHTML against
// base, filters by C1's ShouldCrawl rule (valid, non-excluded
// extension, matching a useful-URL pattern when any are configured),
// and admits survivors to the frontier at PriorityDiscovered (spec.md
// §4.6 step 6).
func (c *Crawler) forwardLinks(rawHTML []byte, base url.URL) {
	for _, href := range discoverLinks(rawHTML) {
		u, err := url.Parse(href)
		if err != nil {
			continue
		}
		resolved := urlutil.Resolve(*u, base.Scheme, base.Host)
		if !urlutil.ShouldCrawl(resolved, nil, c.patterns, nil) {
			continue
		}
		c.frontier.Add(urlutil.Normalize(resolved), frontier.PriorityDiscovered)
	}
}

func (c *Crawler) sleep(host string) {
	delay := urlutil.RateLimitDelay(host, c.cfg.BaseDelay())
	c.rateLimiter.MarkLastFetchAsNow(host)
	c.sleeper.Sleep(delay)
}

// discoverLinks collects every <a href> value in rawHTML, in document
// order, tolerating malformed markup (goquery never raises on that).
func discoverLinks(rawHTML []byte) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		return nil
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		hrefs = append(hrefs, href)
	})
	return hrefs
}

// compilePatterns compiles the USEFUL_URL_PATTERNS config list, falling
// back to spec.md §4.6's defaults when none are configured.
func compilePatterns(raw []string) []*regexp.Regexp {
	if len(raw) == 0 {
		raw = DefaultUsefulURLPatterns
	}
	patterns := make([]*regexp.Regexp, 0, len(raw))
	for _, p := range raw {
		if re, err := regexp.Compile(p); err == nil {
			patterns = append(patterns, re)
		}
	}
	return patterns
}

// DefaultUsefulURLPatterns mirrors spec.md §4.6 step 6's defaults.
var DefaultUsefulURLPatterns = []string{
	`/article/`, `/blog/`, `/news/`, `/post/`, `/story/`, `/content/`, `/page/`,
}

func toRecord(doc extractor.Document) store.Record {
	score := 0.0
	if doc.HasReadability {
		score = doc.ReadabilityScore
	}
	return store.Record{
		URL:              doc.URL.String(),
		Title:            doc.Title,
		Description:      doc.Description,
		Author:           doc.Author,
		Content:          doc.Content,
		PublishDate:      doc.PublishDate,
		Tags:             doc.Tags,
		WordCount:        doc.WordCount,
		ReadingTime:      doc.ReadingTime,
		ReadabilityScore: score,
		ContentHash:      doc.ContentHash,
		CrawledAt:        time.Now().UTC(),
	}
}

func toIndexable(r store.Record) indexer.IndexableDocument {
	domain := ""
	if parsed, err := url.Parse(r.URL); err == nil {
		domain = urlutil.ResolveDomainInfo(*parsed).Domain
	}
	return indexer.IndexableDocument{
		ContentHash: r.ContentHash,
		URL:         r.URL,
		Domain:      domain,
		Title:       r.Title,
		Content:     r.Content,
		Tags:        r.Tags,
		PublishDate: r.PublishDate,
	}
}

func retryParam(cfg config.Config) retry.RetryParam {
	return retry.NewRetryParam(
		cfg.BaseDelay(),
		cfg.Jitter(),
		cfg.RandomSeed(),
		cfg.MaxAttempt(),
		timeutil.NewBackoffParam(
			cfg.BackoffInitialDuration(),
			cfg.BackoffMultiplier(),
			cfg.BackoffMaxDuration(),
		),
	)
}

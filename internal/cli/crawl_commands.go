package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/corvusreach/crawlkit/internal/config"
	"github.com/corvusreach/crawlkit/internal/crawl"
	"github.com/corvusreach/crawlkit/internal/feed"
	"github.com/corvusreach/crawlkit/internal/fetcher"
	"github.com/corvusreach/crawlkit/internal/indexer"
	"github.com/corvusreach/crawlkit/internal/metadata"
	"github.com/corvusreach/crawlkit/internal/scheduler"
	"github.com/corvusreach/crawlkit/internal/store"
)

// These flags implement the crawl/search/feed/index/reindex/stats
// subcommands. They are independent of rootCmd's own
// --seed-url/--max-depth surface (internal/cli/root.go), which only
// builds and prints a config; the opt-in Markdown Mirror pipeline runs
// from `crawl --markdown-mirror`.
var (
	crawlURLs        []string
	crawlMaxPages    int
	crawlMinContent  int
	crawlUserAgent   string
	crawlDatabaseURL string
	crawlIndexDir    string
	crawlBaseDelay   time.Duration

	crawlMarkdownMirror bool
	crawlConfigFile     string

	searchQuery       string
	searchLimit       int
	searchDatabaseURL string
	searchIndexDir    string

	feedTopic       string
	feedFormat      string
	feedOutput      string
	feedDatabaseURL string
	feedTitleFlag   string
	feedDescFlag    string
	feedMaxItems    int

	indexDatabaseURL string
	indexIndexDir    string

	reindexDatabaseURL string
	reindexIndexDir    string

	statsDatabaseURL string
	statsIndexDir    string
)

func defaultDatabaseURL() string     { return "file:crawlkit.db" }
func defaultIndexDir() string        { return "crawlkit_index.bleve" }
func openStoreOrExit(dsn string) *store.ContentStore {
	st, err := store.Open(context.Background(), dsn, metadata.NoopSink{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open content store: %s\n", err.Error())
		os.Exit(1)
	}
	return st
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl one or more seed URLs, extracting and indexing their content.",
	// RunE (rather than Run+os.Exit, as most other subcommands here use)
	// so the "missing required flag" paths spec.md §6 documents ("missing
	// required flags print a message and exit non-zero") are exercisable
	// from a test without exiting the test process itself; Execute()
	// (internal/cli/root.go) still turns a non-nil return into os.Exit(1)
	// for the real binary.
	RunE: func(cmd *cobra.Command, args []string) error {
		// --markdown-mirror runs the opt-in scheduler pipeline instead of
		// the default fetch/extract/store/index loop: it writes one
		// Markdown file per crawled page rather than rows in the content
		// store. It is driven by a config file, the same way
		// internal/scheduler.Scheduler.ExecuteCrawling always has been,
		// rather than by --urls/--max-pages.
		if crawlMarkdownMirror {
			if crawlConfigFile == "" {
				fmt.Fprintln(os.Stderr, "Error: --markdown-mirror requires --config-file.")
				cmd.Usage()
				return fmt.Errorf("--markdown-mirror requires --config-file")
			}
			s := scheduler.NewScheduler()
			execution, err := s.ExecuteCrawling(crawlConfigFile)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %s\n", err)
				os.Exit(1)
			}
			fmt.Printf("Mirrored %d pages to Markdown\n", len(execution.WriteResults))
			return nil
		}

		if len(crawlURLs) == 0 {
			fmt.Fprintln(os.Stderr, "Error: --urls is required. Provide at least one seed URL.")
			cmd.Usage()
			return fmt.Errorf("--urls is required")
		}

		seeds, err := parseSeedURLs(crawlURLs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		builder := config.WithDefault(seeds)
		if crawlMaxPages > 0 {
			builder = builder.WithMaxPages(crawlMaxPages)
		}
		if crawlMinContent > 0 {
			builder = builder.WithMinContentLength(crawlMinContent)
		}
		if crawlUserAgent != "" {
			builder = builder.WithUserAgent(crawlUserAgent)
		}
		if crawlDatabaseURL != "" {
			builder = builder.WithDatabaseURL(crawlDatabaseURL)
		}
		if crawlIndexDir != "" {
			builder = builder.WithElasticsearchURL(crawlIndexDir)
		}
		if crawlBaseDelay > 0 {
			builder = builder.WithBaseDelay(crawlBaseDelay)
		}
		cfg, err := builder.Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		recorder := metadata.NewRecorder("crawl")
		st := openStoreOrExit(cfg.DatabaseURL())
		defer st.Close()

		// Index unavailability degrades to store-only crawling: the
		// index is never worth aborting a crawl over.
		idx, idxErr := indexer.Open(cfg.ElasticsearchURL(), &recorder, func() bool { return true })
		if idxErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: search index unavailable, continuing store-only: %s\n", idxErr.Error())
			idx = nil
		} else {
			defer idx.Close()
		}

		htmlFetcher := fetcher.NewHtmlFetcher(&recorder)
		crawler := crawl.New(cfg, &htmlFetcher, st, idx, &recorder)

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout()*time.Duration(max(cfg.MaxPages(), 1)))
		defer cancel()

		stats := crawler.Run(ctx)
		fmt.Printf("Crawled %d pages, saved %d documents, %d errors\n", stats.CrawledCount, stats.SavedCount, stats.ErrorCount)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search crawled content.",
	// RunE for the same reason as crawlCmd: the --query required-flag
	// check is a documented testable property (spec.md §6).
	RunE: func(cmd *cobra.Command, args []string) error {
		if searchQuery == "" {
			fmt.Fprintln(os.Stderr, "Error: --query is required.")
			cmd.Usage()
			return fmt.Errorf("--query is required")
		}
		dsn := searchDatabaseURL
		if dsn == "" {
			dsn = defaultDatabaseURL()
		}
		indexDir := searchIndexDir
		if indexDir == "" {
			indexDir = defaultIndexDir()
		}

		st := openStoreOrExit(dsn)
		defer st.Close()

		recorder := metadata.NewRecorder("search")
		idx, idxErr := indexer.Open(indexDir, &recorder, func() bool { return true })
		if idxErr == nil {
			defer idx.Close()
			hits, searchErr := idx.Search(searchQuery, searchLimit)
			if searchErr == nil {
				for _, hit := range hits {
					fmt.Printf("%.3f  %s  %s\n", hit.Score, hit.Title, hit.URL)
				}
				return nil
			}
		}

		// Index unavailable or errored: fall back to the store's local
		// text search (spec.md §4.2 `search`).
		records, storeErr := st.Search(context.Background(), searchQuery, searchLimit)
		if storeErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", storeErr.Error())
			os.Exit(1)
		}
		for _, r := range records {
			fmt.Printf("%s  %s\n", r.Title, r.URL)
		}
		return nil
	},
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Generate an RSS or JSON feed of crawled content.",
	Run: func(cmd *cobra.Command, args []string) {
		dsn := feedDatabaseURL
		if dsn == "" {
			dsn = defaultDatabaseURL()
		}
		st := openStoreOrExit(dsn)
		defer st.Close()

		limit := feedMaxItems
		if limit <= 0 {
			limit = 50
		}

		var records []store.Record
		var storeErr *store.StoreError
		if feedTopic != "" {
			records, storeErr = st.GetByTopic(context.Background(), feedTopic, limit)
		} else {
			records, storeErr = st.GetRecent(context.Background(), limit)
		}
		if storeErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", storeErr.Error())
			os.Exit(1)
		}

		title := feedTitleFlag
		if title == "" {
			title = "crawlkit"
		}
		description := feedDescFlag
		if description == "" {
			description = "Crawled content feed"
		}

		format := feed.FormatRSS
		if feedFormat == "json" {
			format = feed.FormatJSON
		}

		rendered, err := feed.Generate(records, feed.Options{
			Title:       title,
			Description: description,
			Topic:       feedTopic,
			Limit:       limit,
			Format:      format,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}

		if feedOutput != "" {
			if err := os.WriteFile(feedOutput, []byte(rendered), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to write %s: %s\n", feedOutput, err)
				os.Exit(1)
			}
			fmt.Printf("Wrote %s\n", feedOutput)
			return
		}
		fmt.Println(rendered)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Report index and store health.",
	Run: func(cmd *cobra.Command, args []string) {
		dsn := indexDatabaseURL
		if dsn == "" {
			dsn = defaultDatabaseURL()
		}
		indexDir := indexIndexDir
		if indexDir == "" {
			indexDir = defaultIndexDir()
		}

		st := openStoreOrExit(dsn)
		defer st.Close()

		recorder := metadata.NewRecorder("index")
		idx, idxErr := indexer.Open(indexDir, &recorder, func() bool { return true })
		if idxErr != nil {
			fmt.Printf("index: false  store: true  overall: true\n")
			return
		}
		defer idx.Close()

		health := idx.Health()
		fmt.Printf("index: %t  store: %t  overall: %t\n", health.Index, health.Store, health.Overall)
		if !health.Overall {
			os.Exit(1)
		}
	},
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the full-text index from the content store.",
	Run: func(cmd *cobra.Command, args []string) {
		dsn := reindexDatabaseURL
		if dsn == "" {
			dsn = defaultDatabaseURL()
		}
		indexDir := reindexIndexDir
		if indexDir == "" {
			indexDir = defaultIndexDir()
		}

		st := openStoreOrExit(dsn)
		defer st.Close()

		recorder := metadata.NewRecorder("reindex")
		idx, idxErr := indexer.Open(indexDir, &recorder, func() bool { return true })
		if idxErr != nil {
			fmt.Fprintf(os.Stderr, "Error: search index unavailable: %s\n", idxErr.Error())
			os.Exit(1)
		}
		defer idx.Close()

		const reindexLimit = 10000
		records, storeErr := st.GetRecent(context.Background(), reindexLimit)
		if storeErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", storeErr.Error())
			os.Exit(1)
		}

		docs := make([]indexer.IndexableDocument, 0, len(records))
		for _, r := range records {
			domain := ""
			if parsed, err := url.Parse(r.URL); err == nil {
				domain = parsed.Hostname()
			}
			docs = append(docs, indexer.IndexableDocument{
				ContentHash: r.ContentHash,
				URL:         r.URL,
				Domain:      domain,
				Title:       r.Title,
				Content:     r.Content,
				Tags:        r.Tags,
				PublishDate: r.PublishDate,
			})
		}

		count, reindexErr := idx.ReindexAll(docs)
		if reindexErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", reindexErr.Error())
			os.Exit(1)
		}
		fmt.Printf("Reindexed %d documents\n", count)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show content store and index statistics.",
	Run: func(cmd *cobra.Command, args []string) {
		dsn := statsDatabaseURL
		if dsn == "" {
			dsn = defaultDatabaseURL()
		}
		indexDir := statsIndexDir
		if indexDir == "" {
			indexDir = defaultIndexDir()
		}

		st := openStoreOrExit(dsn)
		defer st.Close()

		storeStats, storeErr := st.Stats(context.Background())
		if storeErr != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", storeErr.Error())
			os.Exit(1)
		}
		fmt.Printf("Total content: %d\n", storeStats.TotalContent)
		fmt.Printf("Content today: %d\n", storeStats.ContentToday)
		fmt.Print("Top tags: ")
		for i, tag := range storeStats.TopTags {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Printf("%s(%d)", tag.Tag, tag.Count)
		}
		fmt.Println()

		recorder := metadata.NewRecorder("stats")
		idx, idxErr := indexer.Open(indexDir, &recorder, func() bool { return true })
		if idxErr != nil {
			fmt.Println("Index unavailable.")
			return
		}
		defer idx.Close()
		idxStats := idx.Stats()
		fmt.Printf("Index documents: %d\n", idxStats.DocumentCount)
	},
}

func init() {
	crawlCmd.Flags().StringArrayVar(&crawlURLs, "urls", []string{}, "one or more seed URLs to crawl (can be repeated)")
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "maximum number of pages to fetch (0 uses the default)")
	crawlCmd.Flags().IntVar(&crawlMinContent, "min-content-length", 0, "minimum extracted content length to save (0 uses the default)")
	crawlCmd.Flags().StringVar(&crawlUserAgent, "user-agent", "", "user agent string for HTTP requests")
	crawlCmd.Flags().StringVar(&crawlDatabaseURL, "database-url", "", "content store DSN (default file:crawlkit.db)")
	crawlCmd.Flags().StringVar(&crawlIndexDir, "elasticsearch-url", "", "full-text index directory (default crawlkit_index.bleve)")
	crawlCmd.Flags().DurationVar(&crawlBaseDelay, "delay", 0, "delay between requests to the same host (0 uses the default)")
	crawlCmd.Flags().BoolVar(&crawlMarkdownMirror, "markdown-mirror", false, "mirror crawled pages to local Markdown files instead of the content store")
	crawlCmd.Flags().StringVar(&crawlConfigFile, "config-file", "", "config file driving --markdown-mirror")

	searchCmd.Flags().StringVar(&searchQuery, "query", "", "search query (required)")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "maximum number of results")
	searchCmd.Flags().StringVar(&searchDatabaseURL, "database-url", "", "content store DSN")
	searchCmd.Flags().StringVar(&searchIndexDir, "elasticsearch-url", "", "full-text index directory")

	feedCmd.Flags().StringVar(&feedTopic, "topic", "", "restrict the feed to a topic (substring match)")
	feedCmd.Flags().StringVar(&feedFormat, "format", "rss", "feed format: rss or json")
	feedCmd.Flags().StringVar(&feedOutput, "output", "", "file path to write the feed to (default stdout)")
	feedCmd.Flags().StringVar(&feedDatabaseURL, "database-url", "", "content store DSN")
	feedCmd.Flags().StringVar(&feedTitleFlag, "title", "", "feed title")
	feedCmd.Flags().StringVar(&feedDescFlag, "description", "", "feed description")
	feedCmd.Flags().IntVar(&feedMaxItems, "max-items", 50, "maximum number of feed items")

	indexCmd.Flags().StringVar(&indexDatabaseURL, "database-url", "", "content store DSN")
	indexCmd.Flags().StringVar(&indexIndexDir, "elasticsearch-url", "", "full-text index directory")

	reindexCmd.Flags().StringVar(&reindexDatabaseURL, "database-url", "", "content store DSN")
	reindexCmd.Flags().StringVar(&reindexIndexDir, "elasticsearch-url", "", "full-text index directory")

	statsCmd.Flags().StringVar(&statsDatabaseURL, "database-url", "", "content store DSN")
	statsCmd.Flags().StringVar(&statsIndexDir, "elasticsearch-url", "", "full-text index directory")

	rootCmd.AddCommand(crawlCmd, searchCmd, feedCmd, indexCmd, reindexCmd, statsCmd)
}

// Test helper accessors, in the same spirit as root.go's Set*ForTest
// functions: they let crawl_commands_test.go drive these subcommands'
// RunE closures directly (rather than through rootCmd.Execute(), which
// os.Exit(1)s the test process on error) and set their unexported flag
// vars without going through cobra's flag parser.

func CrawlCmdForTest() *cobra.Command  { return crawlCmd }
func SearchCmdForTest() *cobra.Command { return searchCmd }
func FeedCmdForTest() *cobra.Command   { return feedCmd }

func ResetCrawlCommandFlagsForTest() {
	crawlURLs = []string{}
	crawlMaxPages = 0
	crawlMinContent = 0
	crawlUserAgent = ""
	crawlDatabaseURL = ""
	crawlIndexDir = ""
	crawlBaseDelay = 0
	crawlMarkdownMirror = false
	crawlConfigFile = ""

	searchQuery = ""
	searchLimit = 10
	searchDatabaseURL = ""
	searchIndexDir = ""

	feedTopic = ""
	feedFormat = "rss"
	feedOutput = ""
	feedDatabaseURL = ""
	feedTitleFlag = ""
	feedDescFlag = ""
	feedMaxItems = 50
}

func SetCrawlURLsForTest(urls []string)         { crawlURLs = urls }
func SetCrawlDatabaseURLForTest(dsn string)     { crawlDatabaseURL = dsn }
func SetCrawlIndexDirForTest(dir string)        { crawlIndexDir = dir }
func SetCrawlMaxPagesForTest(n int)             { crawlMaxPages = n }
func SetCrawlMarkdownMirrorForTest(enabled bool) { crawlMarkdownMirror = enabled }
func SetCrawlConfigFileForTest(path string)     { crawlConfigFile = path }

func SetSearchQueryForTest(query string)        { searchQuery = query }
func SetSearchLimitForTest(limit int)           { searchLimit = limit }
func SetSearchDatabaseURLForTest(dsn string)    { searchDatabaseURL = dsn }
func SetSearchIndexDirForTest(dir string)       { searchIndexDir = dir }

func SetFeedDatabaseURLForTest(dsn string) { feedDatabaseURL = dsn }
func SetFeedTopicForTest(topic string)     { feedTopic = topic }
func SetFeedFormatForTest(format string)   { feedFormat = format }
func SetFeedOutputForTest(path string)     { feedOutput = path }
func SetFeedTitleForTest(title string)     { feedTitleFlag = title }
func SetFeedDescriptionForTest(desc string) { feedDescFlag = desc }
func SetFeedMaxItemsForTest(n int)         { feedMaxItems = n }

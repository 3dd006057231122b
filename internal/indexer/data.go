package indexer

import "time"

// IndexableDocument is the subset of a crawled Document the full-text
// index needs. ContentHash is the document id (I4: keyed by content,
// not URL, so two URLs with identical content share one index entry).
type IndexableDocument struct {
	ContentHash string
	URL         string
	Domain      string
	Title       string
	Content     string
	Tags        []string
	PublishDate string
}

// Hit is a single search result.
type Hit struct {
	ContentHash string
	URL         string
	Title       string
	Score       float64
}

// Stats summarizes the current index contents.
type Stats struct {
	DocumentCount uint64
}

// Health reports the indexer's view of itself and the store it mirrors.
// Per I4, Health().Overall degrades to Health().Store whenever the index
// itself is unavailable - the store is always authoritative.
type Health struct {
	Store   bool
	Index   bool
	Overall bool
}

// newHealth ties Overall to Store alone: the index is an accelerator,
// not a dependency, so an indexer outage never drags crawling or
// storage down with it (I4).
func newHealth(storeUp, indexUp bool) Health {
	return Health{
		Store:   storeUp,
		Index:   indexUp,
		Overall: storeUp,
	}
}

type indexedAt = time.Time

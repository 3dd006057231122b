package indexer

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/corvusreach/crawlkit/internal/metadata"
)

// indexDocument is the flattened shape bleve actually indexes. Bleve's
// default mapping reflects over struct fields, so field names here are
// the searchable field names in query strings (e.g. "title:goroutines").
type indexDocument struct {
	URL         string    `json:"url"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Tags        []string  `json:"tags"`
	Keywords    []string  `json:"keywords"`
	PublishDate string    `json:"publish_date"`
	IndexedAt   time.Time `json:"indexed_at"`
}

// Indexer is the bleve-backed full-text bridge (C7). It is keyed by
// ContentHash so reindexing the same content twice is an overwrite, not
// a duplicate.
type Indexer struct {
	index bleve.Index

	metadataSink metadata.MetadataSink
	storeHealthy func() bool
}

// Open opens the bleve index at dir, creating it with a default mapping
// if it does not already exist.
func Open(dir string, metadataSink metadata.MetadataSink, storeHealthy func() bool) (*Indexer, *IndexError) {
	index, err := bleve.Open(dir)
	if err != nil {
		mapping := bleve.NewIndexMapping()
		index, err = bleve.New(dir, mapping)
		if err != nil {
			return nil, &IndexError{Message: err.Error(), Retryable: true, Cause: ErrCauseOpenFailure}
		}
	}
	return &Indexer{index: index, metadataSink: metadataSink, storeHealthy: storeHealthy}, nil
}

func (idx *Indexer) Close() error {
	return idx.index.Close()
}

// Index upserts a single document keyed by ContentHash.
func (idx *Indexer) Index(doc IndexableDocument) *IndexError {
	body := indexDocument{
		URL:         doc.URL,
		Domain:      doc.Domain,
		Title:       doc.Title,
		Content:     doc.Content,
		Tags:        doc.Tags,
		Keywords:    extractKeywords(doc.Title, doc.Content, 20),
		PublishDate: doc.PublishDate,
		IndexedAt:   time.Now().UTC(),
	}
	if err := idx.index.Index(doc.ContentHash, body); err != nil {
		indexErr := &IndexError{Message: err.Error(), Retryable: true, Cause: ErrCauseIndexFailure, ContentHash: doc.ContentHash}
		idx.recordError("Index", indexErr)
		return indexErr
	}
	return nil
}

// BulkIndex indexes many documents in a single batch, continuing past a
// single document's marshaling failure and returning the count of
// documents actually accepted into the batch (spec.md §4.7
// `bulk_index(docs) -> count`).
func (idx *Indexer) BulkIndex(docs []IndexableDocument) (int, *IndexError) {
	batch := idx.index.NewBatch()
	accepted := 0
	for _, doc := range docs {
		body := indexDocument{
			URL:         doc.URL,
			Domain:      doc.Domain,
			Title:       doc.Title,
			Content:     doc.Content,
			Tags:        doc.Tags,
			Keywords:    extractKeywords(doc.Title, doc.Content, 20),
			PublishDate: doc.PublishDate,
			IndexedAt:   time.Now().UTC(),
		}
		if err := batch.Index(doc.ContentHash, body); err != nil {
			indexErr := &IndexError{Message: err.Error(), Retryable: true, Cause: ErrCauseIndexFailure, ContentHash: doc.ContentHash}
			idx.recordError("BulkIndex", indexErr)
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return 0, nil
	}
	if err := idx.index.Batch(batch); err != nil {
		indexErr := &IndexError{Message: err.Error(), Retryable: true, Cause: ErrCauseIndexFailure}
		idx.recordError("BulkIndex", indexErr)
		return 0, indexErr
	}
	return accepted, nil
}

// ReindexAll drops and rebuilds the index from the given documents,
// typically sourced from the content store's full record set, returning
// the number successfully indexed (spec.md §4.7 `reindex_all() -> count`).
func (idx *Indexer) ReindexAll(docs []IndexableDocument) (int, *IndexError) {
	for _, doc := range docs {
		if err := idx.index.Delete(doc.ContentHash); err != nil {
			// absent entries return no error from bleve; any other
			// failure here is recoverable and logged, not fatal.
			indexErr := &IndexError{Message: err.Error(), Retryable: true, Cause: ErrCauseDeleteFailure, ContentHash: doc.ContentHash}
			idx.recordError("ReindexAll", indexErr)
		}
	}
	return idx.BulkIndex(docs)
}

func (idx *Indexer) Delete(contentHash string) *IndexError {
	if err := idx.index.Delete(contentHash); err != nil {
		indexErr := &IndexError{Message: err.Error(), Retryable: true, Cause: ErrCauseDeleteFailure, ContentHash: contentHash}
		idx.recordError("Delete", indexErr)
		return indexErr
	}
	return nil
}

// Search runs a query-string search across title and content, returning
// up to limit hits ranked by bleve's relevance score.
func (idx *Indexer) Search(queryString string, limit int) ([]Hit, *IndexError) {
	var q query.Query = bleve.NewQueryStringQuery(queryString)
	request := bleve.NewSearchRequestOptions(q, limit, 0, false)
	request.Fields = []string{"url", "title"}

	result, err := idx.index.Search(request)
	if err != nil {
		indexErr := &IndexError{Message: err.Error(), Retryable: true, Cause: ErrCauseSearchFailure}
		idx.recordError("Search", indexErr)
		return nil, indexErr
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		hit := Hit{ContentHash: h.ID, Score: h.Score}
		if url, ok := h.Fields["url"].(string); ok {
			hit.URL = url
		}
		if title, ok := h.Fields["title"].(string); ok {
			hit.Title = title
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (idx *Indexer) Stats() Stats {
	count, _ := idx.index.DocCount()
	return Stats{DocumentCount: count}
}

// Health reports the indexer's own reachability alongside the store's,
// always preferring the caller-supplied storeHealthy probe over any
// local assumption (I4).
func (idx *Indexer) Health() Health {
	storeUp := true
	if idx.storeHealthy != nil {
		storeUp = idx.storeHealthy()
	}
	_, err := idx.index.DocCount()
	return newHealth(storeUp, err == nil)
}

func (idx *Indexer) recordError(action string, err *IndexError) {
	if idx.metadataSink == nil {
		return
	}
	idx.metadataSink.RecordError(time.Now().UTC(), "indexer", action, mapIndexErrorToMetadataCause(err), err.Error(), nil)
}

var nonWordPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)

var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "is": {}, "are": {},
	"was": {}, "were": {}, "be": {}, "been": {}, "to": {}, "of": {}, "in": {}, "on": {},
	"for": {}, "with": {}, "as": {}, "at": {}, "by": {}, "from": {}, "this": {}, "that": {},
	"it": {}, "its": {}, "has": {}, "have": {}, "had": {}, "not": {}, "you": {}, "your": {},
	"we": {}, "our": {}, "can": {}, "will": {}, "if": {}, "so": {}, "do": {}, "does": {},
}

// extractKeywords returns the top-n most frequent non-stop-word stems
// across title and content, used to enrich a document's tag set for
// search without requiring the DOM extractor to have found any.
func extractKeywords(title, content string, n int) []string {
	freq := make(map[string]int)
	for _, token := range nonWordPattern.Split(strings.ToLower(title+" "+content), -1) {
		if len(token) < 3 {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		freq[token]++
	}

	type kv struct {
		word  string
		count int
	}
	ranked := make([]kv, 0, len(freq))
	for word, count := range freq {
		ranked = append(ranked, kv{word, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].word < ranked[j].word
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}
	keywords := make([]string, 0, len(ranked))
	for _, r := range ranked {
		keywords = append(keywords, r.word)
	}
	return keywords
}

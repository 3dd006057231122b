package frontier

import (
	"container/heap"
	"net/url"
	"sync"

	"github.com/corvusreach/crawlkit/internal/config"
	"github.com/corvusreach/crawlkit/pkg/urlutil"
)

/*
Frontier Responsibilities
- Hold the set of admitted, not-yet-crawled URLs, ordered by priority
- Deduplicate URLs (visit-at-most-once, I2)
- Resolve repeated admission of the same URL at different priorities by
  keeping the higher one (take-max-on-add)
- Knows nothing about:
	- fetching
	- extraction
	- markdown
	- storage

It is a data structure + policy module, not a pipeline executor.
*/

// priorityQueue is a max-heap on priority, lexically tie-broken on the
// URL string so that Dequeue order is deterministic for equal priority.
type priorityQueue []*heapEntry

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].url.String() < pq[j].url.String()
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	e := x.(*heapEntry)
	e.index = len(*pq)
	*pq = append(*pq, e)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*pq = old[:n-1]
	return e
}

// Frontier is the priority-ordered pending set plus the visited set for a
// single crawl. A zero-value Frontier is not usable; construct with
// NewFrontier.
type Frontier struct {
	mu       sync.Mutex
	pq       priorityQueue
	byHash   map[string]*heapEntry
	visited  Set[string]
	maxPages int
}

func NewFrontier() *Frontier {
	return &Frontier{
		pq:      priorityQueue{},
		byHash:  make(map[string]*heapEntry),
		visited: NewSet[string](),
	}
}

// Init wires crawl-wide limits into the frontier. It does not reset
// already-admitted or already-visited state, so it is safe to call once
// at scheduler startup.
func (f *Frontier) Init(cfg config.Config) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.maxPages = cfg.MaxPages()
}

// Submit admits a candidate into the frontier at the priority implied by
// its SourceContext (spec.md §3: seeds at PrioritySeed, links discovered
// while crawling at PriorityDiscovered). Submitting an already-visited
// URL is a no-op. Submitting an already-pending URL only raises its
// priority, never lowers it (take-max-on-add).
func (f *Frontier) Submit(candidate CrawlAdmissionCandidate) {
	f.Add(candidate.TargetURL(), candidate.Priority())
}

// Add admits u at the given priority, or raises its standing priority if
// it is already pending. It is a no-op if u has already been visited or
// if maxPages has been reached and u is not already pending.
func (f *Frontier) Add(u url.URL, priority int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	canonical := urlutil.Canonicalize(u)
	hash := canonical.String()

	if f.visited.Contains(hash) {
		return
	}

	if existing, ok := f.byHash[hash]; ok {
		if priority > existing.priority {
			existing.priority = priority
			heap.Fix(&f.pq, existing.index)
		}
		return
	}

	if f.maxPages > 0 && f.visited.Size()+f.pq.Len() >= f.maxPages {
		return
	}

	domain := urlutil.ResolveDomainInfo(canonical)
	entry := &heapEntry{
		url:      canonical,
		hash:     hash,
		domain:   domain.Domain,
		priority: priority,
	}
	f.byHash[hash] = entry
	heap.Push(&f.pq, entry)
}

// Dequeue pops the highest-priority pending URL, wraps it in a CrawlToken
// carrying depth 0 (depth is no longer a frontier-owned concept under
// priority ordering; callers that need depth track it themselves via
// DiscoveryMetadata at submission time), and marks it visited. Returns
// false if the frontier is empty.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.pq.Len() == 0 {
		return CrawlToken{}, false
	}

	entry := heap.Pop(&f.pq).(*heapEntry)
	delete(f.byHash, entry.hash)
	f.visited.Add(entry.hash)

	return NewCrawlToken(entry.url, 0), true
}

// MarkCrawled records u as visited without requiring it to have gone
// through Dequeue. Safe to call redundantly after Dequeue.
func (f *Frontier) MarkCrawled(u url.URL) {
	f.mu.Lock()
	defer f.mu.Unlock()
	canonical := urlutil.Canonicalize(u)
	f.visited.Add(canonical.String())
}

// IsCrawled reports whether u has already been visited.
func (f *Frontier) IsCrawled(u url.URL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	canonical := urlutil.Canonicalize(u)
	return f.visited.Contains(canonical.String())
}

// VisitedCount returns the number of URLs dequeued (or explicitly marked
// crawled) so far.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited.Size()
}

// PendingCount returns the number of URLs currently admitted and waiting.
func (f *Frontier) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pq.Len()
}

// Pending returns a snapshot of the currently pending entries, in no
// particular order. Intended for stats/debugging only.
func (f *Frontier) Pending() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]Entry, 0, len(f.pq))
	for _, e := range f.pq {
		entries = append(entries, e.toEntry())
	}
	return entries
}

package extractor

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
)

/*
Document is the structured result of the body-selection fallback chain:
a pure function from (url, html) to either a Document or none. Unlike
DomExtractor's scored layer-3 fallback (dom.go), this chain is
intentionally brittle and ordered — each step returns on the first
qualifying candidate, never merging strategies.
*/
type Document struct {
	URL              url.URL
	Title            string
	Description      string
	Author           string
	Content          string
	PublishDate      string // ISO-8601, empty if undeterminable
	Tags             []string
	WordCount        int
	ReadingTime      int
	ReadabilityScore float64
	HasReadability   bool
	ContentHash      string
}

const minBodyChars = 200

// bodySelectors is the ordered list of CSS selectors tried before falling
// back to <p> concatenation and then <body> (spec.md §4.4 step 2).
var bodySelectors = []string{
	"article",
	`[role="main"]`,
	".content",
	"#content",
	".post-content",
	".entry-content",
	".article-body",
}

var titleSelectors = []string{
	"h1",
	".title",
	".post-title",
	".article-title",
	".entry-title",
	`[property="og:title"]`,
}

var authorSelectors = []string{
	`[rel="author"]`,
	".author",
	".byline",
	`[property="article:author"]`,
	".post-author",
}

var dateSelectors = []string{
	`[property="article:published_time"]`,
	"[datetime]",
	".date",
	".publish-date",
	"time",
}

var tagSelectors = []string{
	".tags a",
	".categories a",
	".tag",
	`[property="article:tag"]`,
}

var adClassPattern = regexp.MustCompile(`(?i)\b(ad|advertisement|social-share|related-posts)\b`)

// ExtractDocument runs the spec's ordered extraction chain over rawHTML
// fetched from sourceURL. It returns (Document{}, false) when no body
// candidate qualifies; it never panics on malformed HTML.
func ExtractDocument(sourceURL url.URL, rawHTML []byte) (Document, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(rawHTML)))
	if err != nil {
		return Document{}, false
	}

	cleanDocumentForExtraction(doc)

	content, ok := selectBody(doc)
	if !ok {
		return Document{}, false
	}

	title := selectFirstNonEmptyText(doc, titleSelectors)
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	description := metaContent(doc, "description")
	if description == "" {
		description = metaProperty(doc, "og:description")
	}

	author := selectFirstNonEmptyText(doc, authorSelectors)
	publishDate := selectPublishDate(doc)
	tags := selectTags(doc)

	wordCount := countTokens(content)
	readingTime := wordCount / 200
	if readingTime < 1 {
		readingTime = 1
	}

	score, hasScore := fleschReadingEase(content)

	return Document{
		URL:              sourceURL,
		Title:            title,
		Description:      description,
		Author:           author,
		Content:          content,
		PublishDate:      publishDate,
		Tags:             tags,
		WordCount:        wordCount,
		ReadingTime:      readingTime,
		ReadabilityScore: score,
		HasReadability:   hasScore,
		ContentHash:      contentHash(content),
	}, true
}

// cleanDocumentForExtraction removes script/style/nav/header/footer
// subtrees, HTML comments, and elements whose class matches a known ad
// or chrome pattern (spec.md §4.4 step 1).
func cleanDocumentForExtraction(doc *goquery.Document) {
	doc.Find("script, style, nav, header, footer").Remove()
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		class, exists := s.Attr("class")
		if exists && adClassPattern.MatchString(class) {
			s.Remove()
		}
	})
	removeComments(doc.Selection)
}

func removeComments(sel *goquery.Selection) {
	sel.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#comment" {
			c.Remove()
			return
		}
		removeComments(c)
	})
}

// selectBody implements spec.md §4.4 step 2: the first selector whose
// extracted text exceeds minBodyChars wins; otherwise fall back to
// concatenated long paragraphs, then the whole body.
func selectBody(doc *goquery.Document) (string, bool) {
	for _, selector := range bodySelectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if len(text) > minBodyChars {
			return text, true
		}
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if len(text) > 50 {
			paragraphs = append(paragraphs, text)
		}
	})
	if joined := strings.Join(paragraphs, " "); len(joined) > minBodyChars {
		return joined, true
	}

	bodyText := strings.TrimSpace(doc.Find("body").First().Text())
	if len(bodyText) > minBodyChars {
		return bodyText, true
	}

	return "", false
}

func selectFirstNonEmptyText(doc *goquery.Document, selectors []string) string {
	for _, selector := range selectors {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" {
			return text
		}
	}
	return ""
}

func metaContent(doc *goquery.Document, name string) string {
	val, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return strings.TrimSpace(val)
}

func metaProperty(doc *goquery.Document, property string) string {
	val, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return strings.TrimSpace(val)
}

// selectPublishDate tries each dateSelectors candidate, preferring the
// element's datetime/content attribute over its text, normalizing to
// ISO-8601. Absent on parse failure (spec.md §4.4 step 6).
func selectPublishDate(doc *goquery.Document) string {
	for _, selector := range dateSelectors {
		sel := doc.Find(selector).First()
		if sel.Length() == 0 {
			continue
		}
		raw, exists := sel.Attr("datetime")
		if !exists || raw == "" {
			raw, exists = sel.Attr("content")
		}
		if !exists || raw == "" {
			raw = strings.TrimSpace(sel.Text())
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if parsed, err := dateparse.ParseAny(raw); err == nil {
			return parsed.UTC().Format(time.RFC3339)
		}
	}
	return ""
}

// selectTags unions the text content of tagSelectors in DOM order,
// deduplicated preserving first occurrence, truncated to 10 (spec.md
// §4.4 step 7).
func selectTags(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var tags []string
	for _, selector := range tagSelectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			if len(tags) >= 10 {
				return
			}
			text := strings.TrimSpace(s.Text())
			if text == "" {
				return
			}
			if _, dup := seen[text]; dup {
				return
			}
			seen[text] = struct{}{}
			tags = append(tags, text)
		})
	}
	if len(tags) > 10 {
		tags = tags[:10]
	}
	return tags
}

func countTokens(content string) int {
	return len(strings.Fields(content))
}

// contentHash is the 128-bit MD5 of the normalized content: whitespace
// collapsed, lowercased, stripped of characters outside \w\s.,!?;:()-".
var normalizeStripPattern = regexp.MustCompile(`[^\w\s.,!?;:()\-"]`)
var whitespaceRunPattern = regexp.MustCompile(`\s+`)

func contentHash(content string) string {
	normalized := strings.ToLower(content)
	normalized = normalizeStripPattern.ReplaceAllString(normalized, "")
	normalized = whitespaceRunPattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)
	sum := md5.Sum([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// fleschReadingEase computes the Flesch reading ease score:
// 206.835 - 1.015*(words/sentences) - 84.6*(syllables/words).
// Returns (0, false) when content has no countable words or sentences.
func fleschReadingEase(content string) (float64, bool) {
	words := strings.Fields(content)
	if len(words) == 0 {
		return 0, false
	}

	sentenceEnders := regexp.MustCompile(`[.!?]+`)
	sentences := sentenceEnders.Split(content, -1)
	sentenceCount := 0
	for _, s := range sentences {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}
	if sentenceCount == 0 {
		sentenceCount = 1
	}

	syllableCount := 0
	for _, w := range words {
		syllableCount += countSyllables(w)
	}

	wordsPerSentence := float64(len(words)) / float64(sentenceCount)
	syllablesPerWord := float64(syllableCount) / float64(len(words))

	score := 206.835 - 1.015*wordsPerSentence - 84.6*syllablesPerWord
	return score, true
}

var vowelGroupPattern = regexp.MustCompile(`(?i)[aeiouy]+`)

// countSyllables is a standard heuristic: count vowel groups, drop a
// trailing silent "e", floor at one syllable per word.
func countSyllables(word string) int {
	word = strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'))
	}))
	if word == "" {
		return 1
	}
	groups := vowelGroupPattern.FindAllString(word, -1)
	count := len(groups)
	if strings.HasSuffix(word, "e") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}

package sanitizer

import (
	"net/url"

	"golang.org/x/net/html"
)

// SanitizedHTMLDoc is the structurally-repaired document handed to the
// markdown converter, plus the hyperlinks discovered along the way.
type SanitizedHTMLDoc struct {
	contentNode    *html.Node
	discoveredUrls []url.URL
}

func (s *SanitizedHTMLDoc) GetContentNode() *html.Node {
	return s.contentNode
}

func (s *SanitizedHTMLDoc) GetDiscoveredURLs() []url.URL {
	return s.discoveredUrls
}

// RepairableResult is isRepairable's verdict: whether the document's
// structure can be safely repaired, and if not, which invariant it broke.
type RepairableResult struct {
	Repairable bool
	Reason     UnrepairabilityReason
}

// headingInfo captures a heading's level, its node, and its text, in the
// order headings appear in the document.
type headingInfo struct {
	level int
	node  *html.Node
	text  string
}

package robots

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/corvusreach/crawlkit/internal/metadata"
	"github.com/corvusreach/crawlkit/internal/robots/cache"
)

/*
Responsibilities

- Fetch robots.txt per host
- Cache rules for crawl duration
- Enforce allow/disallow rules before enqueue

Robots checks occur before a URL enters the frontier.
*/

// Robot is the per-host policy gate the scheduler consults before a URL
// is admitted to the frontier.
type Robot interface {
	Init(userAgent string)
	InitWithCache(userAgent string, cache cache.Cache)
	Decide(target url.URL) (Decision, *RobotsError)
}

// CachedRobot is the default Robot: it fetches robots.txt lazily per
// host, caches it for the remainder of the crawl, and evaluates
// allow/disallow precedence per host on every Decide call.
type CachedRobot struct {
	metadataSink metadata.MetadataSink
	userAgent    string
	fetcher      *RobotsFetcher
	cache        cache.Cache
}

// NewCachedRobot creates a CachedRobot bound to the given metadata sink.
// Init or InitWithCache must be called before Decide.
func NewCachedRobot(metadataSink metadata.MetadataSink) CachedRobot {
	return CachedRobot{metadataSink: metadataSink}
}

// Init sets the user agent and backs the robot with a fresh in-memory
// cache scoped to this crawl run.
func (r *CachedRobot) Init(userAgent string) {
	r.InitWithCache(userAgent, cache.NewMemoryCache())
}

// InitWithCache is like Init but lets the caller supply the cache
// implementation (useful for sharing a cache across robots in tests).
func (r *CachedRobot) InitWithCache(userAgent string, c cache.Cache) {
	r.userAgent = userAgent
	r.cache = c
	r.fetcher = NewRobotsFetcher(r.metadataSink, userAgent, c)
}

// Decide fetches (or reuses the cached) robots.txt for target's host and
// reports whether target may be crawled under this robot's user agent.
func (r *CachedRobot) Decide(target url.URL) (Decision, *RobotsError) {
	if r.fetcher == nil {
		r.fetcher = NewRobotsFetcher(r.metadataSink, r.userAgent, r.cache)
	}

	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}

	fetchResult, err := r.fetcher.Fetch(context.Background(), scheme, target.Host)
	if err != nil {
		if r.metadataSink != nil {
			r.metadataSink.RecordError(
				time.Now(),
				"robots",
				"CachedRobot.Decide",
				mapRobotsErrorToMetadataCause(err),
				err.Error(),
				[]metadata.Attribute{
					metadata.NewAttr(metadata.AttrHost, target.Host),
					metadata.NewAttr(metadata.AttrURL, target.String()),
				},
			)
		}
		return Decision{}, err
	}

	rs := MapResponseToRuleSet(fetchResult.Response, r.userAgent, fetchResult.FetchedAt)
	return decideForPath(rs, target), nil
}

// decideForPath evaluates an already-fetched ruleSet against one URL.
// Allow/Disallow precedence follows the de facto convention used by
// major crawlers: the longest matching pattern wins; equal-length
// matches favor Allow.
func decideForPath(rs ruleSet, target url.URL) Decision {
	delay := time.Duration(0)
	if cd := rs.CrawlDelay(); cd != nil {
		delay = *cd
	}

	if !rs.hasGroups {
		return Decision{Url: target, Allowed: true, Reason: EmptyRuleSet, CrawlDelay: delay}
	}
	if !rs.matchedGroup {
		return Decision{Url: target, Allowed: true, Reason: UserAgentNotMatched, CrawlDelay: delay}
	}

	path := target.Path
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}

	bestAllow, bestDisallow := -1, -1
	for _, rule := range rs.AllowRules() {
		if matchesRobotsPattern(rule.Prefix(), path) && len(rule.Prefix()) > bestAllow {
			bestAllow = len(rule.Prefix())
		}
	}
	for _, rule := range rs.DisallowRules() {
		if matchesRobotsPattern(rule.Prefix(), path) && len(rule.Prefix()) > bestDisallow {
			bestDisallow = len(rule.Prefix())
		}
	}

	switch {
	case bestAllow == -1 && bestDisallow == -1:
		return Decision{Url: target, Allowed: true, Reason: NoMatchingRules, CrawlDelay: delay}
	case bestDisallow > bestAllow:
		return Decision{Url: target, Allowed: false, Reason: DisallowedByRobots, CrawlDelay: delay}
	default:
		return Decision{Url: target, Allowed: true, Reason: AllowedByRobots, CrawlDelay: delay}
	}
}

// matchesRobotsPattern implements the robots.txt path-matching grammar:
// "*" matches any run of characters, and a trailing "$" anchors the
// match to the end of the path. Everything else matches as a literal
// prefix.
func matchesRobotsPattern(pattern, path string) bool {
	anchored := strings.HasSuffix(pattern, "$")
	body := strings.TrimSuffix(pattern, "$")

	var b strings.Builder
	b.WriteString("^")
	for i, part := range strings.Split(body, "*") {
		if i > 0 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}
	if anchored {
		b.WriteString("$")
	}

	re, err := regexp.Compile(b.String())
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

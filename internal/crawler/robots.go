package crawler

import (
	"bufio"
	"container/list"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// RobotsPolicy answers whether a URL may be fetched under the target host's
// robots.txt directives.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RobotsConfig tunes the robots rule cache.
type RobotsConfig struct {
	UserAgent string
	CacheSize int
	CacheTTL  time.Duration
}

// RobotsEnforcer fetches, parses, and caches robots.txt per robots URL.
// The cache key is the full robots.txt URL, so different schemes or ports on
// one host are cached independently. Concurrent first queries for one host
// collapse into a single fetch.
type RobotsEnforcer struct {
	client *http.Client
	cfg    RobotsConfig
	cache  *rulesCache
	group  singleflight.Group
	logger *zap.Logger
}

// NewRobotsEnforcer builds a RobotsEnforcer.
func NewRobotsEnforcer(cfg RobotsConfig, logger *zap.Logger) *RobotsEnforcer {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 512
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	return &RobotsEnforcer{
		client: &http.Client{Timeout: 10 * time.Second},
		cfg:    cfg,
		cache:  newRulesCache(cfg.CacheSize, cfg.CacheTTL),
		logger: logger,
	}
}

// Allowed reports whether the URL's path may be fetched. Any failure to
// fetch or parse robots.txt defaults to allowed.
func (r *RobotsEnforcer) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)

	rules := r.rulesFor(ctx, robotsURL)

	path := u.Path
	if path == "" {
		path = "/"
	}
	return rules.allowed(path)
}

func (r *RobotsEnforcer) rulesFor(ctx context.Context, robotsURL string) robotsRules {
	if rules, ok := r.cache.get(robotsURL); ok {
		return rules
	}
	v, _, _ := r.group.Do(robotsURL, func() (any, error) {
		if rules, ok := r.cache.get(robotsURL); ok {
			return rules, nil
		}
		rules, err := r.fetch(ctx, robotsURL)
		if err != nil {
			// No reachable or parseable robots.txt means no restrictions.
			r.logger.Info("robots.txt unavailable, allowing by default",
				zap.String("robots_url", robotsURL), zap.Error(err))
			rules = robotsRules{}
		}
		r.cache.put(robotsURL, rules)
		return rules, nil
	})
	return v.(robotsRules)
}

func (r *RobotsEnforcer) fetch(ctx context.Context, robotsURL string) (robotsRules, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return robotsRules{}, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", r.cfg.UserAgent)
	resp, err := r.client.Do(req)
	if err != nil {
		return robotsRules{}, fmt.Errorf("fetch robots.txt: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return robotsRules{}, fmt.Errorf("robots.txt status %d", resp.StatusCode)
	}
	return parseRobots(io.LimitReader(resp.Body, 1<<20), r.cfg.UserAgent), nil
}

// parseRobots reads Allow/Disallow rules from the groups addressed to the
// wildcard user-agent or to this crawler's exact user-agent name. Directives
// under other user-agents are ignored.
func parseRobots(body io.Reader, userAgent string) robotsRules {
	var rules robotsRules
	relevant := false

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		directive = strings.ToLower(strings.TrimSpace(directive))
		value = strings.TrimSpace(value)

		switch directive {
		case "user-agent":
			relevant = value == "*" || value == userAgent
		case "allow":
			if relevant {
				rules.allow = append(rules.allow, newPathRule(value))
			}
		case "disallow":
			if relevant {
				rules.disallow = append(rules.disallow, newPathRule(value))
			}
		}
	}
	return rules
}

type robotsRules struct {
	allow    []pathRule
	disallow []pathRule
}

// allowed evaluates a path against the rule set. Allow rules take precedence
// over Disallow rules; with no matching rule the path is allowed.
func (r robotsRules) allowed(path string) bool {
	for _, rule := range r.allow {
		if rule.matches(path) {
			return true
		}
	}
	for _, rule := range r.disallow {
		if rule.matches(path) {
			return false
		}
	}
	return true
}

type pathRule struct {
	re *regexp.Regexp
}

// newPathRule compiles a robots.txt path pattern. `*` is a wildcard; rules
// not terminated by a wildcard are anchored to an exact suffix match.
func newPathRule(path string) pathRule {
	pattern := strings.ReplaceAll(regexp.QuoteMeta(path), `\*`, ".*")
	if !strings.HasSuffix(path, "*") {
		pattern += "$"
	}
	return pathRule{re: regexp.MustCompile("^" + pattern)}
}

func (p pathRule) matches(path string) bool {
	return p.re.MatchString(path)
}

// rulesCache is a TTL-bounded LRU keyed by robots.txt URL.
type rulesCache struct {
	mu      sync.Mutex
	cap     int
	ttl     time.Duration
	entries map[string]*list.Element
	order   *list.List
	now     func() time.Time
}

type cacheEntry struct {
	key     string
	rules   robotsRules
	expires time.Time
}

func newRulesCache(capacity int, ttl time.Duration) *rulesCache {
	return &rulesCache{
		cap:     capacity,
		ttl:     ttl,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

func (c *rulesCache) get(key string) (robotsRules, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.entries[key]
	if !ok {
		return robotsRules{}, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expires) {
		c.order.Remove(el)
		delete(c.entries, key)
		return robotsRules{}, false
	}
	c.order.MoveToFront(el)
	return entry.rules, true
}

func (c *rulesCache) put(key string, rules robotsRules) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*cacheEntry)
		entry.rules = rules
		entry.expires = c.now().Add(c.ttl)
		c.order.MoveToFront(el)
		return
	}
	for len(c.entries) >= c.cap {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
	el := c.order.PushFront(&cacheEntry{
		key:     key,
		rules:   rules,
		expires: c.now().Add(c.ttl),
	})
	c.entries[key] = el
}

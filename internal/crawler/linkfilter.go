package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// trackerDomains are hosts whose links are dropped outright. Matching is by
// host suffix, so subdomains of an entry are covered too.
var trackerDomains = []string{
	"googletagmanager.com",
	"google-analytics.com",
	"analytics.google.com",
	"doubleclick.net",
	"facebook.com/tr",
	"facebook.net",
	"twitter.com/i/jot",
	"connect.facebook.net",
	"stats.wp.com",
	"amazon-adsystem.com",
	"adservice.google.com",
}

// trackerPatterns flag tracking pixels, tag-manager payloads, and
// UTM-tagged asset URLs.
var trackerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`.*\.js\?.*utm_.*`),
	regexp.MustCompile(`.*\.css\?.*utm_.*`),
	regexp.MustCompile(`.*\?.*utm_source=.*`),
	regexp.MustCompile(`.*\?.*utm_medium=.*`),
	regexp.MustCompile(`.*\?.*utm_campaign=.*`),
	regexp.MustCompile(`.*/pixel\.gif.*`),
	regexp.MustCompile(`.*/gtm\.js.*`),
	regexp.MustCompile(`.*/gtag/js.*`),
}

// LinkFilter decides whether discovered URLs are tracker/analytics noise and
// normalizes URLs by stripping tracking query parameters.
type LinkFilter struct{}

// NewLinkFilter constructs a LinkFilter.
func NewLinkFilter() *LinkFilter {
	return &LinkFilter{}
}

// ShouldFilter reports whether the URL should be dropped: empty or malformed
// URLs, hosts on the tracker denylist, and URLs matching tracking patterns.
func (f *LinkFilter) ShouldFilter(raw string) bool {
	if raw == "" {
		return true
	}
	u, err := url.Parse(raw)
	if err != nil {
		return true
	}
	if host := u.Hostname(); host != "" {
		for _, domain := range trackerDomains {
			if strings.HasSuffix(host, domain) {
				return true
			}
		}
	}
	for _, pattern := range trackerPatterns {
		if pattern.MatchString(raw) {
			return true
		}
	}
	return false
}

// CleanURL strips query parameters whose name begins with "utm_", leaving
// the rest of the URL intact. URLs without a query string, without utm_
// parameters, or that fail to parse are returned unchanged.
func (f *LinkFilter) CleanURL(raw string) string {
	if raw == "" {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	if !strings.Contains(u.RawQuery, "utm_") {
		return raw
	}

	// Rebuild the query by hand to preserve parameter order.
	params := strings.Split(u.RawQuery, "&")
	kept := params[:0]
	for _, param := range params {
		if strings.HasPrefix(param, "utm_") {
			continue
		}
		kept = append(kept, param)
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestParseRobotsAllowTakesPrecedence(t *testing.T) {
	t.Parallel()

	rules := parseRobots(strings.NewReader(`
User-agent: *
Disallow: /private/*
Allow: /private/recipes/*
`), "RecipeArchiverBot")

	require.True(t, rules.allowed("/private/recipes/stew"))
	require.False(t, rules.allowed("/private/account"))
	require.True(t, rules.allowed("/public/page"))
}

func TestParseRobotsWildcardAndAnchor(t *testing.T) {
	t.Parallel()

	rules := parseRobots(strings.NewReader(`
User-agent: *
Disallow: /tmp
Disallow: /drafts/*
`), "RecipeArchiverBot")

	// Rules without a trailing wildcard match the exact path only.
	require.False(t, rules.allowed("/tmp"))
	require.True(t, rules.allowed("/tmp/file"))
	require.True(t, rules.allowed("/tmpother"))

	// A trailing wildcard covers everything under the prefix.
	require.False(t, rules.allowed("/drafts/"))
	require.False(t, rules.allowed("/drafts/2024/pie"))
}

func TestParseRobotsInteriorWildcard(t *testing.T) {
	t.Parallel()

	rules := parseRobots(strings.NewReader(`
User-agent: *
Disallow: /*/print
`), "RecipeArchiverBot")

	require.False(t, rules.allowed("/recipes/print"))
	require.False(t, rules.allowed("/a/b/print"))
	require.True(t, rules.allowed("/recipes/print/all"))
}

func TestParseRobotsUserAgentScoping(t *testing.T) {
	t.Parallel()

	body := `
User-agent: OtherBot
Disallow: /

User-agent: RecipeArchiverBot
Disallow: /blocked
`
	rules := parseRobots(strings.NewReader(body), "RecipeArchiverBot")
	require.True(t, rules.allowed("/anything"))
	require.False(t, rules.allowed("/blocked"))

	other := parseRobots(strings.NewReader(body), "SomeThirdBot")
	require.True(t, other.allowed("/blocked"))
}

func TestParseRobotsIgnoresCommentsAndBlanks(t *testing.T) {
	t.Parallel()

	rules := parseRobots(strings.NewReader(`
# site policy

User-agent: *
# keep bots out of admin
Disallow: /admin
`), "RecipeArchiverBot")

	require.False(t, rules.allowed("/admin"))
	require.True(t, rules.allowed("/"))
}

func TestEnforcerFetchesAndCachesPerHost(t *testing.T) {
	t.Parallel()

	var fetches atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/robots.txt", r.URL.Path)
		fetches.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /secret*\n"))
	}))
	defer srv.Close()

	e := NewRobotsEnforcer(RobotsConfig{
		UserAgent: "RecipeArchiverBot",
		CacheSize: 4,
		CacheTTL:  time.Minute,
	}, zaptest.NewLogger(t))

	ctx := context.Background()
	require.True(t, e.Allowed(ctx, srv.URL+"/recipes/1"))
	require.False(t, e.Allowed(ctx, srv.URL+"/secret/area"))
	require.True(t, e.Allowed(ctx, srv.URL+"/recipes/2"))
	require.Equal(t, int32(1), fetches.Load())
}

func TestEnforcerDefaultsToAllowOnFetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := NewRobotsEnforcer(RobotsConfig{UserAgent: "RecipeArchiverBot"}, zaptest.NewLogger(t))
	require.True(t, e.Allowed(context.Background(), srv.URL+"/anything"))

	// Unreachable hosts also default to allowed; the page fetch will fail
	// on its own terms.
	down := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	down.Close()
	require.True(t, e.Allowed(context.Background(), down.URL+"/page"))
}

func TestEnforcerRejectsMalformedURLs(t *testing.T) {
	t.Parallel()

	e := NewRobotsEnforcer(RobotsConfig{UserAgent: "RecipeArchiverBot"}, zaptest.NewLogger(t))
	require.False(t, e.Allowed(context.Background(), "http://exa mple.com/"))
	require.False(t, e.Allowed(context.Background(), "/relative/only"))
}

func TestRulesCacheEvictsOldestAndExpires(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	cache := newRulesCache(2, time.Minute)
	cache.now = func() time.Time { return now }

	blocked := robotsRules{disallow: []pathRule{newPathRule("/x*")}}
	cache.put("a", blocked)
	cache.put("b", robotsRules{})
	cache.put("c", robotsRules{})

	if _, ok := cache.get("a"); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := cache.get("b"); !ok {
		t.Fatal("entry b should still be cached")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := cache.get("b"); ok {
		t.Fatal("entry b should have expired")
	}
}

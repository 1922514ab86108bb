package crawler

import (
	"testing"
)

func TestShouldFilterTrackerHosts(t *testing.T) {
	t.Parallel()

	f := NewLinkFilter()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.google-analytics.com/collect?v=1", true},
		{"https://googletagmanager.com/gtm.js", true},
		{"https://stats.doubleclick.net/r/collect", true},
		{"https://connect.facebook.net/en_US/fbevents.js", true},
		{"https://sub.amazon-adsystem.com/e/ec", true},
		{"https://example.com/recipe/1", false},
		{"https://example.com/images/hero.jpg", false},
		{"/relative/path.html", false},
	}
	for _, tc := range tests {
		if got := f.ShouldFilter(tc.url); got != tc.want {
			t.Errorf("ShouldFilter(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestShouldFilterTrackingPatterns(t *testing.T) {
	t.Parallel()

	f := NewLinkFilter()
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/app.js?utm_source=feed", true},
		{"https://cdn.example.com/site.css?utm_campaign=x", true},
		{"https://example.com/recipe?utm_source=newsletter", true},
		{"https://example.com/recipe?utm_medium=email", true},
		{"https://example.com/recipe?utm_campaign=spring", true},
		{"https://metrics.example.com/pixel.gif?id=7", true},
		{"https://example.com/gtm.js?id=GTM-XYZ", true},
		{"https://www.googletagmanager.com/gtag/js?id=G-1", true},
		{"https://example.com/recipe?id=7", false},
		{"https://cdn.example.com/app.js", false},
	}
	for _, tc := range tests {
		if got := f.ShouldFilter(tc.url); got != tc.want {
			t.Errorf("ShouldFilter(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestShouldFilterRejectsEmptyAndMalformed(t *testing.T) {
	t.Parallel()

	f := NewLinkFilter()
	if !f.ShouldFilter("") {
		t.Error("empty URL should be filtered")
	}
	if !f.ShouldFilter("http://exa mple.com/%zz") {
		t.Error("unparseable URL should be filtered")
	}
}

func TestCleanURLStripsUTMParams(t *testing.T) {
	t.Parallel()

	f := NewLinkFilter()
	tests := []struct {
		in   string
		want string
	}{
		{
			"https://example.com/recipe?utm_source=x&id=7&utm_medium=y",
			"https://example.com/recipe?id=7",
		},
		{
			"https://example.com/recipe?utm_source=x&utm_medium=y",
			"https://example.com/recipe",
		},
		{
			"https://example.com/recipe?a=1&b=2&utm_campaign=z",
			"https://example.com/recipe?a=1&b=2",
		},
		{"https://example.com/recipe?id=7", "https://example.com/recipe?id=7"},
		{"https://example.com/recipe", "https://example.com/recipe"},
	}
	for _, tc := range tests {
		if got := f.CleanURL(tc.in); got != tc.want {
			t.Errorf("CleanURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCleanURLPreservesParamOrder(t *testing.T) {
	t.Parallel()

	f := NewLinkFilter()
	in := "https://example.com/r?z=1&utm_source=s&a=2&m=3"
	want := "https://example.com/r?z=1&a=2&m=3"
	if got := f.CleanURL(in); got != want {
		t.Errorf("CleanURL(%q) = %q, want %q", in, got, want)
	}
}

package main

import (
	"testing"

	"podolsknews/feed"
)

// FuzzResolvePublishedAt exercises the published_at resolver with arbitrary
// textual and numeric pubDate inputs; it must never panic and must always
// return a time with a year inside [1990, 2100].
func FuzzResolvePublishedAt(f *testing.F) {
	seeds := []string{
		"",
		"Mon, 01 Jan 2024 12:34:56 +0000",
		"2024-01-01T12:34:56Z",
		"2024-01-01T12:34:56.789Z",
		"1700000000",
		"1700000000000",
		"1700000000000000",
		"not-a-date",
		"0",
		"-1",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		got := feed.ResolvePublishedAt(raw, nil)
		if y := got.Year(); y < 1990 || y > 2100 {
			t.Fatalf("ResolvePublishedAt(%q) = %v, year out of [1990,2100]", raw, got)
		}
	})
}

// FuzzDetectLanguage exercises the feed-title language guess with arbitrary
// input; it must never panic and must always return one of the known
// languages.
func FuzzDetectLanguage(f *testing.F) {
	seeds := []string{
		"",
		"пример новости",
		"ärger im Staat",
		"ñandú corre",
		"Breaking News",
		"123",
		"«Новости» дня",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	known := map[string]bool{"russian": true, "german": true, "spanish": true, "english": true}
	f.Fuzz(func(t *testing.T, title string) {
		got := feed.DetectLanguage(title)
		if !known[got] {
			t.Fatalf("DetectLanguage(%q) = %q, not a known language", title, got)
		}
	})
}

package feed

import (
	"testing"
	"time"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"russian lowercase", "пример новости", "russian"},
		{"russian yo", "ёлка упала", "russian"},
		{"german umlaut a", "ärger im Staat", "german"},
		{"german umlaut o", "ökonomie wächst", "german"},
		{"german umlaut u", "übung macht den Meister", "german"},
		{"german eszett", "ß-Regel gilt weiter", "german"},
		{"spanish n tilde", "ñandú corre", "spanish"},
		{"spanish accent a", "áfrica crece", "spanish"},
		{"english", "Breaking News Today", "english"},
		{"empty title falls back", "", "russian"},
		{"leading digits then english", "2024 Breaking News", "english"},
		{"leading punctuation then russian", "«Новости» дня", "russian"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetectLanguage(tt.title)
			if got != tt.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tt.title, got, tt.want)
			}
		})
	}
}

func mustUTC(t *testing.T, layout, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(layout, value)
	if err != nil {
		t.Fatalf("parse fixture %q: %v", value, err)
	}
	return parsed.UTC()
}

func TestResolvePublishedAtTextual(t *testing.T) {
	want := mustUTC(t, time.RFC3339, "2024-01-01T12:34:56Z")

	tests := []struct {
		name string
		raw  string
	}{
		{"rfc2822", "Mon, 01 Jan 2024 12:34:56 +0000"},
		{"iso8601", "2024-01-01T12:34:56Z"},
		{"iso8601 with millis", "2024-01-01T12:34:56.789Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePublishedAt(tt.raw, nil)
			if !got.Equal(want) {
				t.Errorf("ResolvePublishedAt(%q) = %v, want %v", tt.raw, got, want)
			}
		})
	}
}

func TestResolvePublishedAtNumeric(t *testing.T) {
	want := mustUTC(t, time.RFC3339, "2023-11-14T22:13:20Z")

	tests := []struct {
		name string
		raw  string
	}{
		{"seconds", "1700000000"},
		{"milliseconds", "1700000000000"},
		{"microseconds", "1700000000000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolvePublishedAt(tt.raw, nil)
			if !got.Equal(want) {
				t.Errorf("ResolvePublishedAt(%q) = %v, want %v", tt.raw, got, want)
			}
		})
	}
}

func TestResolvePublishedAtMalformedFallsBackToNow(t *testing.T) {
	before := time.Now().UTC()
	got := ResolvePublishedAt("", nil)
	after := time.Now().UTC()

	if got.Before(before) || got.After(after) {
		t.Errorf("ResolvePublishedAt(\"\") = %v, want between %v and %v", got, before, after)
	}
}

func TestResolvePublishedAtPreParsedOutOfRangeFallsThrough(t *testing.T) {
	// A year far outside [1990, 2100] must be rejected even when gofeed's
	// own parse succeeded, and fall through to the numeric/now branches.
	outOfRange := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
	got := ResolvePublishedAt("not-a-date", &outOfRange)
	if got.Year() < 1990 {
		t.Errorf("expected fallback away from out-of-range year, got %v", got)
	}
}

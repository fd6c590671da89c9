// Package feed is the Feed Fetcher/Normalizer: it fetches and parses one
// RSS/Atom source and turns its items into canonical article rows, with
// a language guess per feed and a robust published_at resolution per item.
package feed

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/araddon/dateparse"
	"github.com/mmcdole/gofeed"

	"podolsknews/monitoring"
)

// Item is one canonical article row read off a feed: url ← link, image ←
// enclosure url, summary ← description, guid, published_at (UTC),
// language. The poller adds the source_id when it builds the ingestion row.
type Item struct {
	URL         string
	Image       string
	Title       string
	Summary     string
	GUID        string
	PublishedAt time.Time
	Language    string
}

// Feed is a fetched and normalized source: the feed-level language guess
// plus its items in feed order.
type Feed struct {
	Language string
	Items    []Item
}

const (
	fetchTimeout = 7 * time.Second
	userAgent    = "PodolskNews/1.0"
)

// Fetcher wraps an HTTP client shared by every per-source parse within a
// poller tick.
type Fetcher struct {
	client *http.Client
	log    *monitoring.Logger
}

// NewFetcher builds a Fetcher with the given HTTP client, or
// http.DefaultClient if client is nil.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Fetcher{client: client, log: monitoring.NewLogger("Feed")}
}

// ParseSource fetches and parses rawURL, returning the normalized Feed.
func (f *Fetcher) ParseSource(ctx context.Context, rawURL string) (*Feed, error) {
	fp := gofeed.NewParser()
	fp.Client = f.client
	fp.UserAgent = userAgent

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	parsed, err := fp.ParseURLWithContext(rawURL, fetchCtx)
	if err != nil {
		monitoring.IncrementSourcesFetchErrors()
		f.log.Warn("не удалось получить ленту %s: %v", rawURL, err)
		return nil, err
	}
	monitoring.IncrementSourcesFetched()

	out := &Feed{Language: DetectLanguage(parsed.Title)}
	for _, it := range parsed.Items {
		row := Item{
			Title:       it.Title,
			Summary:     it.Description,
			GUID:        it.GUID,
			Language:    out.Language,
			PublishedAt: ResolvePublishedAt(it.Published, it.PublishedParsed),
		}
		if it.Link != "" {
			row.URL = it.Link
		}
		if len(it.Enclosures) > 0 {
			row.Image = it.Enclosures[0].URL
		}
		out.Items = append(out.Items, row)
		monitoring.IncrementItemsProcessed()
	}
	return out, nil
}

// DetectLanguage implements the feed-level language guess: the first
// alphabetic character (lowercased) of the title classifies the feed by
// script. An empty or script-less title falls back to "russian", same as
// a title whose first letter matches none of the known ranges.
func DetectLanguage(title string) string {
	for _, r := range title {
		if !unicode.IsLetter(r) {
			continue
		}
		lower := unicode.ToLower(r)
		switch {
		case (lower >= 0x0430 && lower <= 0x044F) || lower == 0x0451:
			return "russian"
		case lower == 0x00E4 || lower == 0x00F6 || lower == 0x00FC || lower == 0x00DF:
			return "german"
		case lower == 0x00F1 || lower == 0x00E1 || lower == 0x00E9 || lower == 0x00ED || lower == 0x00F3 || lower == 0x00FA:
			return "spanish"
		case lower >= 'a' && lower <= 'z':
			return "english"
		default:
			return "russian"
		}
	}
	return "russian"
}

// ResolvePublishedAt resolves an item's published_at: textual pubDate
// (RFC-2822 / ISO-8601 / ISO-8601-with-ms) first,
// then a numeric timestamp interpreted by magnitude, then the current UTC
// instant. preParsed is gofeed's own best-effort parse of the textual
// field, reused here instead of re-parsing when it already succeeded.
// Textual results are truncated to whole seconds.
func ResolvePublishedAt(raw string, preParsed *time.Time) time.Time {
	raw = strings.TrimSpace(raw)

	if raw != "" {
		if preParsed != nil {
			if t := preParsed.UTC().Truncate(time.Second); yearInRange(t) {
				return t
			}
		}
		if t, err := parseTextualDate(raw); err == nil {
			if u := t.UTC().Truncate(time.Second); yearInRange(u) {
				return u
			}
		}
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil && ts > 0 {
			if t := fromMagnitude(ts); yearInRange(t) {
				return t
			}
		}
	}

	return time.Now().UTC()
}

// parseTextualDate tries RFC-2822, then ISO-8601, then ISO-8601-with-ms,
// falling back to dateparse's general free-form parser for anything else
// gofeed's own pre-parse missed.
func parseTextualDate(raw string) (time.Time, error) {
	layouts := []string{
		time.RFC1123Z,
		time.RFC1123,
		time.RFC822Z,
		time.RFC822,
		time.RFC3339,
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05.999999999Z07:00",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return dateparse.ParseAny(raw)
}

// fromMagnitude interprets a positive integer timestamp by its magnitude:
// >= 10^18 nanoseconds, >= 10^14 microseconds, >= 10^12 milliseconds, else
// seconds.
func fromMagnitude(ts int64) time.Time {
	switch {
	case ts >= 1_000_000_000_000_000_000:
		return time.Unix(0, ts).UTC()
	case ts >= 100_000_000_000_000:
		return time.UnixMicro(ts).UTC()
	case ts >= 1_000_000_000_000:
		return time.UnixMilli(ts).UTC()
	default:
		return time.Unix(ts, 0).UTC()
	}
}

func yearInRange(t time.Time) bool {
	y := t.Year()
	return y >= 1990 && y <= 2100
}

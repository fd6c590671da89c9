package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podolsknews/dbmodel"
	"podolsknews/feed"
)

type fakeStore struct {
	sources       []dbmodel.Source
	bumpedRanges  [][2]int64
	statusUpdates map[int64]string
}

func newFakeStore(sources ...dbmodel.Source) *fakeStore {
	return &fakeStore{sources: sources, statusUpdates: make(map[int64]string)}
}

func (f *fakeStore) ListRssSourcesRange(_ context.Context, _, _ int64) ([]dbmodel.Source, error) {
	return f.sources, nil
}

func (f *fakeStore) BumpSourcesLastUpdatedRange(_ context.Context, from, to int64, _ time.Time) error {
	f.bumpedRanges = append(f.bumpedRanges, [2]int64{from, to})
	return nil
}

func (f *fakeStore) GetSourceByID(_ context.Context, id int64) (dbmodel.Source, error) {
	for _, s := range f.sources {
		if s.ID == id {
			return s, nil
		}
	}
	return dbmodel.Source{}, errors.New("not found")
}

func (f *fakeStore) UpdateSourceStatus(_ context.Context, id int64, status string) (bool, error) {
	f.statusUpdates[id] = status
	return true, nil
}

type fakeFetcher struct {
	feed *feed.Feed
	err  error
}

func (f *fakeFetcher) ParseSource(_ context.Context, _ string) (*feed.Feed, error) {
	return f.feed, f.err
}

type fakeIngestor struct {
	inserted [][]dbmodel.ArticleInput
	nextID   int64
}

func (f *fakeIngestor) InsertArticles(_ context.Context, rows []dbmodel.ArticleInput) ([]dbmodel.ArticleInsertResult, error) {
	f.inserted = append(f.inserted, rows)
	out := make([]dbmodel.ArticleInsertResult, len(rows))
	for i := range rows {
		f.nextID++
		out[i] = dbmodel.ArticleInsertResult{ClusterID: f.nextID, ArticleID: f.nextID, CreatedNew: true}
	}
	return out, nil
}

type fakeClassifier struct {
	assigned []int64
}

func (f *fakeClassifier) AssignForClusters(_ context.Context, clusterIDs []int64) error {
	f.assigned = append(f.assigned, clusterIDs...)
	return nil
}

func mustTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		panic(err)
	}
	return t
}

// A source with no last_updated_at yet ingests every item in the feed.
func TestParseSourceFreshSourceInsertsAllItems(t *testing.T) {
	source := dbmodel.Source{ID: 10, Domain: "https://example.test/feed.xml"}
	store := newFakeStore(source)
	fx := &fakeFetcher{feed: &feed.Feed{Items: []feed.Item{
		{URL: "https://a/1", Title: "one", PublishedAt: mustTime("2025-05-01T10:00:00Z")},
		{URL: "https://a/2", Title: "two", PublishedAt: mustTime("2025-05-01T11:00:00Z")},
		{URL: "https://a/3", Title: "three", PublishedAt: mustTime("2025-05-01T12:00:00Z")},
	}}}
	ing := &fakeIngestor{}
	cls := &fakeClassifier{}

	p := New(store, fx, ing, cls, Config{Interval: time.Minute, RangeWidth: 1000, EagerBump: true})
	p.runTick(context.Background())

	require.Len(t, ing.inserted, 1)
	assert.Len(t, ing.inserted[0], 3)
	assert.Len(t, cls.assigned, 3)
	assert.Len(t, store.bumpedRanges, 1)
}

// An incremental fetch skips items at or before last_updated_at.
func TestParseSourceIncrementalFetchSkipsOlderItems(t *testing.T) {
	source := dbmodel.Source{ID: 10, Domain: "https://example.test/feed.xml", LastUpdatedAt: mustTime("2025-05-01T12:00:00Z")}
	store := newFakeStore(source)
	fx := &fakeFetcher{feed: &feed.Feed{Items: []feed.Item{
		{URL: "https://a/1", Title: "one", PublishedAt: mustTime("2025-05-01T10:00:00Z")},
		{URL: "https://a/2", Title: "two", PublishedAt: mustTime("2025-05-01T11:00:00Z")},
		{URL: "https://a/3", Title: "three", PublishedAt: mustTime("2025-05-01T12:00:00Z")},
		{URL: "https://a/4", Title: "four", PublishedAt: mustTime("2025-05-01T13:00:00Z")},
	}}}
	ing := &fakeIngestor{}
	cls := &fakeClassifier{}

	p := New(store, fx, ing, cls, Config{Interval: time.Minute, RangeWidth: 1000, EagerBump: true})
	p.runTick(context.Background())

	require.Len(t, ing.inserted, 1)
	require.Len(t, ing.inserted[0], 1)
	assert.Equal(t, "https://a/4", ing.inserted[0][0].URL)
}

// A malformed pubDate is still inserted: resolution to "now" happens
// upstream in feed.ResolvePublishedAt, and the poller doesn't filter it
// out for a source with no last_updated_at yet.
func TestParseSourceMalformedPubDateStillInserted(t *testing.T) {
	source := dbmodel.Source{ID: 10, Domain: "https://example.test/feed.xml"}
	store := newFakeStore(source)
	fx := &fakeFetcher{feed: &feed.Feed{Items: []feed.Item{
		{URL: "https://a/1", Title: "one", PublishedAt: time.Now().UTC()},
	}}}
	ing := &fakeIngestor{}
	cls := &fakeClassifier{}

	p := New(store, fx, ing, cls, Config{Interval: time.Minute, RangeWidth: 1000, EagerBump: true})
	p.runTick(context.Background())

	require.Len(t, ing.inserted, 1)
	assert.Len(t, ing.inserted[0], 1)
}

func TestRunTickSkipsOverlappingFire(t *testing.T) {
	source := dbmodel.Source{ID: 10, Domain: "https://example.test/feed.xml"}
	store := newFakeStore(source)
	fx := &fakeFetcher{feed: &feed.Feed{}}
	ing := &fakeIngestor{}
	cls := &fakeClassifier{}

	p := New(store, fx, ing, cls, Config{Interval: time.Minute, RangeWidth: 1000, EagerBump: true})
	p.ticking = 1 // simulate a tick already in flight

	p.runTick(context.Background())
	assert.Empty(t, store.bumpedRanges, "an overlapping tick must not touch the store at all")
}

func TestParseOneSourceByIDPropagatesFetchError(t *testing.T) {
	source := dbmodel.Source{ID: 10, Domain: "https://example.test/feed.xml"}
	store := newFakeStore(source)
	fx := &fakeFetcher{err: errors.New("HTTP 500")}
	ing := &fakeIngestor{}
	cls := &fakeClassifier{}

	p := New(store, fx, ing, cls, Config{Interval: time.Minute, RangeWidth: 1000, EagerBump: true})
	err := p.ParseOneSourceByID(context.Background(), 10)
	require.Error(t, err)
}

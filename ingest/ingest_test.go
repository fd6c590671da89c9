package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podolsknews/dbmodel"
)

type fakeStore struct {
	results []dbmodel.ArticleInsertResult
	err     error
	calls   int
	lastIn  []dbmodel.ArticleInput
}

func (f *fakeStore) InsertArticles(_ context.Context, rows []dbmodel.ArticleInput) ([]dbmodel.ArticleInsertResult, error) {
	f.calls++
	f.lastIn = rows
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestInsertArticlesEmptyBatchSkipsStore(t *testing.T) {
	fs := &fakeStore{}
	c := NewClient(fs)

	results, err := c.InsertArticles(context.Background(), nil)

	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 0, fs.calls, "an empty batch must not reach the store")
}

func TestInsertArticlesPropagatesRows(t *testing.T) {
	fs := &fakeStore{results: []dbmodel.ArticleInsertResult{
		{ClusterID: 1, ArticleID: 10, Score: 0.9, CreatedNew: true},
		{ClusterID: 2, ArticleID: 11, Score: 0.4, Matched: true},
	}}
	c := NewClient(fs)

	rows := []dbmodel.ArticleInput{
		{SourceID: 1, URL: "https://a.test/1", Title: "A", PublishedAt: time.Now()},
		{SourceID: 1, URL: "https://a.test/2", Title: "B", PublishedAt: time.Now()},
	}
	results, err := c.InsertArticles(context.Background(), rows)

	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 1, fs.calls)
	assert.True(t, results[0].CreatedNew)
	assert.True(t, results[1].Matched)
}

func TestInsertArticlesStoreFailureReturnsEmptyResult(t *testing.T) {
	fs := &fakeStore{err: errors.New("boom")}
	c := NewClient(fs)

	results, err := c.InsertArticles(context.Background(), []dbmodel.ArticleInput{
		{SourceID: 1, URL: "https://a.test/1", Title: "A", PublishedAt: time.Now()},
	})

	require.Error(t, err)
	assert.Nil(t, results)
}

func TestInsertArticlesRejectsRowWithoutPublishedAt(t *testing.T) {
	fs := &fakeStore{}
	c := NewClient(fs)

	results, err := c.InsertArticles(context.Background(), []dbmodel.ArticleInput{
		{SourceID: 1, URL: "https://a.test/1", Title: "A", PublishedAt: time.Now()},
		{SourceID: 1, URL: "https://a.test/2", Title: "B"},
	})

	require.Error(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 0, fs.calls, "a rejected row is fatal before any transaction opens")
}

func TestBatchPoolResetsLength(t *testing.T) {
	batch := GetBatch()
	assert.Len(t, batch, 0)
	assert.GreaterOrEqual(t, cap(batch), BatchSize)

	batch = append(batch, dbmodel.ArticleInput{URL: "https://a.test/1"})
	PutBatch(batch)

	reused := GetBatch()
	assert.Len(t, reused, 0)
}

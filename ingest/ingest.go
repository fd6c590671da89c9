// Package ingest is the Article Ingestion Client: it turns a batch of
// canonical feed rows into upsert_article_with_cluster calls, one
// transaction per batch, and reports per-row cluster-matching outcomes.
package ingest

import (
	"context"
	"fmt"
	"sync"

	"podolsknews/dbmodel"
	"podolsknews/monitoring"
)

// BatchSize is the accumulation threshold the poller fills before handing
// a batch to InsertArticles.
const BatchSize = 50

// store is the subset of db.Store the ingestion client needs, kept as an
// interface so tests can substitute a fake instead of a live connection.
type store interface {
	InsertArticles(ctx context.Context, rows []dbmodel.ArticleInput) ([]dbmodel.ArticleInsertResult, error)
}

// Client is the Article Ingestion Client.
type Client struct {
	store store
	log   *monitoring.Logger
}

// NewClient builds a Client over the given store.
func NewClient(s store) *Client {
	return &Client{store: s, log: monitoring.NewLogger("Ingest")}
}

// InsertArticles calls upsert_article_with_cluster once per row inside a
// single transaction. An empty batch is a no-op returning an empty result
// without touching the database. Any database error within the batch is
// fatal for that batch: the caller gets an empty result and moves on to
// the next source.
func (c *Client) InsertArticles(ctx context.Context, rows []dbmodel.ArticleInput) ([]dbmodel.ArticleInsertResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	// A row whose published_at never resolved to a real UTC instant is fatal
	// for the whole batch, before any transaction is opened.
	for _, row := range rows {
		if row.PublishedAt.IsZero() {
			monitoring.IncrementArticlesRejected()
			c.log.Error("статья %s без published_at, пакет отклонен", row.URL)
			return nil, fmt.Errorf("ingest: article %s has no published_at", row.URL)
		}
	}

	results, err := c.store.InsertArticles(ctx, rows)
	if err != nil {
		monitoring.IncrementArticlesRejected()
		c.log.Error("пакетная вставка статей не удалась: %v", err)
		return nil, err
	}

	for _, r := range results {
		monitoring.IncrementArticlesInserted()
		if r.CreatedNew {
			monitoring.IncrementClustersCreated()
		} else if r.Matched {
			monitoring.IncrementClustersMatched()
		}
	}
	return results, nil
}

// batchPool reuses the []dbmodel.ArticleInput slices the poller accumulates
// a source's items into, avoiding one allocation per tick per source.
var batchPool = sync.Pool{
	New: func() interface{} {
		return make([]dbmodel.ArticleInput, 0, BatchSize)
	},
}

// GetBatch returns a zero-length batch buffer with capacity BatchSize.
func GetBatch() []dbmodel.ArticleInput {
	return batchPool.Get().([]dbmodel.ArticleInput)[:0]
}

// PutBatch returns a batch buffer to the pool for reuse.
func PutBatch(batch []dbmodel.ArticleInput) {
	batchPool.Put(batch[:0])
}

// Package poller is the Feed Poller: it drives the periodic ingestion tick
// across every active source, and exposes the single-source parse method
// the Command Reactor calls synchronously.
package poller

import (
	"context"
	"sync/atomic"
	"time"

	"podolsknews/dbmodel"
	"podolsknews/feed"
	"podolsknews/ingest"
	"podolsknews/monitoring"
)

// Config tunes the tick scheduler.
type Config struct {
	Interval time.Duration
	// RangeWidth is the id-window size each ListRssSourcesRange call uses.
	RangeWidth int64
	// EagerBump stamps every source's last_updated_at once for the whole
	// range before any of them is parsed. false bumps each source
	// individually, only after its batch commits.
	EagerBump bool
}

// DefaultConfig uses the standard tick shape: one source-id window of
// [0, 100000] per tick.
func DefaultConfig() Config {
	return Config{Interval: 5 * time.Minute, RangeWidth: 100000, EagerBump: true}
}

// store is the subset of db.Store the poller needs.
type store interface {
	ListRssSourcesRange(ctx context.Context, from, to int64) ([]dbmodel.Source, error)
	BumpSourcesLastUpdatedRange(ctx context.Context, from, to int64, ts time.Time) error
	GetSourceByID(ctx context.Context, id int64) (dbmodel.Source, error)
	UpdateSourceStatus(ctx context.Context, id int64, status string) (bool, error)
}

// fetcher is the subset of feed.Fetcher the poller needs.
type fetcher interface {
	ParseSource(ctx context.Context, rawURL string) (*feed.Feed, error)
}

// ingestor is the subset of ingest.Client the poller needs.
type ingestor interface {
	InsertArticles(ctx context.Context, rows []dbmodel.ArticleInput) ([]dbmodel.ArticleInsertResult, error)
}

// classifier is the subset of classify.Classifier the poller needs.
type classifier interface {
	AssignForClusters(ctx context.Context, clusterIDs []int64) error
}

// Ingestor is the Feed Poller: one instance owns the timer-driven tick,
// a second instance over its own database connection backs the Reactor's
// synchronous single-source calls.
type Ingestor struct {
	store      store
	fetcher    fetcher
	ingest     ingestor
	classifier classifier
	cfg        Config
	log        *monitoring.Logger

	ticking int32 // 0 or 1, guards against overlapping ticks
	stop    chan struct{}
	done    chan struct{}
}

// New builds an Ingestor.
func New(s store, f fetcher, ing ingestor, cls classifier, cfg Config) *Ingestor {
	return &Ingestor{
		store:      s,
		fetcher:    f,
		ingest:     ing,
		classifier: cls,
		cfg:        cfg,
		log:        monitoring.NewLogger("Poller"),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the periodic tick loop until Stop is called. It blocks;
// callers should run it on its own goroutine.
func (p *Ingestor) Start(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.runTick(ctx)

	for {
		select {
		case <-p.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runTick(ctx)
		}
	}
}

// Stop signals the tick loop to exit and waits for the current tick (if
// any) to finish.
func (p *Ingestor) Stop() {
	close(p.stop)
	<-p.done
}

// runTick skips firing entirely if the previous tick is still in flight,
// rather than queuing or blocking.
func (p *Ingestor) runTick(ctx context.Context) {
	if !atomic.CompareAndSwapInt32(&p.ticking, 0, 1) {
		p.log.Warn("пропуск цикла: предыдущий всё ещё выполняется")
		return
	}
	defer atomic.StoreInt32(&p.ticking, 0)

	monitoring.IncrementIngestTicks()
	from, to := int64(0), p.cfg.RangeWidth

	sources, err := p.store.ListRssSourcesRange(ctx, from, to)
	if err != nil {
		monitoring.IncrementIngestTickErrors()
		p.log.Error("не удалось получить список источников: %v", err)
		return
	}
	if len(sources) == 0 {
		return
	}

	now := time.Now().UTC()
	if p.cfg.EagerBump {
		if err := p.store.BumpSourcesLastUpdatedRange(ctx, from, to, now); err != nil {
			p.log.Error("не удалось обновить last_updated_at для диапазона: %v", err)
		}
	}

	for _, source := range sources {
		if err := p.parseSource(ctx, source, now); err != nil {
			p.log.Warn("не удалось получить источник %d (%s): %v", source.ID, source.Domain, err)
		}
	}
}

// parseSource fetches one source, filters already-seen items, batches
// inserts, and invokes the classifier on every newly created cluster. A
// fetch failure for this source is returned to the caller but never
// affects any other source in the tick.
func (p *Ingestor) parseSource(ctx context.Context, source dbmodel.Source, tickTime time.Time) error {
	result, err := p.fetcher.ParseSource(ctx, source.Domain)
	if err != nil {
		return err
	}

	batch := ingest.GetBatch()
	defer ingest.PutBatch(batch)

	for _, item := range result.Items {
		if !source.LastUpdatedAt.IsZero() && !item.PublishedAt.After(source.LastUpdatedAt) {
			continue
		}
		batch = append(batch, dbmodel.ArticleInput{
			SourceID:    source.ID,
			URL:         item.URL,
			Title:       item.Title,
			Image:       item.Image,
			Summary:     item.Summary,
			PublishedAt: item.PublishedAt,
			Language:    item.Language,
		})
		if len(batch) >= ingest.BatchSize {
			p.flushBatch(ctx, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		p.flushBatch(ctx, batch)
	}

	if !p.cfg.EagerBump {
		if err := p.store.BumpSourcesLastUpdatedRange(ctx, source.ID, source.ID, tickTime); err != nil {
			p.log.Error("не удалось обновить last_updated_at для источника %d: %v", source.ID, err)
		}
	}
	return nil
}

func (p *Ingestor) flushBatch(ctx context.Context, batch []dbmodel.ArticleInput) {
	if len(batch) == 0 {
		return
	}
	results, err := p.ingest.InsertArticles(ctx, batch)
	if err != nil {
		return
	}

	var newClusters []int64
	for _, r := range results {
		if r.CreatedNew {
			newClusters = append(newClusters, r.ClusterID)
		}
	}
	if len(newClusters) > 0 {
		if err := p.classifier.AssignForClusters(ctx, newClusters); err != nil {
			p.log.Error("ошибка классификации новых кластеров: %v", err)
		}
	}
}

// ParseOneSourceByID is the synchronous single-source parse method the
// Command Reactor drives, bypassing the tick scheduler entirely.
func (p *Ingestor) ParseOneSourceByID(ctx context.Context, sourceID int64) error {
	source, err := p.store.GetSourceByID(ctx, sourceID)
	if err != nil {
		return err
	}
	return p.parseSource(ctx, source, time.Now().UTC())
}

// SetSourceStatus updates a source's status, exposed for the Reactor.
func (p *Ingestor) SetSourceStatus(ctx context.Context, sourceID int64, status string) (bool, error) {
	return p.store.UpdateSourceStatus(ctx, sourceID, status)
}

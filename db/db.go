// Package db is the thin typed access layer used by the poller, the
// ingestion client, the classifier and the command reactor. Each exported
// method maps to exactly one SQL statement or stored-procedure call; none
// of them know about feeds, clusters, or LLM prompts.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"podolsknews/config"
	"podolsknews/dbmodel"
	"podolsknews/monitoring"
)

// Store wraps a single *sql.DB connection. The poller and the reactor each
// hold their own Store over a distinct connection, per the two-worker
// design: there is never a transaction spanning both.
type Store struct {
	db  *sql.DB
	log *monitoring.Logger
}

// New wraps an already-open connection.
func New(conn *sql.DB) *Store {
	return &Store{db: conn, log: monitoring.NewLogger("DB")}
}

// Connect opens a Postgres connection using the given config and pings it.
// sslmode is fixed to disable: the pipeline runs next to its database.
func Connect(cfg *config.DBConfig) (*sql.DB, error) {
	psqlInfo := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName,
	)
	conn, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return conn, nil
}

// EnsureTopicTitleUniqueIndex creates the unique index on topic(title) if it
// doesn't already exist. Run once at startup.
func (s *Store) EnsureTopicTitleUniqueIndex(ctx context.Context) error {
	const q = `
	DO $$
	BEGIN
		IF NOT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE schemaname = 'public' AND indexname = 'idx_topic_title_unique'
		) THEN
			CREATE UNIQUE INDEX idx_topic_title_unique ON public.topic (title);
		END IF;
	END$$;`
	_, err := s.db.ExecContext(ctx, q)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return fmt.Errorf("db: ensure topic title unique index: %w", err)
	}
	monitoring.IncrementDBQueries()
	return nil
}

// SeedDefaultSources idempotently inserts the demo source set. Gated
// behind SEED_DEFAULT_SOURCES=1 by the caller so a fresh production
// database doesn't get surprise rows.
func (s *Store) SeedDefaultSources(ctx context.Context) error {
	seeds := []struct{ domain string }{
		{"https://www.vedomosti.ru/rss/news"},
		{"https://tass.ru/rss/v2.xml?sections=MjU%3D"},
		{"https://rssexport.rbc.ru/rbcnews/news/30/full.rss"},
		{"https://www.theguardian.com/world/rss"},
	}
	const q = `
	INSERT INTO public.source (kind, domain, status)
	VALUES ('rss', $1, 'active')
	ON CONFLICT (kind, domain) DO NOTHING`

	for _, seed := range seeds {
		if _, err := s.db.ExecContext(ctx, q, seed.domain); err != nil {
			monitoring.IncrementDBQueriesErrors()
			return fmt.Errorf("db: seed default source %s: %w", seed.domain, err)
		}
	}
	monitoring.IncrementDBQueries()
	return nil
}

// ListRssSourcesRange lists rss sources with id in [from, to] and
// status = 'active', ordered by id ascending.
func (s *Store) ListRssSourcesRange(ctx context.Context, from, to int64) ([]dbmodel.Source, error) {
	return s.listRssSourcesRangeByStatus(ctx, from, to, "active", "active")
}

// ListValidatingSourcesRange is the initial-validation variant: it selects
// sources still in 'validating' or 'verified' instead of 'active', so a
// first successful parse can promote them.
func (s *Store) ListValidatingSourcesRange(ctx context.Context, from, to int64) ([]dbmodel.Source, error) {
	return s.listRssSourcesRangeByStatus(ctx, from, to, "validating", "verified")
}

func (s *Store) listRssSourcesRangeByStatus(ctx context.Context, from, to int64, statusA, statusB string) ([]dbmodel.Source, error) {
	const q = `
	SELECT id, domain, last_updated_at
	FROM public.source
	WHERE kind = 'rss' AND status IN ($3, $4) AND id BETWEEN $1 AND $2
	ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q, from, to, statusA, statusB)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return nil, fmt.Errorf("db: list rss sources range: %w", err)
	}
	defer rows.Close()

	var out []dbmodel.Source
	for rows.Next() {
		var src dbmodel.Source
		var lastUpdated sql.NullTime
		if err := rows.Scan(&src.ID, &src.Domain, &lastUpdated); err != nil {
			monitoring.IncrementDBQueriesErrors()
			return nil, fmt.Errorf("db: scan source row: %w", err)
		}
		src.Kind = "rss"
		if lastUpdated.Valid {
			src.LastUpdatedAt = lastUpdated.Time
		}
		out = append(out, src)
	}
	monitoring.IncrementDBQueries()
	return out, rows.Err()
}

// BumpSourcesLastUpdatedRange sets last_updated_at = ts for every source
// with id in [from, to].
func (s *Store) BumpSourcesLastUpdatedRange(ctx context.Context, from, to int64, ts time.Time) error {
	const q = `UPDATE public.source SET last_updated_at = $1 WHERE id BETWEEN $2 AND $3`
	_, err := s.db.ExecContext(ctx, q, ts, from, to)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return fmt.Errorf("db: bump sources last_updated_at: %w", err)
	}
	monitoring.IncrementDBQueries()
	return nil
}

// GetSourceByID fetches a single source row.
func (s *Store) GetSourceByID(ctx context.Context, id int64) (dbmodel.Source, error) {
	const q = `SELECT id, domain, last_updated_at FROM public.source WHERE id = $1 LIMIT 1`
	var src dbmodel.Source
	var lastUpdated sql.NullTime
	err := s.db.QueryRowContext(ctx, q, id).Scan(&src.ID, &src.Domain, &lastUpdated)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return dbmodel.Source{}, fmt.Errorf("db: get source by id %d: %w", id, err)
	}
	src.Kind = "rss"
	if lastUpdated.Valid {
		src.LastUpdatedAt = lastUpdated.Time
	}
	monitoring.IncrementDBQueries()
	return src, nil
}

// UpdateSourceStatus sets a source's status column.
func (s *Store) UpdateSourceStatus(ctx context.Context, id int64, status string) (bool, error) {
	const q = `UPDATE public.source SET status = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, q, status, id)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return false, fmt.Errorf("db: update source status: %w", err)
	}
	monitoring.IncrementDBQueries()
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListTopics returns every topic row, used to seed the classifier's
// in-memory label → topic_id cache at startup.
func (s *Store) ListTopics(ctx context.Context) ([]dbmodel.Topic, error) {
	const q = `SELECT id, title FROM public.topic ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return nil, fmt.Errorf("db: list topics: %w", err)
	}
	defer rows.Close()

	var out []dbmodel.Topic
	for rows.Next() {
		var t dbmodel.Topic
		if err := rows.Scan(&t.ID, &t.Title); err != nil {
			monitoring.IncrementDBQueriesErrors()
			return nil, fmt.Errorf("db: scan topic row: %w", err)
		}
		out = append(out, t)
	}
	monitoring.IncrementDBQueries()
	return out, rows.Err()
}

// EnsureTopic resolves a topic title to its id, creating the row if it
// doesn't exist yet.
func (s *Store) EnsureTopic(ctx context.Context, title string) (int64, error) {
	const q = `
	INSERT INTO public.topic (title) VALUES ($1)
	ON CONFLICT (title) DO UPDATE SET title = EXCLUDED.title
	RETURNING id`
	var id int64
	err := s.db.QueryRowContext(ctx, q, title).Scan(&id)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return 0, fmt.Errorf("db: ensure topic %q: %w", title, err)
	}
	monitoring.IncrementDBQueries()
	return id, nil
}

// ClearClusterPrimary unsets is_primary for every clustertopic row of the
// given cluster.
func (s *Store) ClearClusterPrimary(ctx context.Context, clusterID int64) error {
	const q = `UPDATE public.clustertopic SET "is_primary" = false WHERE cluster_id = $1 AND "is_primary" = true`
	_, err := s.db.ExecContext(ctx, q, clusterID)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return fmt.Errorf("db: clear cluster primary: %w", err)
	}
	monitoring.IncrementDBQueries()
	return nil
}

// UpsertClusterTopic writes or updates a single (cluster_id, topic_id) row.
func (s *Store) UpsertClusterTopic(ctx context.Context, clusterID, topicID int64, score float64, primary bool) error {
	const q = `
	INSERT INTO public.clustertopic (cluster_id, topic_id, score, "is_primary")
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (cluster_id, topic_id) DO UPDATE
	SET score = EXCLUDED.score, "is_primary" = EXCLUDED."is_primary"`
	_, err := s.db.ExecContext(ctx, q, clusterID, topicID, score, primary)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return fmt.Errorf("db: upsert cluster topic: %w", err)
	}
	monitoring.IncrementDBQueries()
	return nil
}

// DeleteClusterTopicsNotIn removes clustertopic rows for the cluster whose
// topic_id is not in keep. Used by upsertClusterTopics(replace=true).
func (s *Store) DeleteClusterTopicsNotIn(ctx context.Context, clusterID int64, keep []int64) error {
	if len(keep) == 0 {
		const q = `DELETE FROM public.clustertopic WHERE cluster_id = $1`
		_, err := s.db.ExecContext(ctx, q, clusterID)
		if err != nil {
			monitoring.IncrementDBQueriesErrors()
			return fmt.Errorf("db: delete cluster topics: %w", err)
		}
		monitoring.IncrementDBQueries()
		return nil
	}
	const q = `DELETE FROM public.clustertopic WHERE cluster_id = $1 AND NOT (topic_id = ANY($2::bigint[]))`
	_, err := s.db.ExecContext(ctx, q, clusterID, pqInt64Array(keep))
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return fmt.Errorf("db: delete cluster topics not in set: %w", err)
	}
	monitoring.IncrementDBQueries()
	return nil
}

// GetClusterArticles returns the most recent articles' title/summary for a
// cluster, used to build the classifier's prompt text.
func (s *Store) GetClusterArticles(ctx context.Context, clusterID int64, limit int) ([]dbmodel.Article, error) {
	const q = `
	SELECT title, summary FROM public.article
	WHERE cluster_id = $1 ORDER BY published_at DESC LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, clusterID, limit)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return nil, fmt.Errorf("db: get cluster articles: %w", err)
	}
	defer rows.Close()

	var out []dbmodel.Article
	for rows.Next() {
		var a dbmodel.Article
		var summary sql.NullString
		if err := rows.Scan(&a.Title, &summary); err != nil {
			monitoring.IncrementDBQueriesErrors()
			return nil, fmt.Errorf("db: scan cluster article row: %w", err)
		}
		a.Summary = summary.String
		a.ClusterID = clusterID
		out = append(out, a)
	}
	monitoring.IncrementDBQueries()
	return out, rows.Err()
}

// InsertArticles calls upsert_article_with_cluster once per row inside a
// single transaction: begin before the first row, roll back and
// return an empty result on any per-row failure, commit once all rows
// succeed. An empty input returns an empty result without opening a
// transaction.
func (s *Store) InsertArticles(ctx context.Context, rows []dbmodel.ArticleInput) ([]dbmodel.ArticleInsertResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		monitoring.IncrementDBQueriesErrors()
		return nil, fmt.Errorf("db: begin insert articles tx: %w", err)
	}
	defer tx.Rollback()

	const q = `
	SELECT out_cluster_id, out_article_id, out_score, out_matched, out_created_new
	FROM upsert_article_with_cluster(
		p_source_id => $1,
		p_url => $2,
		p_title => $3,
		p_image => $4,
		p_summary => $5,
		p_published_at => $6,
		p_language => $7
	)`

	results := make([]dbmodel.ArticleInsertResult, 0, len(rows))
	for _, row := range rows {
		language := row.Language
		if language == "" {
			language = "auto"
		}
		var res dbmodel.ArticleInsertResult
		err := tx.QueryRowContext(ctx, q,
			row.SourceID, row.URL, row.Title,
			nullableString(row.Image), nullableString(row.Summary),
			row.PublishedAt, language,
		).Scan(&res.ClusterID, &res.ArticleID, &res.Score, &res.Matched, &res.CreatedNew)
		if err != nil {
			monitoring.IncrementDBQueriesErrors()
			return nil, fmt.Errorf("db: upsert_article_with_cluster for %q: %w", row.URL, err)
		}
		results = append(results, res)
	}

	if err := tx.Commit(); err != nil {
		monitoring.IncrementDBQueriesErrors()
		return nil, fmt.Errorf("db: commit insert articles tx: %w", err)
	}
	monitoring.IncrementDBQueries()
	return results, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// pqInt64Array renders an int64 slice as a Postgres array literal, avoiding
// a hard dependency on lib/pq's pq.Array generic helper signature drift.
func pqInt64Array(ids []int64) string {
	s := "{"
	for i, id := range ids {
		if i > 0 {
			s += ","
		}
		s += fmt.Sprintf("%d", id)
	}
	return s + "}"
}

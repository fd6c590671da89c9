// Package classify is the Topic Classifier: it turns a cluster's articles
// into a small set of scored taxonomy labels, persisted as the cluster's
// topic assignments with exactly one primary.
package classify

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"podolsknews/dbmodel"
	"podolsknews/monitoring"
)

const (
	// MaxTopics is the maximum number of labels kept per cluster.
	MaxTopics = 3
	// MinScore is the cutoff applied to every label after the first; the
	// top label is always kept regardless of its score.
	MinScore = 0.15
	// clusterTextLimit is the per-article summary truncation applied when
	// building a cluster's classification text.
	clusterTextLimit = 600
	topicIDCacheTTL  = 5 * time.Minute
)

// store is the subset of db.Store the classifier needs.
type store interface {
	ListTopics(ctx context.Context) ([]dbmodel.Topic, error)
	EnsureTopic(ctx context.Context, title string) (int64, error)
	ClearClusterPrimary(ctx context.Context, clusterID int64) error
	UpsertClusterTopic(ctx context.Context, clusterID, topicID int64, score float64, primary bool) error
	DeleteClusterTopicsNotIn(ctx context.Context, clusterID int64, keep []int64) error
	GetClusterArticles(ctx context.Context, clusterID int64, limit int) ([]dbmodel.Article, error)
}

// Classifier assigns taxonomy labels to clusters using a Scorer, falling
// back to a keyword heuristic when the scorer yields nothing.
type Classifier struct {
	store    store
	scorer   Scorer
	taxonomy []string
	cache    *topicIDCache
	log      *monitoring.Logger

	// scoreMu serializes calls into the scorer. A single Classifier is
	// shared between the tick-driven poller and the reactor's on-demand
	// path; the LLM call must never run concurrently against the same
	// model endpoint.
	scoreMu sync.Mutex
}

// New builds a Classifier. taxonomy defaults to DefaultTaxonomy when nil.
func New(s store, scorer Scorer, taxonomy []string) *Classifier {
	if taxonomy == nil {
		taxonomy = DefaultTaxonomy
	}
	return &Classifier{
		store:    s,
		scorer:   scorer,
		taxonomy: taxonomy,
		cache:    newTopicIDCache(topicIDCacheTTL),
		log:      monitoring.NewLogger("Classify"),
	}
}

// Preload seeds the label -> topic_id cache from the DB's current topic
// table and, when the table has rows, makes their titles the label set
// offered to the scorer. Call once at startup, before either the poller or
// the reactor can trigger classification.
func (c *Classifier) Preload(ctx context.Context) error {
	topics, err := c.store.ListTopics(ctx)
	if err != nil {
		return err
	}
	titles := make([]string, 0, len(topics))
	for _, t := range topics {
		c.cache.set(t.Title, t.ID)
		titles = append(titles, t.Title)
	}
	if len(titles) > 0 {
		c.taxonomy = titles
	}
	return nil
}

// AssignForClusters runs the per-cluster classification procedure for
// every cluster ID given. A per-cluster error is logged and skipped; it
// never aborts the remaining clusters in the batch.
func (c *Classifier) AssignForClusters(ctx context.Context, clusterIDs []int64) error {
	for _, clusterID := range clusterIDs {
		if err := c.assignOne(ctx, clusterID); err != nil {
			monitoring.IncrementClassifyErrors()
			c.log.Error("не удалось классифицировать кластер %d: %v", clusterID, err)
		}
	}
	return nil
}

func (c *Classifier) assignOne(ctx context.Context, clusterID int64) error {
	articles, err := c.store.GetClusterArticles(ctx, clusterID, 10)
	if err != nil {
		return err
	}
	text, lang := buildClusterText(articles)
	if text == "" {
		return nil
	}

	c.scoreMu.Lock()
	scores, err := c.scorer.Score(ctx, text, c.taxonomy, lang)
	c.scoreMu.Unlock()
	if err != nil {
		return err
	}
	if len(scores) == 0 {
		monitoring.IncrementClassifyFallbacks()
		scores = heuristicTopics(text)
	}
	if len(scores) == 0 {
		return nil
	}

	return c.upsertClusterTopics(ctx, clusterID, scores, MaxTopics, MinScore, false)
}

// upsertClusterTopics persists a cluster's scored labels: sort descending,
// keep at most max entries, cut everything after the first entry that falls
// below minScore, keep the single top entry regardless (clamped at zero),
// normalize the retained scores to sum to 1, and upsert each row with the
// top entry as the sole primary. With replace set, rows for topic ids not
// in the new set are deleted afterwards; the default keeps them.
func (c *Classifier) upsertClusterTopics(ctx context.Context, clusterID int64, entries []dbmodel.TopicScore, max int, minScore float64, replace bool) error {
	entries = topRanked(entries, max, minScore)
	normalize(entries)

	if err := c.store.ClearClusterPrimary(ctx, clusterID); err != nil {
		return err
	}

	keep := make([]int64, 0, len(entries))
	for i := range entries {
		label := canonicalizeOrKeep(entries[i].Label)
		topicID, err := c.resolveTopicID(ctx, label)
		if err != nil {
			continue
		}
		primary := i == 0
		if err := c.store.UpsertClusterTopic(ctx, clusterID, topicID, entries[i].Score, primary); err != nil {
			continue
		}
		keep = append(keep, topicID)
	}

	if replace {
		return c.store.DeleteClusterTopicsNotIn(ctx, clusterID, keep)
	}
	return nil
}

// resolveTopicID looks up a label's topic_id, consulting the TTL cache
// before hitting EnsureTopic.
func (c *Classifier) resolveTopicID(ctx context.Context, label string) (int64, error) {
	if id, ok := c.cache.get(label); ok {
		return id, nil
	}
	id, err := c.store.EnsureTopic(ctx, label)
	if err != nil {
		return 0, err
	}
	c.cache.set(label, id)
	return id, nil
}

func canonicalizeOrKeep(label string) string {
	if canon := canonicalize(label); canon != "" {
		return canon
	}
	return label
}

// topRanked sorts descending by score, keeps the top entry unconditionally
// with its score clamped into [0,1], then stops at the first further entry
// below minScore, capped to max total.
func topRanked(scores []dbmodel.TopicScore, max int, minScore float64) []dbmodel.TopicScore {
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })

	out := make([]dbmodel.TopicScore, 0, max)
	for i, s := range scores {
		if i > 0 && s.Score < minScore {
			break
		}
		s.Score = clamp01(s.Score)
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalize rescales retained scores to sum to 1, unless they already sum
// to zero (in which case an equal split is used).
func normalize(scores []dbmodel.TopicScore) {
	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	if sum <= 0 {
		equal := 1.0 / float64(len(scores))
		for i := range scores {
			scores[i].Score = equal
		}
		return
	}
	for i := range scores {
		scores[i].Score = scores[i].Score / sum
	}
}

// buildClusterText concatenates a cluster's articles (most recent first,
// already the order GetClusterArticles returns) into one classification
// text, truncating each summary to clusterTextLimit runes, and reports the
// first article's stored language, or "russian" when it has none.
func buildClusterText(articles []dbmodel.Article) (text string, lang string) {
	if len(articles) == 0 {
		return "", ""
	}

	var b strings.Builder
	for _, a := range articles {
		b.WriteString(a.Title)
		b.WriteString(". ")
		b.WriteString(truncateRunes(a.Summary, clusterTextLimit))
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), detectLangFromArticle(articles[0])
}

func detectLangFromArticle(a dbmodel.Article) string {
	if a.Language != "" {
		return a.Language
	}
	return "russian"
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Package dbmodel holds the row and result shapes shared by the DB Access
// Layer, the Article Ingestion Client, and the Topic Classifier.
package dbmodel

import "time"

// Source is a single polled syndication feed.
type Source struct {
	ID            int64
	Kind          string // always "rss" for rows this pipeline touches
	Domain        string
	Status        string // "active" | "error" | ...
	LastUpdatedAt time.Time
}

// Article is a normalized feed item as stored by the ingestion client.
type Article struct {
	ID          int64
	SourceID    int64
	URL         string
	Title       string
	Image       string
	Summary     string
	PublishedAt time.Time
	Language    string
	ClusterID   int64
}

// Cluster groups one or more Articles judged to cover the same story.
type Cluster struct {
	ID int64
}

// Topic is a classification label with a globally unique title.
type Topic struct {
	ID    int64
	Title string
}

// ClusterTopic is a weighted, optionally-primary association between a
// Cluster and a Topic.
type ClusterTopic struct {
	ClusterID int64
	TopicID   int64
	Score     float64
	IsPrimary bool
}

// ArticleInput is one row the ingestion client hands to
// upsert_article_with_cluster.
type ArticleInput struct {
	SourceID    int64
	URL         string
	Title       string
	Image       string
	Summary     string
	PublishedAt time.Time
	Language    string // empty is sent as "auto"; see db.Store.InsertArticles
}

// ArticleInsertResult is the row upsert_article_with_cluster returns for
// each input row.
type ArticleInsertResult struct {
	ClusterID  int64
	ArticleID  int64
	Score      float64
	Matched    bool
	CreatedNew bool
}

// TopicScore is one label/score pair emitted by the classifier, before or
// after being resolved to a topic id.
type TopicScore struct {
	Label     string
	TopicID   int64
	Score     float64
	IsPrimary bool
}

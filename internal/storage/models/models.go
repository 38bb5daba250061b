package models

import "time"

const (
	DefaultTitle     = "Untitled"
	DefaultSource    = "Unknown"
	DefaultURL       = "No URL"
	UnknownTimestamp = "Unknown"

	// SentimentUnknown is the label used when the classifier returns no result.
	SentimentUnknown = "unknown"

	// PublishedAtLayout is the exact upstream timestamp format.
	PublishedAtLayout = "2006-01-02T15:04:05Z"
	// TimestampLayout is the normalized rendering stored on enriched articles.
	TimestampLayout = "2006-01-02 15:04:05"
)

// RawArticle is one article as returned by the news source. Absent JSON
// fields decode to nil so cleaning can tell missing from empty.
type RawArticle struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Content     *string        `json:"content"`
	PublishedAt *string        `json:"publishedAt"`
	Source      *ArticleSource `json:"source"`
	URL         *string        `json:"url"`
}

type ArticleSource struct {
	ID   *string `json:"id"`
	Name *string `json:"name"`
}

// EnrichedArticle is produced once per cleaned article and handed to the
// graph builder and the retrieval index. It is never persisted on its own.
type EnrichedArticle struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Content      string `json:"content"`
	PublishedAt  string `json:"published_at"`
	Entities     string `json:"entities"`
	Sentiment    string `json:"sentiment"`
	Relationship string `json:"relationship"`
	Source       string `json:"source"`
	URL          string `json:"url"`
}

type Topic struct {
	ID           string    `json:"id"`
	Query        string    `json:"query"`
	ArticleCount int       `json:"article_count"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
}

type ChatTurn struct {
	ID        string
	TopicID   string
	Query     string
	Response  string
	LatencyMS int
	CreatedAt time.Time
}

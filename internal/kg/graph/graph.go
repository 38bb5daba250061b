// Package graph holds the node and edge vocabulary shared by the graph
// builder, its stores and the visualizer.
package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/newsgraph/backend/internal/storage/models"
)

const (
	LabelArticle      = "Article"
	LabelEntity       = "Entity"
	LabelSentiment    = "Sentiment"
	LabelRelationship = "Relationship"
)

type EdgeType string

const (
	EdgeMentions     EdgeType = "MENTIONS"
	EdgeHasSentiment EdgeType = "HAS_SENTIMENT"
	EdgeDescribes    EdgeType = "DESCRIBES"
)

var edgeTypes = map[EdgeType]bool{
	EdgeMentions:     true,
	EdgeHasSentiment: true,
	EdgeDescribes:    true,
}

// ParseEdgeType accepts any casing and hyphens for underscores. Only the
// three known edge types are allowed, since the value is spliced into Cypher.
func ParseEdgeType(s string) (EdgeType, error) {
	t := EdgeType(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")))
	if !edgeTypes[t] {
		return "", fmt.Errorf("unknown edge type %q", s)
	}
	return t, nil
}

type SentimentScope string

const (
	// ScopeGlobal shares one Sentiment node per label across all articles.
	ScopeGlobal SentimentScope = "global"
	// ScopeArticle gives every article its own Sentiment node.
	ScopeArticle SentimentScope = "article"
)

// ArticleKey identifies an Article node.
type ArticleKey struct {
	Title  string
	Source string
}

type Node struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Properties map[string]any `json:"properties"`
}

// Caption is the text shown for a node in visualizations.
func (n Node) Caption() string {
	for _, key := range []string{"title", "name", "sentiment", "description"} {
		if v, ok := n.Properties[key].(string); ok && v != "" {
			return v
		}
	}
	return n.ID
}

type Edge struct {
	ID   string   `json:"id"`
	From string   `json:"from"`
	To   string   `json:"to"`
	Type EdgeType `json:"type"`
}

// Data is a path query result with nodes deduplicated by ID.
type Data struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Writer merges one element at a time. Every method is idempotent.
type Writer interface {
	MergeArticle(ctx context.Context, article ArticleKey, url, publishedAt string) error
	MergeEntity(ctx context.Context, article ArticleKey, entity models.Entity) error
	MergeSentiment(ctx context.Context, article ArticleKey, label string, scope SentimentScope) error
	MergeRelationship(ctx context.Context, article ArticleKey, description string) error
}

// Store is a labeled property graph. Batch holds one session open for the
// duration of fn; writes are not transactional.
type Store interface {
	Batch(ctx context.Context, fn func(Writer) error) error
	Paths(ctx context.Context, edge EdgeType, limit int) (*Data, error)
}

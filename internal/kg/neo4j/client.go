package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/circuitbreaker"
	"github.com/newsgraph/backend/pkg/logger"
	"github.com/newsgraph/backend/pkg/retry"
)

const (
	mergeArticleQuery = `
		MERGE (a:Article {title: $title, source: $source})
		SET a.url = $url,
		    a.published_at = $published_at
	`

	mergeEntityQuery = `
		MATCH (a:Article {title: $title, source: $source})
		MERGE (e:Entity {name: $name, type: $type})
		MERGE (a)-[:MENTIONS]->(e)
	`

	mergeGlobalSentimentQuery = `
		MATCH (a:Article {title: $title, source: $source})
		MERGE (s:Sentiment {sentiment: $sentiment})
		MERGE (a)-[:HAS_SENTIMENT]->(s)
	`

	mergeArticleSentimentQuery = `
		MATCH (a:Article {title: $title, source: $source})
		MERGE (s:Sentiment {sentiment: $sentiment, article_title: $title, article_source: $source})
		MERGE (a)-[:HAS_SENTIMENT]->(s)
	`

	mergeRelationshipQuery = `
		MATCH (a:Article {title: $title, source: $source})
		MERGE (r:Relationship {description: $description})
		MERGE (a)-[:DESCRIBES]->(r)
	`
)

type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(ctx context.Context, uri, username, password, database string, timeout time.Duration) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	if timeout == 0 {
		timeout = 30 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("neo4j", circuitbreaker.Config{
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          20 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri), zap.String("database", database))

	return &Client{
		driver:      driver,
		database:    database,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Batch opens one session for fn. Statements run in auto-commit mode, so
// a failure part way through leaves earlier merges in place.
func (c *Client) Batch(ctx context.Context, fn func(graph.Writer) error) error {
	return c.cb.Execute(ctx, func() error {
		session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
		defer session.Close(ctx)

		return fn(&writer{session: session})
	})
}

// Paths runs MATCH p=()-[r:EDGE]->() RETURN p LIMIT n. The edge type has
// already been checked against the whitelist in graph.ParseEdgeType.
func (c *Client) Paths(ctx context.Context, edge graph.EdgeType, limit int) (*graph.Data, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := pathsQuery(edge)
	var paths []neo4j.Path

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		paths = paths[:0]

		result, err := session.Run(ctx, query, map[string]interface{}{
			"limit": limit,
		})
		if err != nil {
			return fmt.Errorf("failed to query paths: %w", err)
		}

		for result.Next(ctx) {
			path, _, err := neo4j.GetRecordValue[neo4j.Path](result.Record(), "p")
			if err != nil {
				return fmt.Errorf("unexpected path record: %w", err)
			}
			paths = append(paths, path)
		}

		if err = result.Err(); err != nil {
			return fmt.Errorf("error iterating results: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data := toGraphData(paths)

	logger.Debug("Graph paths fetched",
		zap.String("edge", string(edge)),
		zap.Int("nodes", len(data.Nodes)),
		zap.Int("edges", len(data.Edges)),
	)

	return data, nil
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{
				DatabaseName: c.database,
				AccessMode:   neo4j.AccessModeRead,
			})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

func pathsQuery(edge graph.EdgeType) string {
	return fmt.Sprintf("MATCH p=()-[r:%s]->() RETURN p LIMIT $limit", edge)
}

func sentimentQuery(scope graph.SentimentScope) string {
	if scope == graph.ScopeArticle {
		return mergeArticleSentimentQuery
	}
	return mergeGlobalSentimentQuery
}

func toGraphData(paths []neo4j.Path) *graph.Data {
	data := &graph.Data{}
	seen := make(map[string]bool)

	for _, p := range paths {
		for _, n := range p.Nodes {
			if seen[n.ElementId] {
				continue
			}
			seen[n.ElementId] = true

			label := ""
			if len(n.Labels) > 0 {
				label = n.Labels[0]
			}
			data.Nodes = append(data.Nodes, graph.Node{
				ID:         n.ElementId,
				Label:      label,
				Properties: n.Props,
			})
		}

		for _, r := range p.Relationships {
			data.Edges = append(data.Edges, graph.Edge{
				ID:   r.ElementId,
				From: r.StartElementId,
				To:   r.EndElementId,
				Type: graph.EdgeType(r.Type),
			})
		}
	}

	return data
}

type writer struct {
	session neo4j.SessionWithContext
}

func (w *writer) run(ctx context.Context, query string, params map[string]interface{}) error {
	result, err := w.session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

func articleParams(a graph.ArticleKey) map[string]interface{} {
	return map[string]interface{}{
		"title":  a.Title,
		"source": a.Source,
	}
}

func (w *writer) MergeArticle(ctx context.Context, a graph.ArticleKey, url, publishedAt string) error {
	params := articleParams(a)
	params["url"] = url
	params["published_at"] = publishedAt

	if err := w.run(ctx, mergeArticleQuery, params); err != nil {
		return fmt.Errorf("failed to merge article: %w", err)
	}
	return nil
}

func (w *writer) MergeEntity(ctx context.Context, a graph.ArticleKey, e models.Entity) error {
	params := articleParams(a)
	params["name"] = e.Name
	params["type"] = e.Type

	if err := w.run(ctx, mergeEntityQuery, params); err != nil {
		return fmt.Errorf("failed to merge entity: %w", err)
	}
	return nil
}

func (w *writer) MergeSentiment(ctx context.Context, a graph.ArticleKey, label string, scope graph.SentimentScope) error {
	params := articleParams(a)
	params["sentiment"] = label

	if err := w.run(ctx, sentimentQuery(scope), params); err != nil {
		return fmt.Errorf("failed to merge sentiment: %w", err)
	}
	return nil
}

func (w *writer) MergeRelationship(ctx context.Context, a graph.ArticleKey, description string) error {
	params := articleParams(a)
	params["description"] = description

	if err := w.run(ctx, mergeRelationshipQuery, params); err != nil {
		return fmt.Errorf("failed to merge relationship: %w", err)
	}
	return nil
}

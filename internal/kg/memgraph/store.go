// Package memgraph is an in-process graph store with the same merge
// semantics as the Neo4j store. It backs offline runs and tests.
package memgraph

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/newsgraph/backend/internal/kg/graph"
	"github.com/newsgraph/backend/internal/storage/models"
)

type edgeKey struct {
	from string
	typ  graph.EdgeType
	to   string
}

type Store struct {
	mu     sync.RWMutex
	nodes  map[string]graph.Node
	byKey  map[string]string
	edges  []graph.Edge
	edgeID map[edgeKey]bool
	nextID int
}

func New() *Store {
	return &Store{
		nodes:  make(map[string]graph.Node),
		byKey:  make(map[string]string),
		edgeID: make(map[edgeKey]bool),
	}
}

func (s *Store) Batch(ctx context.Context, fn func(graph.Writer) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(&writer{store: s})
}

// Paths returns single-edge paths of the given type in insertion order.
func (s *Store) Paths(ctx context.Context, edge graph.EdgeType, limit int) (*graph.Data, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data := &graph.Data{}
	seen := make(map[string]bool)
	for _, e := range s.edges {
		if e.Type != edge {
			continue
		}
		if limit > 0 && len(data.Edges) >= limit {
			break
		}
		data.Edges = append(data.Edges, e)
		for _, id := range []string{e.From, e.To} {
			if !seen[id] {
				seen[id] = true
				n := s.nodes[id]
				props := make(map[string]any, len(n.Properties))
				for k, v := range n.Properties {
					props[k] = v
				}
				n.Properties = props
				data.Nodes = append(data.Nodes, n)
			}
		}
	}
	return data, nil
}

// Counts returns the number of nodes per label and of edges per type.
func (s *Store) Counts() (map[string]int, map[graph.EdgeType]int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make(map[string]int)
	for _, n := range s.nodes {
		nodes[n.Label]++
	}
	edges := make(map[graph.EdgeType]int)
	for _, e := range s.edges {
		edges[e.Type]++
	}
	return nodes, edges
}

func (s *Store) mergeNode(label, key string, props map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := label + "\x00" + key
	if id, ok := s.byKey[k]; ok {
		return id
	}
	s.nextID++
	id := strconv.Itoa(s.nextID)
	s.byKey[k] = id
	s.nodes[id] = graph.Node{ID: id, Label: label, Properties: props}
	return id
}

func (s *Store) setProps(id string, props map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range props {
		s.nodes[id].Properties[k] = v
	}
}

func (s *Store) lookup(label, key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[label+"\x00"+key]
	return id, ok
}

func (s *Store) mergeEdge(from string, typ graph.EdgeType, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := edgeKey{from: from, typ: typ, to: to}
	if s.edgeID[k] {
		return
	}
	s.edgeID[k] = true
	s.edges = append(s.edges, graph.Edge{
		ID:   "e" + strconv.Itoa(len(s.edges)+1),
		From: from,
		To:   to,
		Type: typ,
	})
}

type writer struct {
	store *Store
}

func articleKey(a graph.ArticleKey) string {
	return a.Title + "\x00" + a.Source
}

func (w *writer) article(a graph.ArticleKey) (string, error) {
	id, ok := w.store.lookup(graph.LabelArticle, articleKey(a))
	if !ok {
		return "", fmt.Errorf("article %q from %q not found", a.Title, a.Source)
	}
	return id, nil
}

func (w *writer) MergeArticle(ctx context.Context, a graph.ArticleKey, url, publishedAt string) error {
	id := w.store.mergeNode(graph.LabelArticle, articleKey(a), map[string]any{
		"title":  a.Title,
		"source": a.Source,
	})
	w.store.setProps(id, map[string]any{"url": url, "published_at": publishedAt})
	return nil
}

func (w *writer) MergeEntity(ctx context.Context, a graph.ArticleKey, e models.Entity) error {
	from, err := w.article(a)
	if err != nil {
		return err
	}
	to := w.store.mergeNode(graph.LabelEntity, e.Name+"\x00"+e.Type, map[string]any{
		"name": e.Name,
		"type": e.Type,
	})
	w.store.mergeEdge(from, graph.EdgeMentions, to)
	return nil
}

func (w *writer) MergeSentiment(ctx context.Context, a graph.ArticleKey, label string, scope graph.SentimentScope) error {
	from, err := w.article(a)
	if err != nil {
		return err
	}

	key := label
	props := map[string]any{"sentiment": label}
	if scope == graph.ScopeArticle {
		key = articleKey(a) + "\x00" + label
		props["article_title"] = a.Title
		props["article_source"] = a.Source
	}

	to := w.store.mergeNode(graph.LabelSentiment, key, props)
	w.store.mergeEdge(from, graph.EdgeHasSentiment, to)
	return nil
}

func (w *writer) MergeRelationship(ctx context.Context, a graph.ArticleKey, description string) error {
	from, err := w.article(a)
	if err != nil {
		return err
	}
	to := w.store.mergeNode(graph.LabelRelationship, description, map[string]any{"description": description})
	w.store.mergeEdge(from, graph.EdgeDescribes, to)
	return nil
}

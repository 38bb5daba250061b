package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are a per-connection setting, so they go in the DSN.
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) Ping() error {
	return c.db.Ping()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS topics (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		article_count INTEGER NOT NULL,
		chunk_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_topics_created ON topics(created_at);

	CREATE TABLE IF NOT EXISTS topic_articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic_id TEXT NOT NULL,
		title TEXT NOT NULL,
		source TEXT NOT NULL,
		url TEXT,
		published_at TEXT,
		entities TEXT,
		sentiment TEXT,
		relationship TEXT,
		FOREIGN KEY (topic_id) REFERENCES topics(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_articles_topic ON topic_articles(topic_id);

	CREATE TABLE IF NOT EXISTS chat_turns (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT UNIQUE NOT NULL,
		topic_id TEXT NOT NULL,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (topic_id) REFERENCES topics(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_turns_topic ON chat_turns(topic_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) InsertTopic(topic *models.Topic) error {
	query := `INSERT INTO topics (id, query, article_count, chunk_count, created_at) VALUES (?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		topic.ID,
		topic.Query,
		topic.ArticleCount,
		topic.ChunkCount,
		topic.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert topic: %w", err)
	}

	logger.Debug("Topic recorded", zap.String("topic_id", topic.ID), zap.String("query", topic.Query))
	return nil
}

func (c *Client) GetTopic(id string) (*models.Topic, error) {
	query := `SELECT id, query, article_count, chunk_count, created_at FROM topics WHERE id = ?`

	var t models.Topic
	var createdAt int64

	err := c.db.QueryRow(query, id).Scan(&t.ID, &t.Query, &t.ArticleCount, &t.ChunkCount, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	return &t, nil
}

// ListTopics returns the most recent topics first.
func (c *Client) ListTopics(limit int) ([]models.Topic, error) {
	query := `
		SELECT id, query, article_count, chunk_count, created_at
		FROM topics
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := c.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		var createdAt int64

		if err := rows.Scan(&t.ID, &t.Query, &t.ArticleCount, &t.ChunkCount, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.CreatedAt = time.Unix(createdAt, 0)
		topics = append(topics, t)
	}

	return topics, rows.Err()
}

// InsertArticles stores the enrichment output of one topic run.
func (c *Client) InsertArticles(topicID string, articles []models.EnrichedArticle) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO topic_articles (topic_id, title, source, url, published_at, entities, sentiment, relationship)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range articles {
		_, err := stmt.Exec(topicID, a.Title, a.Source, a.URL, a.PublishedAt, a.Entities, a.Sentiment, a.Relationship)
		if err != nil {
			return fmt.Errorf("failed to insert article %q: %w", a.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit articles: %w", err)
	}

	logger.Debug("Topic articles stored", zap.String("topic_id", topicID), zap.Int("count", len(articles)))
	return nil
}

func (c *Client) GetArticles(topicID string) ([]models.EnrichedArticle, error) {
	query := `
		SELECT title, source, url, published_at, entities, sentiment, relationship
		FROM topic_articles
		WHERE topic_id = ?
		ORDER BY id
	`

	rows, err := c.db.Query(query, topicID)
	if err != nil {
		return nil, fmt.Errorf("failed to get articles: %w", err)
	}
	defer rows.Close()

	var articles []models.EnrichedArticle
	for rows.Next() {
		var a models.EnrichedArticle
		err := rows.Scan(&a.Title, &a.Source, &a.URL, &a.PublishedAt, &a.Entities, &a.Sentiment, &a.Relationship)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		articles = append(articles, a)
	}

	return articles, rows.Err()
}

func (c *Client) InsertChatTurn(turn *models.ChatTurn) error {
	query := `
		INSERT INTO chat_turns (id, topic_id, query, response, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := c.db.Exec(
		query,
		turn.ID,
		turn.TopicID,
		turn.Query,
		turn.Response,
		turn.LatencyMS,
		turn.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat turn: %w", err)
	}

	logger.Debug("Chat turn recorded", zap.String("turn_id", turn.ID), zap.String("topic_id", turn.TopicID))
	return nil
}

// GetChatTurns returns up to limit turns of a topic, oldest first.
func (c *Client) GetChatTurns(topicID string, limit int) ([]models.ChatTurn, error) {
	query := `
		SELECT id, topic_id, query, response, latency_ms, created_at FROM (
			SELECT seq, id, topic_id, query, response, latency_ms, created_at
			FROM chat_turns
			WHERE topic_id = ?
			ORDER BY seq DESC
			LIMIT ?
		) ORDER BY seq ASC
	`

	rows, err := c.db.Query(query, topicID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ChatTurn
	for rows.Next() {
		var t models.ChatTurn
		var createdAt int64

		err := rows.Scan(&t.ID, &t.TopicID, &t.Query, &t.Response, &t.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

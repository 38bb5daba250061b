// Package web fetches article pages to replace the truncated content the
// news source returns.
package web

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
)

// truncationMarker matches the "… [+1234 chars]" suffix of truncated content.
var truncationMarker = regexp.MustCompile(`\s*…?\s*\[\+\d+ chars\]\s*$`)

const defaultUserAgent = "Mozilla/5.0 (compatible; newsgraph/1.0)"

type Config struct {
	Timeout     time.Duration
	MaxChars    int
	Concurrency int
	UserAgent   string
}

type Scraper struct {
	httpClient  *http.Client
	maxChars    int
	concurrency int
	userAgent   string
}

func NewScraper(cfg Config) *Scraper {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 5000
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	return &Scraper{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxChars:    cfg.MaxChars,
		concurrency: cfg.Concurrency,
		userAgent:   cfg.UserAgent,
	}
}

func IsTruncated(content string) bool {
	return truncationMarker.MatchString(content)
}

// ExpandAll replaces truncated content with the text of the article page.
// Articles that cannot be fetched keep their content minus the marker.
// The input slice is not modified.
func (s *Scraper) ExpandAll(ctx context.Context, articles []models.EnrichedArticle) []models.EnrichedArticle {
	out := make([]models.EnrichedArticle, len(articles))
	copy(out, articles)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range out {
		i := i
		if !IsTruncated(out[i].Content) {
			continue
		}
		g.Go(func() error {
			out[i].Content = s.expand(gctx, out[i])
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func (s *Scraper) expand(ctx context.Context, article models.EnrichedArticle) string {
	fallback := truncationMarker.ReplaceAllString(article.Content, "")
	if article.URL == "" || article.URL == models.DefaultURL {
		return fallback
	}

	text, err := s.scrapeContent(ctx, article.URL)
	if err != nil || len(text) <= len(fallback) {
		if err != nil {
			logger.Warn("Failed to scrape article", zap.String("url", article.URL), zap.Error(err))
		}
		metrics.ArticlesExpanded.WithLabelValues("fallback").Inc()
		return fallback
	}

	metrics.ArticlesExpanded.WithLabelValues("scraped").Inc()
	return text
}

func (s *Scraper) scrapeContent(ctx context.Context, urlStr string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	doc.Find("script, style, nav, footer, header, aside").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var paragraphs []string
	root.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.Join(strings.Fields(p.Text()), " "); t != "" {
			paragraphs = append(paragraphs, t)
		}
	})

	text := strings.Join(paragraphs, "\n")
	if text == "" {
		text = strings.Join(strings.Fields(root.Text()), " ")
	}

	runes := []rune(text)
	if len(runes) > s.maxChars {
		text = string(runes[:s.maxChars])
	}
	return text, nil
}

package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/newsgraph/backend/internal/metrics"
	"github.com/newsgraph/backend/internal/storage/models"
	"github.com/newsgraph/backend/pkg/logger"
)

// Clean normalizes one raw article. Missing fields get fixed defaults; a
// publishedAt that does not match the upstream layout is an error.
func Clean(raw models.RawArticle) (models.EnrichedArticle, error) {
	description, err := stripTags(deref(raw.Description, ""))
	if err != nil {
		return models.EnrichedArticle{}, fmt.Errorf("failed to clean description: %w", err)
	}

	content, err := stripTags(deref(raw.Content, ""))
	if err != nil {
		return models.EnrichedArticle{}, fmt.Errorf("failed to clean content: %w", err)
	}

	publishedAt, err := normalizeTimestamp(raw.PublishedAt)
	if err != nil {
		return models.EnrichedArticle{}, err
	}

	source := models.DefaultSource
	if raw.Source != nil && raw.Source.Name != nil {
		source = *raw.Source.Name
	}

	return models.EnrichedArticle{
		Title:       deref(raw.Title, models.DefaultTitle),
		Description: description,
		Content:     content,
		PublishedAt: publishedAt,
		Source:      source,
		URL:         deref(raw.URL, models.DefaultURL),
	}, nil
}

// CleanAll cleans every article, logging and dropping the ones that fail.
func CleanAll(raws []models.RawArticle) []models.EnrichedArticle {
	cleaned := make([]models.EnrichedArticle, 0, len(raws))

	for i, raw := range raws {
		article, err := Clean(raw)
		if err != nil {
			logger.Warn("Dropping article that failed cleaning",
				zap.Int("index", i),
				zap.String("title", deref(raw.Title, models.DefaultTitle)),
				zap.Error(err),
			)
			metrics.ArticlesDropped.WithLabelValues("clean").Inc()
			continue
		}
		cleaned = append(cleaned, article)
	}

	logger.Info("Articles cleaned",
		zap.Int("received", len(raws)),
		zap.Int("kept", len(cleaned)),
	)

	return cleaned
}

func normalizeTimestamp(publishedAt *string) (string, error) {
	if publishedAt == nil || *publishedAt == "" {
		return models.UnknownTimestamp, nil
	}

	t, err := time.Parse(models.PublishedAtLayout, *publishedAt)
	if err != nil {
		return "", fmt.Errorf("invalid publishedAt %q: %w", *publishedAt, err)
	}

	return t.Format(models.TimestampLayout), nil
}

// stripTags removes HTML markup, keeping the text content.
func stripTags(fragment string) (string, error) {
	if !strings.ContainsAny(fragment, "<&") {
		return fragment, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(doc.Text()), nil
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

package retrieval

import (
	"strings"
	"text/template"

	"github.com/newsgraph/backend/internal/storage/models"
)

var articleTemplate = template.Must(template.New("article").Parse(`Title: {{.Title}}
Entities: {{.Entities}}
Sentiment: {{.Sentiment}}
Relationship: {{.Relationship}}
Source: {{.Source}}
URL: {{.URL}}
`))

// Render formats one article as the text block that gets indexed.
func Render(article models.EnrichedArticle) string {
	var b strings.Builder
	// Execute only fails on writer errors, which strings.Builder never returns.
	_ = articleTemplate.Execute(&b, article)
	return b.String()
}

// RenderAll joins the rendered blocks with newlines.
func RenderAll(articles []models.EnrichedArticle) string {
	blocks := make([]string, len(articles))
	for i, a := range articles {
		blocks[i] = Render(a)
	}
	return strings.Join(blocks, "\n")
}

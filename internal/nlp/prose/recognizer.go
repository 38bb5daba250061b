// Package prose recognizes named entities in-process, without a hosted model.
package prose

import (
	"context"
	"fmt"
	"strings"

	"github.com/jdkato/prose/v2"

	"github.com/newsgraph/backend/internal/storage/models"
)

type Recognizer struct{}

func NewRecognizer() *Recognizer {
	return &Recognizer{}
}

// RecognizeEntities tags people, places and organizations using prose's
// averaged perceptron model. Labels are prose's (PERSON, GPE, ORG...).
func (r *Recognizer) RecognizeEntities(ctx context.Context, text string) ([]models.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := prose.NewDocument(text, prose.WithSegmentation(false))
	if err != nil {
		return nil, fmt.Errorf("failed to tag document: %w", err)
	}

	var entities []models.Entity
	for _, ent := range doc.Entities() {
		name := strings.TrimSpace(ent.Text)
		if name == "" {
			continue
		}
		entities = append(entities, models.Entity{Name: name, Type: ent.Label})
	}
	return entities, nil
}

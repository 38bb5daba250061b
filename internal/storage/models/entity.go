package models

import (
	"fmt"
	"strings"
)

const (
	entitySeparator = "; "
	tagOpen         = " ("
	tagClose        = ")"
)

// Entity is a recognized span and its tag, e.g. ("Apple", "ORG").
type Entity struct {
	Name string
	Type string
}

func (e Entity) String() string {
	return e.Name + tagOpen + e.Type + tagClose
}

// FormatEntities serializes entities as "word (TAG); word2 (TAG2)".
func FormatEntities(entities []Entity) string {
	parts := make([]string, 0, len(entities))
	for _, e := range entities {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, entitySeparator)
}

// SplitEntities splits a serialized entity list into its items.
func SplitEntities(serialized string) []string {
	if serialized == "" {
		return nil
	}
	return strings.Split(serialized, entitySeparator)
}

// ParseEntity splits one item on the last " (" so names that themselves
// contain parentheses keep them.
func ParseEntity(item string) (Entity, error) {
	idx := strings.LastIndex(item, tagOpen)
	if idx < 0 {
		return Entity{}, fmt.Errorf("malformed entity %q: missing tag", item)
	}
	name := strings.TrimSpace(item[:idx])
	tag := strings.TrimSpace(strings.TrimSuffix(item[idx+len(tagOpen):], tagClose))
	if name == "" || tag == "" {
		return Entity{}, fmt.Errorf("malformed entity %q: empty name or tag", item)
	}
	return Entity{Name: name, Type: tag}, nil
}

// ParseEntities is the inverse of FormatEntities.
func ParseEntities(serialized string) ([]Entity, error) {
	items := SplitEntities(serialized)
	entities := make([]Entity, 0, len(items))
	for _, item := range items {
		e, err := ParseEntity(item)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

package extract

import (
	"encoding/json"
)

// personLD is the subset of a schema.org Person the profile cares about.
type personLD struct {
	Name        string
	Image       string
	URL         string
	Description string
}

// parsePersonLD decodes a JSON-LD script body and returns the first Person
// node found, searching top-level objects, arrays, and @graph containers.
// Invalid JSON returns nil.
func parsePersonLD(raw []byte) *personLD {
	var root any
	if err := json.Unmarshal(raw, &root); err != nil {
		return nil
	}
	return findPerson(root, 0)
}

func findPerson(node any, depth int) *personLD {
	if depth > 4 {
		return nil
	}
	switch t := node.(type) {
	case []any:
		for _, item := range t {
			if p := findPerson(item, depth+1); p != nil {
				return p
			}
		}
	case map[string]any:
		if isPersonType(t["@type"]) {
			return &personLD{
				Name:        stringField(t, "name"),
				Image:       imageField(t["image"]),
				URL:         stringField(t, "url"),
				Description: stringField(t, "description"),
			}
		}
		if graph, ok := t["@graph"]; ok {
			return findPerson(graph, depth+1)
		}
		if main, ok := t["mainEntity"]; ok {
			return findPerson(main, depth+1)
		}
	}
	return nil
}

func isPersonType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Person"
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && s == "Person" {
				return true
			}
		}
	}
	return false
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// imageField handles the three shapes schema.org allows for image: a bare
// URL string, an ImageObject, or a list of either.
func imageField(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if u := stringField(t, "url"); u != "" {
			return u
		}
		return stringField(t, "contentUrl")
	case []any:
		for _, item := range t {
			if u := imageField(item); u != "" {
				return u
			}
		}
	}
	return ""
}

package extract

import (
	"strings"
	"sync"

	"github.com/tsawler/prose/v3"
)

// ProseTagger finds people and places with the prose NER model.
// Loading the model is slow, so one tagger should be shared.
type ProseTagger struct {
	mu sync.Mutex
}

// NewProseTagger creates a tagger
func NewProseTagger() *ProseTagger {
	return &ProseTagger{}
}

// Tag returns PERSON entities and the first place-like entity (GPE, LOC, FAC)
func (p *ProseTagger) Tag(text string) (people []string, place string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ""
	}

	p.mu.Lock()
	doc, err := prose.NewDocument(text)
	p.mu.Unlock()
	if err != nil {
		return nil, ""
	}

	seen := make(map[string]bool)
	for _, ent := range doc.Entities() {
		name := strings.TrimSpace(ent.Text)
		if name == "" {
			continue
		}
		switch strings.ToUpper(ent.Label) {
		case "PERSON":
			if !seen[name] {
				seen[name] = true
				people = append(people, name)
			}
		case "GPE", "LOC", "FAC":
			if place == "" {
				place = name
			}
		}
	}
	return people, place
}

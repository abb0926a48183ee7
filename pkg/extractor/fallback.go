package extractor

import (
	"regexp"
	"strings"

	"github.com/graphloom/graphloom/internal/models"
)

const (
	fallbackEntityConfidence   = 0.3
	fallbackRelationConfidence = 0.2
	fallbackMaxEntities        = 20
)

var properNounPattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9]+(?: [A-Z][A-Za-z0-9]+)*\b`)

// HeuristicFallback is the rank-3 extractor: a pure function over the chunk
// text, no network calls, always terminates. Quality is deliberately low;
// its job is keeping the cascade total.
type HeuristicFallback struct{}

// NewHeuristicFallback creates the deterministic fallback extractor.
func NewHeuristicFallback() *HeuristicFallback {
	return &HeuristicFallback{}
}

// ExtractEntities picks capitalized phrases out of the text, skipping
// sentence-initial words that never recur capitalized mid-sentence.
func (f *HeuristicFallback) ExtractEntities(text string) []models.Entity {
	matches := properNounPattern.FindAllStringIndex(text, -1)

	seen := make(map[string]bool)
	var entities []models.Entity
	for _, m := range matches {
		name := text[m[0]:m[1]]
		if !midSentence(text, m[0]) && strings.Count(text, name) < 2 {
			continue
		}
		key := models.CanonicalName(name)
		if seen[key] {
			continue
		}
		seen[key] = true

		entities = append(entities, models.Entity{
			Name:       name,
			Confidence: fallbackEntityConfidence,
		})
		if len(entities) >= fallbackMaxEntities {
			break
		}
	}
	return entities
}

// ExtractRelations pairs entities that co-occur within one sentence. The
// relation is left untyped with the sentence as description; the offline
// maintainer infers types later.
func (f *HeuristicFallback) ExtractRelations(text string, entities []models.Entity) []models.Relationship {
	if len(entities) < 2 {
		return nil
	}

	var relations []models.Relationship
	seen := make(map[string]bool)

	for _, sentence := range splitSentences(text) {
		var present []models.Entity
		for _, e := range entities {
			if strings.Contains(sentence, e.Name) {
				present = append(present, e)
			}
		}
		for i := 0; i < len(present); i++ {
			for j := i + 1; j < len(present); j++ {
				r := models.Relationship{
					Source:      present[i].Name,
					Target:      present[j].Name,
					Description: strings.TrimSpace(sentence),
					Confidence:  fallbackRelationConfidence,
				}
				if seen[r.Key()] {
					continue
				}
				seen[r.Key()] = true
				relations = append(relations, r)
			}
		}
	}
	return relations
}

// midSentence reports whether the byte offset sits after something other
// than a sentence boundary.
func midSentence(text string, offset int) bool {
	prefix := strings.TrimRight(text[:offset], " \t")
	if prefix == "" {
		return false
	}
	last := prefix[len(prefix)-1]
	return last != '.' && last != '!' && last != '?' && last != '\n'
}

func splitSentences(text string) []string {
	var sentences []string
	current := strings.Builder{}

	for i := 0; i < len(text); i++ {
		current.WriteByte(text[i])
		switch text[i] {
		case '.', '!', '?', '\n':
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

package extractor

import (
	"fmt"
	"strings"

	"github.com/graphloom/graphloom/internal/models"
)

const entityPromptTemplate = `Extract the named entities from the text below.
Respond with a JSON array only. Each element must have the fields
"name", "type", "description" and "confidence" (0 to 1).

Text:
%s`

const relationPromptTemplate = `Identify relationships between the known entities in the text below.
Respond with a JSON array only. Each element must have the fields
"source", "target", "type", "description" and "confidence" (0 to 1).

Known entities: %s

Text:
%s`

const continuationPromptTemplate = `Some relationships may be missing from a previous extraction of the text below.
List ONLY additional relationships that are not already in the known list.
Do not repeat known relationships. Respond with a JSON array only. Each
element must have the fields "source", "target", "type", "description" and
"confidence" (0 to 1). Respond with [] if nothing is missing.

Known entities: %s

Known relationships:
%s

Text:
%s`

func entityPrompt(text string) string {
	return fmt.Sprintf(entityPromptTemplate, text)
}

func relationPrompt(text string, names []string) string {
	return fmt.Sprintf(relationPromptTemplate, strings.Join(names, ", "), text)
}

func continuationPrompt(text string, names []string, known []models.Relationship) string {
	var lines []string
	for _, r := range known {
		lines = append(lines, fmt.Sprintf("- %s -> %s (%s)", r.Source, r.Target, r.Type))
	}
	if len(lines) == 0 {
		lines = []string{"(none)"}
	}
	return fmt.Sprintf(continuationPromptTemplate, strings.Join(names, ", "), strings.Join(lines, "\n"), text)
}

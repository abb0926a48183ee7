package gleaning

import (
	"context"
	"fmt"
	"strings"

	"github.com/graphloom/graphloom/internal/models"
	"github.com/graphloom/graphloom/internal/types"
	"github.com/graphloom/graphloom/pkg/llm"
)

const checkPromptTemplate = `Given the text, the extracted entities and the extracted relationships below,
are there relationships clearly stated in the text but missing from the list?
Answer with the single word YES or NO.

Entities: %s

Relationships:
%s

Text:
%s`

// LLMChecker asks a model whether relationships are still missing. Any
// answer other than a clear yes reads as complete, so a confused model
// cannot force extra gleaning rounds on its own.
type LLMChecker struct {
	invoker *llm.Invoker
	model   types.ModelDescriptor
}

// NewLLMChecker creates a completeness checker backed by the given model.
func NewLLMChecker(invoker *llm.Invoker, model types.ModelDescriptor) *LLMChecker {
	return &LLMChecker{invoker: invoker, model: model}
}

// IsIncomplete reports whether the model thinks relationships are missing.
func (c *LLMChecker) IsIncomplete(ctx context.Context, text string, entities []models.Entity, relations []models.Relationship) (bool, error) {
	var names []string
	for _, e := range entities {
		names = append(names, e.Name)
	}
	var lines []string
	for _, r := range relations {
		lines = append(lines, fmt.Sprintf("- %s -> %s (%s)", r.Source, r.Target, r.Type))
	}
	if len(lines) == 0 {
		lines = []string{"(none)"}
	}

	prompt := fmt.Sprintf(checkPromptTemplate, strings.Join(names, ", "), strings.Join(lines, "\n"), text)

	raw, err := c.invoker.Invoke(ctx, c.model, "", prompt)
	if err != nil {
		return false, err
	}

	answer := strings.ToUpper(strings.TrimSpace(raw))
	return strings.HasPrefix(answer, "YES"), nil
}

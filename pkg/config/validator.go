package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if len(c.LLM.RankedModels) == 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.ranked_models",
			Message: "at least one ranked model is required",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 8192 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 8192",
		})
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	if c.LLM.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "llm.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	for i, sec := range c.LLM.RankTimeoutsSec {
		if sec < 1 {
			errors = append(errors, ValidationError{
				Field:   "llm.rank_timeouts_seconds",
				Message: fmt.Sprintf("timeout for rank %d must be positive", i+1),
			})
		}
	}

	// Validate Database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate Pipeline config
	if c.Pipeline.Workers < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.workers",
			Message: "workers must be positive",
		})
	}

	if c.Pipeline.MaxGleaningRounds < 0 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.max_gleaning_rounds",
			Message: "max_gleaning_rounds cannot be negative",
		})
	}

	if c.Pipeline.EntityNameCap < 1 {
		errors = append(errors, ValidationError{
			Field:   "pipeline.entity_name_cap",
			Message: "entity_name_cap must be positive",
		})
	}

	// Validate Gate config
	if c.Gate.MinEntitiesPerChunk < 0 {
		errors = append(errors, ValidationError{
			Field:   "gate.min_entities_per_chunk",
			Message: "min_entities_per_chunk cannot be negative",
		})
	}

	if c.Gate.ZeroRelationStreak < 1 {
		errors = append(errors, ValidationError{
			Field:   "gate.zero_relation_streak",
			Message: "zero_relation_streak must be positive",
		})
	}

	if c.Gate.Rank3AlertFraction <= 0 || c.Gate.Rank3AlertFraction > 1 {
		errors = append(errors, ValidationError{
			Field:   "gate.rank3_alert_fraction",
			Message: "rank3_alert_fraction must be in (0, 1]",
		})
	}

	if c.Gate.CascadeWindow < 1 {
		errors = append(errors, ValidationError{
			Field:   "gate.cascade_window",
			Message: "cascade_window must be positive",
		})
	}

	// Validate Maintenance config
	if c.Maintenance.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "maintenance.batch_size",
			Message: "batch_size must be positive",
		})
	}

	return errors
}

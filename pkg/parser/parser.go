package parser

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/graphloom/graphloom/internal/models"
)

// Strategy converts raw model output to structured records. Returns false
// when this strategy cannot recover anything; the chain tries the next one.
type Strategy func(raw string) ([]models.RawRecord, bool)

// Chain is an ordered list of parsing strategies; first success wins.
// All-strategies-failed is a valid zero-record outcome, not an error.
type Chain struct {
	strategies []Strategy
}

// NewChain creates the default chain: direct parse, fence stripping,
// JSON repair, then per-object salvage.
func NewChain() *Chain {
	return &Chain{
		strategies: []Strategy{
			ParseDirect,
			ParseUnfenced,
			ParseRepaired,
			ParseSalvaged,
		},
	}
}

// Parse runs each strategy in order and returns the first success.
func (c *Chain) Parse(raw string) ([]models.RawRecord, bool) {
	for _, strategy := range c.strategies {
		if records, ok := strategy(raw); ok {
			return records, true
		}
	}
	return nil, false
}

// ParseDirect expects a well-formed JSON array of records.
func ParseDirect(raw string) ([]models.RawRecord, bool) {
	var records []models.RawRecord
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &records); err != nil {
		return nil, false
	}
	return keepUsable(records)
}

// ParseUnfenced strips markdown code fences and surrounding prose, keeping
// only the outermost JSON array, then retries the direct parse.
func ParseUnfenced(raw string) ([]models.RawRecord, bool) {
	text := stripFences(raw)

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end <= start {
		return nil, false
	}

	return ParseDirect(text[start : end+1])
}

// ParseRepaired repairs common syntactic defects (trailing separators,
// unquoted keys, single quotes) before retrying the direct parse.
func ParseRepaired(raw string) ([]models.RawRecord, bool) {
	text := stripFences(raw)

	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start != -1 && end > start {
		text = text[start : end+1]
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return nil, false
	}
	return ParseDirect(repaired)
}

var objectPattern = regexp.MustCompile(`\{[^{}]*\}`)

// ParseSalvaged regex-extracts record-shaped substrings and parses each
// independently, discarding the ones that fail.
func ParseSalvaged(raw string) ([]models.RawRecord, bool) {
	matches := objectPattern.FindAllString(raw, -1)
	if len(matches) == 0 {
		return nil, false
	}

	var records []models.RawRecord
	for _, match := range matches {
		var record models.RawRecord
		if err := json.Unmarshal([]byte(match), &record); err != nil {
			continue
		}
		records = append(records, record)
	}

	return keepUsable(records)
}

func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if idx := strings.Index(text, "```"); idx != -1 {
		text = text[idx+3:]
		// Drop a language tag like "json" on the fence line.
		if nl := strings.Index(text, "\n"); nl != -1 {
			text = text[nl+1:]
		}
		if end := strings.Index(text, "```"); end != -1 {
			text = text[:end]
		}
	}
	return strings.TrimSpace(text)
}

// keepUsable drops records that name nothing: neither an entity name nor a
// relation endpoint pair.
func keepUsable(records []models.RawRecord) ([]models.RawRecord, bool) {
	var kept []models.RawRecord
	for _, r := range records {
		if strings.TrimSpace(r.Name) == "" && (strings.TrimSpace(r.Source) == "" || strings.TrimSpace(r.Target) == "") {
			continue
		}
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return nil, false
	}
	return kept, true
}

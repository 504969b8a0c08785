package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// Category is a best-effort topical label. It is advisory only: never part of
// document identity and never persisted to the ledger.
type Category string

const (
	CategoryEducation Category = "education"
	CategoryIdentity  Category = "personal identity"
	CategoryLegal     Category = "legal"
	CategoryFinancial Category = "financial"
	CategoryMedical   Category = "medical"
	CategoryWork      Category = "work"
	CategoryOther     Category = "other"
)

var allCategories = []Category{
	CategoryEducation,
	CategoryIdentity,
	CategoryLegal,
	CategoryFinancial,
	CategoryMedical,
	CategoryWork,
	CategoryOther,
}

func ParseCategory(label string) (Category, bool) {
	label = strings.ToLower(strings.TrimSpace(label))
	for _, c := range allCategories {
		if string(c) == label {
			return c, true
		}
	}
	return CategoryOther, false
}

// TextGenerator produces free-form model output for a prompt. The production
// implementation is the Gemini client; tests substitute fakes.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// Classifier asks the generative model for a document label. Every failure
// mode — transport error, blank output, out-of-set label, unparsable JSON —
// maps to CategoryOther. Classification never raises an error to the caller.
type Classifier struct {
	generator  TextGenerator
	maxExcerpt int
	logger     *zap.Logger
}

func NewClassifier(generator TextGenerator, maxExcerpt int, logger *zap.Logger) *Classifier {
	if maxExcerpt <= 0 {
		maxExcerpt = 4000
	}
	return &Classifier{
		generator:  generator,
		maxExcerpt: maxExcerpt,
		logger:     logger.With(zap.String("service", "classifier")),
	}
}

func (c *Classifier) Classify(ctx context.Context, content []byte, mimeType string) Category {
	if c.generator == nil {
		return CategoryOther
	}

	output, err := c.generator.GenerateText(ctx, c.buildPrompt(content, mimeType))
	if err != nil {
		c.logger.Warn("Classification call failed, defaulting", zap.Error(err))
		return CategoryOther
	}

	category, ok := parseLabel(output)
	if !ok {
		c.logger.Debug("Unparsable classification output, defaulting",
			zap.String("output", truncate(output, 200)))
	}
	return category
}

func (c *Classifier) buildPrompt(content []byte, mimeType string) string {
	names := make([]string, len(allCategories))
	for i, cat := range allCategories {
		names[i] = string(cat)
	}

	return fmt.Sprintf(`Based on the following document, determine the most appropriate document category.
Categories include: %s.

Content type: %s
Text: %s

Respond with ONLY the category name in lowercase.`,
		strings.Join(names, ", "), mimeType, excerpt(content, c.maxExcerpt))
}

// parseLabel accepts either a bare label or a small JSON object of the form
// {"category": "legal"}.
func parseLabel(output string) (Category, bool) {
	output = strings.TrimSpace(output)

	if category, ok := ParseCategory(output); ok {
		return category, true
	}

	var wrapped struct {
		Category string `json:"category"`
	}
	if err := json.Unmarshal([]byte(output), &wrapped); err == nil {
		if category, ok := ParseCategory(wrapped.Category); ok {
			return category, true
		}
	}

	return CategoryOther, false
}

// excerpt keeps the prompt bounded; classification does not need the whole
// blob and oversized prompts are rejected by the model anyway.
func excerpt(content []byte, limit int) string {
	text := strings.ToValidUTF8(string(content), "")
	return truncate(text, limit)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	for limit > 0 && !utf8.RuneStart(s[limit]) {
		limit--
	}
	return s[:limit]
}

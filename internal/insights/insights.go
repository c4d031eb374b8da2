// Package insights produces an optional narrative summary of a finished
// scan. Generation failures are never fatal; a report without an insight
// is still a complete report.
package insights

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/costscope/costscope/internal/domain/recommendation"
	"github.com/costscope/costscope/internal/domain/scan"
)

// Generator turns a finished report into a short narrative
type Generator interface {
	Summarize(ctx context.Context, report *scan.Report) (string, error)
}

// Select picks the generator for the configured backend. No key means no
// narrative, not an error.
func Select(apiKey, model string) Generator {
	if apiKey == "" {
		return NoopGenerator{}
	}
	return NewOpenAIGenerator(apiKey, model)
}

// NoopGenerator returns no insight. Used when no API key is configured.
type NoopGenerator struct{}

// Summarize returns an empty insight
func (NoopGenerator) Summarize(context.Context, *scan.Report) (string, error) {
	return "", nil
}

// OpenAIGenerator summarizes reports with a chat completion
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

// NewOpenAIGenerator creates a generator bound to an API key and model
func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIGenerator{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// Summarize asks the model for a three-sentence executive summary. Only
// aggregate figures and recommendation titles leave the process; resource
// identifiers stay local.
func (g *OpenAIGenerator) Summarize(ctx context.Context, report *scan.Report) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are a cloud cost analyst. Summarize scan results in at most " +
					"three sentences for an engineering manager. Be specific about " +
					"the savings figures. No markdown.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(report),
			},
		},
		MaxTokens:   200,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("insight generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("insight generation returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(report *scan.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scan covered %d resources with a total monthly cost of %.2f %s.\n",
		len(report.Resources), report.TotalMonthlyCost, report.Currency)
	fmt.Fprintf(&b, "Potential monthly savings: %.2f %s across %d recommendations.\n",
		report.TotalPotentialSavings, report.Currency, len(report.Recommendations))
	fmt.Fprintf(&b, "Discovery coverage: %.0f%%.\n", report.Coverage*100)

	byCategory := make(map[string]float64)
	for _, rec := range report.Recommendations {
		byCategory[rec.Category] += rec.PotentialSavings
	}
	for _, cat := range []string{
		recommendation.CategoryRightsizing,
		recommendation.CategoryIdleRemoval,
		recommendation.CategoryReservation,
		recommendation.CategoryArchitecture,
	} {
		if v, ok := byCategory[cat]; ok {
			fmt.Fprintf(&b, "%s savings: %.2f\n", cat, v)
		}
	}

	if n := len(report.Recommendations); n > 0 {
		b.WriteString("Top recommendations:\n")
		for i, rec := range report.Recommendations {
			if i == 3 {
				break
			}
			fmt.Fprintf(&b, "- %s (%.2f/month)\n", rec.Title, rec.PotentialSavings)
		}
	}
	return b.String()
}

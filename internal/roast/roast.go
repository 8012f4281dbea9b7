// Package roast generates a short, humorous reading of a user's subscription
// spending with Gemini. It is strictly cosmetic: detection never depends on
// it, and any failure here surfaces as an error the API layer can shrug off.
package roast

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/promatty/subtrackr/internal/recurring"
)

// Generator produces roasts with a configured Gemini model.
type Generator struct {
	model string
}

// NewGenerator creates a Generator. An empty model falls back to a sensible
// default.
func NewGenerator(model string) *Generator {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &Generator{model: model}
}

// Generate asks the model for a roast of the detected subscriptions.
// Credentials come from the environment (GEMINI_API_KEY or application
// default credentials), same as every other GenAI caller in this service.
func (g *Generator) Generate(ctx context.Context, subs []recurring.Subscription, totals recurring.Totals) (string, error) {
	if len(subs) == 0 {
		return "", fmt.Errorf("roast: nothing to roast - no subscriptions detected")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("roast: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: buildPrompt(subs, totals)},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("roast: generate content: %w", err)
	}

	text := cleanModelText(resp.Text())
	if text == "" {
		return "", fmt.Errorf("roast: empty response from model")
	}
	return text, nil
}

// buildPrompt lays out the detected streams and totals for the model,
// with hard constraints on tone and length.
func buildPrompt(subs []recurring.Subscription, totals recurring.Totals) string {
	var b strings.Builder
	b.WriteString("You are a sharp-tongued but good-natured financial comedian.\n\n")
	b.WriteString("Roast this person's subscription habits in 2-3 sentences.\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Be funny, not cruel. Punch at the spending, not the person.\n")
	b.WriteString("- Mention at least one specific service by name.\n")
	b.WriteString("- Plain text only. No Markdown, no emoji, no preamble.\n\n")

	b.WriteString("Their subscriptions:\n")
	for _, s := range subs {
		fmt.Fprintf(&b, "- %s: $%.2f %s", s.DisplayName, s.Amount, strings.ToLower(string(s.Frequency)))
		if s.Category != "" {
			fmt.Fprintf(&b, " (%s)", s.Category)
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nTotal: $%.2f per month, $%.2f per year.\n", totals.Monthly, totals.Annual)

	return b.String()
}

// cleanModelText strips Markdown fences and wrapping quotes when the model
// ignores the plain-text instruction.
func cleanModelText(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		if idx := strings.LastIndex(s, "```"); idx != -1 {
			s = s[:idx]
		}
		s = strings.TrimSpace(s)
	}

	s = strings.Trim(s, "\"")
	return strings.TrimSpace(s)
}

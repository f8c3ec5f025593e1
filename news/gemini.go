package news

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/rustyeddy/papertrade/market"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiGenerator asks a Gemini model for a market headline about one of the
// universe's instruments.
type GeminiGenerator struct {
	client   *genai.Client
	model    string
	universe *market.Universe
}

// NewGeminiGenerator creates the Gemini client. An empty apiKey lets the SDK
// read GEMINI_API_KEY / GOOGLE_API_KEY from the environment.
func NewGeminiGenerator(ctx context.Context, apiKey, model string, u *market.Universe) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{client: client, model: model, universe: u}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context) (Headline, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt(g.universe.Snapshot())),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return Headline{}, err
	}
	return parseHeadline(resp.Text())
}

func prompt(instruments []market.Instrument) string {
	var b strings.Builder
	b.WriteString("You write one short, fictional financial news headline for a stock market simulator.\n")
	b.WriteString("Pick one of these companies, or none for market-wide news:\n")
	for _, inst := range instruments {
		fmt.Fprintf(&b, "- %s (%s, %s)\n", inst.Symbol, inst.Company, inst.Sector)
	}
	b.WriteString(`Reply with JSON only: {"headline": string, "symbol": string or "", "impact": number between -0.5 and 0.5}.`)
	b.WriteString(" Positive impact is good news.\n")
	return b.String()
}

// parseHeadline decodes the model's JSON reply, tolerating a markdown fence.
func parseHeadline(text string) (Headline, error) {
	s := strings.TrimSpace(text)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return Headline{}, errors.New("empty response")
	}

	var h Headline
	if err := json.Unmarshal([]byte(s), &h); err != nil {
		return Headline{}, fmt.Errorf("decode headline: %w", err)
	}
	return h, nil
}

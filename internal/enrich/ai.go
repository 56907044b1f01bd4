package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadgen/internal/model"
	"github.com/sells-group/leadgen/pkg/anthropic"
)

const aiSystemPrompt = "You are an expert at extracting business owner information. " +
	"Follow the instructions and output format exactly. Do not fabricate data."

const aiPromptTemplate = `Identify the owner of a small or local business from publicly available sources.

Business: %s
Website: %s
Address: %s

Find the full name (first and last) of the owner, founder, or person in charge. Check the website's about/contact pages, then LinkedIn, then Facebook. Only report a name you can verify; never guess, and never return placeholder names like "John Doe".

Return a valid JSON object and nothing else:

{
  "result": "First Last" or null,
  "confidence": 0.0 to 1.0,
  "reasoning": "how the name was verified",
  "stepsTaken": ["step 1", "step 2"]
}

Only return a non-null result if confidence is 0.90 or greater.`

type aiResult struct {
	Result     *string  `json:"result"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	StepsTaken []string `json:"stepsTaken"`
}

// aiOwnerStrategy asks a language model to research the owner on the open
// web. Results below the model's own 0.90 bar, single-token names, and
// obvious placeholders are discarded.
type aiOwnerStrategy struct {
	llm   anthropic.Client
	model string
}

// NewAIOwnerStrategy creates the AI-assisted owner lookup strategy.
func NewAIOwnerStrategy(llm anthropic.Client, modelName string) Strategy {
	return &aiOwnerStrategy{llm: llm, model: modelName}
}

func (s *aiOwnerStrategy) Name() string { return "ai_owner_lookup" }

func (s *aiOwnerStrategy) Attempt(ctx context.Context, lead *model.Lead) (Outcome, error) {
	if lead.Website == "" && lead.BusinessName == "" {
		return Outcome{}, nil
	}

	resp, err := s.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.model,
		MaxTokens: 1024,
		System:    aiSystemPrompt,
		Messages: []anthropic.Message{{
			Role:    "user",
			Content: fmt.Sprintf(aiPromptTemplate, lead.BusinessName, lead.Website, lead.Address),
		}},
	})
	if err != nil {
		return Outcome{}, err
	}

	var parsed aiResult
	if err := json.Unmarshal([]byte(extractJSON(resp.Text())), &parsed); err != nil {
		return Outcome{}, eris.Wrap(err, "ai_owner_lookup: parse model output")
	}

	out := Outcome{
		Confidence: parsed.Confidence,
		Reasoning:  parsed.Reasoning,
		Steps:      parsed.StepsTaken,
		Source:     s.Name(),
	}

	if parsed.Result == nil {
		return out, nil
	}
	name := strings.TrimSpace(*parsed.Result)
	if parsed.Confidence < 0.90 || !hasFirstAndLastName(name) || isPlaceholderName(name) {
		return out, nil
	}
	out.OwnerName = name
	return out, nil
}

func hasFirstAndLastName(name string) bool {
	return len(strings.Fields(name)) >= 2
}

func isPlaceholderName(name string) bool {
	switch strings.ToLower(name) {
	case "john doe", "jane doe", "first last":
		return true
	}
	return false
}

// extractJSON trims any prose around the first JSON object in the model's
// reply.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

package enrich

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/leadgen/pkg/anthropic"
)

type fakeLLM struct {
	reply string
	err   error
	reqs  []anthropic.MessageRequest
}

func (f *fakeLLM) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: f.reply}},
	}, nil
}

func TestAIOwnerLookupAcceptsConfidentResult(t *testing.T) {
	llm := &fakeLLM{reply: `{
		"result": "Jane Smith",
		"confidence": 0.95,
		"reasoning": "Found on LinkedIn as the owner.",
		"stepsTaken": ["visited website", "searched LinkedIn"]
	}`}
	s := NewAIOwnerStrategy(llm, "claude-sonnet-4-20250514")

	out, err := s.Attempt(context.Background(), baseLead())
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", out.OwnerName)
	assert.InDelta(t, 0.95, out.Confidence, 1e-9)
	assert.Equal(t, "ai_owner_lookup", out.Source)
	assert.Len(t, out.Steps, 2)

	require.Len(t, llm.reqs, 1)
	assert.Equal(t, "claude-sonnet-4-20250514", llm.reqs[0].Model)
	assert.Contains(t, llm.reqs[0].Messages[0].Content, "bluecatcoffee.com")
}

func TestAIOwnerLookupRejectsLowConfidence(t *testing.T) {
	llm := &fakeLLM{reply: `{"result": "Jane Smith", "confidence": 0.70, "reasoning": "weak match", "stepsTaken": []}`}
	s := NewAIOwnerStrategy(llm, "m")

	out, err := s.Attempt(context.Background(), baseLead())
	require.NoError(t, err)
	assert.Empty(t, out.OwnerName)
	assert.Equal(t, "weak match", out.Reasoning)
}

func TestAIOwnerLookupRejectsSingleTokenName(t *testing.T) {
	llm := &fakeLLM{reply: `{"result": "Madonna", "confidence": 0.99, "reasoning": "", "stepsTaken": []}`}
	s := NewAIOwnerStrategy(llm, "m")

	out, err := s.Attempt(context.Background(), baseLead())
	require.NoError(t, err)
	assert.Empty(t, out.OwnerName)
}

func TestAIOwnerLookupRejectsPlaceholder(t *testing.T) {
	llm := &fakeLLM{reply: `{"result": "John Doe", "confidence": 0.99, "reasoning": "", "stepsTaken": []}`}
	s := NewAIOwnerStrategy(llm, "m")

	out, err := s.Attempt(context.Background(), baseLead())
	require.NoError(t, err)
	assert.Empty(t, out.OwnerName)
}

func TestAIOwnerLookupNullResult(t *testing.T) {
	llm := &fakeLLM{reply: `{"result": null, "confidence": 0, "reasoning": "no match", "stepsTaken": ["visited website"]}`}
	s := NewAIOwnerStrategy(llm, "m")

	out, err := s.Attempt(context.Background(), baseLead())
	require.NoError(t, err)
	assert.Empty(t, out.OwnerName)
	assert.Equal(t, "no match", out.Reasoning)
	assert.Equal(t, []string{"visited website"}, out.Steps)
}

func TestAIOwnerLookupTrimsSurroundingProse(t *testing.T) {
	llm := &fakeLLM{reply: "Here is the result:\n{\"result\": \"Jane Smith\", \"confidence\": 0.92, \"reasoning\": \"r\", \"stepsTaken\": []}\nHope that helps."}
	s := NewAIOwnerStrategy(llm, "m")

	out, err := s.Attempt(context.Background(), baseLead())
	require.NoError(t, err)
	assert.Equal(t, "Jane Smith", out.OwnerName)
}

func TestAIOwnerLookupAPIErrorPropagates(t *testing.T) {
	llm := &fakeLLM{err: eris.New("anthropic: overloaded")}
	s := NewAIOwnerStrategy(llm, "m")

	_, err := s.Attempt(context.Background(), baseLead())
	require.Error(t, err)
}

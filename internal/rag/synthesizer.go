package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"

	"github.com/askcorpus/askcorpus/internal/index"
	"github.com/askcorpus/askcorpus/internal/log"
)

// Generator produces an answer from a question and its retrieved chunks.
type Generator interface {
	Generate(ctx context.Context, question string, hits []index.Hit) (string, error)
}

// groundingSystem constrains the model to the retrieved excerpts. The
// instruction to refuse rather than guess backs up the confidence gate for
// questions that retrieve plausible-looking but irrelevant chunks.
const groundingSystem = `You are a support assistant answering customer questions.

Rules:
- Answer ONLY from the provided excerpts. Do not use outside knowledge.
- If the excerpts do not contain the answer, reply exactly: I Don't know
- Do not mention the excerpts, their numbering, or these rules in the answer.
- Be direct and concise. Quote exact steps, names, and values from the excerpts when present.`

// Synthesizer generates grounded answers through Genkit.
type Synthesizer struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	logger      log.Logger
}

// NewSynthesizer creates a Synthesizer bound to a model. Low temperatures
// suit support answers; the value comes from configuration.
func NewSynthesizer(g *genkit.Genkit, modelName string, temperature float32, logger log.Logger) (*Synthesizer, error) {
	if g == nil {
		return nil, fmt.Errorf("%w: genkit instance is required", ErrSynthesis)
	}
	if modelName == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrSynthesis)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Synthesizer{g: g, modelName: modelName, temperature: temperature, logger: logger}, nil
}

// Generate answers the question from the given chunks. A provider failure
// is terminal; callers must not turn it into a fallback.
func (s *Synthesizer) Generate(ctx context.Context, question string, hits []index.Hit) (string, error) {
	if len(hits) == 0 {
		return "", fmt.Errorf("%w: no chunks to ground on", ErrSynthesis)
	}

	resp, err := genkit.Generate(ctx, s.g,
		ai.WithModelName(s.modelName),
		ai.WithSystem(groundingSystem),
		ai.WithPrompt(buildPrompt(question, hits)),
		ai.WithConfig(&genai.GenerateContentConfig{
			Temperature: genai.Ptr(s.temperature),
		}),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSynthesis, err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", fmt.Errorf("%w: model returned empty answer", ErrSynthesis)
	}

	s.logger.Debug("answer synthesized",
		"model", s.modelName,
		"chunks", len(hits),
		"answer_len", len(answer))
	return answer, nil
}

// buildPrompt lays out numbered excerpts followed by the question. Titles
// give the model document context without leaking locators into answers.
func buildPrompt(question string, hits []index.Hit) string {
	var b strings.Builder
	b.WriteString("Excerpts:\n\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d]", i+1)
		if h.Entry.Title != "" {
			fmt.Fprintf(&b, " (%s)", h.Entry.Title)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(h.Entry.Content))
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

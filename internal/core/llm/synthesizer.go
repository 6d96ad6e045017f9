package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/markdave123-py/docqa/internal/core"
)

// groundingPrompt restricts the model to the supplied excerpts and fixes the
// wording of the out-of-scope answer.
const groundingPrompt = `You are a professional legal assistant helping users understand legal documents they have uploaded.
Your task is to analyze the provided contract excerpts and answer the user's questions by:
Providing clear, accurate legal reasoning based on the text.
Offering plain English summaries that are easy to understand.
Explaining legal terms or concepts when needed.
Referring to specific relevant clauses or sections by name or number whenever helpful.

Important guidelines:

If the user's question asks about content not included in the provided excerpts, respond precisely with:
"` + core.OutOfScopeAnswer + `"
Do not guess, invent, or assume any information that is not present in the excerpts.
Avoid overly technical or complex legal jargon, unless the user specifically requests such detail.
Keep all responses concise, accurate, and directly focused on the user's question.
Maintain a professional, clear, and helpful tone throughout.`

const emptyAnswer = "I apologize, but I could not generate a response."

// GroundedSynthesizer answers questions from retrieved excerpts only.
type GroundedSynthesizer struct {
	llm   core.LLMProvider
	guard *Guard
}

func NewGroundedSynthesizer(llm core.LLMProvider, guard *Guard) *GroundedSynthesizer {
	return &GroundedSynthesizer{llm: llm, guard: guard}
}

func (s *GroundedSynthesizer) Synthesize(ctx context.Context, excerpts string, question string) (string, error) {
	userPrompt := fmt.Sprintf("Document excerpts:\n%s\n\nQuestion: %s", excerpts, question)

	var answer string
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		var err error
		answer, err = s.llm.Generate(ctx, groundingPrompt, userPrompt)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("synthesize answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return emptyAnswer, nil
	}
	return answer, nil
}

var _ core.Synthesizer = (*GroundedSynthesizer)(nil)

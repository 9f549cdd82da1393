// Package promptreg renders the deterministic prompt templates §4.5 step 2
// requires: a neutral per-role template for ordinary fan-out, and the three
// named chain-of-thought scaffolds (chain_of_thought, socratic_method,
// multi_perspective) used when enable_chain_of_thought is set. The three
// scaffolds are grounded on chain_of_thought.py's ReasoningStep structure;
// the Python original only fully implements the chain_of_thought branch
// (the other two are explicit stubs there), so the Socratic and
// multi-perspective templates here are this module's own deterministic
// fleshing-out of what those names imply.
package promptreg

import (
	"fmt"
	"strings"
)

// ReasoningMethod is the closed set of chain-of-thought scaffolds §6 names.
type ReasoningMethod string

const (
	ReasoningChainOfThought   ReasoningMethod = "chain_of_thought"
	ReasoningSocraticMethod   ReasoningMethod = "socratic_method"
	ReasoningMultiPerspective ReasoningMethod = "multi_perspective"
)

// RenderRole wraps question with role (if non-empty) using the neutral
// template §4.5 step 2 calls for when roles is empty.
func RenderRole(question, role string) string {
	if role == "" {
		return question
	}
	return fmt.Sprintf("You are acting as %s. Answer the following question from that perspective:\n\n%s", role, question)
}

// RenderCoT wraps prompt in the named reasoning scaffold. Each scaffold is
// pure and deterministic, as §4.5 requires.
func RenderCoT(prompt string, method ReasoningMethod) string {
	switch method {
	case ReasoningSocraticMethod:
		return renderSocratic(prompt)
	case ReasoningMultiPerspective:
		return renderMultiPerspective(prompt)
	case ReasoningChainOfThought:
		fallthrough
	default:
		return renderChainOfThought(prompt)
	}
}

func renderChainOfThought(prompt string) string {
	var b strings.Builder
	b.WriteString("Think through this step by step before answering.\n\n")
	b.WriteString("1. Analyze what the question is asking.\n")
	b.WriteString("2. Gather the relevant facts or reasoning needed.\n")
	b.WriteString("3. Form a hypothesis for the answer.\n")
	b.WriteString("4. Evaluate the hypothesis against the evidence.\n")
	b.WriteString("5. Synthesize a final answer.\n\n")
	b.WriteString("Question: ")
	b.WriteString(prompt)
	b.WriteString("\n\nShow your reasoning briefly, then give a clear final answer.")
	return b.String()
}

func renderSocratic(prompt string) string {
	var b strings.Builder
	b.WriteString("Answer the question below by first working through these guiding questions:\n\n")
	b.WriteString("- What is actually being asked here?\n")
	b.WriteString("- What assumptions does the question make, and are they valid?\n")
	b.WriteString("- What would a counterexample or edge case look like?\n")
	b.WriteString("- Does the emerging answer hold up under each of the above?\n\n")
	b.WriteString("Question: ")
	b.WriteString(prompt)
	b.WriteString("\n\nWork through the guiding questions briefly, then give a clear final answer.")
	return b.String()
}

func renderMultiPerspective(prompt string) string {
	var b strings.Builder
	b.WriteString("Answer the question below from three distinct vantage points, then synthesize:\n\n")
	b.WriteString("1. A practical, results-oriented perspective.\n")
	b.WriteString("2. A skeptical, risk-focused perspective.\n")
	b.WriteString("3. A domain-expert perspective.\n\n")
	b.WriteString("Question: ")
	b.WriteString(prompt)
	b.WriteString("\n\nBriefly note where the perspectives agree or diverge, then give one clear final answer.")
	return b.String()
}

// RenderCritique builds the critic prompt used in a chain-refinement round.
func RenderCritique(question, currentAnswer string) string {
	return fmt.Sprintf(
		"Question: %s\n\nProposed answer: %s\n\nCritique this answer: identify any errors, omissions, or weak reasoning. Be specific and concise.",
		question, currentAnswer,
	)
}

// RenderRevision builds the reviser prompt conditioned on a critique.
func RenderRevision(question, currentAnswer, critique string) string {
	return fmt.Sprintf(
		"Question: %s\n\nOriginal answer: %s\n\nCritique: %s\n\nProduce an improved answer that addresses the critique. Give only the revised answer.",
		question, currentAnswer, critique,
	)
}

package service

import (
	"fmt"
	"strings"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

const synthesisSystemPrompt = "You are a professional exam question generator. " +
	"You write clear, unambiguous multiple-choice questions strictly grounded in the supplied source text. " +
	"You always answer with a single JSON array and nothing else."

// buildSynthesisPrompt renders the user prompt for one synthesis call.
func buildSynthesisPrompt(title, text string, req model.GenerationRequest) string {
	var sb strings.Builder
	sb.WriteString("Generate multiple-choice exam questions from the source document below.\n\n")
	fmt.Fprintf(&sb, "SOURCE TITLE: %s\n", title)
	fmt.Fprintf(&sb, "SUBJECT: %s\n", req.Subject)
	fmt.Fprintf(&sb, "DIFFICULTY: %s\n", req.Difficulty)
	fmt.Fprintf(&sb, "NUMBER OF QUESTIONS: %d\n", req.DesiredQuestionCount)
	fmt.Fprintf(&sb, "MARKS PER QUESTION: %d\n\n", req.MarksPerQuestion())

	sb.WriteString("RULES:\n")
	sb.WriteString("1. Return exactly the requested number of questions as one JSON array.\n")
	sb.WriteString("2. Every element is an object with the fields:\n")
	sb.WriteString(`   "question_text" (string), "options" (array of exactly 4 strings), ` +
		`"correct_answer" (integer index 0-3 of the correct option), "explanation" (string), ` +
		`"marks" (integer), "page_number" (integer, optional)` + "\n")
	sb.WriteString("3. Do not prefix options with letters or numbers.\n")
	sb.WriteString("4. Exactly one option is correct.\n")
	sb.WriteString("5. Output only the JSON array, without markdown fences or commentary.\n\n")

	sb.WriteString("Example element:\n")
	sb.WriteString(`{"question_text": "Which organelle produces most of the cell's ATP?", ` +
		`"options": ["Nucleus", "Mitochondrion", "Ribosome", "Golgi apparatus"], ` +
		`"correct_answer": 1, "explanation": "Oxidative phosphorylation happens in mitochondria.", "marks": 5}` + "\n\n")

	sb.WriteString("SOURCE TEXT:\n")
	sb.WriteString(text)
	return sb.String()
}

// truncateRunes keeps at most n characters of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

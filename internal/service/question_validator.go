package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// parseQuestions treats raw model output as untrusted input. Either every
// element is a valid question or the whole batch is rejected.
func parseQuestions(raw string) ([]model.Question, error) {
	body := stripCodeFence(raw)

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(body), &elements); err != nil {
		detail := "output is not valid JSON"
		if json.Valid([]byte(body)) {
			detail = "top-level value is not an array"
		}
		return nil, &SynthesisError{Kind: SynthesisMalformedOutput, Detail: detail, Err: err}
	}
	if elements == nil {
		return nil, &SynthesisError{Kind: SynthesisMalformedOutput, Detail: "top-level value is not an array"}
	}
	if len(elements) == 0 {
		return nil, &SynthesisError{Kind: SynthesisMalformedOutput, Detail: "array is empty"}
	}

	questions := make([]model.Question, 0, len(elements))
	for i, el := range elements {
		q, field, err := parseQuestion(el)
		if err != nil {
			return nil, &SynthesisError{Kind: SynthesisInvalidQuestion, Index: i, Field: field, Detail: err.Error()}
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func parseQuestion(el json.RawMessage) (model.Question, string, error) {
	var q model.Question

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(el, &fields); err != nil || fields == nil {
		return q, "element", fmt.Errorf("element is not an object")
	}

	var text string
	if err := json.Unmarshal(fields["question_text"], &text); err != nil || strings.TrimSpace(text) == "" {
		return q, "question_text", fmt.Errorf("question_text must be a non-empty string")
	}
	q.Text = strings.TrimSpace(text)

	var options []json.RawMessage
	if err := json.Unmarshal(fields["options"], &options); err != nil || options == nil {
		return q, "options", fmt.Errorf("options must be an array")
	}
	if len(options) != model.OptionCount {
		return q, "options", fmt.Errorf("options has %d entries, want %d", len(options), model.OptionCount)
	}
	q.Options = make([]string, model.OptionCount)
	for i, raw := range options {
		var opt string
		if err := json.Unmarshal(raw, &opt); err != nil || strings.TrimSpace(opt) == "" {
			return q, "options", fmt.Errorf("option %d must be a non-empty string", i)
		}
		q.Options[i] = strings.TrimSpace(opt)
	}
	stripOptionLabels(q.Options)

	idx, err := resolveAnswer(fields["correct_answer"])
	if err != nil {
		return q, "correct_answer", err
	}
	q.CorrectOptionIndex = idx

	if raw, ok := fields["explanation"]; ok {
		var explanation string
		if json.Unmarshal(raw, &explanation) == nil && strings.TrimSpace(explanation) != "" {
			explanation = strings.TrimSpace(explanation)
			q.Explanation = &explanation
		}
	}

	if raw, ok := fields["page_number"]; ok {
		var page int
		if json.Unmarshal(raw, &page) == nil && page > 0 {
			q.SourcePage = &page
		}
	}
	return q, "", nil
}

// resolveAnswer normalizes correct_answer to an index in [0,3]. Accepted
// forms: a JSON integer, a string holding one digit, or a letter A-D
// optionally followed by ")" or ".".
func resolveAnswer(raw json.RawMessage) (int, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return 0, fmt.Errorf("correct_answer is missing")
	}

	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&num); err == nil {
		n, err := strconv.Atoi(num.String())
		if err != nil || n < 0 || n >= model.OptionCount {
			return 0, fmt.Errorf("correct_answer %s is not an index in [0,3]", num)
		}
		return n, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("correct_answer must be a number or string")
	}
	s = strings.TrimRight(strings.TrimSpace(s), ").")
	if len(s) != 1 {
		return 0, fmt.Errorf("correct_answer %q is not a single designator", s)
	}
	c := s[0]
	switch {
	case c >= '0' && c <= '3':
		return int(c - '0'), nil
	case c >= 'A' && c <= 'D':
		return int(c - 'A'), nil
	case c >= 'a' && c <= 'd':
		return int(c - 'a'), nil
	}
	return 0, fmt.Errorf("correct_answer %q is not in 0-3 or A-D", s)
}

// stripCodeFence removes a surrounding ```json ... ``` block.
func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// stripOptionLabels removes leading "A) ", "B. " labels, but only when every
// option carries the label of its own position followed by whitespace.
// "A.D. 1066" alone is option text, not a label.
func stripOptionLabels(opts []string) {
	for i, opt := range opts {
		if optionLabelLen(opt, i) == 0 {
			return
		}
	}
	for i, opt := range opts {
		opts[i] = strings.TrimSpace(opt[optionLabelLen(opt, i):])
	}
}

// optionLabelLen returns the length of the position label at the start of
// opt, or 0 when there is none.
func optionLabelLen(opt string, pos int) int {
	if len(opt) < 4 {
		return 0
	}
	letter := byte('A' + pos)
	if opt[0] != letter && opt[0] != letter+('a'-'A') {
		return 0
	}
	if opt[1] != ')' && opt[1] != '.' {
		return 0
	}
	if opt[2] != ' ' && opt[2] != '\t' {
		return 0
	}
	if strings.TrimSpace(opt[3:]) == "" {
		return 0
	}
	return 2
}

// assignMarks gives every question floor(total/n) and folds the remainder
// into the first question so the sum equals total exactly.
func assignMarks(questions []model.Question, total int) {
	n := len(questions)
	if n == 0 {
		return
	}
	base := total / n
	for i := range questions {
		questions[i].Marks = base
	}
	questions[0].Marks += total % n
}

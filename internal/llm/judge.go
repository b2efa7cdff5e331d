package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// FeedbackJudgement is the judge's verdict on a feedback utterance.
type FeedbackJudgement struct {
	IsPositive bool     `json:"is_positive"`
	Confidence float64  `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
	Indicators []string `json:"indicators"`
}

// ComparisonVerdict is the judge's pairwise preference between two
// tutoring responses. Score 1.0 means the old response is much better,
// 0.0 means the new one is, 0.5 is a tie.
type ComparisonVerdict struct {
	Score             float64 `json:"score"`
	Reasoning         string  `json:"reasoning"`
	QualityAssessment string  `json:"quality_assessment"`
}

const feedbackJudgeSystem = `You are a sentiment judge for a tutoring service.
Decide whether the student's message is positive feedback about a previous answer.

Respond with ONLY a JSON object, no prose before or after:
{"is_positive": <bool>, "confidence": <0.0-1.0>, "reasoning": "<one sentence>", "indicators": ["<phrase>", ...]}`

const comparisonJudgeSystem = `You are a quality judge comparing two tutoring responses to the same question.
Response A was generated with an older prompt configuration, Response B with the current one.

Score your preference in [0.0, 1.0]: 1.0 means Response A is much better,
0.0 means Response B is much better, 0.5 is a tie.

Respond with ONLY a JSON object, no prose before or after:
{"score": <0.0-1.0>, "reasoning": "<one sentence>", "quality_assessment": "<one sentence>"}`

// JudgeFeedback asks the model whether a feedback utterance is
// positive. Provider failures and malformed output are returned as
// errors; the neutral fallback is the caller's decision.
func (m *Model) JudgeFeedback(ctx context.Context, feedbackText string) (*FeedbackJudgement, error) {
	userPrompt := fmt.Sprintf("Student message:\n%s", feedbackText)

	raw, err := m.GenerateWithSystem(ctx, feedbackJudgeSystem, userPrompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseVerdict[FeedbackJudgement]([]byte(raw))
	if err != nil {
		return nil, err
	}
	if verdict.Confidence < 0 || verdict.Confidence > 1 {
		return nil, fmt.Errorf("judge verdict confidence out of range: %v", verdict.Confidence)
	}
	return verdict, nil
}

// CompareResponses asks the model for a pairwise preference between the
// responses produced under the old and new enhancements.
func (m *Model) CompareResponses(ctx context.Context, query, oldResponse, newResponse string) (*ComparisonVerdict, error) {
	userPrompt := fmt.Sprintf(`Question:
%s

Response A (previous configuration):
%s

Response B (current configuration):
%s`, query, oldResponse, newResponse)

	raw, err := m.GenerateWithSystem(ctx, comparisonJudgeSystem, userPrompt)
	if err != nil {
		return nil, err
	}

	verdict, err := parseVerdict[ComparisonVerdict]([]byte(raw))
	if err != nil {
		return nil, err
	}
	if verdict.Score < 0 || verdict.Score > 1 {
		return nil, fmt.Errorf("comparison score out of range: %v", verdict.Score)
	}
	return verdict, nil
}

// parseVerdict decodes a judge response after stripping markdown fences.
func parseVerdict[T any](data []byte) (*T, error) {
	cleaned := cleanJSON(data)
	var result T
	if err := json.Unmarshal(cleaned, &result); err != nil {
		return nil, fmt.Errorf("parse judge verdict: %w", err)
	}
	return &result, nil
}

// cleanJSON strips markdown code fences and surrounding whitespace from
// LLM responses. Models often wrap JSON in ```json ... ``` blocks. This
// handles ```json\n{...}\n```, ```\n{...}\n```, and bare JSON.
func cleanJSON(data []byte) []byte {
	s := bytes.TrimSpace(data)
	if len(s) == 0 {
		return s
	}

	if bytes.HasPrefix(s, []byte("```")) {
		if idx := bytes.IndexByte(s, '\n'); idx >= 0 {
			s = s[idx+1:]
		}
		if bytes.HasSuffix(s, []byte("```")) {
			s = s[:len(s)-3]
		}
		s = bytes.TrimSpace(s)
	}

	return s
}

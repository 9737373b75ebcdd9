package ai

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"supportwatch/internal/models"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)```")

// ExtractJSON returns the first balanced JSON object found in free-form model
// output. Code fences and surrounding prose are ignored. No object means
// ErrMalformedResponse.
func ExtractJSON(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("%w: no JSON object in response", ErrMalformedResponse)
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("%w: unterminated JSON object", ErrMalformedResponse)
}

func decodeObject(raw string, dest interface{}) error {
	object, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(object), dest); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

func requireScore(field string, value *float64) (int, error) {
	if value == nil {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedResponse, field)
	}
	if math.IsNaN(*value) || *value < 0 || *value > 100 {
		return 0, fmt.Errorf("%w: %s out of range: %v", ErrMalformedResponse, field, *value)
	}
	return int(math.Round(*value)), nil
}

func requireBool(field string, value *bool) (bool, error) {
	if value == nil {
		return false, fmt.Errorf("%w: missing %s", ErrMalformedResponse, field)
	}
	return *value, nil
}

func requireSentiment(value *string) (string, error) {
	if value == nil {
		return "", fmt.Errorf("%w: missing sentiment", ErrMalformedResponse)
	}
	switch s := strings.ToLower(strings.TrimSpace(*value)); s {
	case models.SentimentPositive, models.SentimentNeutral, models.SentimentNegative, models.SentimentAtRisk:
		return s, nil
	case "at risk", "at-risk":
		return models.SentimentAtRisk, nil
	default:
		return "", fmt.Errorf("%w: unknown sentiment %q", ErrMalformedResponse, *value)
	}
}

type rawClassification struct {
	IsQuestion     *bool    `json:"is_question"`
	Confidence     *float64 `json:"confidence"`
	Summary        *string  `json:"summary"`
	Sentiment      *string  `json:"sentiment"`
	SuggestedTags  []string `json:"suggested_tags"`
	SuggestedReply *string  `json:"suggested_reply"`
}

func parseClassification(raw string) (QuestionClassification, error) {
	var r rawClassification
	if err := decodeObject(raw, &r); err != nil {
		return QuestionClassification{}, err
	}

	var out QuestionClassification
	var err error
	if out.IsQuestion, err = requireBool("is_question", r.IsQuestion); err != nil {
		return QuestionClassification{}, err
	}
	if out.Confidence, err = requireScore("confidence", r.Confidence); err != nil {
		return QuestionClassification{}, err
	}
	if out.Sentiment, err = requireSentiment(r.Sentiment); err != nil {
		return QuestionClassification{}, err
	}
	if r.Summary != nil {
		out.Summary = strings.TrimSpace(*r.Summary)
	}
	if out.IsQuestion && out.Summary == "" {
		return QuestionClassification{}, fmt.Errorf("%w: question without summary", ErrMalformedResponse)
	}

	seen := make(map[string]struct{})
	for _, tag := range r.SuggestedTags {
		tag = strings.TrimSpace(tag)
		key := strings.ToLower(tag)
		if tag == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out.SuggestedTags = append(out.SuggestedTags, tag)
	}

	if r.SuggestedReply != nil {
		if reply := strings.TrimSpace(*r.SuggestedReply); reply != "" {
			out.SuggestedReply = &reply
		}
	}
	return out, nil
}

type rawEvaluation struct {
	RelevanceScore    *float64 `json:"relevance_score"`
	IsCounterQuestion *bool    `json:"is_counter_question"`
	Explanation       string   `json:"explanation"`
}

func parseEvaluation(raw string) (ReplyEvaluation, error) {
	var r rawEvaluation
	if err := decodeObject(raw, &r); err != nil {
		return ReplyEvaluation{}, err
	}

	score, err := requireScore("relevance_score", r.RelevanceScore)
	if err != nil {
		return ReplyEvaluation{}, err
	}
	counter, err := requireBool("is_counter_question", r.IsCounterQuestion)
	if err != nil {
		return ReplyEvaluation{}, err
	}
	return ReplyEvaluation{
		RelevanceScore:    score,
		IsCounterQuestion: counter,
		Explanation:       strings.TrimSpace(r.Explanation),
	}, nil
}

type rawTagDecision struct {
	SimilarTag  *string `json:"similar_tag"`
	ShouldMerge *bool   `json:"should_merge"`
}

// parseTagDecision resolves the suggested match against the vocabulary that
// was sent; a merge onto a tag outside the vocabulary is rejected.
func parseTagDecision(raw string, vocabulary []string) (TagDecision, error) {
	var r rawTagDecision
	if err := decodeObject(raw, &r); err != nil {
		return TagDecision{}, err
	}

	merge, err := requireBool("should_merge", r.ShouldMerge)
	if err != nil {
		return TagDecision{}, err
	}

	var similar *string
	if r.SimilarTag != nil && strings.TrimSpace(*r.SimilarTag) != "" {
		wanted := strings.ToLower(strings.TrimSpace(*r.SimilarTag))
		for _, existing := range vocabulary {
			if strings.ToLower(existing) == wanted {
				name := existing
				similar = &name
				break
			}
		}
	}

	if merge && similar == nil {
		return TagDecision{}, fmt.Errorf("%w: merge target not in vocabulary", ErrMalformedResponse)
	}
	return TagDecision{SimilarTag: similar, ShouldMerge: merge}, nil
}

type rawSentiment struct {
	Sentiment *string `json:"sentiment"`
	Reason    string  `json:"reason"`
}

func parseSentiment(raw string) (SentimentResult, error) {
	var r rawSentiment
	if err := decodeObject(raw, &r); err != nil {
		return SentimentResult{}, err
	}
	sentiment, err := requireSentiment(r.Sentiment)
	if err != nil {
		return SentimentResult{}, err
	}
	return SentimentResult{Sentiment: sentiment, Reason: strings.TrimSpace(r.Reason)}, nil
}

type rawSynthesis struct {
	CanAnswer        *bool    `json:"can_answer"`
	Answer           string   `json:"answer"`
	Confidence       *float64 `json:"confidence"`
	UsedEntryIndices []int    `json:"used_entry_indices"`
}

func parseSynthesis(raw string, candidates int) (Synthesis, error) {
	var r rawSynthesis
	if err := decodeObject(raw, &r); err != nil {
		return Synthesis{}, err
	}

	canAnswer, err := requireBool("can_answer", r.CanAnswer)
	if err != nil {
		return Synthesis{}, err
	}
	if !canAnswer {
		return Synthesis{CanAnswer: false}, nil
	}

	confidence, err := requireScore("confidence", r.Confidence)
	if err != nil {
		return Synthesis{}, err
	}
	answer := strings.TrimSpace(r.Answer)
	if answer == "" {
		return Synthesis{}, fmt.Errorf("%w: can_answer without answer", ErrMalformedResponse)
	}
	for _, idx := range r.UsedEntryIndices {
		if idx < 0 || idx >= candidates {
			return Synthesis{}, fmt.Errorf("%w: entry index %d out of range", ErrMalformedResponse, idx)
		}
	}

	return Synthesis{
		CanAnswer:        true,
		Answer:           answer,
		Confidence:       confidence,
		UsedEntryIndices: r.UsedEntryIndices,
	}, nil
}

package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/phrazzld/codescope-api/internal/task"
)

// errMalformedReply is returned when the model reply holds no usable analysis.
var errMalformedReply = errors.New("malformed model reply")

// parseReply extracts the analysis JSON from a model reply and normalizes it.
func parseReply(raw string, profile *Profile) (*task.Analysis, error) {
	doc, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, fmt.Errorf("%w: reply is not a JSON object", errMalformedReply)
	}

	scores := extractScores(fields)
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: reply contains no scores", errMalformedReply)
	}

	overall, ok := firstScore(fields, "overall", "overall_score")
	if !ok {
		overall = weightedMean(scores, profile.Weights)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformedReply, err)
	}

	return &task.Analysis{
		Profile:     profile.Name,
		Summary:     firstString(fields, "summary", "overall_analysis"),
		Scores:      scores,
		Overall:     round2(overall),
		Suggestions: extractSuggestions(fields["suggestions"]),
		Raw:         json.RawMessage(compact.Bytes()),
	}, nil
}

// extractJSON finds the JSON object in a reply. Code fences are stripped;
// otherwise the first balanced {...} block is used.
func extractJSON(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)
	if fenced, ok := stripFence(text); ok {
		text = fenced
	}
	if json.Valid([]byte(text)) && strings.HasPrefix(text, "{") {
		return []byte(text), nil
	}

	block, ok := firstObject(text)
	if !ok || !json.Valid([]byte(block)) {
		return nil, fmt.Errorf("%w: no JSON object found", errMalformedReply)
	}
	return []byte(block), nil
}

func stripFence(text string) (string, bool) {
	start := strings.Index(text, "```")
	if start < 0 {
		return "", false
	}
	body := text[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		// Drop the info string, e.g. "json"
		body = body[nl+1:]
	}
	end := strings.Index(body, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}

// firstObject returns the first brace-balanced object in text, skipping
// braces inside JSON strings.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// extractScores reads category scores from a "scores" object, or from
// top-level category keys when the reply has none.
func extractScores(fields map[string]json.RawMessage) map[string]float64 {
	source := fields
	if raw, ok := fields["scores"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			source = nested
		}
	}

	scores := make(map[string]float64)
	for _, category := range knownCategories {
		if score, ok := firstScore(source, category); ok {
			scores[category] = score
		}
	}
	return scores
}

func firstScore(fields map[string]json.RawMessage, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			continue
		}
		if score, ok := scoreValue(v); ok {
			return score, true
		}
	}
	return 0, false
}

// scoreValue accepts a number, a numeric string or an object with a score.
func scoreValue(v any) (float64, bool) {
	var score float64
	switch v := v.(type) {
	case float64:
		score = v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "%"), 64)
		if err != nil {
			return 0, false
		}
		score = f
	case map[string]any:
		return scoreValue(v["score"])
	default:
		return 0, false
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0, false
	}
	return math.Max(0, math.Min(100, score)), true
}

func firstString(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		var s string
		if raw, ok := fields[key]; ok && json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// extractSuggestions accepts plain strings or objects with a text field.
func extractSuggestions(raw json.RawMessage) []string {
	if raw == nil {
		return nil
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	var out []string
	for _, item := range items {
		switch v := item.(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				out = append(out, s)
			}
		case map[string]any:
			for _, key := range []string{"suggestion", "description", "text"} {
				if s, ok := v[key].(string); ok && strings.TrimSpace(s) != "" {
					out = append(out, strings.TrimSpace(s))
					break
				}
			}
		}
	}
	return out
}

// weightedMean averages scores. Without weights every category counts equally.
func weightedMean(scores map[string]float64, weights map[string]float64) float64 {
	var sum, total float64
	for category, score := range scores {
		w := 1.0
		if len(weights) > 0 {
			w = weights[category]
		}
		sum += score * w
		total += w
	}
	if total == 0 {
		// All present categories carry zero weight
		for _, score := range scores {
			sum += score
		}
		return sum / float64(len(scores))
	}
	return sum / total
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

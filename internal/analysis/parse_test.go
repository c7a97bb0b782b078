package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProfile(weights map[string]float64) *Profile {
	return &Profile{Name: "default", Categories: knownCategories, Weights: weights}
}

func TestParseReplyFormats(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		reply       string
		wantScores  map[string]float64
		wantOverall float64
		wantSummary string
	}{
		{
			name:        "nested score objects",
			reply:       `{"summary":"solid","scores":{"readability":{"score":80,"reasoning":"clear"},"testing":{"score":60}},"overall":75}`,
			wantScores:  map[string]float64{"readability": 80, "testing": 60},
			wantOverall: 75,
			wantSummary: "solid",
		},
		{
			name:        "top level categories",
			reply:       `{"overall_analysis":"ok","readability":{"score":90},"standards":70}`,
			wantScores:  map[string]float64{"readability": 90, "standards": 70},
			wantOverall: 80,
			wantSummary: "ok",
		},
		{
			name:        "json fence",
			reply:       "Here you go:\n```json\n{\"scores\":{\"security\":\"55%\"},\"summary\":\"meh\"}\n```\nThanks",
			wantScores:  map[string]float64{"security": 55},
			wantOverall: 55,
			wantSummary: "meh",
		},
		{
			name:        "embedded object with braces in strings",
			reply:       `Result: {"summary":"uses {templates}","scores":{"complexity":40}} trailing {junk`,
			wantScores:  map[string]float64{"complexity": 40},
			wantOverall: 40,
			wantSummary: "uses {templates}",
		},
		{
			name:        "scores clamped",
			reply:       `{"scores":{"readability":140,"testing":-5}}`,
			wantScores:  map[string]float64{"readability": 100, "testing": 0},
			wantOverall: 50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			result, err := parseReply(tt.reply, testProfile(nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantScores, result.Scores)
			assert.InDelta(t, tt.wantOverall, result.Overall, 0.001)
			assert.Equal(t, tt.wantSummary, result.Summary)
			assert.Equal(t, "default", result.Profile)
			assert.NotEmpty(t, result.Raw)
		})
	}
}

func TestParseReplyWeightedOverall(t *testing.T) {
	t.Parallel()

	weights := map[string]float64{"readability": 0.30, "standards": 0.25, "complexity": 0.25, "testing": 0.20}
	reply := `{"scores":{"readability":100,"standards":80,"complexity":60,"testing":40}}`

	result, err := parseReply(reply, testProfile(weights))
	require.NoError(t, err)
	// 30 + 20 + 15 + 8
	assert.InDelta(t, 73, result.Overall, 0.001)
}

func TestParseReplySuggestions(t *testing.T) {
	t.Parallel()

	reply := `{"scores":{"testing":50},"suggestions":["add tests"," ",{"suggestion":"use CI"},{"other":1},7]}`

	result, err := parseReply(reply, testProfile(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"add tests", "use CI"}, result.Suggestions)
}

func TestParseReplyMalformed(t *testing.T) {
	t.Parallel()

	for name, reply := range map[string]string{
		"empty":        "",
		"prose":        "I cannot analyze this repository.",
		"no scores":    `{"summary":"nothing scored"}`,
		"unclosed":     `{"scores":{"testing":50}`,
		"bad fence":    "```json\n{not json}\n```",
		"unknown keys": `{"scores":{"vibes":99}}`,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := parseReply(reply, testProfile(nil))
			assert.ErrorIs(t, err, errMalformedReply)
		})
	}
}

package classify

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podolsknews/dbmodel"
)

func labelsOf(scores []dbmodel.TopicScore) []string {
	out := make([]string, len(scores))
	for i, s := range scores {
		out[i] = s.Label
	}
	return out
}

func TestParseScorerReplyTopicsEnvelope(t *testing.T) {
	raw := `{"topics":[{"title":"Tech","score":0.7},{"title":"Science","score":0.3}]}`
	scores := parseScorerReply(raw, DefaultTaxonomy)

	require.Len(t, scores, 2)
	assert.Equal(t, []string{"Tech", "Science"}, labelsOf(scores))
	assert.InDelta(t, 0.7, scores[0].Score, 1e-9)
}

func TestParseScorerReplyLabelMapObject(t *testing.T) {
	raw := `{"Tech": 0.8, "Science": 0.2, "Nonsense": 0.5}`
	scores := parseScorerReply(raw, DefaultTaxonomy)

	require.Len(t, scores, 2, "unknown keys are dropped")
	for _, s := range scores {
		assert.Contains(t, []string{"Tech", "Science"}, s.Label)
	}
}

func TestParseScorerReplyLabelMapClampsValues(t *testing.T) {
	raw := `{"Tech": 1.8, "Science": -0.2}`
	scores := parseScorerReply(raw, DefaultTaxonomy)

	require.Len(t, scores, 2)
	for _, s := range scores {
		assert.GreaterOrEqual(t, s.Score, 0.0)
		assert.LessOrEqual(t, s.Score, 1.0)
	}
}

func TestParseScorerReplyLabelMapAllZeroFallsThrough(t *testing.T) {
	// A map with no positive known label fails the object rung; the ladder
	// then finds "Tech" as a substring of the raw reply itself.
	raw := `{"Tech": 0, "Science": 0}`
	scores := parseScorerReply(raw, DefaultTaxonomy)

	require.Len(t, scores, 1)
	assert.InDelta(t, 1.0, scores[0].Score, 1e-9)
}

func TestParseScorerReplyClipsToLargestObject(t *testing.T) {
	raw := "Sure! Here is the classification:\n" +
		`{"topics":[{"title":"Sports","score":1.0}]}` + "\nHope that helps."
	scores := parseScorerReply(raw, DefaultTaxonomy)

	require.Len(t, scores, 1)
	assert.Equal(t, "Sports", scores[0].Label)
}

// The raw reply "Tech." resolves case-insensitively to the label Tech
// with score 1.0.
func TestParseScorerReplyBareLabel(t *testing.T) {
	scores := parseScorerReply("Tech.", DefaultTaxonomy)

	require.Len(t, scores, 1)
	assert.Equal(t, "Tech", scores[0].Label)
	assert.InDelta(t, 1.0, scores[0].Score, 1e-9)
	assert.True(t, scores[0].IsPrimary)
}

func TestParseScorerReplyExactMatchBeatsSubstring(t *testing.T) {
	// "Warsaw Pact" contains "war", but the exact pass must claim it before
	// the substring pass can hand it to the shorter label.
	scores := parseScorerReply("Warsaw Pact.", []string{"War", "Warsaw Pact"})

	require.Len(t, scores, 1)
	assert.Equal(t, "Warsaw Pact", scores[0].Label)
}

func TestParseScorerReplyUnrecoverableReturnsNil(t *testing.T) {
	assert.Nil(t, parseScorerReply("no idea, sorry", DefaultTaxonomy))
	assert.Nil(t, parseScorerReply("", DefaultTaxonomy))
}

func TestParseScorerReplyRestoresMissingBrace(t *testing.T) {
	raw := `{"topics":[{"title":"Crime","score":0.9}]`
	scores := parseScorerReply(raw, DefaultTaxonomy)

	require.Len(t, scores, 1)
	assert.Equal(t, "Crime", scores[0].Label)
}

func TestUniformScoresSumToOne(t *testing.T) {
	scores := uniformScores(DefaultTaxonomy)
	require.Len(t, scores, len(DefaultTaxonomy))

	var sum float64
	for _, s := range scores {
		sum += s.Score
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestBuildPromptTruncatesText(t *testing.T) {
	long := strings.Repeat("а", promptTextLimit+500)
	prompt := buildPrompt(long, DefaultTaxonomy, "russian")

	assert.LessOrEqual(t, strings.Count(prompt, "а"), promptTextLimit)
	assert.Contains(t, prompt, "Language: russian")
}

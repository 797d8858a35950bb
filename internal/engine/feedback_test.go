package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedbackMessages(t *testing.T) {
	cases := []struct {
		feedback Feedback
		code     string
		message  string
	}{
		{FeedbackGood, "GOOD", "Good audio"},
		{FeedbackAudioTooShort, "AUDIO_TOO_SHORT", "Insufficient audio length"},
		{FeedbackUnknownSpeaker, "UNKNOWN_SPEAKER", "Different speaker in audio"},
		{FeedbackNoVoiceFound, "NO_VOICE_FOUND", "No voice found in audio"},
		{FeedbackQualityIssue, "QUALITY_ISSUE", "Low audio quality due to bad microphone or environment"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			assert.Equal(t, tc.message, tc.feedback.Message())
			assert.Equal(t, tc.code, tc.feedback.String())

			parsed, err := ParseFeedback(tc.code)
			require.NoError(t, err)
			assert.Equal(t, tc.feedback, parsed)
		})
	}
}

func TestFeedbackUnknownPanics(t *testing.T) {
	assert.Panics(t, func() { _ = Feedback(42).Message() })
	assert.Equal(t, "Feedback(42)", Feedback(42).String())
}

func TestParseFeedbackRejectsUnknown(t *testing.T) {
	_, err := ParseFeedback("MAYBE")
	assert.Error(t, err)

	// the upstream SDK names the good case NONE
	parsed, err := ParseFeedback("NONE")
	require.NoError(t, err)
	assert.Equal(t, FeedbackGood, parsed)
}

func TestProgressComplete(t *testing.T) {
	assert.False(t, Progress{Percentage: 99}.Complete())
	assert.True(t, Progress{Percentage: 100}.Complete())
}

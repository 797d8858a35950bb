package engine

import "fmt"

// Feedback is the engine's assessment of the last enrollment submission.
type Feedback int

const (
	FeedbackGood Feedback = iota
	FeedbackAudioTooShort
	FeedbackUnknownSpeaker
	FeedbackNoVoiceFound
	FeedbackQualityIssue
)

// Message returns the human-readable description of f. Values outside the
// enumeration are programming errors and panic.
func (f Feedback) Message() string {
	switch f {
	case FeedbackGood:
		return "Good audio"
	case FeedbackAudioTooShort:
		return "Insufficient audio length"
	case FeedbackUnknownSpeaker:
		return "Different speaker in audio"
	case FeedbackNoVoiceFound:
		return "No voice found in audio"
	case FeedbackQualityIssue:
		return "Low audio quality due to bad microphone or environment"
	}
	panic(fmt.Sprintf("engine: unknown enrollment feedback %d", int(f)))
}

func (f Feedback) String() string {
	switch f {
	case FeedbackGood:
		return "GOOD"
	case FeedbackAudioTooShort:
		return "AUDIO_TOO_SHORT"
	case FeedbackUnknownSpeaker:
		return "UNKNOWN_SPEAKER"
	case FeedbackNoVoiceFound:
		return "NO_VOICE_FOUND"
	case FeedbackQualityIssue:
		return "QUALITY_ISSUE"
	}
	return fmt.Sprintf("Feedback(%d)", int(f))
}

// ParseFeedback maps a wire code back to a Feedback.
func ParseFeedback(code string) (Feedback, error) {
	switch code {
	case "GOOD", "NONE":
		return FeedbackGood, nil
	case "AUDIO_TOO_SHORT":
		return FeedbackAudioTooShort, nil
	case "UNKNOWN_SPEAKER":
		return FeedbackUnknownSpeaker, nil
	case "NO_VOICE_FOUND":
		return FeedbackNoVoiceFound, nil
	case "QUALITY_ISSUE":
		return FeedbackQualityIssue, nil
	}
	return 0, fmt.Errorf("unknown enrollment feedback %q", code)
}

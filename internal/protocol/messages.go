package protocol

// EnrollRequest asks the service to build a profile from a sample. A
// caller that wants progress picks RunID and subscribes to
// EnrollProgressSubject(RunID) before sending.
type EnrollRequest struct {
	RunID   string `json:"run_id,omitempty"`
	Sample  string `json:"sample"`
	Profile string `json:"profile"`
}

// EnrollProgress is published after every engine submission of a run.
type EnrollProgress struct {
	RunID      string `json:"run_id"`
	Profile    string `json:"profile"`
	Percentage int    `json:"percentage"`
	Feedback   string `json:"feedback"`
	Message    string `json:"message"`
}

// EnrollResponse is the reply to an EnrollRequest.
type EnrollResponse struct {
	RunID       string `json:"run_id"`
	Profile     string `json:"profile"`
	State       string `json:"state,omitempty"`
	Percentage  int    `json:"percentage"`
	Feedback    string `json:"feedback,omitempty"`
	Message     string `json:"message,omitempty"`
	Complete    bool   `json:"complete"`
	Submissions int    `json:"submissions"`
	Error       string `json:"error,omitempty"`
}

// ProfileScore pairs a stored profile with its mean similarity.
type ProfileScore struct {
	Profile string  `json:"profile"`
	Score   float64 `json:"score"`
}

// IdentifyRequest asks the service to score a sample against every profile.
type IdentifyRequest struct {
	Sample string `json:"sample"`
}

// IdentifyResponse is the reply to an IdentifyRequest.
type IdentifyResponse struct {
	RunID  string         `json:"run_id"`
	Scores []ProfileScore `json:"scores"`
	Frames int            `json:"frames"`
	Error  string         `json:"error,omitempty"`
}

// ProfilesRequest lists the stored profile names.
type ProfilesRequest struct{}

type ProfilesResponse struct {
	Profiles []string `json:"profiles"`
	Error    string   `json:"error,omitempty"`
}

// SampleUpload carries captured audio to be stored as a named sample.
// PCM is little-endian signed 16-bit mono.
type SampleUpload struct {
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate"`
	PCM        []byte `json:"pcm"`
}

type SampleUploadResponse struct {
	Sample  string `json:"sample"`
	Samples int    `json:"samples"`
	Error   string `json:"error,omitempty"`
}

const (
	SubjectSamples              = "voiceid.samples.put"
	SubjectEnroll               = "voiceid.enroll"
	SubjectIdentify             = "voiceid.identify"
	SubjectProfiles             = "voiceid.profiles"
	SubjectEnrollProgressPrefix = "voiceid.enroll.progress"
)

// EnrollProgressSubject is the subject progress for runID is published on.
func EnrollProgressSubject(runID string) string {
	return SubjectEnrollProgressPrefix + "." + runID
}

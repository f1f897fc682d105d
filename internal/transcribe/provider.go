package transcribe

import "context"

// Transcriber is the provider surface the analysis pipeline drives.
// Client implements it against an AssemblyAI-compatible REST API.
type Transcriber interface {
	Upload(ctx context.Context, audio []byte) (string, error)
	Submit(ctx context.Context, uploadURL string) (*Job, error)
	Status(ctx context.Context, jobID string) (*Result, error)
}

// JobStatus is the lifecycle state reported by the provider.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusError      JobStatus = "error"
)

// Terminal reports whether polling should stop at this status.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Job is a submitted transcription job.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

// Sentiment labels attached to transcript segments.
const (
	SentimentPositive = "POSITIVE"
	SentimentNeutral  = "NEUTRAL"
	SentimentNegative = "NEGATIVE"
)

// EntityFiller is the entity type the provider assigns to disfluencies ("um", "uh").
const EntityFiller = "filler"

// Result is the job-status payload. Only Status and ID are meaningful until
// the job reaches StatusCompleted.
type Result struct {
	ID            string             `json:"id"`
	Status        JobStatus          `json:"status"`
	Error         string             `json:"error,omitempty"`
	Text          string             `json:"text"`
	Entities      []Entity           `json:"entities"`
	Sentiments    []SentimentSegment `json:"sentiment_analysis_results"`
	Words         []Word             `json:"words"`
	AudioDuration float64            `json:"audio_duration"` // seconds
}

// Entity is a detected span of a given type.
type Entity struct {
	Type  string `json:"entity_type"`
	Text  string `json:"text"`
	Start int64  `json:"start"` // ms
	End   int64  `json:"end"`   // ms
}

// SentimentSegment is a provider-assigned sentiment label for a contiguous
// portion of the transcript.
type SentimentSegment struct {
	Text       string  `json:"text"`
	Sentiment  string  `json:"sentiment"`
	Confidence float64 `json:"confidence"`
	Start      int64   `json:"start"` // ms
	End        int64   `json:"end"`   // ms
}

// Word is a recognized word with timestamps.
type Word struct {
	Text       string  `json:"text"`
	Start      int64   `json:"start"` // ms
	End        int64   `json:"end"`   // ms
	Confidence float64 `json:"confidence"`
}

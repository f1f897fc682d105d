package transcribe

import "errors"

// Failure classes. Errors returned by Client and Poller wrap exactly one of
// these; use errors.Is to classify.
var (
	ErrUpload              = errors.New("audio upload failed")
	ErrSubmission          = errors.New("transcript submission failed")
	ErrPoll                = errors.New("transcript status request failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrPollTimeout         = errors.New("transcription polling timed out")
)

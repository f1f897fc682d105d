package analyzer

import "fmt"

// Stage is a step of the pipeline. Responding and temp-file cleanup belong
// to the HTTP handler and are not stages here.
type Stage string

const (
	StageUploading  Stage = "uploading"
	StageSubmitting Stage = "submitting"
	StagePolling    Stage = "polling"
	StageScoring    Stage = "scoring"
)

// StageError records the stage an analysis failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

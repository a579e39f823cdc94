package domain

import "errors"

var (
	// ErrStateCorrupt signals an unreadable or unparseable state document.
	// It is fatal to a run: the pipeline must not guess a safe default.
	ErrStateCorrupt = errors.New("state document corrupt")
	// ErrSubmissionFailed signals a billing API submission failure.
	ErrSubmissionFailed = errors.New("submission failed")
)

// SubmissionError carries the application-level failure detail returned by the
// billing API for one contract's request.
type SubmissionError struct {
	Code    string
	Message string
	Errors  []string
}

func (e *SubmissionError) Error() string {
	return ErrSubmissionFailed.Error() + ": " + e.Code + ": " + e.Message
}

func (e *SubmissionError) Unwrap() error { return ErrSubmissionFailed }

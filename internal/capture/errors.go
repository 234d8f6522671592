package capture

import (
	"errors"
	"fmt"
)

// ErrCapture matches every capture failure via errors.Is.
var ErrCapture = errors.New("capture failed")

// Stage names the step of a capture attempt that failed.
type Stage string

// Capture stages.
const (
	StageLaunch     Stage = "launch"
	StageNavigate   Stage = "navigate"
	StageSettle     Stage = "settle"
	StageScreenshot Stage = "screenshot"
	StageConvert    Stage = "convert"
	StageCommit     Stage = "commit"
)

// Error wraps the cause of a failed capture with the stage it failed in.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("capture %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports ErrCapture so callers need not know the concrete type.
func (e *Error) Is(target error) bool {
	return target == ErrCapture
}

func stageError(stage Stage, err error) error {
	var ce *Error
	if errors.As(err, &ce) {
		return err
	}
	return &Error{Stage: stage, Err: err}
}

// StageOf returns the failing stage of err, or "" when err is not a capture error.
func StageOf(err error) Stage {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Stage
	}
	return ""
}

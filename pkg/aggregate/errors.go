package aggregate

import "errors"

var (
	ErrDuplicateFold  = errors.New("task result already folded")
	ErrUnexpectedTask = errors.New("task was not expected")
	ErrIncomplete     = errors.New("not every expected task was folded")
	ErrShapeMismatch  = errors.New("partial result shape does not match the calculation")
	ErrFrozen         = errors.New("aggregate is frozen")
	ErrKindMismatch   = errors.New("partial result kind does not match the calculation")
)

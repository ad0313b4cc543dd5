package realization

import (
	"errors"
	"fmt"
)

// ErrAssociation matches every AssociationError through errors.Is
var ErrAssociation = errors.New("realization association failed")

// AssociationError reports a TRT group or source-model path that cannot be
// associated with any ground-motion model
type AssociationError struct {
	GroupID int // -1 when the error is not about a group
	TRT     string
	Path    string
	Reason  string
}

func (e *AssociationError) Error() string {
	if e.GroupID >= 0 {
		return fmt.Sprintf("%v: group %d (%s) on path %s: %s", ErrAssociation, e.GroupID, e.TRT, e.Path, e.Reason)
	}
	return fmt.Sprintf("%v: path %s: %s", ErrAssociation, e.Path, e.Reason)
}

// Is reports whether target is ErrAssociation.
func (e *AssociationError) Is(target error) bool {
	return target == ErrAssociation
}

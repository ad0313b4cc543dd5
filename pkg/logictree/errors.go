package logictree

import (
	"errors"
	"fmt"
)

// ErrMalformedTree matches every MalformedTreeError through errors.Is
var ErrMalformedTree = errors.New("malformed logic tree")

// MalformedTreeError reports a structural defect of a logic tree definition.
// Node is the id of the offending branch set or branch.
type MalformedTreeError struct {
	Node   string
	Reason string
}

func (e *MalformedTreeError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%v: %s", ErrMalformedTree, e.Reason)
	}
	return fmt.Sprintf("%v at %s: %s", ErrMalformedTree, e.Node, e.Reason)
}

// Is reports whether target is ErrMalformedTree.
func (e *MalformedTreeError) Is(target error) bool {
	return target == ErrMalformedTree
}

func malformed(node, format string, args ...any) *MalformedTreeError {
	return &MalformedTreeError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

package vectorstore

import (
	"errors"
	"fmt"
)

var ErrEmptyDelete = errors.New("delete needs ids or a where filter")

type MismatchError struct {
	What        string
	Left, Right int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("length mismatch between %s: %d != %d", e.What, e.Left, e.Right)
}

package history

import "errors"

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
	// ErrNoChange is returned by commands that would leave the ledger as it is.
	// Nothing is recorded.
	ErrNoChange = errors.New("command changes nothing")
)

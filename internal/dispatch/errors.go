package dispatch

import "errors"

// Pipeline errors.
var (
	ErrTemplateNotFound = errors.New("no template registered for kind")
	ErrEmptyRecipient   = errors.New("recipient address is empty")
	ErrItemNotFound     = errors.New("queue item not found")

	// ErrNotClaimed is returned by state-transition writes when the item is
	// no longer in the expected state, i.e. another processor run won the
	// claim. The caller skips the item.
	ErrNotClaimed = errors.New("queue item not claimed by this run")
)

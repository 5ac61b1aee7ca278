package messaging

import "errors"

// Thread subsystem errors.
var (
	ErrThreadNotFound     = errors.New("thread not found")
	ErrNotParticipant     = errors.New("user is not a thread participant")
	ErrSelfThread         = errors.New("cannot open a thread with yourself")
	ErrEmptyContent       = errors.New("message content is empty")
	ErrThreadArchived     = errors.New("thread is archived")
	ErrTooManyAttachments = errors.New("too many attachments")
)

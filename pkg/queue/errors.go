package queue

import "errors"

var (
	// ErrNoOpenSegment is returned by Commit when no record has been
	// consumed from an open segment.
	ErrNoOpenSegment = errors.New("no segment is open")

	// ErrSegmentOpen is returned when an offset adjustment is attempted
	// while a segment is still open and force was not requested.
	ErrSegmentOpen = errors.New("a segment is currently open")

	// ErrQueueClosed is returned by accessors on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")
)

package disk

import "errors"

var (
	ErrOutOfRange  = errors.New("offset outside segment range")
	ErrMisaligned  = errors.New("offset not aligned to a record boundary")
	ErrPayloadSize = errors.New("payload length does not match configured size")
	ErrReadOnly    = errors.New("segment is mapped read-only")
)

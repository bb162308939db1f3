package chunk

import "errors"

var (
	ErrStoreClosed    = errors.New("chunk store is closed")
	ErrSourceMissing  = errors.New("chunk data is missing")
	ErrChunkFileWrite = errors.New("failed to write chunk data")
	ErrChunkFileOpen  = errors.New("failed to open chunk file")
)

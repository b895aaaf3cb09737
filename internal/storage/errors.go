package storage

import "errors"

var (
	ErrUnreachable        = errors.New("vector store unreachable")
	ErrVectorSizeMismatch = errors.New("collection vector size mismatch")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrUpsert             = errors.New("upsert failed")
)

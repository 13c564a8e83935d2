package relayer

import "errors"

var (
	ErrInvalidRequest   = errors.New("relayer: invalid request")
	ErrUnsupportedChain = errors.New("relayer: unsupported chain")
	ErrNotFound         = errors.New("relayer: record not found")
)

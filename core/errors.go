package core

import "errors"

var (
	// ErrEmptyBuffer is returned when sampling a replay buffer that has
	// never stored an episode.
	ErrEmptyBuffer = errors.New("replay buffer is empty")
	// ErrShapeMismatch is returned when episode arrays have inconsistent
	// sequence lengths. Nothing is stored when it is returned.
	ErrShapeMismatch = errors.New("episode shape mismatch")
	// ErrTopologyMismatch is returned when a collective operation sees
	// different tensor shapes on different workers.
	ErrTopologyMismatch = errors.New("tensor topology mismatch across workers")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

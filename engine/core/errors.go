package core

import (
	"errors"
)

var (
	ErrCorruptSkeleton    = errors.New("corrupt skeleton")
	ErrJointCountMismatch = errors.New("pose joint count does not match skeleton")
	ErrEmptySkeleton      = errors.New("skeleton has no joints")
	ErrHostResolution     = errors.New("unable to resolve host")
	ErrNotConnected       = errors.New("capture session not connected")
	ErrSessionClosed      = errors.New("capture session closed")
	ErrQueueFull          = errors.New("queue is full")
	ErrQueueEmpty         = errors.New("queue is empty")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrRecorderClosed     = errors.New("recorder closed")
)

package app

import "errors"

var (
	// ErrNotFound indicates the referenced resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrInvalidState indicates an operation not allowed in the resource's
	// current lifecycle status.
	ErrInvalidState = errors.New("invalid resource state")
	// ErrValidation indicates a request rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrNoVersions indicates a resource without any content versions.
	ErrNoVersions = errors.New("resource has no versions")
)

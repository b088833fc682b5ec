package geo

import "errors"

var (
	// ErrInvalidInput marks malformed coordinates passed where a valid point was required.
	// Such coordinates are never silently coerced to (0,0).
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyInput marks a bounding box, centroid or ordering requested over zero elements.
	ErrEmptyInput = errors.New("empty input")
)

package registry

import "errors"

// Registry errors: plain sentinel errors, wrapped with %w at call sites.
var (
	// ErrToolNotFound is returned when a lookup or execution names an
	// unregistered tool.
	ErrToolNotFound = errors.New("tool not found")

	// ErrToolAlreadyRegistered is returned when two experts (or the same
	// expert twice) declare the same tool name - duplicate registration
	// is a fatal startup error.
	ErrToolAlreadyRegistered = errors.New("tool already registered")

	// ErrMissingRequiredArg is returned when an invocation omits an
	// argument its tool's input schema declares required.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidSchema is returned at registration time when a tool's
	// input schema fails expert.InputSchema.Validate: object type,
	// properties present, required list a subset of property names.
	ErrInvalidSchema = errors.New("invalid input schema")
)

package types

import "fmt"

// Kind tags the class of a client-visible error (spec §7). Kinds are stable
// across releases and are serialized verbatim to clients.
type ErrorKind string

const (
	ErrNotFound            ErrorKind = "NotFound"
	ErrDuplicateKey        ErrorKind = "DuplicateKey"
	ErrRevisionConflict    ErrorKind = "RevisionConflict"
	ErrSchemaViolation     ErrorKind = "SchemaViolation"
	ErrSerializationConflict ErrorKind = "SerializationConflict"
	ErrTypeError           ErrorKind = "TypeError"
	ErrParseError          ErrorKind = "ParseError"
	ErrTimeout             ErrorKind = "Timeout"
	ErrUnavailable         ErrorKind = "Unavailable"
	ErrForbidden           ErrorKind = "Forbidden"
	ErrUnauthenticated     ErrorKind = "Unauthenticated"
	ErrInvalidArgument     ErrorKind = "InvalidArgument"
	ErrInternal            ErrorKind = "Internal"
)

// Error is the tagged error type returned across package boundaries,
// never a nested/wrapped exception hierarchy: callers switch on Kind.
type Error struct {
	Kind    ErrorKind
	Message string
	// Origin is the node id that produced the error, set for inter-node
	// errors only (spec §7: "inter-node errors additionally carry origin
	// node id").
	Origin string
}

func (e *Error) Error() string {
	if e.Origin != "" {
		return fmt.Sprintf("%s (origin=%s): %s", e.Kind, e.Origin, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithOrigin tags the error with the node that raised it.
func (e *Error) WithOrigin(nodeID string) *Error {
	out := *e
	out.Origin = nodeID
	return &out
}

// KindOf extracts the Kind of err, defaulting to ErrInternal for untagged
// errors so callers can always switch on a stable value.
func KindOf(err error) ErrorKind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return ErrInternal
}

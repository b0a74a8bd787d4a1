package remote

import "errors"

var (
	// ErrUnavailable means a registry or broker could not be reached or
	// returned no object. Callers retry later; nothing retries internally.
	ErrUnavailable = errors.New("remote: service unavailable")

	// ErrTransaction means a transaction was rejected at the transport
	// level, usually because its payload was malformed.
	ErrTransaction = errors.New("remote: transaction rejected")

	// ErrDeadObject means the process behind a handle is gone.
	ErrDeadObject = errors.New("remote: dead object")

	// ErrInvalidArgument is returned synchronously for precondition
	// violations such as registering a nil callback.
	ErrInvalidArgument = errors.New("remote: invalid argument")

	// ErrUnknownCode means a stub does not implement the transaction code.
	ErrUnknownCode = errors.New("remote: unknown transaction code")

	// ErrMissingField means a parcel lacks a required key.
	ErrMissingField = errors.New("remote: missing parcel field")

	// ErrFieldType means a parcel key holds a value of the wrong kind.
	ErrFieldType = errors.New("remote: parcel field has wrong type")

	// ErrNotTransferable means a handle cannot be written to the wire.
	ErrNotTransferable = errors.New("remote: handle is not transferable")
)

// IsMalformed reports whether err describes a payload that failed
// validation.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMissingField) ||
		errors.Is(err, ErrFieldType) ||
		errors.Is(err, ErrTransaction)
}

package observations

import "errors"

var (
	// ErrNotFound covers unknown ids and records hidden from the caller.
	ErrNotFound = errors.New("observation not found")
	// ErrForbidden is returned when the caller lacks the privileged role.
	ErrForbidden = errors.New("operation requires a privileged caller")
)

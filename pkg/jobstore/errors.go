package jobstore

import "errors"

var (
	// ErrNotFound indicates the requested job or series does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyRegistered indicates a save tried to replace a job's
	// registered catalog URL with a different value.
	ErrAlreadyRegistered = errors.New("job already registered")
)

// IsNotFound returns true if err indicates a missing job or series.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyRegistered returns true if err indicates a registration conflict.
func IsAlreadyRegistered(err error) bool {
	return errors.Is(err, ErrAlreadyRegistered)
}

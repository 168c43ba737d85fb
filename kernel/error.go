package kernel

// Error describes an error condition detected by one of the kernel memory
// subsystems. Errors are declared as global variables that are pointers to
// the Error structure so that callers can match them by identity and so that
// raising an error never allocates on the failure path.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

package errors

// TransitionDetails describes why a state change was refused.
type TransitionDetails struct {
	EntityType string   `json:"entityType"`
	EntityID   string   `json:"entityId"`
	Current    string   `json:"current"`
	Expected   []string `json:"expected,omitempty"`
}

// StateConflict builds a CodeStateConflict error carrying the current and
// accepted states of the entity.
func StateConflict(entityType, entityID, current, message string, expected ...string) *Error {
	return New(CodeStateConflict, message).WithDetails(TransitionDetails{
		EntityType: entityType,
		EntityID:   entityID,
		Current:    current,
		Expected:   expected,
	})
}

// InvariantDetails names a broken money invariant and the amounts compared.
type InvariantDetails struct {
	Invariant string `json:"invariant"`
	Expected  int64  `json:"expected"`
	Actual    int64  `json:"actual"`
}

// Invariant builds a CodeInvariant error for a sum that failed to balance.
func Invariant(name string, expected, actual int64, message string) *Error {
	return New(CodeInvariant, message).WithDetails(InvariantDetails{
		Invariant: name,
		Expected:  expected,
		Actual:    actual,
	})
}

// IsCode reports whether err carries the given typed code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

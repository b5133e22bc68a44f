package reconcile

import "fmt"

// CoercionError is a record whose key or columns could not be derived.
type CoercionError struct {
	Table string
	Line  int
	Field string
	Err   error
}

func (e *CoercionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s line %d: field %s: %v", e.Table, e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("%s line %d: %v", e.Table, e.Line, e.Err)
}

func (e *CoercionError) Unwrap() error { return e.Err }

// PersistError is a store operation that failed for one record.
type PersistError struct {
	Table string
	Op    string // exists, insert, update
	Key   Key
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("%s %s [%s]: %v", e.Table, e.Op, e.Key, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// EngineFailure aborts a whole table pass.
type EngineFailure struct {
	Table string
	Op    string // acquire, cancelled
	Err   error
}

func (e *EngineFailure) Error() string {
	return fmt.Sprintf("reconcile %s: %s: %v", e.Table, e.Op, e.Err)
}

func (e *EngineFailure) Unwrap() error { return e.Err }

// FieldError marks which source field failed coercion.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }

func (e *FieldError) Unwrap() error { return e.Err }

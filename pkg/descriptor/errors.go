package descriptor

import "fmt"

// MalformedSignatureError reports descriptor text that is not syntactically valid.
type MalformedSignatureError struct {
	Input  string
	Offset int
	Reason string
}

func (e *MalformedSignatureError) Error() string {
	return fmt.Sprintf("malformed descriptor %q at offset %d: %s", e.Input, e.Offset, e.Reason)
}

// TypeResolutionError reports a class name embedded in a descriptor that could
// not be loaded.
type TypeResolutionError struct {
	Name string
	Err  error
}

func (e *TypeResolutionError) Error() string {
	return fmt.Sprintf("resolving type %s: %v", e.Name, e.Err)
}

func (e *TypeResolutionError) Unwrap() error { return e.Err }

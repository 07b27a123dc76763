package vm

import "fmt"

// JavaException represents a JVM exception being thrown.
type JavaException struct {
	Object *Object
}

func (e *JavaException) Error() string {
	if msg, ok := e.Object.Fields["message"]; ok && msg.Type == TypeRef {
		return fmt.Sprintf("JavaException: %s: %v", e.Object.Class.JavaName(), msg.Ref)
	}
	return fmt.Sprintf("JavaException: %s", e.Object.Class.JavaName())
}

// NewJavaException creates an exception instance of class c.
func NewJavaException(c *Class, message string) *JavaException {
	obj := NewObject(c)
	if message != "" {
		obj.Fields["message"] = RefValue(message)
	}
	return &JavaException{Object: obj}
}

// ClassNotFoundError reports a class that no source could supply or link.
type ClassNotFoundError struct {
	Name string
	Err  error
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class %s not found: %v", e.Name, e.Err)
}

func (e *ClassNotFoundError) Unwrap() error { return e.Err }

// NoSuchMethodError reports a failed member lookup.
type NoSuchMethodError struct {
	Class      string
	Name       string
	Descriptor string
	Reason     string
}

func (e *NoSuchMethodError) Error() string {
	msg := fmt.Sprintf("no such method: %s.%s%s", e.Class, e.Name, e.Descriptor)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// IllegalAccessError reports a member the lookup is not allowed to access.
type IllegalAccessError struct {
	Lookup string
	Member string
	Reason string
}

func (e *IllegalAccessError) Error() string {
	return fmt.Sprintf("illegal access to %s from %s: %s", e.Member, e.Lookup, e.Reason)
}

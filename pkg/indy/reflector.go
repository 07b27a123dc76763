package indy

import (
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// Reflector is the reflective surface resolution depends on. It loads
// classes through the caller's class loader and finds members with the
// access rights of a lookup. caller is the class the call site lives in; it
// anchors special (invokespecial) lookups.
type Reflector interface {
	vm.ClassResolver
	FindMember(lookup *vm.Lookup, refc *vm.Class, name string, typ *vm.MethodType, kind Kind, caller *vm.Class) (*vm.MethodHandle, error)
	PublicMethods(c *vm.Class) []*vm.Method
	Unreflect(lookup *vm.Lookup, m *vm.Method) (*vm.MethodHandle, error)
}

type runtimeReflector struct {
	vm.ClassResolver
}

// NewReflector returns a Reflector over the interpreter's lookup machinery.
// Classes are loaded through classes.
func NewReflector(classes vm.ClassResolver) Reflector {
	return runtimeReflector{classes}
}

func (runtimeReflector) FindMember(lookup *vm.Lookup, refc *vm.Class, name string, typ *vm.MethodType, kind Kind, caller *vm.Class) (*vm.MethodHandle, error) {
	switch kind {
	case KindStatic:
		return lookup.FindStatic(refc, name, typ)
	case KindVirtual, KindInterface:
		return lookup.FindVirtual(refc, name, typ)
	case KindSpecial:
		return lookup.FindSpecial(refc, name, typ, caller)
	}
	return nil, &UnsupportedHandleKindError{Handle: Handle{Owner: refc.Name, Name: name, Descriptor: typ.Descriptor()}}
}

func (runtimeReflector) PublicMethods(c *vm.Class) []*vm.Method {
	return c.PublicMethods()
}

func (runtimeReflector) Unreflect(lookup *vm.Lookup, m *vm.Method) (*vm.MethodHandle, error) {
	return lookup.Unreflect(m)
}

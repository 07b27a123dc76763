// Package native defines the bootstrap classes the interpreter needs in Go:
// java.lang.Object, the Throwable hierarchy, String, Integer, Long,
// StringBuilder, System, PrintStream, HashMap, the common functional
// interfaces and the java.lang.invoke types named by bootstrap descriptors.
package native

import (
	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

const (
	public         = classfile.AccPublic
	publicStatic   = classfile.AccPublic | classfile.AccStatic
	publicAbstract = classfile.AccPublic | classfile.AccAbstract
	publicFinal    = classfile.AccPublic | classfile.AccFinal
	publicIface    = classfile.AccPublic | classfile.AccInterface | classfile.AccAbstract
)

// Register defines every built-in class in l. Classes already defined under
// the same names are replaced.
func Register(l *vm.Loader) {
	object := registerObject(l)
	registerThrowables(l, object)
	registerString(l, object)
	registerBoxes(l, object)
	registerStringBuilder(l, object)
	registerSystem(l, object)
	registerHashMap(l, object)
	registerFunctions(l)
	registerInvoke(l, object)
}

func define(l *vm.Loader, name string, flags uint16, super *vm.Class, ifaces ...*vm.Class) *vm.Class {
	return l.Define(vm.NewClass(name, flags, super, ifaces...))
}

func loaded(l *vm.Loader, name string) *vm.Class {
	c, ok := l.Loaded(name)
	if !ok {
		panic("native: " + name + " is not registered")
	}
	return c
}

func noop(*vm.VM, []vm.Value) (vm.Value, error) { return vm.Value{}, nil }

func boolValue(b bool) vm.Value {
	if b {
		return vm.IntValue(1)
	}
	return vm.IntValue(0)
}

func sameRef(a, b vm.Value) bool {
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull()
	}
	return a.Ref == b.Ref
}

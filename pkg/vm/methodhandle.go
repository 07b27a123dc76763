package vm

import (
	"fmt"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
)

// MethodHandle is a directly invokable reference to a method. Type is the
// invocation type: for instance kinds the receiver is parameter 0.
type MethodHandle struct {
	Kind   uint8
	Member *Method
	Type   *MethodType
	Caller *Class // invokespecial only
}

// Invoke calls the handle with one Value per parameter of h.Type.
func (h *MethodHandle) Invoke(vm *VM, args []Value) (Value, error) {
	if len(args) != len(h.Type.Params) {
		return Value{}, fmt.Errorf("%s: wrong argument count: got %d, want %d", h, len(args), len(h.Type.Params))
	}
	switch h.Kind {
	case classfile.RefInvokeStatic, classfile.RefInvokeSpecial:
		return vm.Invoke(h.Member, args)
	case classfile.RefInvokeVirtual, classfile.RefInvokeInterface:
		return vm.InvokeVirtual(h.Member, args)
	}
	return Value{}, fmt.Errorf("%s: unsupported reference kind %s", h, classfile.RefKindName(h.Kind))
}

// InvokeWithArguments converts Go arguments with ToValue, invokes the handle
// and converts the result back.
func (h *MethodHandle) InvokeWithArguments(vm *VM, args ...interface{}) (interface{}, error) {
	ret, err := h.Invoke(vm, ToValues(args))
	if err != nil {
		return nil, err
	}
	return ret.Interface(), nil
}

func (h *MethodHandle) String() string {
	return "MethodHandle" + h.Type.String()
}

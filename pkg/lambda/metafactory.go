// Package lambda links lambda and method reference call sites: given an
// implementation method handle it spins a class implementing the functional
// interface and returns a call site whose target creates instances of it.
package lambda

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/daimatz/gojvm-reload/pkg/classfile"
	"github.com/daimatz/gojvm-reload/pkg/descriptor"
	"github.com/daimatz/gojvm-reload/pkg/vm"
)

// ErrAltMetafactory is the cause of rejecting serializable and
// marker-interface lambdas, which go through LambdaMetafactory.altMetafactory.
var ErrAltMetafactory = errors.New("lambda: altMetafactory is not supported")

// ConversionError reports bootstrap arguments that cannot form a lambda.
type ConversionError struct {
	Reason string
}

func (e *ConversionError) Error() string {
	return "lambda conversion: " + e.Reason
}

// CallSite is a linked lambda call site. Invoking Target with the captured
// values returns a new instance of Class.
type CallSite struct {
	Target  *vm.MethodHandle
	Type    *vm.MethodType
	SamType *vm.MethodType
	Impl    *vm.MethodHandle
	Class   *vm.Class
}

// DynamicInvoker returns the handle that produces lambda instances.
func (cs *CallSite) DynamicInvoker() *vm.MethodHandle {
	return cs.Target
}

var classCounter atomic.Int64

// Metafactory links a call site the way LambdaMetafactory.metafactory does.
// invokedType maps captured values to the functional interface; samType is
// the erased signature of the interface method called name; impl receives
// the captured values followed by the interface method arguments.
func Metafactory(caller *vm.Lookup, name string, invokedType, samType *vm.MethodType, impl *vm.MethodHandle, instantiatedType *vm.MethodType) (*CallSite, error) {
	if caller.Mode()&vm.AccessPrivate == 0 {
		return nil, &ConversionError{Reason: "caller " + caller.String() + " does not have private access"}
	}
	iface := invokedType.Return
	if iface == nil || !iface.IsInterface() {
		return nil, &ConversionError{Reason: fmt.Sprintf("invoked type %s does not return an interface", invokedType)}
	}
	captured := len(invokedType.Params)
	if got, want := len(impl.Type.Params), captured+len(samType.Params); got != want {
		return nil, &ConversionError{Reason: fmt.Sprintf(
			"implementation %s takes %d arguments, want %d captured plus %d", impl, got, captured, len(samType.Params))}
	}
	if len(instantiatedType.Params) != len(samType.Params) {
		return nil, &ConversionError{Reason: fmt.Sprintf(
			"instantiated type %s does not match interface method type %s", instantiatedType, samType)}
	}

	host := caller.LookupClass()
	var object *vm.Class
	if l := host.Loader(); l != nil {
		object, _ = l.LoadClass("java/lang/Object")
	}
	c := vm.NewClass(
		fmt.Sprintf("%s$$Lambda$%d", host.Name, classCounter.Add(1)),
		classfile.AccPublic|classfile.AccFinal|classfile.AccSynthetic,
		object, iface,
	)

	c.DefineMethod(classfile.AccPublic, name, samType.Descriptor(), func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		state := args[0].Ref.(*vm.Object).Native.([]vm.Value)
		implArgs := make([]vm.Value, 0, len(impl.Type.Params))
		implArgs = append(implArgs, state...)
		for i, arg := range args[1:] {
			if err := checkcast(thread, arg, instantiatedType.Params[i]); err != nil {
				return vm.Value{}, err
			}
			v, err := convert(thread, arg, samType.Params[i], impl.Type.Params[captured+i])
			if err != nil {
				return vm.Value{}, err
			}
			implArgs = append(implArgs, v)
		}
		ret, err := impl.Invoke(thread, implArgs)
		if err != nil {
			return vm.Value{}, err
		}
		if samType.Return.Primitive == descriptor.Void {
			return vm.Value{}, nil
		}
		return convert(thread, ret, impl.Type.Return, samType.Return)
	})

	// A non-capturing lambda evaluates to the same instance every time.
	var singleton *vm.Object
	if captured == 0 {
		singleton = &vm.Object{Class: c, Fields: map[string]vm.Value{}, Native: []vm.Value{}}
	}
	factory := c.DefineMethod(classfile.AccPublic|classfile.AccStatic, "get$Lambda", invokedType.Descriptor(), func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		if singleton != nil {
			return vm.RefValue(singleton), nil
		}
		obj := vm.NewObject(c)
		obj.Native = append([]vm.Value(nil), args...)
		return vm.RefValue(obj), nil
	})

	return &CallSite{
		Target:  &vm.MethodHandle{Kind: classfile.RefInvokeStatic, Member: factory, Type: invokedType},
		Type:    invokedType,
		SamType: samType,
		Impl:    impl,
		Class:   c,
	}, nil
}

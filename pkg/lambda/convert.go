package lambda

import (
	"fmt"

	"github.com/daimatz/gojvm-reload/pkg/vm"
)

var boxes = map[byte]struct{ class, valueOf string }{
	'I': {"java/lang/Integer", "(I)Ljava/lang/Integer;"},
	'J': {"java/lang/Long", "(J)Ljava/lang/Long;"},
}

// convert adapts v from type from to type to, boxing and unboxing int and
// long where one side is primitive and the other a reference.
func convert(thread *vm.VM, v vm.Value, from, to *vm.Class) (vm.Value, error) {
	switch {
	case from.IsPrimitive() == to.IsPrimitive():
		return v, nil
	case from.IsPrimitive():
		return box(thread, v, byte(from.Primitive))
	default:
		return unbox(thread, v, byte(to.Primitive))
	}
}

// checkcast rejects a reference argument that is not an instance of the
// instantiated parameter type.
func checkcast(thread *vm.VM, v vm.Value, to *vm.Class) error {
	if to.IsPrimitive() || v.IsNull() || v.Type != vm.TypeRef || thread.IsInstance(v, to.Name) {
		return nil
	}
	return thread.Throw("java/lang/ClassCastException",
		fmt.Sprintf("%s cannot be cast to %s", thread.ClassOf(v).JavaName(), to.JavaName()))
}

func box(thread *vm.VM, v vm.Value, kind byte) (vm.Value, error) {
	b, ok := boxes[kind]
	if !ok {
		// boolean, char and the narrow ints travel as ints
		b = boxes['I']
	}
	c, err := thread.Loader.LoadClass(b.class)
	if err != nil {
		return vm.Value{}, err
	}
	m := c.DeclaredMethod("valueOf", b.valueOf)
	if m == nil {
		return vm.Value{}, fmt.Errorf("lambda: %s has no valueOf%s", b.class, b.valueOf)
	}
	return thread.Invoke(m, []vm.Value{v})
}

func unbox(thread *vm.VM, v vm.Value, kind byte) (vm.Value, error) {
	if v.IsNull() {
		return vm.Value{}, thread.Throw("java/lang/NullPointerException", "unboxing null")
	}
	obj, ok := v.Ref.(*vm.Object)
	if !ok {
		return vm.Value{}, thread.Throw("java/lang/ClassCastException", fmt.Sprintf("%T cannot be unboxed", v.Ref))
	}
	switch n := obj.Native.(type) {
	case int32:
		if kind == 'J' {
			return vm.LongValue(int64(n)), nil
		}
		return vm.IntValue(n), nil
	case int64:
		if kind == 'J' {
			return vm.LongValue(n), nil
		}
		return vm.IntValue(int32(n)), nil
	}
	return vm.Value{}, thread.Throw("java/lang/ClassCastException", obj.Class.JavaName()+" cannot be unboxed")
}

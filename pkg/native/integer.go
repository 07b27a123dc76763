package native

import (
	"strconv"

	"github.com/daimatz/gojvm-reload/pkg/vm"
)

const integerCacheLow, integerCacheHigh = -128, 127

func registerBoxes(l *vm.Loader, object *vm.Class) {
	number := define(l, "java/lang/Number", publicAbstract, object)
	number.DefineMethod(public, "<init>", "()V", noop)
	registerInteger(l, number)
	registerLong(l, number)
}

func registerInteger(l *vm.Loader, number *vm.Class) {
	integer := define(l, "java/lang/Integer", publicFinal, number)

	// valueOf returns shared instances for small values so == behaves as on
	// a real JVM.
	var cache [integerCacheHigh - integerCacheLow + 1]*vm.Object
	for i := range cache {
		cache[i] = &vm.Object{Class: integer, Fields: map[string]vm.Value{}, Native: int32(i + integerCacheLow)}
	}
	integer.DefineMethod(publicStatic, "valueOf", "(I)Ljava/lang/Integer;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		v := args[0].Int
		if v >= integerCacheLow && v <= integerCacheHigh {
			return vm.RefValue(cache[v-integerCacheLow]), nil
		}
		return vm.RefValue(&vm.Object{Class: integer, Fields: map[string]vm.Value{}, Native: v}), nil
	})
	integer.DefineMethod(publicStatic, "parseInt", "(Ljava/lang/String;)I", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		s, _ := args[0].Ref.(string)
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return vm.Value{}, thread.Throw("java/lang/NumberFormatException", "For input string: \""+s+"\"")
		}
		return vm.IntValue(int32(n)), nil
	})
	integer.DefineMethod(publicStatic, "sum", "(II)I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(args[0].Int + args[1].Int), nil
	})
	integer.DefineMethod(publicStatic, "toString", "(I)Ljava/lang/String;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(strconv.FormatInt(int64(args[0].Int), 10)), nil
	})
	integer.DefineMethod(public, "intValue", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(IntValue(args[0].Ref.(*vm.Object))), nil
	})
	integer.DefineMethod(public, "longValue", "()J", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.LongValue(int64(IntValue(args[0].Ref.(*vm.Object)))), nil
	})
	integer.DefineMethod(public, "toString", "()Ljava/lang/String;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(strconv.FormatInt(int64(IntValue(args[0].Ref.(*vm.Object))), 10)), nil
	})
	integer.DefineMethod(public, "hashCode", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(IntValue(args[0].Ref.(*vm.Object))), nil
	})
	integer.DefineMethod(public, "equals", "(Ljava/lang/Object;)Z", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		other, ok := args[1].Ref.(*vm.Object)
		if !ok || other.Class != args[0].Ref.(*vm.Object).Class {
			return boolValue(false), nil
		}
		return boolValue(IntValue(other) == IntValue(args[0].Ref.(*vm.Object))), nil
	})
}

func registerLong(l *vm.Loader, number *vm.Class) {
	long := define(l, "java/lang/Long", publicFinal, number)
	long.DefineMethod(publicStatic, "valueOf", "(J)Ljava/lang/Long;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(&vm.Object{Class: long, Fields: map[string]vm.Value{}, Native: args[0].Long}), nil
	})
	long.DefineMethod(public, "longValue", "()J", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.LongValue(args[0].Ref.(*vm.Object).Native.(int64)), nil
	})
	long.DefineMethod(public, "intValue", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(int32(args[0].Ref.(*vm.Object).Native.(int64))), nil
	})
	long.DefineMethod(public, "toString", "()Ljava/lang/String;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(strconv.FormatInt(args[0].Ref.(*vm.Object).Native.(int64), 10)), nil
	})
	long.DefineMethod(public, "hashCode", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(hashOf(args[0])), nil
	})
	long.DefineMethod(public, "equals", "(Ljava/lang/Object;)Z", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		other, ok := args[1].Ref.(*vm.Object)
		if !ok || other.Class != args[0].Ref.(*vm.Object).Class {
			return boolValue(false), nil
		}
		return boolValue(other.Native == args[0].Ref.(*vm.Object).Native), nil
	})
}

// IntValue unboxes a java.lang.Integer.
func IntValue(obj *vm.Object) int32 {
	return obj.Native.(int32)
}

// BoxInt returns the java.lang.Integer for v, as Integer.valueOf would.
func BoxInt(thread *vm.VM, v int32) (*vm.Object, error) {
	integer, err := thread.Loader.LoadClass("java/lang/Integer")
	if err != nil {
		return nil, err
	}
	ret, err := thread.Invoke(integer.DeclaredMethod("valueOf", "(I)Ljava/lang/Integer;"), []vm.Value{vm.IntValue(v)})
	if err != nil {
		return nil, err
	}
	return ret.Ref.(*vm.Object), nil
}

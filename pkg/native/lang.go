package native

import (
	"fmt"
	"hash/fnv"
	"unicode/utf16"

	"github.com/daimatz/gojvm-reload/pkg/vm"
)

func registerObject(l *vm.Loader) *vm.Class {
	object := define(l, "java/lang/Object", public, nil)
	object.DefineMethod(public, "<init>", "()V", noop)
	object.DefineMethod(public, "hashCode", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(hashOf(args[0])), nil
	})
	object.DefineMethod(public, "equals", "(Ljava/lang/Object;)Z", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return boolValue(sameRef(args[0], args[1])), nil
	})
	object.DefineMethod(public, "toString", "()Ljava/lang/String;", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		c := thread.ClassOf(args[0])
		name := "java.lang.Object"
		if c != nil {
			name = c.JavaName()
		}
		return vm.RefValue(fmt.Sprintf("%s@%x", name, uint32(identityHash(args[0].Ref)))), nil
	})
	define(l, "java/lang/Class", publicFinal, object)
	return object
}

var throwableClasses = []struct{ name, super string }{
	{"java/lang/Exception", "java/lang/Throwable"},
	{"java/lang/Error", "java/lang/Throwable"},
	{"java/lang/RuntimeException", "java/lang/Exception"},
	{"java/lang/ArithmeticException", "java/lang/RuntimeException"},
	{"java/lang/NullPointerException", "java/lang/RuntimeException"},
	{"java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"},
	{"java/lang/ArrayIndexOutOfBoundsException", "java/lang/IndexOutOfBoundsException"},
	{"java/lang/NegativeArraySizeException", "java/lang/RuntimeException"},
	{"java/lang/ClassCastException", "java/lang/RuntimeException"},
	{"java/lang/IllegalArgumentException", "java/lang/RuntimeException"},
	{"java/lang/NumberFormatException", "java/lang/IllegalArgumentException"},
	{"java/lang/IllegalStateException", "java/lang/RuntimeException"},
	{"java/lang/UnsupportedOperationException", "java/lang/RuntimeException"},
	{"java/lang/LinkageError", "java/lang/Error"},
	{"java/lang/IncompatibleClassChangeError", "java/lang/LinkageError"},
	{"java/lang/AbstractMethodError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/InstantiationError", "java/lang/IncompatibleClassChangeError"},
	{"java/lang/BootstrapMethodError", "java/lang/LinkageError"},
	{"java/lang/VirtualMachineError", "java/lang/Error"},
	{"java/lang/StackOverflowError", "java/lang/VirtualMachineError"},
}

func registerThrowables(l *vm.Loader, object *vm.Class) {
	throwable := define(l, "java/lang/Throwable", public, object)
	throwable.DefineMethod(public, "<init>", "()V", noop)
	throwable.DefineMethod(public, "<init>", "(Ljava/lang/String;)V", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		args[0].Ref.(*vm.Object).Fields["message"] = args[1]
		return vm.Value{}, nil
	})
	throwable.DefineMethod(public, "getMessage", "()Ljava/lang/String;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		if msg, ok := args[0].Ref.(*vm.Object).Fields["message"]; ok {
			return msg, nil
		}
		return vm.NullValue(), nil
	})
	throwable.DefineMethod(public, "toString", "()Ljava/lang/String;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		obj := args[0].Ref.(*vm.Object)
		if msg, ok := obj.Fields["message"]; ok && !msg.IsNull() {
			return vm.RefValue(fmt.Sprintf("%s: %v", obj.Class.JavaName(), msg.Ref)), nil
		}
		return vm.RefValue(obj.Class.JavaName()), nil
	})
	for _, t := range throwableClasses {
		define(l, t.name, public, loaded(l, t.super))
	}
}

func registerString(l *vm.Loader, object *vm.Class) {
	str := define(l, "java/lang/String", publicFinal, object)
	str.DefineMethod(public, "length", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(int32(len(utf16.Encode([]rune(args[0].Ref.(string)))))), nil
	})
	str.DefineMethod(public, "isEmpty", "()Z", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return boolValue(args[0].Ref.(string) == ""), nil
	})
	str.DefineMethod(public, "charAt", "(I)C", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		units := utf16.Encode([]rune(args[0].Ref.(string)))
		i := args[1].Int
		if i < 0 || int(i) >= len(units) {
			return vm.Value{}, thread.Throw("java/lang/IndexOutOfBoundsException", fmt.Sprintf("index %d, length %d", i, len(units)))
		}
		return vm.IntValue(int32(units[i])), nil
	})
	str.DefineMethod(public, "concat", "(Ljava/lang/String;)Ljava/lang/String;", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		if args[1].IsNull() {
			return vm.Value{}, thread.Throw("java/lang/NullPointerException", "concat")
		}
		return vm.RefValue(args[0].Ref.(string) + args[1].Ref.(string)), nil
	})
	str.DefineMethod(public, "equals", "(Ljava/lang/Object;)Z", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		other, ok := args[1].Ref.(string)
		return boolValue(ok && other == args[0].Ref.(string)), nil
	})
	str.DefineMethod(public, "hashCode", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(stringHash(args[0].Ref.(string))), nil
	})
	str.DefineMethod(public, "toString", "()Ljava/lang/String;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return args[0], nil
	})
	str.DefineMethod(publicStatic, "valueOf", "(I)Ljava/lang/String;", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		return stringValue(thread, args[0], 'I')
	})
	str.DefineMethod(publicStatic, "valueOf", "(J)Ljava/lang/String;", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		return stringValue(thread, args[0], 'J')
	})
	str.DefineMethod(publicStatic, "valueOf", "(Z)Ljava/lang/String;", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		return stringValue(thread, args[0], 'Z')
	})
	str.DefineMethod(publicStatic, "valueOf", "(C)Ljava/lang/String;", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		return stringValue(thread, args[0], 'C')
	})
	str.DefineMethod(publicStatic, "valueOf", "(Ljava/lang/Object;)Ljava/lang/String;", func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
		return stringValue(thread, args[0], 'L')
	})
}

func stringValue(thread *vm.VM, v vm.Value, kind byte) (vm.Value, error) {
	s, err := Format(thread, v, kind)
	if err != nil {
		return vm.Value{}, err
	}
	return vm.RefValue(s), nil
}

// Format renders v the way String.valueOf would for a value of the given
// descriptor kind ('I', 'J', 'Z', 'C' or 'L'). References are rendered by
// invoking their toString method.
func Format(thread *vm.VM, v vm.Value, kind byte) (string, error) {
	switch kind {
	case 'I', 'B', 'S':
		return fmt.Sprint(v.Int), nil
	case 'J':
		return fmt.Sprint(v.Long), nil
	case 'Z':
		if v.Int != 0 {
			return "true", nil
		}
		return "false", nil
	case 'C':
		return string(utf16.Decode([]uint16{uint16(v.Int)})), nil
	}
	if v.IsNull() {
		return "null", nil
	}
	switch r := v.Ref.(type) {
	case string:
		return r, nil
	case *vm.Object:
		m := r.Class.FindMethod("toString", "()Ljava/lang/String;")
		if m == nil {
			return fmt.Sprintf("%s@%x", r.Class.JavaName(), uint32(identityHash(r))), nil
		}
		ret, err := thread.InvokeVirtual(m, []vm.Value{v})
		if err != nil {
			return "", err
		}
		if ret.IsNull() {
			return "null", nil
		}
		return fmt.Sprint(ret.Ref), nil
	case *vm.Array:
		return fmt.Sprintf("%s@%x", r.Class.Name, uint32(identityHash(r))), nil
	case *vm.Class:
		if r.IsInterface() {
			return "interface " + r.JavaName(), nil
		}
		return "class " + r.JavaName(), nil
	}
	return fmt.Sprint(v.Ref), nil
}

func stringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = 31*h + int32(u)
	}
	return h
}

func hashOf(v vm.Value) int32 {
	switch r := v.Ref.(type) {
	case string:
		return stringHash(r)
	case *vm.Object:
		switch n := r.Native.(type) {
		case int32:
			return n
		case int64:
			return int32(n ^ n>>32)
		}
	}
	return identityHash(v.Ref)
}

func identityHash(ref interface{}) int32 {
	h := fnv.New32a()
	fmt.Fprintf(h, "%p", ref)
	return int32(h.Sum32() & 0x7fffffff)
}

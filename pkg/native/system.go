package native

import (
	"fmt"
	"time"

	"github.com/daimatz/gojvm-reload/pkg/vm"
)

var printKinds = []struct {
	desc string
	kind byte
}{
	{"(I)V", 'I'},
	{"(J)V", 'J'},
	{"(Z)V", 'Z'},
	{"(C)V", 'C'},
	{"(Ljava/lang/String;)V", 'L'},
	{"(Ljava/lang/Object;)V", 'L'},
}

// registerSystem defines java.lang.System with a single PrintStream in
// System.out. The stream writes to the Stdout of whichever VM calls it.
func registerSystem(l *vm.Loader, object *vm.Class) {
	printStream := define(l, "java/io/PrintStream", public, object)
	printStream.DefineMethod(public, "println", "()V", func(thread *vm.VM, _ []vm.Value) (vm.Value, error) {
		fmt.Fprintln(thread.Stdout)
		return vm.Value{}, nil
	})
	for _, p := range printKinds {
		kind := p.kind
		printStream.DefineMethod(public, "println", p.desc, func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
			return printValue(thread, args[1], kind, "\n")
		})
		printStream.DefineMethod(public, "print", p.desc, func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
			return printValue(thread, args[1], kind, "")
		})
	}

	system := define(l, "java/lang/System", publicFinal, object)
	system.SetStatic("out", vm.RefValue(vm.NewObject(printStream)))
	system.DefineMethod(publicStatic, "currentTimeMillis", "()J", func(*vm.VM, []vm.Value) (vm.Value, error) {
		return vm.LongValue(time.Now().UnixMilli()), nil
	})
	system.DefineMethod(publicStatic, "nanoTime", "()J", func(*vm.VM, []vm.Value) (vm.Value, error) {
		return vm.LongValue(time.Now().UnixNano()), nil
	})
	system.DefineMethod(publicStatic, "identityHashCode", "(Ljava/lang/Object;)I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		if args[0].IsNull() {
			return vm.IntValue(0), nil
		}
		return vm.IntValue(identityHash(args[0].Ref)), nil
	})
}

func printValue(thread *vm.VM, v vm.Value, kind byte, suffix string) (vm.Value, error) {
	s, err := Format(thread, v, kind)
	if err != nil {
		return vm.Value{}, err
	}
	fmt.Fprint(thread.Stdout, s+suffix)
	return vm.Value{}, nil
}

func registerStringBuilder(l *vm.Loader, object *vm.Class) {
	sb := define(l, "java/lang/StringBuilder", publicFinal, object)
	buf := func(v vm.Value) *[]byte {
		return v.Ref.(*vm.Object).Native.(*[]byte)
	}
	sb.DefineMethod(public, "<init>", "()V", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		args[0].Ref.(*vm.Object).Native = new([]byte)
		return vm.Value{}, nil
	})
	sb.DefineMethod(public, "<init>", "(Ljava/lang/String;)V", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		b := []byte(args[1].Ref.(string))
		args[0].Ref.(*vm.Object).Native = &b
		return vm.Value{}, nil
	})
	for _, p := range printKinds {
		kind := p.kind
		desc := p.desc[:len(p.desc)-1] + "Ljava/lang/StringBuilder;"
		sb.DefineMethod(public, "append", desc, func(thread *vm.VM, args []vm.Value) (vm.Value, error) {
			s, err := Format(thread, args[1], kind)
			if err != nil {
				return vm.Value{}, err
			}
			b := buf(args[0])
			*b = append(*b, s...)
			return args[0], nil
		})
	}
	sb.DefineMethod(public, "length", "()I", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.IntValue(int32(len([]rune(string(*buf(args[0])))))), nil
	})
	sb.DefineMethod(public, "toString", "()Ljava/lang/String;", func(_ *vm.VM, args []vm.Value) (vm.Value, error) {
		return vm.RefValue(string(*buf(args[0]))), nil
	})
}
